package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polypnl/internal/adapters/postgres"
	"github.com/alejandrodnm/polypnl/internal/domain"
	"github.com/alejandrodnm/polypnl/internal/ledger"
	"github.com/alejandrodnm/polypnl/internal/resolution"
)

func TestDecodeTransfers(t *testing.T) {
	legs, err := postgres.DecodeTransfers([]byte(`[
		{"counterparty":"0xexchange","asset":"USDC","amount":"-4.2"},
		{"counterparty":"0xexchange","asset":"token","amount":10}
	]`))
	require.NoError(t, err)
	require.Len(t, legs, 2)
	assert.Equal(t, domain.AssetUSDC, legs[0].Asset)
	assert.True(t, decimal.RequireFromString("-4.2").Equal(legs[0].Amount))
	assert.Equal(t, domain.AssetToken, legs[1].Asset)

	side, conf := ledger.InferSide(legs)
	assert.Equal(t, domain.SideBuy, side)
	assert.Equal(t, domain.ConfidenceHigh, conf)

	for _, empty := range [][]byte{nil, []byte("null")} {
		legs, err := postgres.DecodeTransfers(empty)
		require.NoError(t, err)
		assert.Nil(t, legs)
	}

	_, err = postgres.DecodeTransfers([]byte(`{"not":"an array"}`))
	assert.Error(t, err)
}

// Requiere Postgres: POLYPNL_TEST_POSTGRES_DSN=postgres://localhost/polypnl_test
func TestSource_Integration(t *testing.T) {
	dsn := os.Getenv("POLYPNL_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POLYPNL_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	src, err := postgres.Open(ctx, dsn)
	require.NoError(t, err)
	defer src.Close()
	require.NoError(t, src.Migrate(ctx))

	const (
		wallet = "0xAAAA000000000000000000000000000000000001"
		cid    = "0xC1D0000000000000000000000000000000000000000000000000000000000001"
	)
	cleanup := func() {
		_, _ = src.Pool().Exec(ctx, `DELETE FROM fills WHERE tx_hash = 'pg-test'`)
		_, _ = src.Pool().Exec(ctx, `DELETE FROM market_resolutions WHERE source = 'pg-test'`)
	}
	cleanup()
	t.Cleanup(cleanup)

	at := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)
	_, err = src.Pool().Exec(ctx, `
		INSERT INTO fills (id, tx_hash, wallet, condition_id, outcome_index, side, shares, price, fee, block_time)
		VALUES ('f1', 'pg-test', $1, $2, 0, 'BUY', 100.123456, 0.37, 0, $3),
		       ('f2', 'pg-test', $1, $2, 0, NULL, 10, 0.5, 0.01, $3)`,
		wallet, cid, at)
	require.NoError(t, err)
	_, err = src.Pool().Exec(ctx, `
		INSERT INTO market_resolutions (condition_id, winning_index, payout_numerators, payout_denominator, resolved_at, source)
		VALUES ($1, 1, '{1,0}', 1, $2, 'pg-test')`,
		cid, at)
	require.NoError(t, err)

	fills, err := src.FetchFills(ctx, "0xaaaa000000000000000000000000000000000001")
	require.NoError(t, err)
	require.Len(t, fills, 2)
	assert.True(t, decimal.RequireFromString("100.123456").Equal(fills[0].Shares))
	assert.Equal(t, "", fills[1].Side)
	assert.True(t, at.Equal(fills[0].Timestamp))

	id := domain.MustConditionID(cid)
	cands, err := src.FetchResolutions(ctx, []domain.ConditionID{id})
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, 1, cands[0].IndexBase)

	r := resolution.NewResolver(cands, nil)
	res, ok := r.Resolve(id)
	require.True(t, ok)
	assert.Equal(t, 0, res.WinningIndex)
}
