package backfill_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polypnl/internal/adapters/storage"
	"github.com/alejandrodnm/polypnl/internal/backfill"
	"github.com/alejandrodnm/polypnl/internal/domain"
	"github.com/alejandrodnm/polypnl/internal/ports"
)

const (
	walletA  = "0x7777777777777777777777777777777777777777"
	resolved = "0xaa00000000000000000000000000000000000000000000000000000000000001"
	open     = "0xaa00000000000000000000000000000000000000000000000000000000000002"
)

var t0 = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fakeFills struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeFills) FetchFills(_ context.Context, wallet string) ([]domain.RawFill, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return []domain.RawFill{
		{ID: "1", TxHash: "0x1", Wallet: wallet, MarketID: resolved, Side: "BUY", Shares: d("10"), Price: d("0.5"), Timestamp: t0},
		{ID: "2", TxHash: "0x2", Wallet: wallet, MarketID: open, Side: "BUY", Shares: d("4"), Price: d("0.25"), Timestamp: t0},
		{ID: "3", TxHash: "0x3", Wallet: wallet, MarketID: "", Side: "BUY", Shares: d("1"), Price: d("0.5"), Timestamp: t0},
	}, nil
}

type fakeResolutions struct{ calls int }

func (f *fakeResolutions) FetchResolutions(_ context.Context, ids []domain.ConditionID) ([]domain.ResolutionCandidate, error) {
	f.calls++
	var out []domain.ResolutionCandidate
	for _, id := range ids {
		if id == domain.MustConditionID(resolved) {
			out = append(out, domain.ResolutionCandidate{
				MarketID: id.Hex(), WinningIndex: 0, PayoutNumerators: []int64{1, 0}, PayoutDenominator: 1, Source: "clob",
			})
		}
	}
	return out, nil
}

type fakePrices struct {
	fail  bool
	calls int
	asked []domain.ConditionID
}

func (f *fakePrices) FetchPrices(_ context.Context, ids []domain.ConditionID) ([]domain.Price, error) {
	f.calls++
	if f.fail {
		return nil, errors.New("upstream unavailable")
	}
	f.asked = append(f.asked, ids...)
	out := make([]domain.Price, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.Price{ConditionID: id, Mid: decimal.NewNullDecimal(d("0.3")), ObservedAt: t0, Source: "clob"})
	}
	return out, nil
}

func newStore(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func cfg() backfill.Config {
	return backfill.Config{Label: "test", BatchSize: 1, Now: func() time.Time { return t0.Add(time.Hour) }}
}

func TestRun_FreezesSnapshot(t *testing.T) {
	db := newStore(t)
	fills, res, prices := &fakeFills{}, &fakeResolutions{}, &fakePrices{}
	r := backfill.NewRunner(fills, []ports.ResolutionSource{res}, prices, db, db, cfg())

	info, err := r.Run(context.Background(), "job-1", []string{walletA, "7777777777777777777777777777777777777777"})
	require.NoError(t, err)

	assert.Equal(t, []string{walletA}, info.Wallets)
	assert.Equal(t, 3, info.Fills)
	assert.Equal(t, 1, info.Resolutions)
	assert.Equal(t, 1, info.Prices)
	assert.Equal(t, "test", info.Label)
	assert.True(t, t0.Add(time.Hour).Equal(info.AsOf))

	// sólo el mercado abierto necesita precio
	assert.Equal(t, []domain.ConditionID{domain.MustConditionID(open)}, prices.asked)

	snap, err := db.GetSnapshot(context.Background(), info.ID)
	require.NoError(t, err)
	for i, f := range snap.Fills {
		assert.Equal(t, int64(i+1), f.IngestSeq)
	}
}

func TestRun_ResumesFromCheckpoints(t *testing.T) {
	db := newStore(t)
	fills, res := &fakeFills{}, &fakeResolutions{}
	ctx := context.Background()

	failing := &fakePrices{fail: true}
	_, err := backfill.NewRunner(fills, []ports.ResolutionSource{res}, failing, db, db, cfg()).Run(ctx, "job-2", []string{walletA})
	require.Error(t, err)
	assert.Equal(t, 1, fills.calls)

	snaps, err := db.ListSnapshots(ctx)
	require.NoError(t, err)
	assert.Empty(t, snaps)

	prices := &fakePrices{}
	info, err := backfill.NewRunner(fills, []ports.ResolutionSource{res}, prices, db, db, cfg()).Run(ctx, "job-2", []string{walletA})
	require.NoError(t, err)
	assert.Equal(t, 1, fills.calls, "fills come from the checkpoint")
	assert.Equal(t, 2, res.calls, "one call per batch, none repeated")
	assert.Equal(t, 1, info.Prices)

	// job completado: devuelve el mismo snapshot sin tocar las fuentes
	again, err := backfill.NewRunner(fills, []ports.ResolutionSource{res}, prices, db, db, cfg()).Run(ctx, "job-2", []string{walletA})
	require.NoError(t, err)
	assert.Equal(t, info.ID, again.ID)
	assert.Equal(t, 1, prices.calls)
}

func TestRun_WithoutOracle(t *testing.T) {
	db := newStore(t)
	r := backfill.NewRunner(&fakeFills{}, []ports.ResolutionSource{&fakeResolutions{}}, nil, db, db, cfg())

	info, err := r.Run(context.Background(), backfill.NewJobID(), []string{walletA})
	require.NoError(t, err)
	assert.Equal(t, 0, info.Prices)
}

func TestRun_InvalidWallet(t *testing.T) {
	db := newStore(t)
	r := backfill.NewRunner(&fakeFills{}, nil, nil, db, db, cfg())

	_, err := r.Run(context.Background(), "job-3", []string{"0x123"})
	assert.ErrorIs(t, err, domain.ErrDataIntegrity)

	_, err = r.Run(context.Background(), "job-3", nil)
	assert.Error(t, err)
}
