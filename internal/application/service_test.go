package application_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polypnl/config"
	"github.com/alejandrodnm/polypnl/internal/adapters/notify"
	"github.com/alejandrodnm/polypnl/internal/adapters/onchain"
	"github.com/alejandrodnm/polypnl/internal/adapters/storage"
	"github.com/alejandrodnm/polypnl/internal/application"
	"github.com/alejandrodnm/polypnl/internal/domain"
	"github.com/alejandrodnm/polypnl/internal/pipeline"
	"github.com/alejandrodnm/polypnl/internal/reconcile"
)

const (
	walletA = "0x8888888888888888888888888888888888888888"
	walletB = "0x9999999999999999999999999999999999999999"
	market  = "0xcafe000000000000000000000000000000000000000000000000000000000001"
)

var t0 = time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fakeRefs map[domain.Wallet]string

func (f fakeRefs) FetchReference(_ context.Context, w domain.Wallet) (domain.ReferencePnL, bool, error) {
	v, ok := f[w]
	if !ok {
		return domain.ReferencePnL{}, false, nil
	}
	if v == "error" {
		return domain.ReferencePnL{}, false, errors.New("leaderboard down")
	}
	return domain.ReferencePnL{Wallet: w, Total: d(v), Source: "fake"}, true, nil
}

func seed(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	snap := domain.Snapshot{
		ID:        "snap-svc",
		CreatedAt: t0.Add(24 * time.Hour),
		AsOf:      t0.Add(24 * time.Hour),
		Wallets:   []string{walletA, walletB},
		Fills: []domain.RawFill{
			{ID: "1", TxHash: "0x1", Wallet: walletA, MarketID: market, Side: "BUY", Shares: d("100"), Price: d("0.60"), Timestamp: t0},
			{ID: "2", TxHash: "0x2", Wallet: walletA, MarketID: market, Side: "SELL", Shares: d("50"), Price: d("0.80"), Timestamp: t0.Add(time.Hour)},
			{ID: "3", TxHash: "0x3", Wallet: walletB, MarketID: market, Side: "BUY", Shares: d("10"), Price: d("0.50"), Timestamp: t0},
		},
		Resolutions: []domain.ResolutionCandidate{
			{MarketID: market, WinningIndex: 0, PayoutNumerators: []int64{1, 0}, PayoutDenominator: 1, Source: "onchain"},
		},
	}
	require.NoError(t, db.SaveSnapshot(context.Background(), snap))
	return db
}

func TestService_ComputeReconcileAndPersist(t *testing.T) {
	db := seed(t)
	var out bytes.Buffer
	refs := fakeRefs{
		domain.MustWallet(walletA): "45",
		domain.MustWallet(walletB): "error",
	}
	svc := application.NewService(pipeline.New(pipeline.DefaultConfig()), db, refs, notify.NewConsoleWriter(&out, false))

	run, err := svc.Compute(context.Background(), "snap-svc", true)
	require.NoError(t, err)
	require.Len(t, run.Reports, 2)

	byWallet := map[domain.Wallet]domain.ReconciliationClass{}
	for _, r := range run.Reports {
		byWallet[r.Wallet] = r.Classification
	}
	assert.Equal(t, domain.ReconcileDivergent, byWallet[domain.MustWallet(walletA)])
	assert.Equal(t, domain.ReconcileNoReference, byWallet[domain.MustWallet(walletB)])
	assert.ErrorIs(t, svc.Gate(run), reconcile.ErrDivergence)

	stored, err := db.LatestRun(context.Background(), "snap-svc")
	require.NoError(t, err)
	assert.Equal(t, run.RunID, stored.RunID)
	assert.Len(t, stored.Reports, 2)

	assert.Contains(t, out.String(), "DIVERGENT")
}

func TestService_ComputeWithoutReconcile(t *testing.T) {
	db := seed(t)
	svc := application.NewService(pipeline.New(pipeline.DefaultConfig()), db, nil, nil)

	run, err := svc.Compute(context.Background(), "snap-svc", false)
	require.NoError(t, err)
	assert.Empty(t, run.Reports)
	assert.NoError(t, svc.Gate(run))

	_, err = svc.Compute(context.Background(), "snap-svc", true)
	assert.Error(t, err)

	_, err = svc.Compute(context.Background(), "missing", false)
	assert.Error(t, err)
}

func TestBuildSources_APIWithUnreachableRedis(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Source.Kind = config.SourceAPI
	cfg.Source.PolygonRPC = ""
	cfg.Cache.RedisURL = "redis://127.0.0.1:1/0"

	src, err := application.BuildSources(context.Background(), cfg)
	require.NoError(t, err)
	defer src.Close()

	assert.NotNil(t, src.Fills)
	assert.Len(t, src.Resolutions, 1)
	assert.Same(t, src.Fills, src.Prices, "without redis prices come straight from the client")
}

func TestBuildSources_BadRedisURL(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Cache.RedisURL = "not a url"

	_, err = application.BuildSources(context.Background(), cfg)
	assert.Error(t, err)
}

func TestBuildSources_OnchainResolutionsFirst(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	// el transporte HTTP de ethclient no conecta hasta la primera llamada
	cfg.Source.PolygonRPC = "http://127.0.0.1:1"

	src, err := application.BuildSources(context.Background(), cfg)
	require.NoError(t, err)
	defer src.Close()

	require.Len(t, src.Resolutions, 2)
	assert.IsType(t, &onchain.ResolutionSource{}, src.Resolutions[0])
}
