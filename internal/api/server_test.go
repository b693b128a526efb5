package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polypnl/internal/adapters/storage"
	"github.com/alejandrodnm/polypnl/internal/api"
	"github.com/alejandrodnm/polypnl/internal/domain"
	"github.com/alejandrodnm/polypnl/internal/pipeline"
)

const (
	wallet = "0x5555555555555555555555555555555555555555"
	market = "0xbeef000000000000000000000000000000000000000000000000000000000001"
)

var t0 = time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// newTestServer guarda un snapshot con una pasada calculada y devuelve el router.
func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	ctx := context.Background()

	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	snap := domain.Snapshot{
		ID:        "snap-api",
		Label:     "test",
		CreatedAt: t0.Add(48 * time.Hour),
		AsOf:      t0.Add(48 * time.Hour),
		Wallets:   []string{wallet},
		Fills: []domain.RawFill{
			{ID: "1", TxHash: "0x01", Wallet: wallet, MarketID: market, Side: "BUY", Shares: d("100"), Price: d("0.60"), Timestamp: t0},
			{ID: "2", TxHash: "0x02", Wallet: wallet, MarketID: market, Side: "SELL", Shares: d("50"), Price: d("0.80"), Timestamp: t0.Add(time.Hour)},
		},
		Resolutions: []domain.ResolutionCandidate{
			{MarketID: market, WinningIndex: 0, PayoutNumerators: []int64{1, 0}, PayoutDenominator: 1, Source: "onchain"},
		},
	}
	require.NoError(t, store.SaveSnapshot(ctx, snap))

	engine := pipeline.New(pipeline.DefaultConfig())
	run, err := engine.Compute(ctx, snap)
	require.NoError(t, err)
	engine.Reconcile(&run, []domain.ReferencePnL{{Wallet: domain.MustWallet(wallet), Total: d("30.40"), Source: "leaderboard"}})
	require.NoError(t, store.SaveRun(ctx, run))

	return api.NewServer(store, time.Second).Routes()
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	w := get(t, newTestServer(t), "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestListSnapshots(t *testing.T) {
	w := get(t, newTestServer(t), "/snapshots")
	require.Equal(t, http.StatusOK, w.Code)

	var body []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body, 1)
	assert.Equal(t, "snap-api", body[0]["id"])
	assert.EqualValues(t, 2, body[0]["fills"])
}

func TestGetWallet(t *testing.T) {
	h := newTestServer(t)
	// la dirección se acepta en cualquier formato
	w := get(t, h, "/snapshots/snap-api/wallets/"+strings.ToUpper(wallet[2:]))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body struct {
		Method  string `json:"method"`
		Summary struct {
			Wallet string          `json:"wallet"`
			Total  decimal.Decimal `json:"total"`
			Grade  string          `json:"grade"`
		} `json:"summary"`
		Reconciliation *struct {
			Classification string `json:"classification"`
		} `json:"reconciliation"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, wallet, body.Summary.Wallet)
	assert.True(t, d("30").Equal(body.Summary.Total))
	assert.Equal(t, "FULL", body.Summary.Grade)
	require.NotNil(t, body.Reconciliation)
	assert.Equal(t, "MATCH", body.Reconciliation.Classification)
}

func TestGetPositions(t *testing.T) {
	w := get(t, newTestServer(t), "/snapshots/snap-api/wallets/"+wallet+"/positions")
	require.Equal(t, http.StatusOK, w.Code)

	var body []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body, 1)
	assert.Equal(t, "SETTLED", body[0]["status"])
	assert.Equal(t, market, body[0]["condition_id"])
	assert.Nil(t, body[0]["unrealized"])
}

func TestErrors(t *testing.T) {
	h := newTestServer(t)

	cases := []struct {
		path string
		code int
	}{
		{"/snapshots/snap-api/wallets/not-a-wallet", http.StatusBadRequest},
		{"/snapshots/missing/wallets/" + wallet, http.StatusNotFound},
		{"/snapshots/snap-api/wallets/0x6666666666666666666666666666666666666666", http.StatusNotFound},
		{"/snapshots/snap-api/wallets/0x6666666666666666666666666666666666666666/positions", http.StatusNotFound},
	}
	for _, tc := range cases {
		w := get(t, h, tc.path)
		assert.Equal(t, tc.code, w.Code, tc.path)
		assert.Contains(t, w.Body.String(), `"error"`)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(t)
	get(t, h, "/healthz")

	w := get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "polypnl_http_requests_total")
}
