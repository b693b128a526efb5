package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/alejandrodnm/polypnl/internal/domain"
	"github.com/alejandrodnm/polypnl/internal/metrics"
)

func TestObserveRun(t *testing.T) {
	accepted := testutil.ToFloat64(metrics.FillsTotal.WithLabelValues("accepted"))
	missing := testutil.ToFloat64(metrics.FillsTotal.WithLabelValues(string(domain.RejectMissingIdentifier)))
	settled := testutil.ToFloat64(metrics.PositionsTotal.WithLabelValues(string(domain.StatusSettled)))
	divergent := testutil.ToFloat64(metrics.ReconciliationsTotal.WithLabelValues(string(domain.ReconcileDivergent)))

	metrics.ObserveRun(domain.RunResult{
		Method:    "average_cost",
		Accepted:  3,
		Rejects:   []domain.RejectedFill{{Reason: domain.RejectMissingIdentifier}},
		Positions: []domain.PositionPnL{{Status: domain.StatusSettled}, {Status: domain.StatusOpen}},
		Summaries: []domain.WalletSummary{{Grade: domain.CoverageFull}},
		Reports:   []domain.ReconciliationReport{{Classification: domain.ReconcileDivergent}},
	}, 10*time.Millisecond)

	assert.Equal(t, accepted+3, testutil.ToFloat64(metrics.FillsTotal.WithLabelValues("accepted")))
	assert.Equal(t, missing+1, testutil.ToFloat64(metrics.FillsTotal.WithLabelValues(string(domain.RejectMissingIdentifier))))
	assert.Equal(t, settled+1, testutil.ToFloat64(metrics.PositionsTotal.WithLabelValues(string(domain.StatusSettled))))
	assert.Equal(t, divergent+1, testutil.ToFloat64(metrics.ReconciliationsTotal.WithLabelValues(string(domain.ReconcileDivergent))))
}

func TestMiddleware_UsesRoutePattern(t *testing.T) {
	h := metrics.Middleware(func(*http.Request) string { return "/snapshots/{id}" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))

	before := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "/snapshots/{id}", "404"))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/snapshots/abc", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "/snapshots/{id}", "404")))
}
