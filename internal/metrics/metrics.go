// Package metrics expone la instrumentación Prometheus del motor de P&L.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

var (
	// RunsTotal cuenta pasadas de cálculo por método contable.
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polypnl_runs_total",
		Help: "Total computation runs",
	}, []string{"method"})

	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "polypnl_run_duration_seconds",
		Help:    "Computation run duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// FillsTotal cuenta fills por resultado de ingestión (accepted, duplicate)
	// o motivo de cuarentena.
	FillsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polypnl_fills_total",
		Help: "Fills processed by ingestion outcome",
	}, []string{"outcome"})

	PositionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polypnl_positions_total",
		Help: "Positions computed by final status",
	}, []string{"status"})

	ReconciliationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polypnl_reconciliations_total",
		Help: "Wallet reconciliations by classification",
	}, []string{"classification"})

	// WalletGrades cuenta resúmenes por grado de cobertura.
	WalletGrades = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polypnl_wallet_grades_total",
		Help: "Wallet summaries by coverage grade",
	}, []string{"grade"})

	// UpstreamRequests cuenta llamadas a las APIs externas por endpoint y código.
	UpstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polypnl_upstream_requests_total",
		Help: "Requests to upstream data APIs",
	}, []string{"endpoint", "status"})

	PriceCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polypnl_price_cache_lookups_total",
		Help: "Price cache lookups by result",
	}, []string{"result"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polypnl_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "polypnl_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// ObserveRun registra el resultado de una pasada completa.
func ObserveRun(res domain.RunResult, took time.Duration) {
	RunsTotal.WithLabelValues(res.Method).Inc()
	RunDuration.Observe(took.Seconds())

	FillsTotal.WithLabelValues("accepted").Add(float64(res.Accepted))
	FillsTotal.WithLabelValues("duplicate").Add(float64(res.Duplicates))
	for _, r := range res.Rejects {
		FillsTotal.WithLabelValues(string(r.Reason)).Inc()
	}
	for _, p := range res.Positions {
		PositionsTotal.WithLabelValues(string(p.Status)).Inc()
	}
	for _, s := range res.Summaries {
		WalletGrades.WithLabelValues(string(s.Grade)).Inc()
	}
	for _, rep := range res.Reports {
		ReconciliationsTotal.WithLabelValues(string(rep.Classification)).Inc()
	}
}

// Handler devuelve el handler HTTP de Prometheus.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware registra métricas por request. pattern resuelve la ruta
// parametrizada para no disparar la cardinalidad con ids.
func Middleware(pattern func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			path := r.URL.Path
			if pattern != nil {
				if p := pattern(r); p != "" {
					path = p
				}
			}
			HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
			HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
