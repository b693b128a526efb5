// Package api sirve por HTTP los resultados guardados: snapshots, resúmenes
// por wallet y posiciones de la última pasada de cada snapshot.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/alejandrodnm/polypnl/internal/domain"
	"github.com/alejandrodnm/polypnl/internal/metrics"
	"github.com/alejandrodnm/polypnl/internal/ports"
)

// Server expone un ports.SnapshotStore en modo solo lectura.
type Server struct {
	store   ports.SnapshotStore
	timeout time.Duration
}

// NewServer crea el servidor. timeout <= 0 usa 30s por request.
func NewServer(store ports.SnapshotStore, timeout time.Duration) *Server {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Server{store: store, timeout: timeout}
}

// Routes construye el router chi con middleware y métricas.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))
	r.Use(metrics.Middleware(routePattern))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/snapshots", func(r chi.Router) {
		r.Get("/", s.listSnapshots)
		r.Get("/{snapshotID}/wallets/{wallet}", s.getWallet)
		r.Get("/{snapshotID}/wallets/{wallet}/positions", s.getPositions)
	})
	return r
}

// listSnapshots handles GET /snapshots
func (s *Server) listSnapshots(w http.ResponseWriter, r *http.Request) {
	infos, err := s.store.ListSnapshots(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	out := make([]snapshotJSON, 0, len(infos))
	for _, info := range infos {
		out = append(out, toSnapshotJSON(info))
	}
	writeJSON(w, http.StatusOK, out)
}

// getWallet handles GET /snapshots/{snapshotID}/wallets/{wallet}
func (s *Server) getWallet(w http.ResponseWriter, r *http.Request) {
	run, wallet, ok := s.latestRun(w, r)
	if !ok {
		return
	}
	for _, sum := range run.Summaries {
		if sum.Wallet != wallet {
			continue
		}
		resp := walletJSON{
			RunID:      run.RunID,
			SnapshotID: run.SnapshotID,
			ComputedAt: run.ComputedAt,
			Method:     run.Method,
			Summary:    toSummaryJSON(sum),
		}
		for _, rep := range run.Reports {
			if rep.Wallet == wallet {
				rj := toReportJSON(rep)
				resp.Reconciliation = &rj
			}
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}
	writeError(w, "wallet not in snapshot", http.StatusNotFound)
}

// getPositions handles GET /snapshots/{snapshotID}/wallets/{wallet}/positions
func (s *Server) getPositions(w http.ResponseWriter, r *http.Request) {
	run, wallet, ok := s.latestRun(w, r)
	if !ok {
		return
	}
	out := []positionJSON{}
	for _, p := range run.Positions {
		if p.Wallet == wallet {
			out = append(out, toPositionJSON(p))
		}
	}
	if len(out) == 0 {
		writeError(w, "wallet not in snapshot", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// latestRun resuelve los parámetros comunes y escribe el error si falla.
func (s *Server) latestRun(w http.ResponseWriter, r *http.Request) (domain.RunResult, domain.Wallet, bool) {
	wallet, err := domain.NormalizeWallet(chi.URLParam(r, "wallet"))
	if err != nil {
		writeError(w, "invalid wallet address", http.StatusBadRequest)
		return domain.RunResult{}, "", false
	}
	run, err := s.store.LatestRun(r.Context(), chi.URLParam(r, "snapshotID"))
	if errors.Is(err, ports.ErrNotFound) {
		writeError(w, "no computed run for snapshot", http.StatusNotFound)
		return domain.RunResult{}, "", false
	}
	if err != nil {
		s.internalError(w, r, err)
		return domain.RunResult{}, "", false
	}
	return run, wallet, true
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	slog.Error("api request failed",
		"path", r.URL.Path,
		"request_id", middleware.GetReqID(r.Context()),
		"err", err,
	)
	writeError(w, "internal error", http.StatusInternalServerError)
}

// routePattern devuelve la ruta chi parametrizada para las métricas.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("api encode failed", "err", err)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
