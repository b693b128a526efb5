// Package application une las piezas: carga un snapshot, calcula, reconcilia,
// guarda la pasada y la presenta. Los adaptadores concretos se construyen en
// wiring.go a partir de la config.
package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/polypnl/internal/domain"
	"github.com/alejandrodnm/polypnl/internal/pipeline"
	"github.com/alejandrodnm/polypnl/internal/ports"
)

// Service es el orquestador de una pasada de cálculo.
type Service struct {
	engine   *pipeline.Engine
	store    ports.SnapshotStore
	refs     ports.ReferenceSource
	notifier ports.Notifier
}

// NewService crea el servicio. refs y notifier pueden ser nil.
func NewService(engine *pipeline.Engine, store ports.SnapshotStore, refs ports.ReferenceSource, notifier ports.Notifier) *Service {
	return &Service{engine: engine, store: store, refs: refs, notifier: notifier}
}

// Compute calcula el snapshot, opcionalmente lo reconcilia contra la fuente de
// referencia, persiste la pasada y la notifica.
func (s *Service) Compute(ctx context.Context, snapshotID string, reconcile bool) (domain.RunResult, error) {
	snap, err := s.store.GetSnapshot(ctx, snapshotID)
	if err != nil {
		return domain.RunResult{}, fmt.Errorf("application.Compute: %w", err)
	}

	run, err := s.engine.Compute(ctx, snap)
	if err != nil {
		return domain.RunResult{}, fmt.Errorf("application.Compute: %w", err)
	}

	if reconcile {
		if s.refs == nil {
			return domain.RunResult{}, fmt.Errorf("application.Compute: reconcile requested without a reference source")
		}
		wallets := make([]domain.Wallet, 0, len(run.Summaries))
		for _, sum := range run.Summaries {
			wallets = append(wallets, sum.Wallet)
		}
		s.engine.Reconcile(&run, FetchReferences(ctx, s.refs, wallets))
	}

	if err := s.store.SaveRun(ctx, run); err != nil {
		return domain.RunResult{}, fmt.Errorf("application.Compute: %w", err)
	}

	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, run); err != nil {
			slog.Warn("notifier error", "err", err)
		}
	}
	return run, nil
}

// Gate aplica el gate de regresión sobre una pasada reconciliada.
func (s *Service) Gate(run domain.RunResult) error {
	return s.engine.Gate(run)
}

// FetchReferences pide la cifra de referencia de cada wallet. Un fallo de la
// fuente deja la wallet sin referencia (NO_REFERENCE) en vez de abortar.
func FetchReferences(ctx context.Context, src ports.ReferenceSource, wallets []domain.Wallet) []domain.ReferencePnL {
	var out []domain.ReferencePnL
	for _, w := range wallets {
		ref, ok, err := src.FetchReference(ctx, w)
		if err != nil {
			slog.Warn("reference unavailable", "wallet", w.Short(), "err", err)
			continue
		}
		if !ok {
			slog.Debug("wallet unknown to reference source", "wallet", w.Short())
			continue
		}
		out = append(out, ref)
	}
	return out
}
