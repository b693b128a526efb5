// Package pipeline orquesta una pasada de cálculo completa sobre un snapshot:
// loader → accountant → resolver → settlement → aggregator → reconciliación.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/polypnl/internal/accounting"
	"github.com/alejandrodnm/polypnl/internal/aggregate"
	"github.com/alejandrodnm/polypnl/internal/domain"
	"github.com/alejandrodnm/polypnl/internal/ledger"
	"github.com/alejandrodnm/polypnl/internal/metrics"
	"github.com/alejandrodnm/polypnl/internal/reconcile"
	"github.com/alejandrodnm/polypnl/internal/resolution"
	"github.com/alejandrodnm/polypnl/internal/settlement"
)

// Config reúne la configuración de todas las etapas.
type Config struct {
	Ledger      ledger.Config
	Accounting  accounting.Config
	Precedence  []string      // orden de confianza de fuentes de resolución
	MaxPriceAge time.Duration // 0 = sin control de frescura
	Workers     int           // 0 = NumCPU × 2
	LowCoverage float64
	Reconcile   reconcile.Config
}

// DefaultConfig devuelve la configuración base.
func DefaultConfig() Config {
	return Config{
		Ledger:      ledger.DefaultConfig(),
		Accounting:  accounting.DefaultConfig(),
		Precedence:  resolution.DefaultPrecedence,
		MaxPriceAge: 24 * time.Hour,
		LowCoverage: aggregate.DefaultLowCoverage,
		Reconcile:   reconcile.DefaultConfig(),
	}
}

// Engine es la API de librería del motor.
type Engine struct {
	cfg        Config
	loader     *ledger.Loader
	accountant *accounting.Accountant
	aggregator *aggregate.Aggregator
	reporter   *reconcile.Reporter
	now        func() time.Time
}

// New crea un Engine.
func New(cfg Config) *Engine {
	return &Engine{
		cfg:        cfg,
		loader:     ledger.NewLoader(cfg.Ledger),
		accountant: accounting.New(cfg.Accounting),
		aggregator: aggregate.New(aggregate.Config{LowCoverage: cfg.LowCoverage}),
		reporter:   reconcile.NewReporter(cfg.Reconcile),
		now:        time.Now,
	}
}

// Compute calcula el P&L de todas las wallets del snapshot. El snapshot no se
// modifica; dos llamadas sobre el mismo snapshot devuelven las mismas
// posiciones y resúmenes (sólo cambian RunID y ComputedAt).
func (e *Engine) Compute(ctx context.Context, snap domain.Snapshot) (domain.RunResult, error) {
	start := e.now()

	loaded := e.loader.Load(snap.Fills)
	resolver := resolution.NewResolver(snap.Resolutions, e.cfg.Precedence)
	prices := indexPrices(snap.Prices)

	asOf := snap.AsOf
	if asOf.IsZero() {
		asOf = snap.CreatedAt
	}
	settler := settlement.New(settlement.Config{MaxPriceAge: e.cfg.MaxPriceAge, AsOf: asOf})

	groups := make([]group, 0, len(loaded.Groups))
	for _, k := range loaded.Keys() {
		groups = append(groups, group{key: k, fills: loaded.Groups[k]})
	}

	outcomes, err := replayConcurrent(ctx, e.accountant, settler, resolver, prices, groups, e.cfg.Workers)
	if err != nil {
		return domain.RunResult{}, fmt.Errorf("pipeline.Compute: %w", err)
	}

	rejects := append([]domain.RejectedFill(nil), loaded.Rejects...)
	positions := make([]domain.PositionPnL, 0, len(outcomes))
	for _, o := range outcomes {
		rejects = append(rejects, o.rejected...)
		if o.pnl.FillCount == 0 {
			// todos los fills del grupo fueron rechazados o eran no-ops
			continue
		}
		positions = append(positions, o.pnl)
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Key().Less(positions[j].Key()) })

	res := domain.RunResult{
		RunID:      uuid.NewString(),
		SnapshotID: snap.ID,
		ComputedAt: e.now().UTC(),
		Method:     string(e.accountant.Method()),
		Positions:  positions,
		Summaries:  e.aggregator.Wallets(positions, rejects),
		Rejects:    rejects,
		Accepted:   loaded.Accepted,
		Duplicates: loaded.Duplicates,
	}

	stats := resolver.Stats()
	slog.Info("pnl computed",
		"snapshot", snap.ID,
		"run", res.RunID,
		"method", res.Method,
		"fills", len(snap.Fills),
		"accepted", res.Accepted,
		"duplicates", res.Duplicates,
		"rejected", len(res.Rejects),
		"unattributed_rejects", res.UnattributedRejects(),
		"positions", len(res.Positions),
		"wallets", len(res.Summaries),
		"markets_resolved", stats.Resolved,
		"resolution_conflicts", stats.Conflicts,
		"took", time.Since(start).Round(time.Millisecond),
	)
	metrics.ObserveRun(res, time.Since(start))
	return res, nil
}

// Reconcile compara los resúmenes de la pasada con cifras de referencia y
// guarda los reportes en res.
func (e *Engine) Reconcile(res *domain.RunResult, refs []domain.ReferencePnL) {
	res.Reports = e.reporter.CompareAll(res.Summaries, refs)
	for class, n := range reconcile.Summary(res.Reports) {
		metrics.ReconciliationsTotal.WithLabelValues(string(class)).Add(float64(n))
	}
}

// Gate aplica el gate de regresión sobre los reportes de la pasada.
func (e *Engine) Gate(res domain.RunResult) error {
	return e.reporter.Gate(res.Reports)
}

// indexPrices indexa las cotizaciones por (mercado, outcome). Si hay varias
// para la misma clave gana la más reciente. Ids no normalizables se descartan.
func indexPrices(prices []domain.Price) map[domain.PriceKey]domain.Price {
	out := make(map[domain.PriceKey]domain.Price, len(prices))
	for _, p := range prices {
		id, err := domain.NormalizeConditionID(string(p.ConditionID))
		if err != nil {
			slog.Debug("price without usable market id", "market", p.ConditionID, "err", err)
			continue
		}
		p.ConditionID = id
		k := domain.PriceKey{ConditionID: id, OutcomeIndex: p.OutcomeIndex}
		if prev, ok := out[k]; ok && prev.ObservedAt.After(p.ObservedAt) {
			continue
		}
		out[k] = p
	}
	return out
}
