// Package backfill construye snapshots a partir de las fuentes externas.
//
// Es la etapa con red: fills por wallet, resoluciones y precios por lote de
// mercados. Cada etapa guarda su resultado como checkpoint, así que un backfill
// abortado se reanuda con el mismo job sin repetir llamadas. Al final el
// snapshot se congela en el store y el cálculo ya no toca la red.
package backfill

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/polypnl/internal/domain"
	"github.com/alejandrodnm/polypnl/internal/ports"
	"github.com/alejandrodnm/polypnl/internal/resolution"
)

const (
	stageFills       = "fills"
	stageResolutions = "resolutions"
	stagePrices      = "prices"
	stageSnapshot    = "snapshot"

	// DefaultBatchSize es el número de mercados por checkpoint de resolución/precio.
	DefaultBatchSize = 50
)

// Config controla un backfill.
type Config struct {
	Label     string
	BatchSize int
	// Precedence decide qué mercados ya están resueltos y no necesitan precio.
	Precedence []string
	Now        func() time.Time
}

// Runner orquesta las etapas de un backfill.
type Runner struct {
	fills       ports.FillSource
	resolutions []ports.ResolutionSource
	prices      ports.PriceOracle
	checkpoints ports.CheckpointStore
	store       ports.SnapshotStore
	cfg         Config
}

// NewRunner crea el runner. prices puede ser nil: el snapshot queda sin precios
// y las posiciones abiertas saldrán con unrealized desconocido.
func NewRunner(
	fills ports.FillSource,
	resolutions []ports.ResolutionSource,
	prices ports.PriceOracle,
	checkpoints ports.CheckpointStore,
	store ports.SnapshotStore,
	cfg Config,
) *Runner {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Runner{
		fills:       fills,
		resolutions: resolutions,
		prices:      prices,
		checkpoints: checkpoints,
		store:       store,
		cfg:         cfg,
	}
}

// NewJobID genera un id de job para un backfill nuevo.
func NewJobID() string {
	return uuid.NewString()
}

// Run ejecuta (o reanuda) el job y devuelve la cabecera del snapshot congelado.
// Un job ya completado devuelve su snapshot sin volver a llamar a las fuentes.
func (r *Runner) Run(ctx context.Context, job string, wallets []string) (domain.SnapshotInfo, error) {
	normalized, err := normalizeWallets(wallets)
	if err != nil {
		return domain.SnapshotInfo{}, fmt.Errorf("backfill.Run: %w", err)
	}

	done, err := r.checkpoints.Checkpoint(ctx, job, stageSnapshot, "id")
	if err != nil {
		return domain.SnapshotInfo{}, fmt.Errorf("backfill.Run: %w", err)
	}
	if done != "" {
		snap, err := r.store.GetSnapshot(ctx, done)
		if err != nil {
			return domain.SnapshotInfo{}, fmt.Errorf("backfill.Run: completed job %s: %w", job, err)
		}
		slog.Info("backfill already completed", "job", job, "snapshot", done)
		return snap.Info(), nil
	}

	start := time.Now()
	slog.Info("backfill started", "job", job, "wallets", len(normalized))

	fills, err := r.fetchFills(ctx, job, normalized)
	if err != nil {
		return domain.SnapshotInfo{}, fmt.Errorf("backfill.Run: %w", err)
	}
	markets := marketSet(fills)

	candidates, err := r.fetchResolutions(ctx, job, markets)
	if err != nil {
		return domain.SnapshotInfo{}, fmt.Errorf("backfill.Run: %w", err)
	}

	resolver := resolution.NewResolver(candidates, r.cfg.Precedence)
	var open []domain.ConditionID
	for _, id := range markets {
		if _, ok := resolver.Resolve(id); !ok {
			open = append(open, id)
		}
	}

	prices, err := r.fetchPrices(ctx, job, open)
	if err != nil {
		return domain.SnapshotInfo{}, fmt.Errorf("backfill.Run: %w", err)
	}

	now := r.cfg.Now()
	snap := domain.Snapshot{
		ID:          uuid.NewString(),
		Label:       r.cfg.Label,
		CreatedAt:   now,
		AsOf:        now,
		Wallets:     normalized,
		Fills:       fills,
		Resolutions: candidates,
		Prices:      prices,
	}
	if err := r.store.SaveSnapshot(ctx, snap); err != nil {
		return domain.SnapshotInfo{}, fmt.Errorf("backfill.Run: %w", err)
	}
	if err := r.checkpoints.SaveCheckpoint(ctx, job, stageSnapshot, "id", snap.ID); err != nil {
		return domain.SnapshotInfo{}, fmt.Errorf("backfill.Run: %w", err)
	}

	slog.Info("backfill completed",
		"job", job,
		"snapshot", snap.ID,
		"fills", len(fills),
		"markets", len(markets),
		"open_markets", len(open),
		"candidates", len(candidates),
		"prices", len(prices),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return snap.Info(), nil
}

// fetchFills trae los fills de cada wallet y asigna IngestSeq en orden de
// llegada a los que la fuente no numera.
func (r *Runner) fetchFills(ctx context.Context, job string, wallets []string) ([]domain.RawFill, error) {
	var all []domain.RawFill
	for _, w := range wallets {
		fills, err := cached(ctx, r.checkpoints, job, stageFills, w, func() ([]domain.RawFill, error) {
			return r.fills.FetchFills(ctx, w)
		})
		if err != nil {
			return nil, fmt.Errorf("fills %s: %w", w, err)
		}
		slog.Debug("wallet fills", "wallet", w, "fills", len(fills))
		all = append(all, fills...)
	}

	var seq int64
	for i := range all {
		if all[i].IngestSeq > seq {
			seq = all[i].IngestSeq
		}
	}
	for i := range all {
		if all[i].IngestSeq == 0 {
			seq++
			all[i].IngestSeq = seq
		}
	}
	return all, nil
}

func (r *Runner) fetchResolutions(ctx context.Context, job string, markets []domain.ConditionID) ([]domain.ResolutionCandidate, error) {
	var out []domain.ResolutionCandidate
	for i, batch := range batches(markets, r.cfg.BatchSize) {
		key := fmt.Sprintf("batch-%05d", i)
		cands, err := cached(ctx, r.checkpoints, job, stageResolutions, key, func() ([]domain.ResolutionCandidate, error) {
			var found []domain.ResolutionCandidate
			for _, src := range r.resolutions {
				c, err := src.FetchResolutions(ctx, batch)
				if err != nil {
					return nil, err
				}
				found = append(found, c...)
			}
			return found, nil
		})
		if err != nil {
			return nil, fmt.Errorf("resolutions %s: %w", key, err)
		}
		out = append(out, cands...)
	}
	return out, nil
}

func (r *Runner) fetchPrices(ctx context.Context, job string, markets []domain.ConditionID) ([]domain.Price, error) {
	if r.prices == nil || len(markets) == 0 {
		return nil, nil
	}
	var out []domain.Price
	for i, batch := range batches(markets, r.cfg.BatchSize) {
		key := fmt.Sprintf("batch-%05d", i)
		prices, err := cached(ctx, r.checkpoints, job, stagePrices, key, func() ([]domain.Price, error) {
			return r.prices.FetchPrices(ctx, batch)
		})
		if err != nil {
			return nil, fmt.Errorf("prices %s: %w", key, err)
		}
		out = append(out, prices...)
	}
	return out, nil
}

// cached devuelve el checkpoint de (job, stage, key) si existe; si no, llama a
// fetch y lo guarda antes de devolver.
func cached[T any](ctx context.Context, cp ports.CheckpointStore, job, stage, key string, fetch func() ([]T, error)) ([]T, error) {
	saved, err := cp.Checkpoint(ctx, job, stage, key)
	if err != nil {
		return nil, err
	}
	if saved != "" {
		var out []T
		if err := json.Unmarshal([]byte(saved), &out); err != nil {
			return nil, fmt.Errorf("decode checkpoint %s/%s: %w", stage, key, err)
		}
		return out, nil
	}

	out, err := fetch()
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode checkpoint %s/%s: %w", stage, key, err)
	}
	if err := cp.SaveCheckpoint(ctx, job, stage, key, string(data)); err != nil {
		return nil, err
	}
	return out, nil
}

// marketSet devuelve los mercados normalizables de los fills, ordenados.
// Los ids inválidos se ignoran aquí: el loader los pondrá en cuarentena.
func marketSet(fills []domain.RawFill) []domain.ConditionID {
	seen := make(map[domain.ConditionID]struct{})
	for _, f := range fills {
		id, err := domain.NormalizeConditionID(f.MarketID)
		if err != nil {
			continue
		}
		seen[id] = struct{}{}
	}
	out := make([]domain.ConditionID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func batches(ids []domain.ConditionID, size int) [][]domain.ConditionID {
	var out [][]domain.ConditionID
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[start:end])
	}
	return out
}

func normalizeWallets(wallets []string) ([]string, error) {
	if len(wallets) == 0 {
		return nil, fmt.Errorf("no wallets given")
	}
	seen := make(map[domain.Wallet]struct{}, len(wallets))
	out := make([]string, 0, len(wallets))
	for _, raw := range wallets {
		w, err := domain.NormalizeWallet(raw)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w.String())
	}
	sort.Strings(out)
	return out, nil
}
