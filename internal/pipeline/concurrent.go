package pipeline

// concurrent.go — worker pool para el replay de posiciones.
//
// Cada grupo (wallet, mercado, outcome) es independiente: un worker lo
// reproduce de principio a fin sin locks. El resolver y el índice de precios
// son de sólo lectura durante la pasada.

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/alejandrodnm/polypnl/internal/accounting"
	"github.com/alejandrodnm/polypnl/internal/domain"
	"github.com/alejandrodnm/polypnl/internal/resolution"
	"github.com/alejandrodnm/polypnl/internal/settlement"
)

type group struct {
	key   domain.PositionKey
	fills []domain.Fill
}

type outcome struct {
	key      domain.PositionKey
	pnl      domain.PositionPnL
	rejected []domain.RejectedFill
	err      error
}

// replayConcurrent reproduce y liquida todos los grupos usando un worker pool.
// Si workers <= 0 usa runtime.NumCPU() × 2. El orden del resultado no está
// definido; el llamador ordena. Un grupo que no se puede reproducir hace
// fallar la pasada entera: nunca se descarta en silencio.
func replayConcurrent(
	ctx context.Context,
	accountant *accounting.Accountant,
	settler *settlement.Engine,
	resolver *resolution.Resolver,
	prices map[domain.PriceKey]domain.Price,
	groups []group,
	workers int,
) ([]outcome, error) {
	if workers <= 0 {
		workers = runtime.NumCPU() * 2
	}

	workCh := make(chan group, len(groups))
	resultCh := make(chan outcome, len(groups))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for g := range workCh {
				if ctx.Err() != nil {
					continue
				}
				o, err := replayGroup(accountant, settler, resolver, prices, g)
				if err != nil {
					o = outcome{err: err}
				}
				o.key = g.key
				resultCh <- o
			}
		}()
	}

	for _, g := range groups {
		workCh <- g
	}
	close(workCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	out := make([]outcome, 0, len(groups))
	var failed *outcome
	for o := range resultCh {
		if o.err != nil {
			// se reporta el de menor clave para que el error sea determinista
			if failed == nil || o.key.Less(failed.key) {
				f := o
				failed = &f
			}
			continue
		}
		out = append(out, o)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if failed != nil {
		return nil, fmt.Errorf("replay %s: %w", failed.key, failed.err)
	}

	slog.Debug("concurrent replay complete",
		"groups", len(groups),
		"positions", len(out),
		"workers", workers,
	)
	return out, nil
}

func replayGroup(
	accountant *accounting.Accountant,
	settler *settlement.Engine,
	resolver *resolution.Resolver,
	prices map[domain.PriceKey]domain.Price,
	g group,
) (outcome, error) {
	res, err := accountant.Replay(g.fills)
	if err != nil {
		return outcome{}, err
	}

	var o outcome
	for _, r := range res.Rejected {
		o.rejected = append(o.rejected, rejectFromFill(r))
	}

	var resPtr *domain.Resolution
	if r, ok := resolver.Resolve(g.key.ConditionID); ok {
		resPtr = &r
	}
	var pricePtr *domain.Price
	if p, ok := prices[domain.PriceKey{ConditionID: g.key.ConditionID, OutcomeIndex: g.key.OutcomeIndex}]; ok {
		pricePtr = &p
	}

	o.pnl = settler.Settle(res.Position, resPtr, pricePtr)
	return o, nil
}

// rejectFromFill convierte un rechazo del accountant al formato de cuarentena.
func rejectFromFill(r accounting.Rejected) domain.RejectedFill {
	f := r.Fill
	return domain.RejectedFill{
		Raw: domain.RawFill{
			ID:           f.SourceID,
			TxHash:       f.TxHash,
			Wallet:       f.Wallet.String(),
			MarketID:     f.ConditionID.Hex(),
			OutcomeIndex: f.OutcomeIndex,
			Side:         string(f.Side),
			Shares:       f.Shares,
			Price:        f.Price,
			Fee:          f.Fee,
			Timestamp:    f.Timestamp,
			IngestSeq:    f.IngestSeq,
		},
		Reason: domain.ReasonFor(r.Err),
		Err:    r.Err,
	}
}
