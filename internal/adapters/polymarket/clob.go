package polymarket

// clob.go — mercados y cotizaciones del CLOB.
//
// GET /markets/{condition_id} da el orden de tokens (índice de outcome), el
// flag winner de cada uno y si el mercado está cerrado. Se cachea por
// condition id: resolución y precios lo consultan para el mismo mercado.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// market devuelve el mercado del CLOB, usando la caché si ya se pidió.
func (c *Client) market(ctx context.Context, id domain.ConditionID) (clobMarket, bool, error) {
	c.mu.Lock()
	m, ok := c.markets[id]
	c.mu.Unlock()
	if ok {
		return m, true, nil
	}

	err := c.get(ctx, c.clobLimiter, "clob_market", c.clobBase+"/markets/"+id.Hex(), &m)
	if errors.Is(err, errNotFound) {
		return clobMarket{}, false, nil
	}
	if err != nil {
		return clobMarket{}, false, fmt.Errorf("clob.market %s: %w", id.Short(), err)
	}

	c.mu.Lock()
	c.markets[id] = m
	c.mu.Unlock()
	return m, true, nil
}

// FetchResolutions devuelve candidatos del CLOB y, para los mismos mercados,
// de Gamma. Ambos van al resolver, que aplica la precedencia.
func (c *Client) FetchResolutions(ctx context.Context, ids []domain.ConditionID) ([]domain.ResolutionCandidate, error) {
	var out []domain.ResolutionCandidate
	for _, id := range ids {
		m, ok, err := c.market(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("clob.FetchResolutions: %w", err)
		}
		if !ok {
			continue
		}
		if cand, ok := mapCLOBResolution(m); ok {
			out = append(out, cand)
		}
	}

	gamma, err := c.fetchGammaResolutions(ctx, ids)
	if err != nil {
		// Gamma es una fuente secundaria: sin ella el CLOB sigue valiendo
		slog.Warn("gamma resolutions unavailable", "err", err)
	}
	out = append(out, gamma...)

	slog.Debug("resolutions fetched", "markets", len(ids), "candidates", len(out))
	return out, nil
}

// FetchPrices cotiza cada outcome de los mercados abiertos con GET /midpoint.
// Lanza una goroutine por mercado; el rate limiter marca el ritmo.
func (c *Client) FetchPrices(ctx context.Context, ids []domain.ConditionID) ([]domain.Price, error) {
	type result struct {
		prices []domain.Price
		err    error
	}
	resultCh := make(chan result, len(ids))

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			prices, err := c.marketPrices(ctx, id)
			resultCh <- result{prices: prices, err: err}
		}()
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	var all []domain.Price
	var firstErr error
	for r := range resultCh {
		if r.err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("clob.FetchPrices: %w", r.err)
			}
			continue
		}
		all = append(all, r.prices...)
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return all, nil
}

func (c *Client) marketPrices(ctx context.Context, id domain.ConditionID) ([]domain.Price, error) {
	m, ok, err := c.market(ctx, id)
	if err != nil || !ok || m.Closed {
		return nil, err
	}

	out := make([]domain.Price, 0, len(m.Tokens))
	for i, t := range m.Tokens {
		var resp midpointResponse
		err := c.get(ctx, c.clobLimiter, "clob_midpoint", c.clobBase+"/midpoint?token_id="+t.TokenID, &resp)
		if errors.Is(err, errNotFound) {
			continue // sin libro: sin precio, nunca cero
		}
		if err != nil {
			return nil, fmt.Errorf("midpoint %s: %w", t.TokenID, err)
		}
		mid, ok := parseDecimal(resp.Mid)
		if !ok {
			continue
		}
		out = append(out, domain.Price{
			ConditionID:  id,
			OutcomeIndex: i,
			Mid:          decimal.NewNullDecimal(mid),
			ObservedAt:   time.Now().UTC(),
			Source:       "clob",
		})
	}
	return out, nil
}
