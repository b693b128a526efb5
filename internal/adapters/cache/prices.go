// Package cache pone Redis delante del price oracle.
//
// Lectura read-through: cada mercado se guarda como el JSON de sus
// cotizaciones bajo una clave propia con TTL. Si Redis no responde se cae al
// oracle primario; la caché nunca es la fuente de verdad.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alejandrodnm/polypnl/internal/domain"
	"github.com/alejandrodnm/polypnl/internal/metrics"
	"github.com/alejandrodnm/polypnl/internal/ports"
)

// DefaultTTL es lo que vive una cotización cacheada si la config no dice otra cosa.
const DefaultTTL = time.Minute

// PriceOracle envuelve un ports.PriceOracle con una caché Redis.
type PriceOracle struct {
	primary ports.PriceOracle
	rdb     *redis.Client
	ttl     time.Duration
}

// NewPriceOracle crea el oracle cacheado. ttl <= 0 usa DefaultTTL.
func NewPriceOracle(primary ports.PriceOracle, rdb *redis.Client, ttl time.Duration) *PriceOracle {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &PriceOracle{primary: primary, rdb: rdb, ttl: ttl}
}

// FetchPrices sirve desde Redis los mercados cacheados y pide el resto al primario.
// Un mercado sin cotización también se cachea (lista vacía) para no repreguntar.
func (c *PriceOracle) FetchPrices(ctx context.Context, ids []domain.ConditionID) ([]domain.Price, error) {
	var (
		out    []domain.Price
		misses []domain.ConditionID
	)
	for _, id := range ids {
		prices, ok := c.lookup(ctx, id)
		if !ok {
			misses = append(misses, id)
			continue
		}
		out = append(out, prices...)
	}
	metrics.PriceCacheLookups.WithLabelValues("hit").Add(float64(len(ids) - len(misses)))
	metrics.PriceCacheLookups.WithLabelValues("miss").Add(float64(len(misses)))

	if len(misses) == 0 {
		return out, nil
	}

	fetched, err := c.primary.FetchPrices(ctx, misses)
	if err != nil {
		return nil, fmt.Errorf("cache.FetchPrices: %w", err)
	}

	byMarket := make(map[domain.ConditionID][]domain.Price, len(misses))
	for _, id := range misses {
		byMarket[id] = []domain.Price{}
	}
	for _, p := range fetched {
		byMarket[p.ConditionID] = append(byMarket[p.ConditionID], p)
	}
	for id, prices := range byMarket {
		c.store(ctx, id, prices)
	}

	slog.Debug("prices served",
		"markets", len(ids),
		"cached", len(ids)-len(misses),
		"fetched", len(fetched),
	)
	return append(out, fetched...), nil
}

func (c *PriceOracle) lookup(ctx context.Context, id domain.ConditionID) ([]domain.Price, bool) {
	data, err := c.rdb.Get(ctx, PriceKey(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("price cache read failed", "market", id.Short(), "err", err)
		}
		return nil, false
	}
	var prices []domain.Price
	if err := json.Unmarshal(data, &prices); err != nil {
		slog.Warn("price cache entry corrupt", "market", id.Short(), "err", err)
		return nil, false
	}
	return prices, true
}

func (c *PriceOracle) store(ctx context.Context, id domain.ConditionID, prices []domain.Price) {
	data, err := json.Marshal(prices)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, PriceKey(id), data, c.ttl).Err(); err != nil {
		slog.Warn("price cache write failed", "market", id.Short(), "err", err)
	}
}

// PriceKey es la clave Redis de las cotizaciones de un mercado.
func PriceKey(id domain.ConditionID) string {
	return fmt.Sprintf("polypnl:prices:%s", id)
}
