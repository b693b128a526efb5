package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alejandrodnm/polypnl/config"
	"github.com/alejandrodnm/polypnl/internal/adapters/cache"
	"github.com/alejandrodnm/polypnl/internal/adapters/onchain"
	"github.com/alejandrodnm/polypnl/internal/adapters/polymarket"
	"github.com/alejandrodnm/polypnl/internal/adapters/postgres"
	"github.com/alejandrodnm/polypnl/internal/ports"
)

// Sources reúne los adaptadores de datos elegidos por la config.
type Sources struct {
	Fills       ports.FillSource
	Resolutions []ports.ResolutionSource
	Prices      ports.PriceOracle
	Reference   ports.ReferenceSource

	closers []func()
}

// Close libera pools y clientes abiertos por BuildSources.
func (s *Sources) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// BuildSources construye las fuentes:
//   - api: todo sale de las APIs de Polymarket.
//   - postgres: fills y resoluciones on-chain de Postgres; el CLOB y Gamma
//     siguen aportando resoluciones de menor precedencia, precios y referencia.
//
// Con source.polygon_rpc el CTF on-chain se añade como fuente de resoluciones;
// la precedencia del resolver decide cuál gana.
//
// Con cache.redis_url los precios pasan por Redis. Si Redis no responde al
// arrancar se sigue sin caché.
func BuildSources(ctx context.Context, cfg *config.Config) (*Sources, error) {
	client := polymarket.NewClient(polymarket.Config{
		CLOBBase:        cfg.API.CLOBBase,
		GammaBase:       cfg.API.GammaBase,
		DataBase:        cfg.API.DataBase,
		LeaderboardBase: cfg.API.LeaderboardBase,
		Timeout:         cfg.APITimeout(),
	})

	s := &Sources{
		Fills:       client,
		Resolutions: []ports.ResolutionSource{client},
		Prices:      client,
		Reference:   client,
	}

	if cfg.Source.Kind == config.SourcePostgres {
		pg, err := postgres.Open(ctx, cfg.Source.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("application.BuildSources: %w", err)
		}
		s.closers = append(s.closers, pg.Close)
		s.Fills = pg
		s.Resolutions = []ports.ResolutionSource{pg, client}
		slog.Info("connected to postgres ledger")
	}

	if cfg.Source.PolygonRPC != "" {
		ctf, err := onchain.Dial(ctx, cfg.Source.PolygonRPC)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("application.BuildSources: %w", err)
		}
		s.closers = append(s.closers, ctf.Close)
		s.Resolutions = append([]ports.ResolutionSource{ctf}, s.Resolutions...)
		slog.Info("onchain resolutions enabled", "ctf", onchain.CTFAddress)
	}

	if cfg.Cache.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.Cache.RedisURL)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("application.BuildSources: redis url: %w", err)
		}
		rdb := redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err = rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			slog.Warn("redis unavailable, prices will not be cached", "err", err)
			rdb.Close()
		} else {
			s.closers = append(s.closers, func() { rdb.Close() })
			s.Prices = cache.NewPriceOracle(client, rdb, cfg.CacheTTL())
			slog.Info("price cache enabled", "ttl", cfg.CacheTTL())
		}
	}

	return s, nil
}
