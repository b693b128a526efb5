package polymarket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/alejandrodnm/polypnl/internal/domain"
	"github.com/alejandrodnm/polypnl/internal/metrics"
)

const (
	defaultCLOBBase        = "https://clob.polymarket.com"
	defaultGammaBase       = "https://gamma-api.polymarket.com"
	defaultDataBase        = "https://data-api.polymarket.com"
	defaultLeaderboardBase = "https://lb-api.polymarket.com"

	// Rate limits al 60% de los límites documentados.
	// CLOB general: 9000/10s → 5400/10s → 540/s
	clobRatePerSec = 540
	// Gamma /markets: 300/10s → 180/10s → 18/s
	gammaRatePerSec = 18
	// Data API /trades: 200/10s → 120/10s → 12/s
	dataRatePerSec = 12

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// Config contiene los base URLs de las APIs. Vacío usa producción.
type Config struct {
	CLOBBase        string
	GammaBase       string
	DataBase        string
	LeaderboardBase string
	Timeout         time.Duration
}

// Client es el HTTP client de Polymarket con rate limiting y retries.
// Implementa FillSource, ResolutionSource, PriceOracle y ReferenceSource.
type Client struct {
	http         *http.Client
	clobBase     string
	gammaBase    string
	dataBase     string
	lbBase       string
	clobLimiter  *rate.Limiter
	gammaLimiter *rate.Limiter
	dataLimiter  *rate.Limiter

	// markets cachea GET /markets/{id}: lo usan resolución y precios.
	mu      sync.Mutex
	markets map[domain.ConditionID]clobMarket
}

// NewClient crea un Client.
func NewClient(cfg Config) *Client {
	if cfg.CLOBBase == "" {
		cfg.CLOBBase = defaultCLOBBase
	}
	if cfg.GammaBase == "" {
		cfg.GammaBase = defaultGammaBase
	}
	if cfg.DataBase == "" {
		cfg.DataBase = defaultDataBase
	}
	if cfg.LeaderboardBase == "" {
		cfg.LeaderboardBase = defaultLeaderboardBase
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		http:         &http.Client{Timeout: cfg.Timeout},
		clobBase:     cfg.CLOBBase,
		gammaBase:    cfg.GammaBase,
		dataBase:     cfg.DataBase,
		lbBase:       cfg.LeaderboardBase,
		clobLimiter:  rate.NewLimiter(clobRatePerSec, 50),
		gammaLimiter: rate.NewLimiter(gammaRatePerSec, 10),
		dataLimiter:  rate.NewLimiter(dataRatePerSec, 5),
		markets:      make(map[domain.ConditionID]clobMarket),
	}
}

// errNotFound lo devuelve get ante un 404: el llamador decide si es un error.
var errNotFound = errors.New("not found")

// get hace un GET con rate limiting y retries. endpoint etiqueta las métricas.
func (c *Client) get(ctx context.Context, limiter *rate.Limiter, endpoint, url string, out any) error {
	return c.doWithRetry(ctx, limiter, endpoint, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return c.http.Do(req)
	}, out)
}

// doWithRetry ejecuta la función con backoff exponencial.
func (c *Client) doWithRetry(ctx context.Context, limiter *rate.Limiter, endpoint string, fn func() (*http.Response, error), out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		resp, err := fn()
		if err != nil {
			metrics.UpstreamRequests.WithLabelValues(endpoint, "error").Inc()
			if attempt == maxRetries {
				return fmt.Errorf("request failed after %d retries: %w", maxRetries, err)
			}
			c.sleep(ctx, attempt)
			continue
		}
		metrics.UpstreamRequests.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			slog.Warn("rate limited by API", "endpoint", endpoint, "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				return fmt.Errorf("server error %d after %d retries", resp.StatusCode, maxRetries)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusNotFound {
			resp.Body.Close()
			return errNotFound
		}

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return fmt.Errorf("client error %d: %s", resp.StatusCode, string(body))
		}

		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

// sleep espera con backoff exponencial, respetando el contexto.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
