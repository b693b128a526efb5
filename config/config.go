package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/polypnl/internal/accounting"
	"github.com/alejandrodnm/polypnl/internal/aggregate"
	"github.com/alejandrodnm/polypnl/internal/domain"
	"github.com/alejandrodnm/polypnl/internal/ledger"
	"github.com/alejandrodnm/polypnl/internal/pipeline"
	"github.com/alejandrodnm/polypnl/internal/reconcile"
	"github.com/alejandrodnm/polypnl/internal/resolution"
)

// Fuentes de fills y resoluciones on-chain.
const (
	SourceAPI      = "api"
	SourcePostgres = "postgres"
)

// Config es la configuración completa del motor de P&L.
type Config struct {
	Engine    EngineConfig    `yaml:"engine"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	API       APIConfig       `yaml:"api"`
	Source    SourceConfig    `yaml:"source"`
	Cache     CacheConfig     `yaml:"cache"`
	Storage   StorageConfig   `yaml:"storage"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
}

// EngineConfig controla el cálculo.
type EngineConfig struct {
	Method               string   `yaml:"method"`    // average_cost | fifo
	MinPrice             string   `yaml:"min_price"` // decimal; "" desactiva el límite
	MaxPrice             string   `yaml:"max_price"`
	Unbounded            bool     `yaml:"unbounded"`             // sin límites: estructuras no binarias
	MinSideConfidence    string   `yaml:"min_side_confidence"`   // low | medium | high
	Workers              int      `yaml:"workers"`               // 0 = NumCPU × 2
	MaxPriceAgeSeconds   int      `yaml:"max_price_age_seconds"` // < 0 desactiva el control de frescura
	LowCoverage          float64  `yaml:"low_coverage"`
	ResolutionPrecedence []string `yaml:"resolution_precedence"`
}

// ReconcileConfig contiene las tolerancias de la reconciliación.
type ReconcileConfig struct {
	AbsTolerance     string `yaml:"abs_tolerance"` // USDC
	PctTolerance     string `yaml:"pct_tolerance"` // fracción: 0.01 = 1%
	RequireReference bool   `yaml:"require_reference"`
}

// APIConfig contiene los base URLs de las APIs.
type APIConfig struct {
	CLOBBase        string `yaml:"clob_base"`
	GammaBase       string `yaml:"gamma_base"`
	DataBase        string `yaml:"data_base"`
	LeaderboardBase string `yaml:"leaderboard_base"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
}

// SourceConfig elige de dónde salen fills y resoluciones on-chain.
type SourceConfig struct {
	Kind        string `yaml:"kind"` // api | postgres
	PostgresDSN string `yaml:"postgres_dsn"`
	PolygonRPC  string `yaml:"polygon_rpc"` // si se define, el CTF on-chain aporta resoluciones
}

// CacheConfig controla la caché Redis de precios. Sin URL no hay caché.
type CacheConfig struct {
	RedisURL   string `yaml:"redis_url"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// ServerConfig controla la API HTTP de lectura.
type ServerConfig struct {
	Addr           string `yaml:"addr"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
// Un path vacío arranca sólo con defaults y entorno.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// Validate comprueba los valores que no se pueden corregir con un default.
func (c *Config) Validate() error {
	if _, err := c.Pipeline(); err != nil {
		return err
	}
	switch c.Source.Kind {
	case SourceAPI:
	case SourcePostgres:
		if c.Source.PostgresDSN == "" {
			return fmt.Errorf("source.kind=postgres needs source.postgres_dsn or DATABASE_URL")
		}
	default:
		return fmt.Errorf("unknown source.kind %q", c.Source.Kind)
	}
	return nil
}

// Pipeline traduce la sección engine/reconcile a la configuración del motor.
func (c *Config) Pipeline() (pipeline.Config, error) {
	out := pipeline.DefaultConfig()

	method, err := accounting.ParseMethod(c.Engine.Method)
	if err != nil {
		return out, err
	}
	out.Accounting.Method = method

	bounds := domain.PriceBounds{}
	if !c.Engine.Unbounded {
		if bounds.Min, err = nullDecimal("engine.min_price", c.Engine.MinPrice); err != nil {
			return out, err
		}
		if bounds.Max, err = nullDecimal("engine.max_price", c.Engine.MaxPrice); err != nil {
			return out, err
		}
	}
	out.Accounting.Bounds = bounds

	conf, err := domain.ParseConfidence(c.Engine.MinSideConfidence)
	if err != nil {
		return out, fmt.Errorf("engine.min_side_confidence: %w", err)
	}
	out.Ledger = ledger.Config{Bounds: bounds, MinConfidence: conf}

	out.Workers = c.Engine.Workers
	out.MaxPriceAge = c.MaxPriceAge()
	out.LowCoverage = c.Engine.LowCoverage
	out.Precedence = c.Engine.ResolutionPrecedence

	abs, err := decimal.NewFromString(c.Reconcile.AbsTolerance)
	if err != nil {
		return out, fmt.Errorf("reconcile.abs_tolerance: %w", err)
	}
	pct, err := decimal.NewFromString(c.Reconcile.PctTolerance)
	if err != nil {
		return out, fmt.Errorf("reconcile.pct_tolerance: %w", err)
	}
	if abs.IsNegative() || pct.IsNegative() {
		return out, fmt.Errorf("reconcile tolerances must be >= 0")
	}
	out.Reconcile = reconcile.Config{AbsTolerance: abs, PctTolerance: pct, RequireReference: c.Reconcile.RequireReference}
	return out, nil
}

// MaxPriceAge devuelve la edad máxima de un precio; 0 = sin control.
func (c *Config) MaxPriceAge() time.Duration {
	if c.Engine.MaxPriceAgeSeconds < 0 {
		return 0
	}
	return time.Duration(c.Engine.MaxPriceAgeSeconds) * time.Second
}

// APITimeout devuelve el timeout por request a las APIs externas.
func (c *Config) APITimeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

// CacheTTL devuelve el TTL de la caché de precios.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// ServerTimeout devuelve el timeout por request de la API HTTP.
func (c *Config) ServerTimeout() time.Duration {
	return time.Duration(c.Server.TimeoutSeconds) * time.Second
}

func nullDecimal(field, s string) (decimal.NullDecimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("%s: %w", field, err)
	}
	return decimal.NewNullDecimal(d), nil
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Source.PostgresDSN = v
	}
	if v := os.Getenv("POLYGON_RPC_URL"); v != "" {
		cfg.Source.PolygonRPC = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.RedisURL = v
	}
	if v := os.Getenv("POLYPNL_DB"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Addr = ":" + v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Engine.Method == "" {
		cfg.Engine.Method = string(accounting.AverageCost)
	}
	if !cfg.Engine.Unbounded && cfg.Engine.MinPrice == "" && cfg.Engine.MaxPrice == "" {
		cfg.Engine.MinPrice, cfg.Engine.MaxPrice = "0", "1"
	}
	if cfg.Engine.MinSideConfidence == "" {
		cfg.Engine.MinSideConfidence = "high"
	}
	if cfg.Engine.MaxPriceAgeSeconds == 0 {
		cfg.Engine.MaxPriceAgeSeconds = 24 * 60 * 60
	}
	if cfg.Engine.LowCoverage <= 0 {
		cfg.Engine.LowCoverage = aggregate.DefaultLowCoverage
	}
	if len(cfg.Engine.ResolutionPrecedence) == 0 {
		cfg.Engine.ResolutionPrecedence = resolution.DefaultPrecedence
	}
	if cfg.Reconcile.AbsTolerance == "" {
		cfg.Reconcile.AbsTolerance = "1"
	}
	if cfg.Reconcile.PctTolerance == "" {
		cfg.Reconcile.PctTolerance = "0.01"
	}
	if cfg.API.CLOBBase == "" {
		cfg.API.CLOBBase = "https://clob.polymarket.com"
	}
	if cfg.API.GammaBase == "" {
		cfg.API.GammaBase = "https://gamma-api.polymarket.com"
	}
	if cfg.API.DataBase == "" {
		cfg.API.DataBase = "https://data-api.polymarket.com"
	}
	if cfg.API.LeaderboardBase == "" {
		cfg.API.LeaderboardBase = "https://lb-api.polymarket.com"
	}
	if cfg.API.TimeoutSeconds <= 0 {
		cfg.API.TimeoutSeconds = 15
	}
	if cfg.Source.Kind == "" {
		cfg.Source.Kind = SourceAPI
	}
	if cfg.Cache.TTLSeconds <= 0 {
		cfg.Cache.TTLSeconds = 60
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "polypnl.db"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.TimeoutSeconds <= 0 {
		cfg.Server.TimeoutSeconds = 30
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
