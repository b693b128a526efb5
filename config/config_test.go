package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polypnl/config"
	"github.com/alejandrodnm/polypnl/internal/accounting"
	"github.com/alejandrodnm/polypnl/internal/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, "log:\n  level: debug\n"))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, config.SourceAPI, cfg.Source.Kind)
	assert.Equal(t, "https://data-api.polymarket.com", cfg.API.DataBase)
	assert.Equal(t, 24*time.Hour, cfg.MaxPriceAge())
	assert.Equal(t, time.Minute, cfg.CacheTTL())

	pc, err := cfg.Pipeline()
	require.NoError(t, err)
	assert.Equal(t, accounting.AverageCost, pc.Accounting.Method)
	assert.Equal(t, domain.ConfidenceHigh, pc.Ledger.MinConfidence)
	assert.True(t, pc.Ledger.Bounds.Max.Valid)
	assert.Equal(t, "1", pc.Reconcile.AbsTolerance.String())
	assert.Equal(t, "0.01", pc.Reconcile.PctTolerance.String())
}

func TestLoad_EngineSection(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, `
engine:
  method: fifo
  unbounded: true
  min_side_confidence: medium
  workers: 3
  max_price_age_seconds: -1
  resolution_precedence: [clob, onchain]
reconcile:
  abs_tolerance: "0.5"
  pct_tolerance: "0.02"
  require_reference: true
`))
	require.NoError(t, err)

	pc, err := cfg.Pipeline()
	require.NoError(t, err)
	assert.Equal(t, accounting.FIFO, pc.Accounting.Method)
	assert.False(t, pc.Accounting.Bounds.Min.Valid)
	assert.False(t, pc.Ledger.Bounds.Max.Valid)
	assert.Equal(t, domain.ConfidenceMedium, pc.Ledger.MinConfidence)
	assert.Equal(t, 3, pc.Workers)
	assert.Zero(t, pc.MaxPriceAge)
	assert.Equal(t, []string{"clob", "onchain"}, pc.Precedence)
	assert.True(t, pc.Reconcile.RequireReference)
	assert.Equal(t, "0.5", pc.Reconcile.AbsTolerance.String())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("DATABASE_URL", "postgres://localhost/ledger")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("PORT", "9090")
	t.Setenv("POLYGON_RPC_URL", "https://polygon-rpc.com")

	cfg, err := config.Load(writeConfig(t, "source:\n  kind: postgres\n"))
	require.NoError(t, err)

	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "postgres://localhost/ledger", cfg.Source.PostgresDSN)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Cache.RedisURL)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "https://polygon-rpc.com", cfg.Source.PolygonRPC)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	cases := map[string]string{
		"method":    "engine:\n  method: lifo\n",
		"bound":     "engine:\n  max_price: abc\n",
		"tolerance": "reconcile:\n  abs_tolerance: \"-1\"\n",
		"source":    "source:\n  kind: clickhouse\n",
		"dsn":       "source:\n  kind: postgres\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}

	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
