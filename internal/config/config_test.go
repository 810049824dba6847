package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte(body), 0o600))
	return dir
}

func TestLoadConfig_Defaults(t *testing.T) {
	dir := writeConfig(t, "logger:\n  level: debug\n")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "json", cfg.Logger.Format)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 10*time.Second, cfg.MarketData.Timeout)
	assert.Equal(t, 3, cfg.MarketData.MaxRetries)
	assert.Equal(t, 100000.0, cfg.Compliance.AccountValue)
	assert.True(t, cfg.Compliance.WatchRules)
	assert.Equal(t, DefaultBenchmarkSymbols, cfg.Benchmark.Symbols)
	assert.Equal(t, 730, cfg.Benchmark.LookbackDays)
	assert.Equal(t, 24*time.Hour, cfg.Benchmark.RefreshInterval)
	assert.True(t, cfg.Benchmark.SyntheticFallback)
	assert.Equal(t, "SPY", cfg.Analytics.DefaultBenchmark)
	assert.Equal(t, time.Hour, cfg.Redis.TTL)
	assert.Equal(t, 8000, cfg.Server.Port)
}

func TestLoadConfig_FileValues(t *testing.T) {
	dir := writeConfig(t, `
database:
  driver: postgres
  dsn: postgres://localhost/compliance
market_data:
  timeout: 2s
  api_key: key
compliance:
  custom_rules_path: /etc/rules.json
  account_value: 250000
benchmark:
  symbols: [SPY, QQQ]
  refresh_interval: 6h
`)

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://localhost/compliance", cfg.Database.DSN)
	assert.Equal(t, 2*time.Second, cfg.MarketData.Timeout)
	assert.Equal(t, "key", cfg.MarketData.ApiKey)
	assert.Equal(t, "/etc/rules.json", cfg.Compliance.CustomRulesPath)
	assert.Equal(t, 250000.0, cfg.Compliance.AccountValue)
	assert.Equal(t, []string{"SPY", "QQQ"}, cfg.Benchmark.Symbols)
	assert.Equal(t, 6*time.Hour, cfg.Benchmark.RefreshInterval)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	dir := writeConfig(t, "market_data:\n  api_key: from-file\n")
	t.Setenv("MARKET_DATA_API_KEY", "from-env")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.MarketData.ApiKey)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(t.TempDir())
	assert.Error(t, err)
}
