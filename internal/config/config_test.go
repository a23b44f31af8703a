package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeYAML(t, dir, "config.yaml", "app:\n  log_level: debug\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, ":9991", cfg.App.HTTPAddr)
	assert.Equal(t, 730, cfg.Data.HistoryDays)
	assert.Equal(t, "data/strategies.db", cfg.Store.StrategyDB)
	assert.Equal(t, "https://fapi.binance.com", cfg.Market.RESTBaseURL)
	assert.Equal(t, time.Minute, cfg.Monitor.IntervalDuration())
	assert.Equal(t, 100, cfg.Monitor.Lookback)
	assert.Equal(t, "level", cfg.Monitor.AlertPolicy)
	assert.True(t, cfg.Monitor.WatchStore)
	assert.Equal(t, 100000.0, cfg.Backtest.Capital)
	assert.Equal(t, 0.0003, cfg.Backtest.Commission)
	assert.Equal(t, 252, cfg.Backtest.PeriodsPerYear)
	assert.Equal(t, 365, cfg.Backtest.Days)
	assert.Equal(t, 200, cfg.Backtest.ScanDays)
	assert.Contains(t, cfg.Data.Instruments, "BTCUSDT")
}

func TestExplicitZeroValuesAreKept(t *testing.T) {
	dir := t.TempDir()
	path := writeYAML(t, dir, "config.yaml", `
backtest:
  commission: 0
monitor:
  watch_store: false
  alert_policy: EDGE
  interval: 5m
data:
  instruments: ["eth/usdt", "BTCUSDT", "btc-usdt"]
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Zero(t, cfg.Backtest.Commission)
	assert.False(t, cfg.Monitor.WatchStore)
	assert.Equal(t, "edge", cfg.Monitor.AlertPolicy)
	assert.Equal(t, 5*time.Minute, cfg.Monitor.IntervalDuration())
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, cfg.Data.Instruments)
}

func TestIncludesMergeInOrder(t *testing.T) {
	dir := t.TempDir()
	writeYAML(t, dir, "base.yaml", "monitor:\n  lookback: 50\n  workers: 2\n")
	path := writeYAML(t, dir, "config.yaml", "include: [base.yaml]\nmonitor:\n  workers: 8\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Monitor.Lookback)
	assert.Equal(t, 8, cfg.Monitor.Workers)
}

func TestIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeYAML(t, dir, "a.yaml", "include: [b.yaml]\n")
	writeYAML(t, dir, "b.yaml", "include: [a.yaml]\n")
	_, err := Load(filepath.Join(dir, "a.yaml"))
	assert.ErrorContains(t, err, "include cycle")
}

func TestValidation(t *testing.T) {
	cases := map[string]string{
		"bad policy":       "monitor:\n  alert_policy: debounce\n",
		"bad interval":     "monitor:\n  interval: soon\n",
		"bad commission":   "backtest:\n  commission: 1.5\n",
		"telegram missing": "notify:\n  telegram:\n    enabled: true\n",
		"bad url":          "market:\n  rest_base_url: fapi.binance.com\n",
	}
	t.Setenv("QUANTSIGNAL_TELEGRAM_BOT_TOKEN", "")
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeYAML(t, t.TempDir(), "config.yaml", body)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestResolvePathAndDefault(t *testing.T) {
	t.Setenv(EnvPath, "/etc/qs.yaml")
	assert.Equal(t, "x.yaml", ResolvePath(" x.yaml "))
	assert.Equal(t, "/etc/qs.yaml", ResolvePath(""))
	t.Setenv(EnvPath, "")
	assert.Equal(t, DefaultPath, ResolvePath(""))

	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Monitor, cfg.Monitor)
}
