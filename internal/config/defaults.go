package config

import (
	"os"
	"strings"

	"quantsignal/internal/pkg/symbol"
)

// 默认值常量
const (
	defaultAppEnv          = "dev"
	defaultAppLogLevel     = "info"
	defaultAppLogFormat    = "text"
	defaultAppHTTPAddr     = ":9991"
	defaultDataDir         = "data/history"
	defaultHistoryDays     = 730
	defaultStrategyDB      = "data/strategies.db"
	defaultSeedPath        = "configs/strategies.yaml"
	defaultRunsDB          = "data/runs.db"
	defaultMarketREST      = "https://fapi.binance.com"
	defaultMarketRate      = 5
	defaultMarketBurst     = 2
	defaultMarketTimeout   = 15
	defaultBreakerFailures = 3
	defaultBreakerCooldown = 300
	defaultMonitorInterval = "60s"
	defaultMonitorLookback = 100
	defaultMonitorPolicy   = "level"
	defaultMonitorWorkers  = 4
	defaultCapital         = 100000
	defaultCommission      = 0.0003
	defaultRiskFree        = 0.03
	defaultPeriodsPerYear  = 252
	defaultBacktestDays    = 365
	defaultScanDays        = 200
	defaultBacktestWorkers = 4
	defaultReportDir       = "data/reports"
	defaultSynthBaseURL    = "https://api.openai.com/v1"
	defaultSynthModel      = "gpt-4o-mini"
	defaultSynthTimeout    = 60
	defaultSynthTemp       = 0.2
)

var defaultInstruments = []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "BNBUSDT", "XRPUSDT"}

// applyDefaults 为所有子配置应用默认值；配置文件中显式给出的键（包括零值）不会被覆盖。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Data.applyDefaults(keys)
	c.Store.applyDefaults(keys)
	c.Market.applyDefaults(keys)
	c.Monitor.applyDefaults(keys)
	c.Backtest.applyDefaults(keys)
	c.Synth.applyDefaults(keys)
	c.Notify.applyEnv()
}

func (a *AppConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.log_format", &a.LogFormat, defaultAppLogFormat),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
	)
}

func (d *DataConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("data.dir", &d.Dir, defaultDataDir),
		intFieldDefault("data.history_days", &d.HistoryDays, defaultHistoryDays),
	)
	if len(d.Instruments) == 0 {
		d.Instruments = append([]string(nil), defaultInstruments...)
	}
	d.Instruments = symbol.NormalizeList(d.Instruments)
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("store.strategy_db", &s.StrategyDB, defaultStrategyDB),
		stringFieldDefault("store.seed_path", &s.SeedPath, defaultSeedPath),
		stringFieldDefault("store.runs_db", &s.RunsDB, defaultRunsDB),
	)
}

func (m *MarketConfig) applyDefaults(keys keySet) {
	m.RESTBaseURL = strings.TrimSpace(m.RESTBaseURL)
	applyFieldDefaults(keys,
		stringFieldDefault("market.rest_base_url", &m.RESTBaseURL, defaultMarketREST),
		fieldDefault{
			key:   "market.rate_limit_per_sec",
			need:  func() bool { return m.RateLimitPerSec <= 0 },
			apply: func() { m.RateLimitPerSec = defaultMarketRate },
		},
		intFieldDefault("market.burst", &m.Burst, defaultMarketBurst),
		intFieldDefault("market.timeout_seconds", &m.TimeoutSeconds, defaultMarketTimeout),
		intFieldDefault("market.breaker_threshold", &m.BreakerThreshold, defaultBreakerFailures),
		intFieldDefault("market.breaker_cooldown_seconds", &m.BreakerCooldownSeconds, defaultBreakerCooldown),
	)
}

func (m *MonitorConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("monitor.interval", &m.Interval, defaultMonitorInterval),
		intFieldDefault("monitor.lookback", &m.Lookback, defaultMonitorLookback),
		stringFieldDefault("monitor.alert_policy", &m.AlertPolicy, defaultMonitorPolicy),
		intFieldDefault("monitor.workers", &m.Workers, defaultMonitorWorkers),
		boolFieldDefault("monitor.watch_store", &m.WatchStore, true),
	)
	m.AlertPolicy = strings.ToLower(strings.TrimSpace(m.AlertPolicy))
}

func (b *BacktestConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		floatFieldDefault("backtest.capital", &b.Capital, defaultCapital),
		floatFieldDefault("backtest.commission", &b.Commission, defaultCommission),
		floatFieldDefault("backtest.risk_free", &b.RiskFree, defaultRiskFree),
		intFieldDefault("backtest.periods_per_year", &b.PeriodsPerYear, defaultPeriodsPerYear),
		intFieldDefault("backtest.days", &b.Days, defaultBacktestDays),
		intFieldDefault("backtest.scan_days", &b.ScanDays, defaultScanDays),
		intFieldDefault("backtest.workers", &b.Workers, defaultBacktestWorkers),
		stringFieldDefault("backtest.report_dir", &b.ReportDir, defaultReportDir),
	)
}

func (s *SynthConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("synth.base_url", &s.BaseURL, defaultSynthBaseURL),
		stringFieldDefault("synth.model", &s.Model, defaultSynthModel),
		intFieldDefault("synth.timeout_seconds", &s.TimeoutSeconds, defaultSynthTimeout),
		floatFieldDefault("synth.temperature", &s.Temperature, defaultSynthTemp),
	)
	if strings.TrimSpace(s.APIKey) == "" {
		s.APIKey = firstEnv("QUANTSIGNAL_SYNTH_API_KEY", "OPENAI_API_KEY")
	}
}

// applyEnv fills notifier secrets that are usually kept out of the yaml files.
func (n *NotifyConfig) applyEnv() {
	if strings.TrimSpace(n.Telegram.BotToken) == "" {
		n.Telegram.BotToken = firstEnv("QUANTSIGNAL_TELEGRAM_BOT_TOKEN", "TELEGRAM_BOT_TOKEN")
	}
	if strings.TrimSpace(n.Telegram.ChatID) == "" {
		n.Telegram.ChatID = firstEnv("QUANTSIGNAL_TELEGRAM_CHAT_ID", "TELEGRAM_CHAT_ID")
	}
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v
		}
	}
	return ""
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return strings.TrimSpace(*target) == "" },
		apply: func() { *target = def },
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return *target <= 0 },
		apply: func() { *target = def },
	}
}

func floatFieldDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return *target == 0 },
		apply: func() { *target = def },
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:   key,
		apply: func() { *target = def },
	}
}
