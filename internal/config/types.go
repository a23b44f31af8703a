package config

import (
	"strings"
	"time"

	"quantsignal/internal/scheduler"
)

// Config 是 quantsignal 的主配置载体。
type Config struct {
	App      AppConfig      `yaml:"app"`
	Data     DataConfig     `yaml:"data"`
	Store    StoreConfig    `yaml:"store"`
	Market   MarketConfig   `yaml:"market"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Backtest BacktestConfig `yaml:"backtest"`
	Synth    SynthConfig    `yaml:"synth"`
	Notify   NotifyConfig   `yaml:"notify"`
}

type AppConfig struct {
	Env       string `yaml:"env"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	LogPath   string `yaml:"log_path"`
	HTTPAddr  string `yaml:"http_addr"`
}

// DataConfig 描述本地历史行情（每个品种一个 sqlite 文件）。
type DataConfig struct {
	Dir         string   `yaml:"dir"`
	HistoryDays int      `yaml:"history_days"`
	Instruments []string `yaml:"instruments"`
}

type StoreConfig struct {
	StrategyDB string `yaml:"strategy_db"`
	SeedPath   string `yaml:"seed_path"`
	RunsDB     string `yaml:"runs_db"`
}

type MarketConfig struct {
	RESTBaseURL            string  `yaml:"rest_base_url"`
	ProxyURL               string  `yaml:"proxy_url"`
	RateLimitPerSec        float64 `yaml:"rate_limit_per_sec"`
	Burst                  int     `yaml:"burst"`
	TimeoutSeconds         int     `yaml:"timeout_seconds"`
	BreakerThreshold       int     `yaml:"breaker_threshold"`
	BreakerCooldownSeconds int     `yaml:"breaker_cooldown_seconds"`
}

func (m MarketConfig) Timeout() time.Duration {
	return time.Duration(m.TimeoutSeconds) * time.Second
}

func (m MarketConfig) BreakerCooldown() time.Duration {
	return time.Duration(m.BreakerCooldownSeconds) * time.Second
}

type MonitorConfig struct {
	Interval    string `yaml:"interval"`
	Lookback    int    `yaml:"lookback"`
	AlertPolicy string `yaml:"alert_policy"`
	Workers     int    `yaml:"workers"`
	WatchStore  bool   `yaml:"watch_store"`
}

// IntervalDuration returns the parsed tick interval; validate guarantees it parses.
func (m MonitorConfig) IntervalDuration() time.Duration {
	d, ok := scheduler.ParseIntervalDuration(m.Interval)
	if !ok {
		return scheduler.DefaultInterval
	}
	return d
}

type BacktestConfig struct {
	Capital        float64 `yaml:"capital"`
	Commission     float64 `yaml:"commission"`
	RiskFree       float64 `yaml:"risk_free"`
	PeriodsPerYear int     `yaml:"periods_per_year"`
	Days           int     `yaml:"days"`
	ScanDays       int     `yaml:"scan_days"`
	Workers        int     `yaml:"workers"`
	ReportDir      string  `yaml:"report_dir"`
}

type SynthConfig struct {
	Enabled        bool    `yaml:"enabled"`
	BaseURL        string  `yaml:"base_url"`
	APIKey         string  `yaml:"api_key"`
	Model          string  `yaml:"model"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	Temperature    float64 `yaml:"temperature"`
}

func (s SynthConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

type NotifyConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
