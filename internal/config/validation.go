package config

import (
	"fmt"
	"strings"

	"quantsignal/internal/logger"
	"quantsignal/internal/scheduler"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.Data.validate(); err != nil {
		return err
	}
	if err := c.Market.validate(); err != nil {
		return err
	}
	if err := c.Monitor.validate(); err != nil {
		return err
	}
	if err := c.Backtest.validate(); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	c.Synth.warn()
	return nil
}

func (d *DataConfig) validate() error {
	if strings.TrimSpace(d.Dir) == "" {
		return fmt.Errorf("data.dir is required")
	}
	if d.HistoryDays <= 0 {
		return fmt.Errorf("data.history_days must be > 0")
	}
	return nil
}

func (m *MarketConfig) validate() error {
	if !strings.HasPrefix(m.RESTBaseURL, "http://") && !strings.HasPrefix(m.RESTBaseURL, "https://") {
		return fmt.Errorf("market.rest_base_url must be an http(s) url, got %q", m.RESTBaseURL)
	}
	if m.RateLimitPerSec <= 0 {
		return fmt.Errorf("market.rate_limit_per_sec must be > 0")
	}
	if m.BreakerThreshold <= 0 {
		return fmt.Errorf("market.breaker_threshold must be > 0")
	}
	return nil
}

func (m *MonitorConfig) validate() error {
	if _, ok := scheduler.ParseIntervalDuration(m.Interval); !ok {
		return fmt.Errorf("monitor.interval %q is not a valid duration", m.Interval)
	}
	if m.Lookback < 2 {
		return fmt.Errorf("monitor.lookback must be >= 2")
	}
	switch m.AlertPolicy {
	case "level", "edge":
	default:
		return fmt.Errorf("monitor.alert_policy must be level or edge, got %q", m.AlertPolicy)
	}
	if m.Workers <= 0 {
		return fmt.Errorf("monitor.workers must be > 0")
	}
	return nil
}

func (b *BacktestConfig) validate() error {
	if b.Capital <= 0 {
		return fmt.Errorf("backtest.capital must be > 0")
	}
	if b.Commission < 0 || b.Commission >= 1 {
		return fmt.Errorf("backtest.commission must be in [0, 1)")
	}
	if b.PeriodsPerYear <= 0 {
		return fmt.Errorf("backtest.periods_per_year must be > 0")
	}
	if b.Days <= 0 || b.ScanDays <= 0 {
		return fmt.Errorf("backtest.days and backtest.scan_days must be > 0")
	}
	return nil
}

func (n *NotifyConfig) validate() error {
	if !n.Telegram.Enabled {
		return nil
	}
	if strings.TrimSpace(n.Telegram.BotToken) == "" || strings.TrimSpace(n.Telegram.ChatID) == "" {
		return fmt.Errorf("notify.telegram enabled but bot_token or chat_id is missing")
	}
	return nil
}

func (s *SynthConfig) warn() {
	if s.Enabled && strings.TrimSpace(s.APIKey) == "" {
		logger.Warnf("synth.enabled but no api_key configured; strategy generation is disabled")
	}
}
