package app

import (
	"fmt"
	"io"

	"quantsignal/internal/alert"
	"quantsignal/internal/config"
	"quantsignal/internal/gateway/notifier"
	"quantsignal/internal/logger"
	"quantsignal/internal/monitor"
	apihttp "quantsignal/internal/transport/http/api"
)

func buildNotifier(cfg config.NotifyConfig) (notifier.Notifier, error) {
	var out notifier.Multi
	if cfg.Telegram.Enabled {
		tg, err := notifier.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		if err != nil {
			return nil, fmt.Errorf("初始化 Telegram 失败: %w", err)
		}
		out = append(out, tg)
		logger.Infof("✓ Telegram 通知已启用")
	}
	return out, nil
}

func newAggregator(console io.Writer, n notifier.Notifier) *alert.Aggregator {
	return alert.NewAggregator(console, n)
}

func buildHTTPServer(a *App, mon *monitor.Monitor) (*apihttp.Server, error) {
	cfg := apihttp.Config{
		Addr:        a.cfg.App.HTTPAddr,
		Strategies:  a.Strategies,
		Synth:       a.Synth,
		Backtests:   a.Runner,
		Runs:        a.Runs,
		Gatherer:    a.Registry,
		Instruments: a.cfg.Data.Instruments,
	}
	if mon != nil {
		cfg.Monitor = mon
	}
	server, err := apihttp.NewServer(cfg)
	if err != nil {
		return nil, fmt.Errorf("初始化 HTTP 接口失败: %w", err)
	}
	return server, nil
}
