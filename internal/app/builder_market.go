package app

import (
	"fmt"

	"quantsignal/internal/config"
	"quantsignal/internal/gateway/binance"
	"quantsignal/internal/market"
)

// MarketStack 是行情相关的三件套：本地日线库、远端数据源、增量同步器。
type MarketStack struct {
	History *market.SQLiteHistoryStore
	Source  *binance.Source
	Updater *market.Updater
}

func buildMarketStack(data config.DataConfig, cfg config.MarketConfig) (*MarketStack, error) {
	src, err := binance.New(binance.Config{
		RESTBaseURL:     cfg.RESTBaseURL,
		HTTPTimeout:     cfg.Timeout(),
		RateLimitPerSec: cfg.RateLimitPerSec,
		Burst:           cfg.Burst,
		ProxyURL:        cfg.ProxyURL,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化行情源失败: %w", err)
	}
	history, err := market.NewSQLiteHistoryStore(data.Dir)
	if err != nil {
		return nil, fmt.Errorf("打开历史数据目录失败: %w", err)
	}
	return &MarketStack{
		History: history,
		Source:  src,
		Updater: market.NewUpdater(src, history),
	}, nil
}
