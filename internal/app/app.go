package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"quantsignal/internal/alert"
	"quantsignal/internal/backtest"
	"quantsignal/internal/config"
	"quantsignal/internal/gateway/binance"
	"quantsignal/internal/gateway/notifier"
	"quantsignal/internal/gateway/synth"
	"quantsignal/internal/logger"
	"quantsignal/internal/market"
	"quantsignal/internal/monitor"
	"quantsignal/internal/store/strategystore"
)

// App 持有一次进程运行所需的全部协作者，没有任何包级单例。
type App struct {
	cfg     *config.Config
	console io.Writer

	History    *market.SQLiteHistoryStore
	Source     *binance.Source
	Updater    *market.Updater
	Strategies *strategystore.Store
	Runs       *backtest.ResultStore
	Runner     *backtest.Runner
	Synth      *synth.Generator
	Notifier   notifier.Notifier
	Alerts     *alert.Aggregator
	Registry   *prometheus.Registry
	Metrics    *monitor.Metrics

	closers []func() error
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	return buildAppWithWire(ctx, cfg)
}

func (a *App) Config() *config.Config { return a.cfg }

func (a *App) Console() io.Writer { return a.console }

// Close releases stores in reverse order of opening.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// NewMonitor wires a monitor over persisted history and the live snapshot source.
func (a *App) NewMonitor(opts monitor.Options) (*monitor.Monitor, error) {
	return monitor.New(opts, monitor.Deps{
		Strategies: a.Strategies,
		History:    a.History,
		Snapshot:   a.Source,
		Alerts:     a.Alerts,
	}, a.Metrics)
}

// RunMonitor 只运行监控循环，直到 ctx 取消。
func (a *App) RunMonitor(ctx context.Context, opts monitor.Options) error {
	mon, err := a.NewMonitor(opts)
	if err != nil {
		return err
	}
	a.Summary(mon).Print(a.console)
	return mon.Run(ctx)
}

// Serve 同时运行监控循环与 HTTP 接口；任一方返回错误即整体退出。
func (a *App) Serve(ctx context.Context, opts monitor.Options) error {
	mon, err := a.NewMonitor(opts)
	if err != nil {
		return err
	}
	server, err := buildHTTPServer(a, mon)
	if err != nil {
		return err
	}
	a.Summary(mon).Print(a.console)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := server.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		return mon.Run(ctx)
	})
	return group.Wait()
}

// UpdateData 把远端日线同步到本地库（data 工作流）。
func (a *App) UpdateData(ctx context.Context, instruments []string, days int) ([]market.UpdateResult, error) {
	if len(instruments) == 0 {
		return nil, fmt.Errorf("no instruments to update")
	}
	if days <= 0 {
		days = a.cfg.Data.HistoryDays
	}
	logger.Infof("[data] 同步 %d 个品种，最近 %d 天", len(instruments), days)
	return a.Updater.Update(ctx, instruments, days)
}

// AllInstruments lists every tradable perpetual on the exchange.
func (a *App) AllInstruments(ctx context.Context) ([]string, error) {
	return a.Source.ListInstruments(ctx)
}
