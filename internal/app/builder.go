package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

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

// AppBuilder 组装所有协作者；每一步都可以通过 option 替换，测试时注入假实现。
type AppBuilder struct {
	cfg     *config.Config
	console io.Writer

	storesFn   func(context.Context, config.StoreConfig) (*strategystore.Store, *backtest.ResultStore, error)
	marketFn   func(config.DataConfig, config.MarketConfig) (*MarketStack, error)
	notifierFn func(config.NotifyConfig) (notifier.Notifier, error)
	synthFn    func(config.SynthConfig) *synth.Generator
}

type AppBuilderOption func(*AppBuilder)

// WithConsole redirects alert tables and summaries (default stdout).
func WithConsole(w io.Writer) AppBuilderOption {
	return func(b *AppBuilder) { b.console = w }
}

func WithNotifier(n notifier.Notifier) AppBuilderOption {
	return func(b *AppBuilder) {
		b.notifierFn = func(config.NotifyConfig) (notifier.Notifier, error) { return n, nil }
	}
}

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:        cfg,
		console:    os.Stdout,
		storesFn:   openStores,
		marketFn:   buildMarketStack,
		notifierFn: buildNotifier,
		synthFn:    buildSynth,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	a := &App{cfg: cfg, console: b.console}
	success := false
	defer func() {
		if !success {
			_ = a.Close()
		}
	}()

	strategies, runs, err := b.storesFn(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	a.Strategies, a.Runs = strategies, runs
	a.closers = append(a.closers, strategies.Close, runs.Close)

	stack, err := b.marketFn(cfg.Data, cfg.Market)
	if err != nil {
		return nil, err
	}
	a.History, a.Source, a.Updater = stack.History, stack.Source, stack.Updater
	a.closers = append(a.closers, stack.History.Close)

	a.Runner = backtest.NewRunner(market.FallbackHistory{Primary: stack.History, Remote: stack.Source}, backtestOptions(cfg.Backtest))
	a.Runner.Workers = cfg.Backtest.Workers

	n, err := b.notifierFn(cfg.Notify)
	if err != nil {
		return nil, err
	}
	a.Notifier = n
	a.Alerts = newAggregator(b.console, n)
	a.Synth = b.synthFn(cfg.Synth)

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = monitor.NewMetrics(a.Registry)

	success = true
	logger.Infof("✓ 组件初始化完成 (strategy_db=%s, data_dir=%s)", strategies.Path(), cfg.Data.Dir)
	return a, nil
}

func openStores(ctx context.Context, cfg config.StoreConfig) (*strategystore.Store, *backtest.ResultStore, error) {
	strategies, err := strategystore.Open(cfg.StrategyDB)
	if err != nil {
		return nil, nil, fmt.Errorf("打开策略库失败: %w", err)
	}
	if n, err := strategies.SeedFromFile(ctx, cfg.SeedPath); err != nil {
		_ = strategies.Close()
		return nil, nil, fmt.Errorf("导入种子策略失败: %w", err)
	} else if n > 0 {
		logger.Infof("✓ 已从 %s 导入 %d 个种子策略", cfg.SeedPath, n)
	}
	runs, err := backtest.NewResultStore(cfg.RunsDB)
	if err != nil {
		_ = strategies.Close()
		return nil, nil, fmt.Errorf("打开回测结果库失败: %w", err)
	}
	return strategies, runs, nil
}

func backtestOptions(cfg config.BacktestConfig) backtest.Options {
	return backtest.Options{
		Capital:        cfg.Capital,
		Commission:     cfg.Commission,
		RiskFree:       cfg.RiskFree,
		PeriodsPerYear: cfg.PeriodsPerYear,
	}
}

func buildSynth(cfg config.SynthConfig) *synth.Generator {
	return synth.New(synth.Config{
		Enabled:     cfg.Enabled,
		BaseURL:     cfg.BaseURL,
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		Timeout:     cfg.Timeout(),
		Temperature: float32(cfg.Temperature),
	})
}

// MonitorOptions 把配置映射为监控选项；CLI flag 可在此基础上覆盖。
func MonitorOptions(cfg *config.Config) (monitor.Options, error) {
	policy, err := monitor.ParsePolicy(cfg.Monitor.AlertPolicy)
	if err != nil {
		return monitor.Options{}, err
	}
	opts := monitor.Options{
		Instruments:      append([]string(nil), cfg.Data.Instruments...),
		Interval:         cfg.Monitor.IntervalDuration(),
		Lookback:         cfg.Monitor.Lookback,
		Policy:           policy,
		Workers:          cfg.Monitor.Workers,
		BreakerThreshold: cfg.Market.BreakerThreshold,
		BreakerCooldown:  cfg.Market.BreakerCooldown(),
	}
	if cfg.Monitor.WatchStore {
		opts.WatchPath = cfg.Store.StrategyDB
	}
	return opts, nil
}

var _ market.SnapshotProvider = (*binance.Source)(nil)
