package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"quantsignal/internal/alert"
	"quantsignal/internal/logger"
	"quantsignal/internal/market"
	"quantsignal/internal/store/strategystore"
	"quantsignal/internal/strategy"
)

// StrategySource lists persisted strategies in insertion order.
type StrategySource interface {
	List(ctx context.Context) ([]strategystore.Strategy, error)
}

// Dispatcher receives the alert batch of every tick.
type Dispatcher interface {
	Dispatch(ctx context.Context, batch alert.Batch) (alert.DispatchResult, error)
}

// Deps 是监控循环依赖的外部能力，由 app 层组装。
type Deps struct {
	Strategies StrategySource
	History    market.HistoryReader
	Snapshot   market.SnapshotProvider
	Alerts     Dispatcher
}

func (d Deps) validate() error {
	switch {
	case d.Strategies == nil:
		return errors.New("monitor: strategy source is required")
	case d.History == nil:
		return errors.New("monitor: history reader is required")
	case d.Snapshot == nil:
		return errors.New("monitor: snapshot provider is required")
	case d.Alerts == nil:
		return errors.New("monitor: alert dispatcher is required")
	}
	return nil
}

// CompiledStrategy 是已编译、可执行的活跃策略。
type CompiledStrategy struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	Summary   string             `json:"summary"`
	Evaluator strategy.Evaluator `json:"-"`
}

// SkippedStrategy is an active strategy that failed to compile and is treated as absent.
type SkippedStrategy struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Context 是监控循环的全部可变状态：编译后的策略与每个品种的评估窗口。
type Context struct {
	Strategies []CompiledStrategy
	Windows    *market.WindowCache
	LoadedAt   time.Time
	Skipped    []SkippedStrategy
}

// LoadContext compiles every active strategy and hydrates the trailing window of
// each instrument from persisted history. Instruments without history are left
// out of the cache. Only a failure to list strategies is returned as an error.
func LoadContext(ctx context.Context, deps Deps, instruments []string, lookback int, now time.Time) (*Context, error) {
	compiled, skipped, err := compileStrategies(ctx, deps.Strategies)
	if err != nil {
		return nil, err
	}
	windows, err := hydrateWindows(ctx, deps.History, instruments, lookback, now)
	if err != nil {
		return nil, err
	}
	return &Context{Strategies: compiled, Windows: windows, LoadedAt: now, Skipped: skipped}, nil
}

func compileStrategies(ctx context.Context, src StrategySource) ([]CompiledStrategy, []SkippedStrategy, error) {
	records, err := src.List(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load strategies: %w", err)
	}
	var (
		compiled []CompiledStrategy
		skipped  []SkippedStrategy
	)
	for _, rec := range records {
		if !rec.Active() {
			continue
		}
		c, err := strategy.Compile(rec.Code)
		if err != nil {
			logger.Warnf("monitor: strategy %s (%s) excluded: %v", rec.ID, rec.Name, err)
			skipped = append(skipped, SkippedStrategy{ID: rec.ID, Name: rec.Name, Reason: err.Error()})
			continue
		}
		compiled = append(compiled, CompiledStrategy{ID: rec.ID, Name: rec.Name, Summary: c.Summary, Evaluator: c})
	}
	logger.Infof("monitor: %d strategies active, %d excluded", len(compiled), len(skipped))
	return compiled, skipped, nil
}

// hydrateWindows reads a slack of calendar days on top of lookback so gaps in
// the persisted history still leave a full window.
func hydrateWindows(ctx context.Context, reader market.HistoryReader, instruments []string, lookback int, now time.Time) (*market.WindowCache, error) {
	cache := market.NewWindowCache(lookback)
	start := market.DayOf(now).AddDate(0, 0, -(cache.Lookback()*2 + 10))
	for _, inst := range instruments {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		series, err := reader.LoadHistory(ctx, inst, start, now)
		if err != nil {
			logger.Warnf("monitor: history for %s unavailable: %v", inst, err)
			continue
		}
		if len(series) == 0 {
			logger.Warnf("monitor: no history for %s, run the data command first", inst)
			continue
		}
		cache.Put(inst, series)
	}
	logger.Infof("monitor: hydrated %d/%d instruments (lookback %d)", cache.Len(), len(instruments), cache.Lookback())
	return cache, nil
}
