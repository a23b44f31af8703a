package monitor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"quantsignal/internal/alert"
	"quantsignal/internal/logger"
	"quantsignal/internal/market"
	"quantsignal/internal/pkg/circuit"
	"quantsignal/internal/pkg/symbol"
	"quantsignal/internal/scheduler"
	"quantsignal/internal/strategy"
)

const (
	DefaultLookback = 100
	DefaultWorkers  = 4
)

// ErrNotLoaded is returned by RunOnce before the context has been loaded.
var ErrNotLoaded = errors.New("monitor context not loaded")

type Options struct {
	Instruments []string
	Interval    time.Duration
	Lookback    int
	Policy      AlertPolicy
	Workers     int
	// WatchPath, when set, is a file whose changes request a reload (the strategy db).
	WatchPath string

	BreakerThreshold int
	BreakerCooldown  time.Duration
}

func (o Options) normalized() Options {
	o.Instruments = symbol.NormalizeList(o.Instruments)
	if o.Interval <= 0 {
		o.Interval = scheduler.DefaultInterval
	}
	if o.Lookback <= 0 {
		o.Lookback = DefaultLookback
	}
	if o.Policy == "" {
		o.Policy = PolicyLevel
	}
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.BreakerThreshold <= 0 {
		o.BreakerThreshold = 3
	}
	if o.BreakerCooldown <= 0 {
		o.BreakerCooldown = 5 * time.Minute
	}
	return o
}

// Monitor 周期性地拉取一次批量行情，合并到评估窗口，对每个 (品种, 策略) 求值并分发告警。
type Monitor struct {
	opts    Options
	deps    Deps
	breaker *circuit.CircuitBreaker
	metrics *Metrics
	now     func() time.Time

	runMu sync.Mutex // serializes ticks and reloads

	mu         sync.RWMutex
	mctx       *Context
	lastReport *TickReport
	lastReload time.Time
	reloadErr  string

	memory  signalMemory
	state   atomicState
	reload  atomic.Bool
	ticks   atomic.Int64
	running atomic.Bool
}

func New(opts Options, deps Deps, metrics *Metrics) (*Monitor, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	opts = opts.normalized()
	if _, err := ParsePolicy(string(opts.Policy)); err != nil {
		return nil, err
	}
	breaker := circuit.NewCircuitBreaker("snapshot", opts.BreakerThreshold, opts.BreakerCooldown)
	breaker.SetStateChangeHandler(metrics.breakerChanged)
	return &Monitor{
		opts:    opts,
		deps:    deps,
		breaker: breaker,
		metrics: metrics,
		now:     time.Now,
		memory:  signalMemory{},
	}, nil
}

func (m *Monitor) Options() Options { return m.opts }
func (m *Monitor) State() State     { return m.state.Load() }

// Load builds a fresh context from the store and persisted history, replacing any previous one.
func (m *Monitor) Load(ctx context.Context) error {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	mctx, err := LoadContext(ctx, m.deps, m.opts.Instruments, m.opts.Lookback, m.now())
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.mctx = mctx
	m.lastReload = mctx.LoadedAt
	m.mu.Unlock()
	m.memory.retain(mctx.Strategies)
	m.reload.Store(false)
	return nil
}

// RequestReload asks the loop to recompile strategies before the next tick.
func (m *Monitor) RequestReload() {
	if !m.reload.Swap(true) {
		logger.Infof("monitor: reload requested")
	}
}

// reloadStrategies recompiles strategies and keeps the hydrated windows. On
// failure the previous strategies stay in effect.
func (m *Monitor) reloadStrategies(ctx context.Context) {
	m.reload.Store(false)
	compiled, skipped, err := compileStrategies(ctx, m.deps.Strategies)
	if err != nil {
		logger.Errorf("monitor: reload failed, keeping previous strategies: %v", err)
		m.mu.Lock()
		m.reloadErr = err.Error()
		m.mu.Unlock()
		m.metrics.observeReload(false)
		return
	}
	now := m.now()
	m.mu.Lock()
	next := *m.mctx
	next.Strategies, next.Skipped, next.LoadedAt = compiled, skipped, now
	m.mctx = &next
	m.lastReload, m.reloadErr = now, ""
	m.mu.Unlock()
	m.memory.retain(compiled)
	m.metrics.observeReload(true)
}

func (m *Monitor) context() *Context {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mctx
}

func (m *Monitor) instruments(mctx *Context) []string {
	if len(m.opts.Instruments) > 0 {
		return m.opts.Instruments
	}
	return mctx.Windows.Instruments()
}

// RunOnce executes a single tick. Data and evaluation failures are recorded in
// the report; the returned error is reserved for an unloaded monitor.
func (m *Monitor) RunOnce(ctx context.Context) (*TickReport, error) {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	defer m.state.Store(StateIdle)

	if m.context() == nil {
		return nil, ErrNotLoaded
	}
	if m.reload.Load() {
		m.reloadStrategies(ctx)
	}
	mctx := m.context()
	report := &TickReport{TickID: strings.ReplaceAll(uuid.NewString(), "-", "")[:12], StartedAt: m.now()}
	log := logger.With("component", "monitor", "tick", report.TickID)
	finish := func(result string) (*TickReport, error) {
		report.FinishedAt = m.now()
		m.ticks.Add(1)
		m.metrics.observeTick(result, report)
		m.mu.Lock()
		m.lastReport = report
		m.mu.Unlock()
		return report, nil
	}

	instruments := m.instruments(mctx)
	if len(mctx.Strategies) == 0 || mctx.Windows.Len() == 0 {
		report.Skipped = fmt.Sprintf("%d strategies, %d windows", len(mctx.Strategies), mctx.Windows.Len())
		log.Warn("nothing to evaluate, tick skipped", "strategies", len(mctx.Strategies), "windows", mctx.Windows.Len())
		return finish("idle")
	}

	m.state.Store(StateFetching)
	var snapshot map[string]market.Bar
	err := m.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		snapshot, err = m.deps.Snapshot.FetchSnapshot(ctx, instruments)
		return err
	})
	if err != nil {
		report.FetchError = err.Error()
		log.Error("snapshot fetch failed, no alerts this tick", "err", err)
		return finish("fetch_error")
	}

	m.state.Store(StateMerging)
	windows := m.merge(report, mctx.Windows, instruments, snapshot)

	m.state.Store(StateEvaluating)
	report.Pairs = m.evaluate(windows, mctx.Strategies)

	m.state.Store(StateAggregating)
	batch := alert.Batch{TickID: report.TickID, GeneratedAt: m.now()}
	for i := range report.Pairs {
		p := &report.Pairs[i]
		if !p.OK() {
			log.Warn("pair evaluation failed", "instrument", p.Instrument, "strategy", p.StrategyID, "err", p.Err)
			continue
		}
		key := pairKey{instrument: p.Instrument, strategyID: p.StrategyID}
		if !m.opts.Policy.alert(m.memory, key, p.Signal) {
			continue
		}
		p.Alert = true
		batch.Alerts = append(batch.Alerts, alert.Alert{
			Instrument:   p.Instrument,
			Price:        windows.price(p.Instrument),
			StrategyID:   p.StrategyID,
			StrategyName: p.Name,
			Signal:       p.Signal,
			Timestamp:    batch.GeneratedAt,
		})
	}
	report.Alerts = batch.Alerts
	res, err := m.deps.Alerts.Dispatch(ctx, batch)
	report.Dispatch = res
	if err != nil {
		report.DispatchError = err.Error()
		log.Error("alert dispatch failed", "err", err)
	}
	log.Info("tick done",
		"instruments", len(windows.order),
		"pairs", len(report.Pairs),
		"failures", len(report.Failures()),
		"alerts", len(report.Alerts))
	return finish("ok")
}

type tickWindows struct {
	order  []string
	series map[string]market.Series
	live   map[string]market.Bar
}

func (w tickWindows) price(inst string) float64 { return w.live[inst].Close }

func (m *Monitor) merge(report *TickReport, cache *market.WindowCache, instruments []string, snapshot map[string]market.Bar) tickWindows {
	out := tickWindows{series: map[string]market.Series{}, live: map[string]market.Bar{}}
	for _, inst := range instruments {
		window, ok := cache.Get(inst)
		if !ok {
			report.instrument(inst, InstrumentNoWindow)
			logger.Warnf("monitor: %s has no hydrated window, skipped", inst)
			continue
		}
		live, ok := snapshot[inst]
		if !ok {
			report.instrument(inst, InstrumentNoQuote)
			logger.Debugf("monitor: %s has no quote this tick", inst)
			continue
		}
		merged, outcome := market.Merge(window, live)
		cache.Put(inst, merged)
		merged = merged.Tail(cache.Lookback())
		report.merged(inst, outcome, merged, live)
		out.order = append(out.order, inst)
		out.series[inst] = merged
		out.live[inst] = live
	}
	return out
}

// evaluate runs every (instrument, strategy) pair on a bounded pool. Each pair
// writes only its own slot, so the result order is instrument-major, store order.
func (m *Monitor) evaluate(windows tickWindows, strategies []CompiledStrategy) []PairResult {
	results := make([]PairResult, len(windows.order)*len(strategies))
	var g errgroup.Group
	g.SetLimit(m.opts.Workers)
	for i, inst := range windows.order {
		series := windows.series[inst]
		for j, st := range strategies {
			st := st
			slot := &results[i*len(strategies)+j]
			slot.Instrument, slot.StrategyID, slot.Name = inst, st.ID, st.Name
			g.Go(func() error {
				out, err := strategy.Run(st.Name, st.Evaluator, series)
				if err != nil {
					slot.Err, slot.Error = err, err.Error()
					return nil
				}
				slot.Signal = out.Last()
				return nil
			})
		}
	}
	_ = g.Wait()
	return results
}

// Run loads the context and drives ticks until ctx is cancelled. Only a failed
// initial load is returned; tick failures and panics are logged and the loop goes on.
func (m *Monitor) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return errors.New("monitor already running")
	}
	defer m.running.Store(false)

	if m.context() == nil {
		if err := m.Load(ctx); err != nil {
			logger.Errorf("monitor: initial load failed, monitoring not started: %v", err)
			return err
		}
	}
	if m.opts.WatchPath != "" {
		stop, err := m.watch(ctx, m.opts.WatchPath)
		if err != nil {
			logger.Warnf("monitor: watching %s disabled: %v", m.opts.WatchPath, err)
		} else {
			defer stop()
		}
	}
	logger.Infof("monitor: started instruments=%d interval=%s policy=%s lookback=%d",
		len(m.opts.Instruments), m.opts.Interval, m.opts.Policy, m.opts.Lookback)
	loop := scheduler.NewIntervalLoop("monitor", m.opts.Interval)
	loop.Run(ctx, m.safeTick)
	logger.Infof("monitor: stopped after %d tick(s)", m.ticks.Load())
	return nil
}

func (m *Monitor) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			m.state.Store(StateIdle)
			logger.Errorf("monitor: tick panic recovered: %v\n%s", r, debug.Stack())
		}
	}()
	if _, err := m.RunOnce(ctx); err != nil {
		logger.Errorf("monitor: tick failed: %v", err)
	}
}

// LastReport returns the most recent tick report, nil before the first tick.
func (m *Monitor) LastReport() *TickReport {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastReport
}

// Status is a read-only view for the HTTP surface.
type Status struct {
	Running       bool               `json:"running"`
	State         State              `json:"state"`
	Policy        AlertPolicy        `json:"policy"`
	Interval      string             `json:"interval"`
	Lookback      int                `json:"lookback"`
	Ticks         int64              `json:"ticks"`
	LoadedAt      time.Time          `json:"loaded_at"`
	ReloadPending bool               `json:"reload_pending"`
	ReloadError   string             `json:"reload_error,omitempty"`
	Strategies    []CompiledStrategy `json:"strategies"`
	Skipped       []SkippedStrategy  `json:"skipped"`
	Windows       []string           `json:"windows"`
	Breaker       circuit.Snapshot   `json:"breaker"`
	LastReport    *TickReport        `json:"last_report,omitempty"`
}

func (m *Monitor) Status() Status {
	st := Status{
		Running:       m.running.Load(),
		State:         m.State(),
		Policy:        m.opts.Policy,
		Interval:      m.opts.Interval.String(),
		Lookback:      m.opts.Lookback,
		Ticks:         m.ticks.Load(),
		ReloadPending: m.reload.Load(),
		Breaker:       m.breaker.Snapshot(),
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	st.LastReport, st.ReloadError = m.lastReport, m.reloadErr
	if m.mctx != nil {
		st.LoadedAt = m.lastReload
		st.Strategies = append(st.Strategies, m.mctx.Strategies...)
		st.Skipped = append(st.Skipped, m.mctx.Skipped...)
		st.Windows = m.mctx.Windows.Instruments()
	}
	return st
}
