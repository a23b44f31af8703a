package backtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"quantsignal/internal/logger"
	"quantsignal/internal/market"
	"quantsignal/internal/strategy"
)

const (
	DefaultBacktestDays = 365
	DefaultScanDays     = 200
)

// ErrNoHistory means neither the local store nor the provider had bars.
var ErrNoHistory = errors.New("no history available")

// Runner loads history for a trailing day range and runs the engine on it.
type Runner struct {
	History market.HistoryReader
	Options Options
	Workers int
	Now     func() time.Time
}

func NewRunner(history market.HistoryReader, opts Options) *Runner {
	return &Runner{History: history, Options: opts, Workers: 4, Now: time.Now}
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Runner) window(days int) (time.Time, time.Time) {
	end := market.DayOf(r.now())
	return end.AddDate(0, 0, -days), end
}

// RunBacktest 回测最近 days 天（<=0 使用默认 365 天）。
func (r *Runner) RunBacktest(ctx context.Context, instrument, name string, eval strategy.Evaluator, days int) (*Result, error) {
	if days <= 0 {
		days = DefaultBacktestDays
	}
	if r.History == nil {
		return nil, fmt.Errorf("backtest runner has no history source")
	}
	start, end := r.window(days)
	series, err := r.History.LoadHistory(ctx, instrument, start, end)
	if err != nil {
		return nil, fmt.Errorf("load history %s: %w", instrument, err)
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("%s: %w", instrument, ErrNoHistory)
	}
	opts := r.Options
	opts.Name = name
	return Run(series, eval, opts)
}

// ScanItem is one instrument's outcome; exactly one of Result and Err is set.
type ScanItem struct {
	Instrument string  `json:"instrument"`
	Result     *Result `json:"result,omitempty"`
	Err        error   `json:"-"`
}

func (i ScanItem) Hit() bool {
	return i.Err == nil && i.Result != nil && i.Result.Stats.LastSignal == strategy.Long
}

type ScanReport struct {
	Strategy    string     `json:"strategy"`
	Summary     string     `json:"summary"`
	Days        int        `json:"days"`
	GeneratedAt time.Time  `json:"generated_at"`
	Items       []ScanItem `json:"items"`
}

// Hits returns items whose latest signal is long, best total return first.
func (r *ScanReport) Hits() []ScanItem {
	var out []ScanItem
	for _, it := range r.Items {
		if it.Hit() {
			out = append(out, it)
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Result.Stats.TotalReturn > out[b].Result.Stats.TotalReturn
	})
	return out
}

func (r *ScanReport) Failures() []ScanItem {
	var out []ScanItem
	for _, it := range r.Items {
		if it.Err != nil {
			out = append(out, it)
		}
	}
	return out
}

// Scan backtests every instrument independently. A failing instrument is
// recorded in its item and never aborts the others.
func (r *Runner) Scan(ctx context.Context, instruments []string, name, summary string, eval strategy.Evaluator, days int) (*ScanReport, error) {
	if days <= 0 {
		days = DefaultScanDays
	}
	report := &ScanReport{
		Strategy:    name,
		Summary:     summary,
		Days:        days,
		GeneratedAt: r.now(),
		Items:       make([]ScanItem, len(instruments)),
	}
	g, gctx := errgroup.WithContext(ctx)
	workers := r.Workers
	if workers <= 0 {
		workers = 1
	}
	g.SetLimit(workers)
	for i, inst := range instruments {
		i, inst := i, inst
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				report.Items[i] = ScanItem{Instrument: inst, Err: err}
				return err
			}
			res, err := r.RunBacktest(gctx, inst, name, eval, days)
			report.Items[i] = ScanItem{Instrument: inst, Result: res, Err: err}
			if err != nil {
				logger.Warnf("scan %s on %s failed: %v", name, inst, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	return report, nil
}
