package backtest

import (
	"errors"
	"fmt"
	"math"
	"time"

	"quantsignal/internal/market"
	"quantsignal/internal/strategy"
)

const (
	DefaultCapital        = 100000.0
	DefaultCommission     = 0.0003
	DefaultRiskFree       = 0.03
	DefaultPeriodsPerYear = 252
)

var (
	ErrEmptySeries  = errors.New("empty price series")
	ErrMissingPrice = errors.New("missing or invalid close price")
	ErrUnordered    = errors.New("bars are not strictly increasing by date")
)

// InputError reports a series the engine refuses to compute on.
type InputError struct {
	Err error
}

func (e *InputError) Error() string { return "backtest input: " + e.Err.Error() }
func (e *InputError) Unwrap() error { return e.Err }

// Options 回测参数；Commission 按每单位仓位变化计费。
// Capital 和 PeriodsPerYear 为零时取默认值；RiskFree 为零就是 0% 无风险利率，
// 需要默认的 3% 时从 DefaultOptions() 开始修改。
type Options struct {
	Name           string  `json:"name,omitempty"`
	Capital        float64 `json:"capital"`
	Commission     float64 `json:"commission"`
	RiskFree       float64 `json:"risk_free"`
	PeriodsPerYear int     `json:"periods_per_year"`
}

func DefaultOptions() Options {
	return Options{
		Capital:        DefaultCapital,
		Commission:     DefaultCommission,
		RiskFree:       DefaultRiskFree,
		PeriodsPerYear: DefaultPeriodsPerYear,
	}
}

func (o Options) normalized() Options {
	if o.Capital <= 0 {
		o.Capital = DefaultCapital
	}
	if o.Commission < 0 {
		o.Commission = 0
	}
	if o.PeriodsPerYear <= 0 {
		o.PeriodsPerYear = DefaultPeriodsPerYear
	}
	return o
}

// Row is one bar of the vectorized computation.
type Row struct {
	Date           time.Time       `json:"date"`
	Close          float64         `json:"close"`
	Signal         strategy.Signal `json:"signal"`
	Position       strategy.Signal `json:"position"`
	MarketReturn   float64         `json:"market_return"`
	StrategyReturn float64         `json:"strategy_return"`
	Cost           float64         `json:"cost"`
	NetReturn      float64         `json:"net_return"`
	Equity         float64         `json:"equity"`
	Drawdown       float64         `json:"drawdown"`
}

// Stats 汇总收益、风险指标。
type Stats struct {
	TotalReturn  float64         `json:"total_return"`
	AnnualReturn float64         `json:"annual_return"`
	Volatility   float64         `json:"volatility"`
	SharpeRatio  float64         `json:"sharpe_ratio"`
	MaxDrawdown  float64         `json:"max_drawdown"`
	WinRate      float64         `json:"win_rate"`
	LastSignal   strategy.Signal `json:"last_signal"`
	FinalEquity  float64         `json:"final_equity"`
	Bars         int             `json:"bars"`
	HoldingBars  int             `json:"holding_bars"`
	Trades       int             `json:"trades"`
}

type Result struct {
	Options Options `json:"options"`
	Stats   Stats   `json:"stats"`
	Frame   []Row   `json:"frame,omitempty"`
}

// Run evaluates the strategy on series and computes the statistics.
func Run(series market.Series, eval strategy.Evaluator, opts Options) (*Result, error) {
	if err := checkInput(series); err != nil {
		return nil, err
	}
	signals, err := strategy.Run(opts.Name, eval, series)
	if err != nil {
		return nil, err
	}
	return compute(series, signals.Values, opts.normalized()), nil
}

// Compute runs the metrics on an explicit signal column.
func Compute(series market.Series, signals []strategy.Signal, opts Options) (*Result, error) {
	if err := checkInput(series); err != nil {
		return nil, err
	}
	if len(signals) != len(series) {
		return nil, &strategy.RuntimeError{Strategy: opts.Name, Err: fmt.Errorf("signal length %d does not match %d bars", len(signals), len(series))}
	}
	return compute(series, signals, opts.normalized()), nil
}

func checkInput(series market.Series) error {
	if len(series) == 0 {
		return &InputError{Err: ErrEmptySeries}
	}
	for i, b := range series {
		if b.Close <= 0 || math.IsNaN(b.Close) || math.IsInf(b.Close, 0) {
			return &InputError{Err: fmt.Errorf("%w at bar %d (%s)", ErrMissingPrice, i, b.DayString())}
		}
		if i > 0 && !b.Day().After(series[i-1].Day()) {
			return &InputError{Err: fmt.Errorf("%w at bar %d (%s)", ErrUnordered, i, b.DayString())}
		}
	}
	return nil
}

func compute(series market.Series, signals []strategy.Signal, opts Options) *Result {
	n := len(series)
	frame := make([]Row, n)
	net := make([]float64, n)
	equity := opts.Capital
	peak := equity
	stats := Stats{Bars: n, LastSignal: signals[n-1]}
	wins := 0

	for t := 0; t < n; t++ {
		row := Row{Date: series[t].Date, Close: series[t].Close, Signal: signals[t]}
		if t > 0 {
			row.Position = signals[t-1]
			row.MarketReturn = series[t].Close/series[t-1].Close - 1
			change := math.Abs(float64(row.Position - frame[t-1].Position))
			row.Cost = change * opts.Commission
			if change > 0 {
				stats.Trades++
			}
		}
		row.StrategyReturn = float64(row.Position) * row.MarketReturn
		row.NetReturn = row.StrategyReturn - row.Cost
		net[t] = row.NetReturn

		equity *= 1 + row.NetReturn
		row.Equity = equity
		if equity > peak {
			peak = equity
		}
		row.Drawdown = (equity - peak) / peak
		if row.Drawdown < stats.MaxDrawdown {
			stats.MaxDrawdown = row.Drawdown
		}
		if row.Position != strategy.Flat {
			stats.HoldingBars++
			if row.NetReturn > 0 {
				wins++
			}
		}
		frame[t] = row
	}

	stats.FinalEquity = equity
	stats.TotalReturn = equity/opts.Capital - 1
	stats.AnnualReturn = annualize(stats.TotalReturn, n, opts.PeriodsPerYear)
	stats.Volatility = sampleStdDev(net) * math.Sqrt(float64(opts.PeriodsPerYear))
	if stats.Volatility > 0 {
		stats.SharpeRatio = (stats.AnnualReturn - opts.RiskFree) / stats.Volatility
	}
	if stats.HoldingBars > 0 {
		stats.WinRate = float64(wins) / float64(stats.HoldingBars)
	}
	return &Result{Options: opts, Stats: stats, Frame: frame}
}

func annualize(total float64, bars, periods int) float64 {
	if bars == 0 {
		return 0
	}
	growth := 1 + total
	if growth <= 0 {
		return -1
	}
	return math.Pow(growth, float64(periods)/float64(bars)) - 1
}

func sampleStdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	mean := 0.0
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	ss := 0.0
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}
