// Package indicator wraps go-talib so every output is aligned with its input
// and undefined warm-up values are NaN instead of talib's leading zeros.
package indicator

import (
	"math"

	"github.com/markcheno/go-talib"
)

// MaxPeriod bounds any window argument accepted from strategy documents.
const MaxPeriod = 1000

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// mask copies src and marks the first lookback slots as NaN.
func mask(src []float64, n, lookback int) []float64 {
	out := nanSeries(n)
	if len(src) != n {
		return out
	}
	for i := lookback; i < n; i++ {
		if !math.IsInf(src[i], 0) {
			out[i] = src[i]
		}
	}
	return out
}

func hasNaN(xs ...[]float64) bool {
	for _, x := range xs {
		for _, v := range x {
			if math.IsNaN(v) {
				return true
			}
		}
	}
	return false
}

// firstValid returns the index of the first non-NaN value or len(x).
func firstValid(x []float64) int {
	for i, v := range x {
		if !math.IsNaN(v) {
			return i
		}
	}
	return len(x)
}

// onValid runs fn on the contiguous defined tail of x (nested indicators feed
// NaN warm-ups into the next stage) and re-aligns the result.
func onValid(x []float64, lookback int, fn func([]float64) []float64) []float64 {
	n := len(x)
	start := firstValid(x)
	tail := x[start:]
	if len(tail) <= lookback || hasNaN(tail) {
		return nanSeries(n)
	}
	res := mask(fn(tail), len(tail), lookback)
	out := nanSeries(n)
	copy(out[start:], res)
	return out
}

func SMA(x []float64, period int) []float64 {
	if period <= 0 {
		return nanSeries(len(x))
	}
	return onValid(x, period-1, func(v []float64) []float64 { return talib.Sma(v, period) })
}

func EMA(x []float64, period int) []float64 {
	if period <= 0 {
		return nanSeries(len(x))
	}
	return onValid(x, period-1, func(v []float64) []float64 { return talib.Ema(v, period) })
}

func RSI(x []float64, period int) []float64 {
	if period <= 1 {
		return nanSeries(len(x))
	}
	return onValid(x, period, func(v []float64) []float64 { return talib.Rsi(v, period) })
}

func Highest(x []float64, period int) []float64 {
	if period <= 0 {
		return nanSeries(len(x))
	}
	return onValid(x, period-1, func(v []float64) []float64 { return talib.Max(v, period) })
}

func Lowest(x []float64, period int) []float64 {
	if period <= 0 {
		return nanSeries(len(x))
	}
	return onValid(x, period-1, func(v []float64) []float64 { return talib.Min(v, period) })
}

func StdDev(x []float64, period int) []float64 {
	if period <= 1 {
		return nanSeries(len(x))
	}
	return onValid(x, period-1, func(v []float64) []float64 { return talib.StdDev(v, period, 1) })
}

// MACD returns the macd line, signal line and histogram.
func MACD(x []float64, fast, slow, signal int) (line, sig, hist []float64) {
	n := len(x)
	if fast <= 0 || slow <= 0 || signal <= 0 || fast >= slow {
		return nanSeries(n), nanSeries(n), nanSeries(n)
	}
	lookback := slow - 1 + signal - 1
	start := firstValid(x)
	tail := x[start:]
	if len(tail) <= lookback || hasNaN(tail) {
		return nanSeries(n), nanSeries(n), nanSeries(n)
	}
	m, s, h := talib.Macd(tail, fast, slow, signal)
	line, sig, hist = nanSeries(n), nanSeries(n), nanSeries(n)
	copy(line[start:], mask(m, len(tail), lookback))
	copy(sig[start:], mask(s, len(tail), lookback))
	copy(hist[start:], mask(h, len(tail), lookback))
	return line, sig, hist
}

func ATR(high, low, close []float64, period int) []float64 {
	n := len(close)
	if period <= 0 || len(high) != n || len(low) != n || n <= period || hasNaN(high, low, close) {
		return nanSeries(n)
	}
	return mask(talib.Atr(high, low, close, period), n, period)
}

// Bollinger returns upper, middle and lower bands using an SMA basis.
func Bollinger(x []float64, period int, k float64) (upper, middle, lower []float64) {
	n := len(x)
	if period <= 1 || n <= period-1 || hasNaN(x) {
		return nanSeries(n), nanSeries(n), nanSeries(n)
	}
	u, m, l := talib.BBands(x, period, k, k, talib.SMA)
	return mask(u, n, period-1), mask(m, n, period-1), mask(l, n, period-1)
}

// Lag shifts x forward by n bars; the first n values are NaN.
func Lag(x []float64, n int) []float64 {
	out := nanSeries(len(x))
	if n < 0 {
		return out
	}
	for i := n; i < len(x); i++ {
		out[i] = x[i-n]
	}
	return out
}
