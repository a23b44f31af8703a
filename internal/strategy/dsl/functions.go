package dsl

import (
	"math"
	"sort"

	"quantsignal/internal/analysis/indicator"
)

// function describes a builtin: numeric series arguments first, then integer
// literal arguments (window lengths).
type function struct {
	name   string
	series int
	ints   int
	ret    Type
	num    func(e *env, args [][]float64, ints []int) []float64
	cond   func(args [][]float64) []tri
}

var functions = map[string]*function{}

func register(f *function) { functions[f.name] = f }

func init() {
	register(&function{name: "sma", series: 1, ints: 1, ret: Number, num: func(_ *env, a [][]float64, n []int) []float64 {
		return indicator.SMA(a[0], n[0])
	}})
	register(&function{name: "ema", series: 1, ints: 1, ret: Number, num: func(_ *env, a [][]float64, n []int) []float64 {
		return indicator.EMA(a[0], n[0])
	}})
	register(&function{name: "rsi", series: 1, ints: 1, ret: Number, num: func(_ *env, a [][]float64, n []int) []float64 {
		return indicator.RSI(a[0], n[0])
	}})
	register(&function{name: "highest", series: 1, ints: 1, ret: Number, num: func(_ *env, a [][]float64, n []int) []float64 {
		return indicator.Highest(a[0], n[0])
	}})
	register(&function{name: "lowest", series: 1, ints: 1, ret: Number, num: func(_ *env, a [][]float64, n []int) []float64 {
		return indicator.Lowest(a[0], n[0])
	}})
	register(&function{name: "stddev", series: 1, ints: 1, ret: Number, num: func(_ *env, a [][]float64, n []int) []float64 {
		return indicator.StdDev(a[0], n[0])
	}})
	register(&function{name: "lag", series: 1, ints: 1, ret: Number, num: func(_ *env, a [][]float64, n []int) []float64 {
		return indicator.Lag(a[0], n[0])
	}})
	register(&function{name: "atr", series: 0, ints: 1, ret: Number, num: func(e *env, _ [][]float64, n []int) []float64 {
		return indicator.ATR(e.field("high"), e.field("low"), e.field("close"), n[0])
	}})
	register(&function{name: "macd", series: 1, ints: 3, ret: Number, num: func(_ *env, a [][]float64, n []int) []float64 {
		line, _, _ := indicator.MACD(a[0], n[0], n[1], n[2])
		return line
	}})
	register(&function{name: "macd_signal", series: 1, ints: 3, ret: Number, num: func(_ *env, a [][]float64, n []int) []float64 {
		_, sig, _ := indicator.MACD(a[0], n[0], n[1], n[2])
		return sig
	}})
	register(&function{name: "macd_hist", series: 1, ints: 3, ret: Number, num: func(_ *env, a [][]float64, n []int) []float64 {
		_, _, hist := indicator.MACD(a[0], n[0], n[1], n[2])
		return hist
	}})
	register(&function{name: "abs", series: 1, ints: 0, ret: Number, num: func(_ *env, a [][]float64, _ []int) []float64 {
		out := make([]float64, len(a[0]))
		for i, v := range a[0] {
			out[i] = math.Abs(v)
		}
		return out
	}})
	register(&function{name: "crosses_above", series: 2, ints: 0, ret: Bool, cond: func(a [][]float64) []tri {
		return crosses(a[0], a[1])
	}})
	register(&function{name: "crosses_below", series: 2, ints: 0, ret: Bool, cond: func(a [][]float64) []tri {
		return crosses(a[1], a[0])
	}})
}

// crosses is true at t when x moves from <= y to > y. Bar 0 and bars with an
// undefined input are unknown.
func crosses(x, y []float64) []tri {
	out := make([]tri, len(x))
	for t := 1; t < len(x); t++ {
		if math.IsNaN(x[t]) || math.IsNaN(y[t]) || math.IsNaN(x[t-1]) || math.IsNaN(y[t-1]) {
			continue
		}
		out[t] = truth(x[t] > y[t] && x[t-1] <= y[t-1])
	}
	return out
}

// Functions lists the builtin names, used in prompts and error messages.
func Functions() []string {
	out := make([]string, 0, len(functions))
	for name := range functions {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
