package dsl

import (
	"fmt"
	"math"

	"quantsignal/internal/market"
)

type env struct {
	series market.Series
	n      int
	cols   map[string][]float64
}

func (e *env) field(name string) []float64 {
	if col, ok := e.cols[name]; ok {
		return col
	}
	var col []float64
	switch name {
	case "open":
		col = e.series.Opens()
	case "high":
		col = e.series.Highs()
	case "low":
		col = e.series.Lows()
	case "close":
		col = e.series.Closes()
	case "volume":
		col = e.series.Volumes()
	}
	e.cols[name] = col
	return col
}

// tri is a Kleene truth value; comparisons over undefined inputs are unknown
// so negating a warm-up bar does not turn it into a signal.
type tri int8

const (
	unknown tri = iota
	no
	yes
)

func truth(b bool) tri {
	if b {
		return yes
	}
	return no
}

// Eval evaluates the condition over every bar. Only bars where the condition
// is definitely true are reported as true.
func (p *Program) Eval(series market.Series) (out []bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("dsl: evaluating %q: %v", p.src, r)
		}
	}()
	e := &env{series: series, n: len(series), cols: make(map[string][]float64, len(fields))}
	res := p.root.evalBool(e)
	if len(res) != e.n {
		return nil, fmt.Errorf("dsl: %q produced %d values for %d bars", p.src, len(res), e.n)
	}
	out = make([]bool, len(res))
	for i, v := range res {
		out[i] = v == yes
	}
	return out, nil
}

func (n numLit) evalNum(e *env) []float64 {
	out := make([]float64, e.n)
	for i := range out {
		out[i] = n.v
	}
	return out
}

func (f fieldRef) evalNum(e *env) []float64 { return e.field(f.name) }

func (a arith) evalNum(e *env) []float64 {
	l, r := a.l.evalNum(e), a.r.evalNum(e)
	out := make([]float64, e.n)
	for i := range out {
		switch a.op {
		case "+":
			out[i] = l[i] + r[i]
		case "-":
			out[i] = l[i] - r[i]
		case "*":
			out[i] = l[i] * r[i]
		case "/":
			if r[i] == 0 {
				out[i] = math.NaN()
			} else {
				out[i] = l[i] / r[i]
			}
		}
	}
	return out
}

func (n neg) evalNum(e *env) []float64 {
	x := n.x.evalNum(e)
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = -v
	}
	return out
}

func (c call) evalArgs(e *env) [][]float64 {
	args := make([][]float64, len(c.args))
	for i, a := range c.args {
		args[i] = a.evalNum(e)
	}
	return args
}

func (c call) evalNum(e *env) []float64 {
	if c.fn.num == nil {
		panic(fmt.Sprintf("%s is a condition", c.fn.name))
	}
	return c.fn.num(e, c.evalArgs(e), c.ints)
}

func (c call) evalBool(e *env) []tri {
	if c.fn.cond == nil {
		panic(fmt.Sprintf("%s is not a condition", c.fn.name))
	}
	return c.fn.cond(c.evalArgs(e))
}

func (c compare) evalBool(e *env) []tri {
	l, r := c.l.evalNum(e), c.r.evalNum(e)
	out := make([]tri, e.n)
	for i := range out {
		a, b := l[i], r[i]
		if math.IsNaN(a) || math.IsNaN(b) {
			continue
		}
		switch c.op {
		case ">":
			out[i] = truth(a > b)
		case ">=":
			out[i] = truth(a >= b)
		case "<":
			out[i] = truth(a < b)
		case "<=":
			out[i] = truth(a <= b)
		case "==":
			out[i] = truth(a == b)
		case "!=":
			out[i] = truth(a != b)
		}
	}
	return out
}

func (l logical) evalBool(e *env) []tri {
	a, b := l.l.evalBool(e), l.r.evalBool(e)
	out := make([]tri, e.n)
	for i := range out {
		if l.op == "and" {
			switch {
			case a[i] == no || b[i] == no:
				out[i] = no
			case a[i] == yes && b[i] == yes:
				out[i] = yes
			}
			continue
		}
		switch {
		case a[i] == yes || b[i] == yes:
			out[i] = yes
		case a[i] == no && b[i] == no:
			out[i] = no
		}
	}
	return out
}

func (n not) evalBool(e *env) []tri {
	x := n.x.evalBool(e)
	out := make([]tri, len(x))
	for i, v := range x {
		switch v {
		case yes:
			out[i] = no
		case no:
			out[i] = yes
		}
	}
	return out
}
