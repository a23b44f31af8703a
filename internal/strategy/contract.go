package strategy

import (
	"errors"
	"fmt"

	"quantsignal/internal/market"
)

// Evaluator maps a price series to an aligned signal series. Implementations
// must be deterministic and free of I/O so overlapping windows can be
// re-evaluated at will.
type Evaluator interface {
	Evaluate(series market.Series) (SignalSeries, error)
}

// EvaluatorFunc adapts a plain function to Evaluator.
type EvaluatorFunc func(series market.Series) (SignalSeries, error)

func (f EvaluatorFunc) Evaluate(series market.Series) (SignalSeries, error) { return f(series) }

// Check verifies that signals are aligned with series and only hold -1, 0, 1.
func Check(series market.Series, signals SignalSeries) error {
	if len(signals.Values) != len(series) {
		return fmt.Errorf("signal length %d does not match %d bars", len(signals.Values), len(series))
	}
	if len(signals.Dates) != len(series) {
		return fmt.Errorf("signal dates length %d does not match %d bars", len(signals.Dates), len(series))
	}
	for i, b := range series {
		if !market.DayOf(signals.Dates[i]).Equal(b.Day()) {
			return fmt.Errorf("signal %d dated %s, bar is %s", i, signals.Dates[i].Format("2006-01-02"), b.DayString())
		}
		if !signals.Values[i].Valid() {
			return fmt.Errorf("signal %d has value %d", i, int(signals.Values[i]))
		}
	}
	return nil
}

// Run evaluates e on a copy of series, recovering panics and validating the
// result. Every failure comes back as *RuntimeError.
func Run(name string, e Evaluator, series market.Series) (out SignalSeries, err error) {
	if e == nil {
		return SignalSeries{}, &RuntimeError{Strategy: name, Err: errors.New("nil evaluator")}
	}
	defer func() {
		if r := recover(); r != nil {
			out, err = SignalSeries{}, &RuntimeError{Strategy: name, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	out, err = e.Evaluate(series.Clone())
	if err != nil {
		var rt *RuntimeError
		if errors.As(err, &rt) {
			return SignalSeries{}, err
		}
		return SignalSeries{}, &RuntimeError{Strategy: name, Err: err}
	}
	if err := Check(series, out); err != nil {
		return SignalSeries{}, &RuntimeError{Strategy: name, Err: err}
	}
	return out, nil
}
