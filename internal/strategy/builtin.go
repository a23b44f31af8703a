package strategy

import (
	"math"

	"quantsignal/internal/analysis/indicator"
	"quantsignal/internal/market"
	"quantsignal/internal/strategy/dsl"
)

// Kind tags one of the closed set of strategy variants.
type Kind string

const (
	KindSMACross     Kind = "sma_cross"
	KindEMACross     Kind = "ema_cross"
	KindRSIReversion Kind = "rsi_reversion"
	KindMACDCross    Kind = "macd_cross"
	KindDonchian     Kind = "donchian_breakout"
	KindBollinger    Kind = "bollinger_reversion"
	KindBuyAndHold   Kind = "buy_and_hold"
	KindRule         Kind = "rule"
)

// Kinds lists every supported variant in documentation order.
func Kinds() []Kind {
	return []Kind{KindSMACross, KindEMACross, KindRSIReversion, KindMACDCross, KindDonchian, KindBollinger, KindBuyAndHold, KindRule}
}

// signalFunc computes raw signal values for a series.
type signalFunc func(s market.Series) ([]Signal, error)

// pure lifts an infallible builtin into a signalFunc.
func pure(f func(s market.Series) []Signal) signalFunc {
	return func(s market.Series) ([]Signal, error) { return f(s), nil }
}

func undefined(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

func crossSignals(fast, slow []float64, allowShort bool) []Signal {
	out := make([]Signal, len(fast))
	for i := range fast {
		if undefined(fast[i], slow[i]) {
			continue
		}
		switch {
		case fast[i] > slow[i]:
			out[i] = Long
		case fast[i] < slow[i] && allowShort:
			out[i] = Short
		}
	}
	return out
}

func smaCross(fast, slow int, allowShort bool) signalFunc {
	return pure(func(s market.Series) []Signal {
		c := s.Closes()
		return crossSignals(indicator.SMA(c, fast), indicator.SMA(c, slow), allowShort)
	})
}

func emaCross(fast, slow int, allowShort bool) signalFunc {
	return pure(func(s market.Series) []Signal {
		c := s.Closes()
		return crossSignals(indicator.EMA(c, fast), indicator.EMA(c, slow), allowShort)
	})
}

func macdCross(fast, slow, signal int, allowShort bool) signalFunc {
	return pure(func(s market.Series) []Signal {
		line, sig, _ := indicator.MACD(s.Closes(), fast, slow, signal)
		return crossSignals(line, sig, allowShort)
	})
}

// rsiReversion enters long when RSI drops below lower and exits above upper.
func rsiReversion(period int, lower, upper float64) signalFunc {
	return pure(func(s market.Series) []Signal {
		rsi := indicator.RSI(s.Closes(), period)
		out := make([]Signal, len(rsi))
		pos := Flat
		for i, v := range rsi {
			switch {
			case undefined(v):
				pos = Flat
			case v < lower:
				pos = Long
			case v > upper:
				pos = Flat
			}
			out[i] = pos
		}
		return out
	})
}

// donchian goes long when close breaks the prior period high and leaves (or
// flips short) when it breaks the prior period low.
func donchian(period int, allowShort bool) signalFunc {
	return pure(func(s market.Series) []Signal {
		closes := s.Closes()
		upper := indicator.Lag(indicator.Highest(s.Highs(), period), 1)
		lower := indicator.Lag(indicator.Lowest(s.Lows(), period), 1)
		out := make([]Signal, len(closes))
		pos := Flat
		for i, c := range closes {
			if undefined(upper[i], lower[i]) {
				out[i] = Flat
				continue
			}
			switch {
			case c > upper[i]:
				pos = Long
			case c < lower[i]:
				pos = Flat
				if allowShort {
					pos = Short
				}
			}
			out[i] = pos
		}
		return out
	})
}

func bollinger(period int, k float64) signalFunc {
	return pure(func(s market.Series) []Signal {
		closes := s.Closes()
		_, middle, lower := indicator.Bollinger(closes, period, k)
		out := make([]Signal, len(closes))
		pos := Flat
		for i, c := range closes {
			switch {
			case undefined(middle[i], lower[i]):
				pos = Flat
			case c < lower[i]:
				pos = Long
			case c > middle[i]:
				pos = Flat
			}
			out[i] = pos
		}
		return out
	})
}

func buyAndHold() signalFunc {
	return pure(func(s market.Series) []Signal {
		out := make([]Signal, len(s))
		for i := range out {
			out[i] = Long
		}
		return out
	})
}

// rule turns DSL conditions into signals; long wins when both are true.
func rule(long, short *dsl.Program) signalFunc {
	return func(s market.Series) ([]Signal, error) {
		out := make([]Signal, len(s))
		l, err := long.Eval(s)
		if err != nil {
			return nil, err
		}
		var sh []bool
		if short != nil {
			if sh, err = short.Eval(s); err != nil {
				return nil, err
			}
		}
		for i := range out {
			switch {
			case l[i]:
				out[i] = Long
			case sh != nil && sh[i]:
				out[i] = Short
			}
		}
		return out, nil
	}
}
