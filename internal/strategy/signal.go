package strategy

import (
	"fmt"
	"time"
)

// Signal is the desired position for a bar.
type Signal int

const (
	Short Signal = -1
	Flat  Signal = 0
	Long  Signal = 1
)

func (s Signal) Valid() bool { return s == Short || s == Flat || s == Long }

func (s Signal) String() string {
	switch s {
	case Long:
		return "LONG"
	case Short:
		return "SHORT"
	case Flat:
		return "FLAT"
	default:
		return fmt.Sprintf("Signal(%d)", int(s))
	}
}

// SignalSeries is aligned index-for-index with the series it was derived from.
type SignalSeries struct {
	Dates  []time.Time
	Values []Signal
}

func NewSignalSeries(dates []time.Time, values []Signal) SignalSeries {
	return SignalSeries{Dates: dates, Values: values}
}

func (s SignalSeries) Len() int { return len(s.Values) }

// Last returns the final signal, Flat for an empty series.
func (s SignalSeries) Last() Signal {
	if len(s.Values) == 0 {
		return Flat
	}
	return s.Values[len(s.Values)-1]
}
