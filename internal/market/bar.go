package market

import (
	"fmt"
	"math"
	"time"
)

const dayLayout = "2006-01-02"

// Bar is one daily OHLCV record. Date is interpreted as a UTC calendar day.
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Day truncates the bar date to midnight UTC.
func (b Bar) Day() time.Time {
	return DayOf(b.Date)
}

func (b Bar) DayString() string {
	return b.Day().Format(dayLayout)
}

func DayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func ParseDay(s string) (time.Time, error) {
	t, err := time.ParseInLocation(dayLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse day %q: %w", s, err)
	}
	return t, nil
}

// Series is a date-ordered run of bars for one instrument.
// Days are strictly increasing; functions in this module never write to a
// caller's Series and return copies instead.
type Series []Bar

func (s Series) Len() int { return len(s) }

func (s Series) Clone() Series {
	if s == nil {
		return nil
	}
	out := make(Series, len(s))
	copy(out, s)
	return out
}

func (s Series) Last() (Bar, bool) {
	if len(s) == 0 {
		return Bar{}, false
	}
	return s[len(s)-1], true
}

// Tail returns a copy of the last n bars (all of them when n <= 0 or n >= len).
func (s Series) Tail(n int) Series {
	if n <= 0 || n >= len(s) {
		return s.Clone()
	}
	out := make(Series, n)
	copy(out, s[len(s)-n:])
	return out
}

func (s Series) Dates() []time.Time {
	out := make([]time.Time, len(s))
	for i, b := range s {
		out[i] = b.Date
	}
	return out
}

func (s Series) Opens() []float64   { return s.column(func(b Bar) float64 { return b.Open }) }
func (s Series) Highs() []float64   { return s.column(func(b Bar) float64 { return b.High }) }
func (s Series) Lows() []float64    { return s.column(func(b Bar) float64 { return b.Low }) }
func (s Series) Closes() []float64  { return s.column(func(b Bar) float64 { return b.Close }) }
func (s Series) Volumes() []float64 { return s.column(func(b Bar) float64 { return b.Volume }) }

func (s Series) column(pick func(Bar) float64) []float64 {
	out := make([]float64, len(s))
	for i, b := range s {
		out[i] = pick(b)
	}
	return out
}

// Between returns a copy of the bars whose day lies in [start, end].
func (s Series) Between(start, end time.Time) Series {
	from, to := DayOf(start), DayOf(end)
	out := make(Series, 0, len(s))
	for _, b := range s {
		d := b.Day()
		if d.Before(from) || d.After(to) {
			continue
		}
		out = append(out, b)
	}
	return out
}

// Validate reports the first ordering or price problem found.
func (s Series) Validate() error {
	for i, b := range s {
		if !finitePositive(b.Close) {
			return fmt.Errorf("bar %d (%s): close %v is not a positive finite price", i, b.DayString(), b.Close)
		}
		if math.IsNaN(b.Open) || math.IsNaN(b.High) || math.IsNaN(b.Low) || math.IsNaN(b.Volume) {
			return fmt.Errorf("bar %d (%s): missing price column", i, b.DayString())
		}
		if i > 0 && !b.Day().After(s[i-1].Day()) {
			return fmt.Errorf("bar %d (%s): day not after %s", i, b.DayString(), s[i-1].DayString())
		}
	}
	return nil
}

func finitePositive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
