package alert

import (
	"sort"
	"time"

	"quantsignal/internal/strategy"
)

// Alert 表示某品种上某策略最新信号为做多的一次提醒。
type Alert struct {
	Instrument   string
	Price        float64
	StrategyID   string
	StrategyName string
	Signal       strategy.Signal
	Timestamp    time.Time
}

// Batch collects the alerts produced by one monitor tick.
type Batch struct {
	TickID      string
	GeneratedAt time.Time
	Alerts      []Alert
}

func (b Batch) Empty() bool { return len(b.Alerts) == 0 }
func (b Batch) Len() int    { return len(b.Alerts) }

// Sorted returns the alerts ordered by instrument, then strategy name.
func (b Batch) Sorted() []Alert {
	out := append([]Alert(nil), b.Alerts...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Instrument != out[j].Instrument {
			return out[i].Instrument < out[j].Instrument
		}
		return out[i].StrategyName < out[j].StrategyName
	})
	return out
}

// Instruments lists the distinct instruments in the batch, sorted.
func (b Batch) Instruments() []string {
	seen := make(map[string]struct{}, len(b.Alerts))
	out := make([]string, 0, len(b.Alerts))
	for _, a := range b.Alerts {
		if _, ok := seen[a.Instrument]; ok {
			continue
		}
		seen[a.Instrument] = struct{}{}
		out = append(out, a.Instrument)
	}
	sort.Strings(out)
	return out
}
