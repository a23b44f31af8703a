package market

// MergeOutcome describes what Merge did with the live bar.
type MergeOutcome int

const (
	// Seeded: the window was empty and now holds only the live bar.
	Seeded MergeOutcome = iota
	// Appended: the live bar starts a new day.
	Appended
	// Replaced: the live bar refreshed the last day's OHLCV.
	Replaced
	// Stale: the live bar is older than the window; nothing changed.
	Stale
)

func (o MergeOutcome) String() string {
	switch o {
	case Seeded:
		return "seeded"
	case Appended:
		return "appended"
	case Replaced:
		return "replaced"
	case Stale:
		return "stale"
	default:
		return "unknown"
	}
}

// Merge folds one live bar into a copy of window. The input slice is never
// written, so a window shared with persisted history stays intact.
func Merge(window Series, live Bar) (Series, MergeOutcome) {
	last, ok := window.Last()
	if !ok {
		return Series{live}, Seeded
	}
	liveDay, lastDay := live.Day(), last.Day()
	switch {
	case liveDay.After(lastDay):
		out := make(Series, len(window), len(window)+1)
		copy(out, window)
		return append(out, live), Appended
	case liveDay.Equal(lastDay):
		out := window.Clone()
		tail := &out[len(out)-1]
		tail.Open = live.Open
		tail.High = live.High
		tail.Low = live.Low
		tail.Close = live.Close
		tail.Volume = live.Volume
		return out, Replaced
	default:
		return window.Clone(), Stale
	}
}
