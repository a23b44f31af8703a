package market

import (
	"context"
	"time"
)

// HistoryProvider fetches daily bars for [start, end]. A nil series with a nil
// error means the instrument has no data in range.
type HistoryProvider interface {
	FetchHistory(ctx context.Context, instrument string, start, end time.Time) (Series, error)
}

// SnapshotProvider returns the current bar for each requested instrument in a
// single batched call. Unknown or delisted instruments are omitted.
type SnapshotProvider interface {
	FetchSnapshot(ctx context.Context, instruments []string) (map[string]Bar, error)
}

// HistoryReader reads persisted history.
type HistoryReader interface {
	LoadHistory(ctx context.Context, instrument string, start, end time.Time) (Series, error)
}

// HistoryWriter persists bars, overwriting existing days.
type HistoryWriter interface {
	SaveHistory(ctx context.Context, instrument string, bars Series) (int, error)
}

// FallbackHistory reads from Primary and falls back to Remote when the local
// copy is empty.
type FallbackHistory struct {
	Primary HistoryReader
	Remote  HistoryProvider
}

func (f FallbackHistory) LoadHistory(ctx context.Context, instrument string, start, end time.Time) (Series, error) {
	if f.Primary != nil {
		s, err := f.Primary.LoadHistory(ctx, instrument, start, end)
		if err != nil {
			return nil, err
		}
		if len(s) > 0 || f.Remote == nil {
			return s, nil
		}
	}
	if f.Remote == nil {
		return nil, nil
	}
	return f.Remote.FetchHistory(ctx, instrument, start, end)
}
