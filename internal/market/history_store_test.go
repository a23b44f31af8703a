package market

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteHistoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLiteHistoryStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	assert.False(t, store.Has("ETHUSDT"))
	empty, err := store.LoadHistory(ctx, "ETHUSDT", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Nil(t, empty)

	n, err := store.SaveHistory(ctx, "ethusdt", sampleWindow())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// upsert same day
	_, err = store.SaveHistory(ctx, "ETHUSDT", Series{{Date: day(2024, 3, 3), Open: 1, High: 2, Low: 1, Close: 1.5, Volume: 7}})
	require.NoError(t, err)

	all, err := store.LoadHistory(ctx, "ETHUSDT", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, 1.5, all[2].Close)

	ranged, err := store.LoadHistory(ctx, "ETHUSDT", day(2024, 3, 2), day(2024, 3, 2))
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.Equal(t, day(2024, 3, 2), ranged[0].Date)

	tail, err := store.LoadTail(ctx, "ETHUSDT", 2)
	require.NoError(t, err)
	assert.Len(t, tail, 2)

	m, err := store.Manifest(ctx, "ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, int64(3), m.Rows)
	assert.Equal(t, day(2024, 3, 1), m.FirstDay)
	assert.Equal(t, day(2024, 3, 3), m.LastDay)
}

type stubRemote struct {
	series Series
	calls  int
}

func (s *stubRemote) FetchHistory(ctx context.Context, instrument string, start, end time.Time) (Series, error) {
	s.calls++
	return s.series, nil
}

func TestFallbackHistoryUsesRemoteWhenLocalEmpty(t *testing.T) {
	store, err := NewSQLiteHistoryStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()
	remote := &stubRemote{series: sampleWindow()}

	fb := FallbackHistory{Primary: store, Remote: remote}
	got, err := fb.LoadHistory(context.Background(), "SOLUSDT", day(2024, 1, 1), day(2024, 12, 31))
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, 1, remote.calls)

	_, err = store.SaveHistory(context.Background(), "SOLUSDT", sampleWindow())
	require.NoError(t, err)
	_, err = fb.LoadHistory(context.Background(), "SOLUSDT", day(2024, 1, 1), day(2024, 12, 31))
	require.NoError(t, err)
	assert.Equal(t, 1, remote.calls)
}

func TestSQLiteHistoryStoreStaysInsideRoot(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	root := filepath.Join(base, "data")
	store, err := NewSQLiteHistoryStore(root)
	require.NoError(t, err)
	defer store.Close()

	for _, name := range []string{"A../../../ESCAPED", "../ESCAPED", "sub/BTCUSDT", `..\\ESCAPED`} {
		_, err := store.SaveHistory(ctx, name, sampleWindow())
		assert.ErrorIs(t, err, ErrInvalidInstrument, name)
		_, err = store.LoadHistory(ctx, name, time.Time{}, time.Time{})
		assert.ErrorIs(t, err, ErrInvalidInstrument, name)
		_, err = store.Manifest(ctx, name)
		assert.ErrorIs(t, err, ErrInvalidInstrument, name)
		assert.False(t, store.Has(name))
	}
	_, err = os.Stat(filepath.Join(base, "ESCAPED.db"))
	assert.True(t, os.IsNotExist(err))
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
