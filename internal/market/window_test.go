package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sampleWindow() Series {
	return Series{
		{Date: day(2024, 3, 1), Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 100},
		{Date: day(2024, 3, 2), Open: 10.5, High: 12, Low: 10, Close: 11.5, Volume: 120},
		{Date: day(2024, 3, 3), Open: 11.5, High: 12.5, Low: 11, Close: 12, Volume: 90},
	}
}

func TestMergeAppendsNewDay(t *testing.T) {
	window := sampleWindow()
	live := Bar{Date: day(2024, 3, 4), Open: 12, High: 13, Low: 11.8, Close: 12.7, Volume: 40}

	merged, outcome := Merge(window, live)

	assert.Equal(t, Appended, outcome)
	require.Len(t, merged, len(window)+1)
	assert.Equal(t, live, merged[len(merged)-1])
	assert.Len(t, window, 3, "input window must not grow")
}

func TestMergeReplacesSameDay(t *testing.T) {
	window := sampleWindow()
	before := window.Clone()
	live := Bar{Date: day(2024, 3, 3).Add(14 * time.Hour), Open: 11.6, High: 13, Low: 11.1, Close: 12.9, Volume: 150}

	merged, outcome := Merge(window, live)

	assert.Equal(t, Replaced, outcome)
	require.Len(t, merged, len(window))
	last := merged[len(merged)-1]
	assert.Equal(t, day(2024, 3, 3), last.Date, "date is kept, not duplicated")
	assert.Equal(t, []float64{11.6, 13, 11.1, 12.9, 150}, []float64{last.Open, last.High, last.Low, last.Close, last.Volume})
	assert.Equal(t, before, window, "input window untouched")
}

func TestMergeIgnoresStaleBar(t *testing.T) {
	window := sampleWindow()
	live := Bar{Date: day(2024, 3, 2), Open: 1, High: 1, Low: 1, Close: 1, Volume: 1}

	merged, outcome := Merge(window, live)

	assert.Equal(t, Stale, outcome)
	assert.Equal(t, window, merged)
	merged[0].Close = 999
	assert.Equal(t, 10.5, window[0].Close, "stale result is still a copy")
}

func TestMergeSeedsEmptyWindow(t *testing.T) {
	live := Bar{Date: day(2024, 3, 4), Close: 5}
	merged, outcome := Merge(nil, live)
	assert.Equal(t, Seeded, outcome)
	assert.Equal(t, Series{live}, merged)
}

func TestMergeDoesNotAliasBackingArray(t *testing.T) {
	backing := make(Series, 3, 10)
	copy(backing, sampleWindow())
	live := Bar{Date: day(2024, 3, 4), Close: 13}

	a, _ := Merge(backing, live)
	b, _ := Merge(backing, Bar{Date: day(2024, 3, 5), Close: 14})

	assert.Equal(t, 13.0, a[3].Close)
	assert.Equal(t, 14.0, b[3].Close)
}

func TestWindowCacheTrimsAndCopies(t *testing.T) {
	c := NewWindowCache(2)
	c.Put("btcusdt", sampleWindow())

	got, ok := c.Get("BTCUSDT")
	require.True(t, ok)
	require.Len(t, got, 2)
	assert.Equal(t, day(2024, 3, 3), got[1].Date)

	got[1].Close = -1
	again, _ := c.Get("BTCUSDT")
	assert.Equal(t, 12.0, again[1].Close)

	assert.Equal(t, []string{"BTCUSDT"}, c.Instruments())
	c.Put("BTCUSDT", nil)
	assert.Equal(t, 0, c.Len())
}

func TestSeriesValidate(t *testing.T) {
	assert.NoError(t, sampleWindow().Validate())

	dup := sampleWindow()
	dup[2].Date = dup[1].Date
	assert.Error(t, dup.Validate())

	bad := sampleWindow()
	bad[1].Close = 0
	assert.Error(t, bad.Validate())
}

func TestSeriesBetween(t *testing.T) {
	got := sampleWindow().Between(day(2024, 3, 2), day(2024, 3, 9))
	require.Len(t, got, 2)
	assert.Equal(t, day(2024, 3, 2), got[0].Date)
}
