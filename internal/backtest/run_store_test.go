package backtest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantsignal/internal/strategy"
)

func TestResultStoreRecordAndList(t *testing.T) {
	store, err := NewResultStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	res, err := Run(seriesOf(10, 11, 12), constant(strategy.Long), DefaultOptions())
	require.NoError(t, err)

	rec, err := store.Record(ctx, "BTCUSDT", "abcd1234", "hold", 30, res)
	require.NoError(t, err)
	assert.Len(t, rec.ID, 12)

	got, err := store.GetRun(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", got.Instrument)
	assert.Equal(t, "abcd1234", got.StrategyID)
	assert.InDelta(t, res.Stats.TotalReturn, got.Stats.TotalReturn, 1e-12)
	assert.Equal(t, strategy.Long, got.Stats.LastSignal)

	_, err = store.Record(ctx, "ETHUSDT", "", "hold", 30, res)
	require.NoError(t, err)
	list, err := store.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "ETHUSDT", list[0].Instrument)

	_, err = store.GetRun(ctx, "missing")
	assert.True(t, errors.Is(err, ErrRunNotFound))
}
