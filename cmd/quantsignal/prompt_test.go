package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantsignal/internal/backtest"
	"quantsignal/internal/market"
	"quantsignal/internal/strategy"
)

func TestPrompterAsk(t *testing.T) {
	var out bytes.Buffer
	p := newPrompter(strings.NewReader("ethusdt\n\ny\n"), &out)

	ans, err := p.ask("品种", "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, "ethusdt", ans)

	ans, err = p.ask("天数", "365")
	require.NoError(t, err)
	assert.Equal(t, "365", ans)

	ok, err := p.confirm("保存?")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, out.String(), "品种 [BTCUSDT]: ")

	_, err = p.ask("more", "")
	assert.Error(t, err)
}

func TestPrompterLastLineWithoutNewline(t *testing.T) {
	p := newPrompter(strings.NewReader("n"), &bytes.Buffer{})
	ok, err := p.confirm("保存?")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPickInstruments(t *testing.T) {
	fallback := []string{"BTCUSDT"}
	assert.Equal(t, []string{"ETHUSDT", "SOLUSDT"}, pickInstruments([]string{"sol/usdt", "eth-usdt,ETHUSDT"}, fallback))
	got := pickInstruments(nil, fallback)
	assert.Equal(t, fallback, got)
	got[0] = "XRPUSDT"
	assert.Equal(t, "BTCUSDT", fallback[0])
}

func TestWriteChartHTML(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var series market.Series
	for i := 0; i < 30; i++ {
		c := 100 + float64(i)
		series = append(series, market.Bar{Date: start.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c})
	}
	hold := strategy.EvaluatorFunc(func(s market.Series) (strategy.SignalSeries, error) {
		values := make([]strategy.Signal, len(s))
		for i := range values {
			values[i] = strategy.Long
		}
		return strategy.NewSignalSeries(s.Dates(), values), nil
	})
	res, err := backtest.Run(series, hold, backtest.DefaultOptions())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "charts", "btc.html")
	require.NoError(t, writeChart(context.Background(), path, "BTCUSDT hold", res))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "echarts")
}
