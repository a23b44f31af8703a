package visual

import (
	"bytes"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantsignal/internal/backtest"
	"quantsignal/internal/market"
	"quantsignal/internal/strategy"
)

func sampleResult(t *testing.T) *backtest.Result {
	t.Helper()
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	closes := []float64{100, 102, 101, 98, 104, 107, 103, 110}
	series := make(market.Series, len(closes))
	signals := make([]strategy.Signal, len(closes))
	for i, c := range closes {
		series[i] = market.Bar{Date: start.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c, Volume: 1}
		signals[i] = strategy.Long
	}
	res, err := backtest.Compute(series, signals, backtest.DefaultOptions())
	require.NoError(t, err)
	return res
}

func TestRenderEquityHTMLContainsSeries(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderEquityHTML(&buf, "BTCUSDT golden cross", sampleResult(t)))

	html := buf.String()
	for _, name := range []string{SeriesEquity, SeriesBenchmark, SeriesTrend, SeriesDrawdown} {
		assert.Contains(t, html, name)
	}
	assert.Contains(t, html, "BTCUSDT golden cross")
	assert.Contains(t, html, "2024-03-01")
	assert.Contains(t, html, "2024-03-08")
}

func TestRenderEquityHTMLRejectsEmpty(t *testing.T) {
	var buf bytes.Buffer
	assert.ErrorIs(t, RenderEquityHTML(&buf, "x", nil), ErrEmptyResult)
	assert.ErrorIs(t, RenderEquityHTML(&buf, "x", &backtest.Result{}), ErrEmptyResult)
	assert.Zero(t, buf.Len())
}

func TestToLineDataAlignsAndBlanksNaN(t *testing.T) {
	data := toLineData([]float64{math.NaN(), 1.23456, 2}, 5, 2)
	require.Len(t, data, 5)
	assert.Nil(t, data[0].Value)
	assert.Nil(t, data[1].Value)
	assert.Nil(t, data[2].Value)
	assert.Equal(t, 1.23, data[3].Value)
	assert.Equal(t, 2.0, data[4].Value)
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "btcusdt_golden_cross_equity", fileName("BTCUSDT Golden-Cross"))
	assert.Equal(t, "equity", fileName("  "))
}

func TestDataURI(t *testing.T) {
	img := &ImageResult{Bytes: []byte{0x89, 'P', 'N', 'G'}}
	assert.Equal(t, "data:image/png;base64,iVBORw==", img.DataURI())
	var nilImg *ImageResult
	assert.Empty(t, nilImg.DataURI())
}
