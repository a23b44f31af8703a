package dsl

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantsignal/internal/market"
)

func closes(vals ...float64) market.Series {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make(market.Series, len(vals))
	for i, v := range vals {
		out[i] = market.Bar{Date: start.AddDate(0, 0, i), Open: v, High: v + 1, Low: v - 1, Close: v, Volume: 1000}
	}
	return out
}

func TestParseAndEvalComparison(t *testing.T) {
	p, err := Parse("close > 10")
	require.NoError(t, err)
	got, err := p.Eval(closes(9, 10, 11, 12))
	require.NoError(t, err)
	assert.Equal(t, []bool{false, false, true, true}, got)
}

func TestPrecedence(t *testing.T) {
	p, err := Parse("close > 1 + 2 * 3 and not close > 100 or close == 1")
	require.NoError(t, err)
	assert.Equal(t, "((close > (1 + (2 * 3)) and not close > 100) or close == 1)", p.String())

	got, err := p.Eval(closes(1, 5, 8, 200))
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, true, false}, got)
}

func TestWarmupIsNeverTrue(t *testing.T) {
	p, err := Parse("not close > sma(close, 3)")
	require.NoError(t, err)
	got, err := p.Eval(closes(1, 2, 3, 1))
	require.NoError(t, err)
	assert.Equal(t, []bool{false, false, false, true}, got)
}

func TestCrossesAbove(t *testing.T) {
	p, err := Parse("crosses_above(close, 10)")
	require.NoError(t, err)
	got, err := p.Eval(closes(9, 11, 12, 9, 10, 13))
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true, false, false, false, true}, got)

	p, err = Parse("crosses_below(close, 10)")
	require.NoError(t, err)
	got, err = p.Eval(closes(11, 9, 8, 12))
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true, false, false}, got)
}

func TestFunctionsOverSeries(t *testing.T) {
	p, err := Parse("close >= highest(close, 3) and lag(close, 1) < close")
	require.NoError(t, err)
	got, err := p.Eval(closes(1, 2, 3, 2, 4))
	require.NoError(t, err)
	assert.Equal(t, []bool{false, false, true, false, true}, got)
}

func TestDivisionByZeroIsUndefined(t *testing.T) {
	p, err := Parse("close / (close - close) > 0")
	require.NoError(t, err)
	got, err := p.Eval(closes(1, 2))
	require.NoError(t, err)
	assert.Equal(t, []bool{false, false}, got)
}

func TestParseErrors(t *testing.T) {
	cases := map[string]string{
		"":                       "unexpected end",
		"close":                  "must be a condition",
		"close > ":               "unexpected end",
		"foo > 1":                "unknown identifier",
		"bar(close, 3) > 1":      "unknown function",
		"sma(close, 2.5) > 1":    "window",
		"sma(close, 0) > 1":      "window",
		"sma(close) > 1":         "expected ','",
		"close > 1 and 2":        "needs a condition",
		"(close > 1) + 1 > 0":    "needs a number",
		"close = 1":              "unexpected",
		"close > 1 < 2":          "unexpected",
		"close > 1 $":            "unexpected character",
		"sma(close, 2, 3) > 1":   "expected ')'",
	}
	for src, want := range cases {
		_, err := Parse(src)
		require.Error(t, err, src)
		assert.Contains(t, err.Error(), want, src)
		var pe *ParseError
		assert.True(t, errors.As(err, &pe), src)
	}
}

func TestFunctionsListed(t *testing.T) {
	names := Functions()
	assert.Contains(t, names, "sma")
	assert.Contains(t, names, "crosses_above")
	assert.IsIncreasing(t, names)
}
