package indicator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ramp(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i + 1)
	}
	return out
}

func TestSMAWarmupIsNaN(t *testing.T) {
	got := SMA(ramp(5), 3)
	require.Len(t, got, 5)
	assert.True(t, math.IsNaN(got[0]))
	assert.True(t, math.IsNaN(got[1]))
	assert.InDelta(t, 2.0, got[2], 1e-9)
	assert.InDelta(t, 4.0, got[4], 1e-9)
}

func TestShortInputIsAllNaN(t *testing.T) {
	for _, got := range [][]float64{SMA(ramp(2), 5), EMA(ramp(2), 5), RSI(ramp(3), 14), Highest(nil, 3)} {
		for _, v := range got {
			assert.True(t, math.IsNaN(v))
		}
	}
}

func TestNestedIndicatorsRealign(t *testing.T) {
	inner := SMA(ramp(10), 3)
	outer := SMA(inner, 2)
	require.Len(t, outer, 10)
	assert.True(t, math.IsNaN(outer[2]))
	assert.InDelta(t, 2.5, outer[3], 1e-9)
}

func TestHighestLowestLag(t *testing.T) {
	x := []float64{3, 1, 4, 1, 5}
	assert.InDelta(t, 4.0, Highest(x, 3)[2], 1e-9)
	assert.InDelta(t, 1.0, Lowest(x, 3)[4], 1e-9)

	lag := Lag(x, 2)
	assert.True(t, math.IsNaN(lag[1]))
	assert.Equal(t, 3.0, lag[2])
}

func TestMACDLength(t *testing.T) {
	line, sig, hist := MACD(ramp(60), 12, 26, 9)
	assert.Len(t, line, 60)
	assert.Len(t, sig, 60)
	assert.Len(t, hist, 60)
	assert.True(t, math.IsNaN(line[32]))
	assert.False(t, math.IsNaN(hist[59]))
}
