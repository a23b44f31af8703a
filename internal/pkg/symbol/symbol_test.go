package symbol

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "BTCUSDT", Normalize("btc/usdt"))
	assert.Equal(t, "ETHUSDT", Normalize("ETH/USDT:USDT"))
	assert.Equal(t, "SOLUSDC", Normalize(" sol-usdc "))
	assert.Equal(t, "BNBUSDT", Normalize("bnbusdt"))
	assert.Equal(t, "XYZ", Normalize("xyz"))
	assert.Equal(t, "BTC/USDT", Parse("BTCUSDT").String())
	assert.False(t, IsValid("xyz"))
}

func TestNormalizeList(t *testing.T) {
	got := NormalizeList([]string{"eth/usdt,btcusdt", "BTC/USDT", " ", "sol_usdt"})
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}, got)
	assert.Empty(t, NormalizeList(nil))
}

func TestRejectsPathLikeInput(t *testing.T) {
	for _, raw := range []string{"a/../../../escaped", "../BTCUSDT", `btc\usdt`, "BTC USDT", "B", strings.Repeat("A", 21)} {
		assert.Empty(t, Normalize(raw), raw)
		assert.False(t, IsValid(raw), raw)
	}
	assert.True(t, IsValid("1000pepe/usdt"))
	assert.True(t, ValidInstrument("1000PEPEUSDT"))
	assert.Equal(t, []string{"ETHUSDT"}, NormalizeList([]string{"eth/usdt", "x/../../y"}))
}
