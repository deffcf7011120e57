package dexscreener

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/raphaelgruber/chartbracket/internal/models"
)

func TestIntervalCode(t *testing.T) {
	tests := map[string]string{
		"15m": "15",
		"30m": "30",
		"1h":  "60",
		"4h":  "240",
		"1d":  "D",
		"1w":  "W",
		"2h":  "60",
		"":    "60",
	}
	for in, want := range tests {
		assert.Equal(t, want, IntervalCode(in), in)
	}
	for _, iv := range Intervals {
		_, ok := intervalCodes[iv]
		assert.True(t, ok, "interval %s has no code", iv)
	}
}

func TestChartURL(t *testing.T) {
	c := models.Chart{ChainID: "solana", PairAddress: "AbC123", BaseToken: models.Token{Symbol: "WIF"}}

	u := ChartURL(c, "4h")
	assert.True(t, strings.HasPrefix(u, "https://dexscreener.com/solana/AbC123?embed=1&theme=dark"), u)
	assert.True(t, strings.HasSuffix(u, "&interval=240"), u)
	assert.Contains(t, u, "tab=chart")

	p := Placeholder("GHOSTUSDT")
	assert.Equal(t, "https://dexscreener.com/?q=GHOST&embed=1&theme=dark&interval=D", ChartURL(p, "1d"))
}
