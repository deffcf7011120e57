// Package coingecko lists the largest coins by market cap as USDT tickers.
package coingecko

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/raphaelgruber/chartbracket/internal/metrics"
	"github.com/raphaelgruber/chartbracket/internal/source"
)

const (
	// DefaultBaseURL is the public API root.
	DefaultBaseURL = "https://api.coingecko.com/api/v3"

	// MaxTickers is the size of a full ticker board.
	MaxTickers = 32
)

// Excluded are stablecoins and wrapped or staked derivatives; their charts
// are flat or mirror another entry.
var Excluded = []string{
	"USDTUSDT", "USDCUSDT", "STETHUSDT", "WBTCUSDT", "WSTETHUSDT",
	"LEOUSDT", "WEETHUSDT", "WETHUSDT", "USDSUSDT", "WBTUSDT",
	"BSC-USDUSDT", "CBBTCUSDT", "USDEUSDT", "BGBUSDT", "SUSDEUSDT",
}

// Client queries CoinGecko.
type Client struct {
	baseURL string
	getter  *source.Getter
}

// New creates a client. An empty baseURL uses DefaultBaseURL.
func New(baseURL string, opts source.Options) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		getter:  source.NewGetter("coingecko", metrics.OpCoinGecko, opts),
	}
}

type market struct {
	ID        string  `json:"id"`
	Symbol    string  `json:"symbol"`
	Name      string  `json:"name"`
	MarketCap float64 `json:"market_cap"`
}

// TopTickers returns up to n (at most MaxTickers) "SYMBOLUSDT" tickers in
// market-cap order, skipping Excluded and repeats.
func (c *Client) TopTickers(ctx context.Context, n int) ([]string, error) {
	if n <= 0 || n > MaxTickers {
		n = MaxTickers
	}

	u := fmt.Sprintf("%s/coins/markets?vs_currency=usd&order=market_cap_desc&per_page=100&page=1&sparkline=false", c.baseURL)
	var markets []market
	if err := c.getter.GetJSON(ctx, u, &markets); err != nil {
		return nil, fmt.Errorf("top tickers: %w", err)
	}

	tickers := make([]string, 0, n)
	for _, m := range markets {
		if len(tickers) == n {
			break
		}
		if m.Symbol == "" {
			continue
		}
		ticker := strings.ToUpper(m.Symbol) + "USDT"
		if slices.Contains(Excluded, ticker) || slices.Contains(tickers, ticker) {
			continue
		}
		tickers = append(tickers, ticker)
	}
	return tickers, nil
}
