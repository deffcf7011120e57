// Package dexscreener fetches trading pairs from the public DexScreener API
// and builds the embeddable chart URLs shown to users.
package dexscreener

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/raphaelgruber/chartbracket/internal/metrics"
	"github.com/raphaelgruber/chartbracket/internal/models"
	"github.com/raphaelgruber/chartbracket/internal/source"
)

const (
	// DefaultBaseURL is the public API root.
	DefaultBaseURL = "https://api.dexscreener.com"

	trendingPerToken = 3
	trendingLimit    = 30
)

// TrendingTokens are searched to assemble the trending list.
var TrendingTokens = []string{"ETH", "BTC", "SOL", "DOGE", "MATIC", "ADA", "LINK", "AVAX", "UNI", "LTC"}

var quoteSuffix = regexp.MustCompile(`(?i)(USDT|USDC|SOL|ETH)$`)

// Client queries DexScreener.
type Client struct {
	baseURL string
	getter  *source.Getter
	logger  *slog.Logger
}

// New creates a client. An empty baseURL uses DefaultBaseURL.
func New(baseURL string, opts source.Options) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		getter:  source.NewGetter("dexscreener", metrics.OpDexScreener, opts),
		logger:  logger,
	}
}

// pair mirrors the subset of the DexScreener pair document we use.
type pair struct {
	ChainID     string         `json:"chainId"`
	DexID       string         `json:"dexId"`
	URL         string         `json:"url"`
	PairAddress string         `json:"pairAddress"`
	BaseToken   models.Token   `json:"baseToken"`
	QuoteToken  models.Token   `json:"quoteToken"`
	PriceUSD    string         `json:"priceUsd"`
	Volume      map[string]any `json:"volume"`
	PriceChange map[string]any `json:"priceChange"`
	Liquidity   map[string]any `json:"liquidity"`
}

type searchResponse struct {
	Pairs []pair `json:"pairs"`
}

// Search returns the pairs matching query, in the order DexScreener ranks them.
func (c *Client) Search(ctx context.Context, query string) ([]models.Chart, error) {
	u := fmt.Sprintf("%s/latest/dex/search?q=%s", c.baseURL, url.QueryEscape(query))

	var resp searchResponse
	if err := c.getter.GetJSON(ctx, u, &resp); err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	charts := make([]models.Chart, 0, len(resp.Pairs))
	for _, p := range resp.Pairs {
		charts = append(charts, p.chart())
	}
	return charts, nil
}

// Trending searches each of TrendingTokens, keeps the first three pairs of
// each, drops repeated pair addresses and returns the 30 highest by 24h
// volume. A failed search is logged and skipped; the call only fails when
// every search does.
func (c *Client) Trending(ctx context.Context) ([]models.Chart, error) {
	results := make([][]models.Chart, len(TrendingTokens))
	errs := make([]error, len(TrendingTokens))

	g, gctx := errgroup.WithContext(ctx)
	for i, token := range TrendingTokens {
		g.Go(func() error {
			charts, err := c.Search(gctx, token)
			if err != nil {
				c.logger.Warn("trending search failed", "token", token, "error", err)
				errs[i] = err
				return nil
			}
			results[i] = charts[:min(trendingPerToken, len(charts))]
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
		}
	}
	if failed == len(TrendingTokens) {
		return nil, fmt.Errorf("trending: all %d searches failed: %w", failed, errs[0])
	}

	seen := make(map[string]bool)
	var all []models.Chart
	for _, charts := range results {
		for _, ch := range charts {
			if seen[ch.PairAddress] {
				continue
			}
			seen[ch.PairAddress] = true
			all = append(all, ch)
		}
	}

	slices.SortStableFunc(all, func(a, b models.Chart) int {
		return b.Volume24h.Cmp(a.Volume24h)
	})
	return all[:min(trendingLimit, len(all))], nil
}

// BaseSymbol strips a trailing quote symbol from a ticker: "PEPEUSDT" -> "PEPE".
func BaseSymbol(ticker string) string {
	base := quoteSuffix.ReplaceAllString(strings.TrimSpace(ticker), "")
	if base == "" {
		return strings.ToUpper(strings.TrimSpace(ticker))
	}
	return strings.ToUpper(base)
}

// BestPair resolves a ticker to its most liquid pair: USDT/USDC quoted pairs
// are preferred, then the highest 24h volume wins. When nothing can be found
// a placeholder chart is returned instead of an error.
func (c *Client) BestPair(ctx context.Context, ticker string) models.Chart {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	base := BaseSymbol(ticker)

	charts, err := c.Search(ctx, base)
	if err != nil {
		c.logger.Warn("pair lookup failed, using placeholder", "ticker", ticker, "error", err)
		return Placeholder(ticker)
	}
	if len(charts) == 0 {
		c.logger.Info("no pairs found, using placeholder", "ticker", ticker)
		return Placeholder(ticker)
	}

	stable := slices.DeleteFunc(slices.Clone(charts), func(ch models.Chart) bool {
		q := strings.ToUpper(ch.QuoteToken.Symbol)
		return q != "USDT" && q != "USDC"
	})
	if len(stable) > 0 {
		charts = stable
	}

	best := slices.MaxFunc(charts, func(a, b models.Chart) int {
		return cmp.Compare(a.Volume24h.InexactFloat64(), b.Volume24h.InexactFloat64())
	})
	best.Ticker = ticker
	return best
}

// Placeholder is the chart used for a ticker without any DexScreener pair.
func Placeholder(ticker string) models.Chart {
	base := BaseSymbol(ticker)
	return models.Chart{
		ChainID:     "ethereum",
		PairAddress: "placeholder_" + ticker,
		BaseToken:   models.Token{Symbol: base, Name: base + " Token"},
		Ticker:      ticker,
		Placeholder: true,
	}
}

func (p pair) chart() models.Chart {
	return models.Chart{
		ChainID:     p.ChainID,
		DexID:       p.DexID,
		PairAddress: p.PairAddress,
		URL:         p.URL,
		BaseToken:   p.BaseToken,
		QuoteToken:  p.QuoteToken,
		PriceUSD:    parseDecimal(p.PriceUSD),
		Volume24h:   field(p.Volume, "h24"),
		Change24h:   field(p.PriceChange, "h24"),
		Liquidity:   field(p.Liquidity, "usd"),
	}
}

// field reads a numeric member that DexScreener sends as either a number or a string.
func field(m map[string]any, key string) decimal.Decimal {
	switch v := m[key].(type) {
	case float64:
		return decimal.NewFromFloat(v)
	case string:
		return parseDecimal(v)
	default:
		return decimal.Zero
	}
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
