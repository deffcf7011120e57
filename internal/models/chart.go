package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Token is one side of a trading pair.
type Token struct {
	Address string `json:"address,omitempty"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

// Chart is a DexScreener trading pair as rated and ranked by a user.
type Chart struct {
	ChainID     string          `json:"chain_id"`
	DexID       string          `json:"dex_id"`
	PairAddress string          `json:"pair_address"`
	URL         string          `json:"url"`
	BaseToken   Token           `json:"base_token"`
	QuoteToken  Token           `json:"quote_token"`
	PriceUSD    decimal.Decimal `json:"price_usd"`
	Volume24h   decimal.Decimal `json:"volume_24h"`
	Change24h   decimal.Decimal `json:"price_change_24h"`
	Liquidity   decimal.Decimal `json:"liquidity_usd"`

	// Ticker is the symbol the chart was resolved from, e.g. "BTCUSDT".
	Ticker string `json:"ticker,omitempty"`
	// Placeholder marks a chart built for a ticker DexScreener had no pair for.
	Placeholder bool `json:"placeholder,omitempty"`
}

// Key identifies the chart across lists: the pair address, or the base
// symbol when no address is known.
func (c Chart) Key() string {
	if c.PairAddress != "" {
		return c.PairAddress
	}
	return "symbol:" + strings.ToUpper(c.BaseToken.Symbol)
}

// HasKey reports whether Key can tell the chart apart from others.
func (c Chart) HasKey() bool {
	return c.PairAddress != "" || strings.TrimSpace(c.BaseToken.Symbol) != ""
}

// Symbol returns the display pair, e.g. "PEPE/WETH".
func (c Chart) Symbol() string {
	if c.QuoteToken.Symbol == "" {
		return c.BaseToken.Symbol
	}
	return c.BaseToken.Symbol + "/" + c.QuoteToken.Symbol
}

// TickerSymbol returns the concatenated pair symbol, e.g. "PEPEWETH".
func (c Chart) TickerSymbol() string {
	if c.Ticker != "" {
		return c.Ticker
	}
	return strings.ToUpper(c.BaseToken.Symbol + c.QuoteToken.Symbol)
}

// Ref returns the compact form stored alongside a verdict.
func (c Chart) Ref() ChartRef {
	return ChartRef{
		Symbol:      c.Symbol(),
		Name:        c.BaseToken.Name,
		PairAddress: c.PairAddress,
		ChainID:     c.ChainID,
		Price:       c.PriceUSD.String(),
		Change24h:   c.Change24h.String(),
	}
}
