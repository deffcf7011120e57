package dexscreener

import (
	"fmt"
	"net/url"

	"github.com/raphaelgruber/chartbracket/internal/models"
)

// Intervals lists the chart intervals users can pick, in display order.
var Intervals = []string{"15m", "30m", "1h", "4h", "1d", "1w"}

var intervalCodes = map[string]string{
	"15m": "15",
	"30m": "30",
	"1h":  "60",
	"4h":  "240",
	"1d":  "D",
	"1w":  "W",
}

// embedFlags strips the embedded chart down to candles only.
const embedFlags = "embed=1&theme=dark&trades=0&info=0&hidegrid=1&hidevolume=1&hidestatus=1&hidelegend=1" +
	"&hide_top_toolbar=1&hide_side_toolbar=1&intervals_disabled=1&withdateranges=0&details=0" +
	"&hotlist=0&calendar=0&tab=chart"

// IntervalCode maps a user interval to DexScreener's code. Unknown values get "60".
func IntervalCode(interval string) string {
	if code, ok := intervalCodes[interval]; ok {
		return code
	}
	return "60"
}

// ChartURL returns the embeddable chart for c at the given interval.
// Placeholder charts fall back to a symbol search.
func ChartURL(c models.Chart, interval string) string {
	code := IntervalCode(interval)
	if c.Placeholder || c.PairAddress == "" || c.ChainID == "" {
		return fmt.Sprintf("https://dexscreener.com/?q=%s&embed=1&theme=dark&interval=%s",
			url.QueryEscape(c.BaseToken.Symbol), code)
	}
	return fmt.Sprintf("https://dexscreener.com/%s/%s?%s&interval=%s",
		url.PathEscape(c.ChainID), url.PathEscape(c.PairAddress), embedFlags, code)
}
