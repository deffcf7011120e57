package models

import (
	"testing"

	"github.com/shopspring/decimal"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

func TestChartKey(t *testing.T) {
	tests := []struct {
		name  string
		chart Chart
		want  string
		keyed bool
	}{
		{"pair address", Chart{PairAddress: "0xabc", BaseToken: Token{Symbol: "PEPE"}}, "0xabc", true},
		{"symbol fallback", Chart{BaseToken: Token{Symbol: "pepe"}}, "symbol:PEPE", true},
		{"empty", Chart{ChainID: "solana", DexID: "raydium"}, "symbol:", false},
		{"blank symbol", Chart{BaseToken: Token{Symbol: " "}}, "symbol: ", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.chart.Key(); got != tt.want {
				t.Errorf("Key() = %q, want %q", got, tt.want)
			}
			if got := tt.chart.HasKey(); got != tt.keyed {
				t.Errorf("HasKey() = %v, want %v", got, tt.keyed)
			}
		})
	}
}

func TestChartSymbols(t *testing.T) {
	c := Chart{
		BaseToken:  Token{Symbol: "Pepe", Name: "Pepe Coin"},
		QuoteToken: Token{Symbol: "weth"},
		PriceUSD:   decimal.RequireFromString("0.0000123"),
		Change24h:  decimal.RequireFromString("-4.5"),
	}

	if got := c.Symbol(); got != "Pepe/weth" {
		t.Errorf("Symbol() = %q", got)
	}
	if got := c.TickerSymbol(); got != "PEPEWETH" {
		t.Errorf("TickerSymbol() = %q", got)
	}

	c.Ticker = "PEPEUSDT"
	if got := c.TickerSymbol(); got != "PEPEUSDT" {
		t.Errorf("TickerSymbol() with ticker = %q", got)
	}

	ref := c.Ref()
	if ref.Price != "0.0000123" || ref.Change24h != "-4.5" || ref.Name != "Pepe Coin" {
		t.Errorf("Ref() = %+v", ref)
	}
}

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		in      string
		want    Verdict
		wantErr bool
	}{
		{"green", VerdictGreen, false},
		{"RED", VerdictRed, false},
		{" Green ", VerdictGreen, false},
		{"blue", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseVerdict(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseVerdict(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseVerdict(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSummarize(t *testing.T) {
	choices := []Choice{
		{ChartIndex: 0, Verdict: VerdictGreen},
		{ChartIndex: 1, Verdict: VerdictRed},
		{ChartIndex: 2, Verdict: VerdictGreen},
	}

	got := Summarize("s1", choices)
	if got.TotalCharts != 3 || got.GreenCount != 2 || got.RedCount != 1 {
		t.Errorf("Summarize() = %+v", got)
	}

	empty := Summarize("s2", nil)
	if empty.Choices == nil {
		t.Error("Summarize(nil) should return an empty, non-nil slice")
	}
}

func TestChoiceKey_RoundTrip(t *testing.T) {
	sessionID := "3f2b6c1e-8a4d_4c1f"
	key := ChoiceKey(sessionID, 12)
	if key != "3f2b6c1e-8a4d_4c1f_12" {
		t.Fatalf("ChoiceKey() = %q", key)
	}

	gotSession, gotIndex, err := ParseChoiceKey(surrealmodels.RecordID{Table: ChoiceTable, ID: key})
	if err != nil || gotSession != sessionID || gotIndex != 12 {
		t.Errorf("ParseChoiceKey() = %q, %d, %v", gotSession, gotIndex, err)
	}
}

func TestParseChoiceKey_Invalid(t *testing.T) {
	tests := []struct {
		name string
		id   surrealmodels.RecordID
	}{
		{"wrong table", surrealmodels.RecordID{Table: "ranking", ID: "abc_0"}},
		{"int id", surrealmodels.RecordID{Table: ChoiceTable, ID: 42}},
		{"no index", surrealmodels.RecordID{Table: ChoiceTable, ID: "abc"}},
		{"empty session", surrealmodels.RecordID{Table: ChoiceTable, ID: "_3"}},
		{"negative index", surrealmodels.RecordID{Table: ChoiceTable, ID: "abc_-1"}},
		{"not a number", surrealmodels.RecordID{Table: ChoiceTable, ID: "abc_x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := ParseChoiceKey(tt.id); err == nil {
				t.Errorf("ParseChoiceKey(%v) should fail", tt.id)
			}
		})
	}
}
