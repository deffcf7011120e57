package cli

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/raphaelgruber/chartbracket/internal/models"
)

// Theme holds the color scheme for terminal output.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
	Accent  lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
	Accent:  lipgloss.Color("#FFD75F"), // gold
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) greenStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) redStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

func (t Theme) titleStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Accent).Bold(true)
}

// cardStyle frames one side of a matchup.
func (t Theme) cardStyle(highlight bool) lipgloss.Style {
	border := t.Hint
	if highlight {
		border = t.Accent
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Padding(0, 2).
		Width(30)
}

// change renders a 24h change colored by sign.
func (t Theme) change(d decimal.Decimal) string {
	s := d.StringFixed(2) + "%"
	switch d.Sign() {
	case 1:
		return t.greenStyle().Render("+" + s)
	case -1:
		return t.redStyle().Render(s)
	default:
		return s
	}
}

// verdict renders a verdict in its color.
func (t Theme) verdict(v models.Verdict) string {
	if v.Positive() {
		return t.greenStyle().Render(string(v))
	}
	return t.redStyle().Render(string(v))
}

// chartLine is a one-line chart summary.
func (t Theme) chartLine(ch models.Chart) string {
	if ch.Placeholder {
		return fmt.Sprintf("%-14s %s", ch.TickerSymbol(), t.hintStyle().Render("no pair found"))
	}
	return fmt.Sprintf("%-14s $%-14s %s  vol $%s",
		ch.Symbol(), ch.PriceUSD.String(), t.change(ch.Change24h), ch.Volume24h.Round(0).String())
}
