package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// Verdict is the binary rating a user gives a chart.
type Verdict string

const (
	VerdictGreen Verdict = "green"
	VerdictRed   Verdict = "red"
)

// ErrUnknownVerdict is returned by ParseVerdict for anything but green or red.
var ErrUnknownVerdict = errors.New("unknown verdict")

// ParseVerdict accepts "green"/"red" in any case.
func ParseVerdict(s string) (Verdict, error) {
	switch v := Verdict(strings.ToLower(strings.TrimSpace(s))); v {
	case VerdictGreen, VerdictRed:
		return v, nil
	default:
		return "", fmt.Errorf("%w %q (expected green or red)", ErrUnknownVerdict, s)
	}
}

// Positive reports whether the chart goes on to the tournament.
func (v Verdict) Positive() bool {
	return v == VerdictGreen
}

// ChartRef is the subset of a chart persisted with each choice.
type ChartRef struct {
	Symbol      string `json:"symbol"`
	Name        string `json:"name"`
	PairAddress string `json:"pair_address,omitempty"`
	ChainID     string `json:"chain_id,omitempty"`
	Price       string `json:"price"`
	Change24h   string `json:"change24h"`
}

// Choice is one recorded verdict.
type Choice struct {
	ID         *surrealmodels.RecordID `json:"id,omitempty"`
	SessionID  string                  `json:"session_id"`
	ChartIndex int                     `json:"chart_index"`
	Chart      ChartRef                `json:"chart_data"`
	Verdict    Verdict                 `json:"choice"`
	Timestamp  time.Time               `json:"timestamp"`
}

// SessionResult summarizes every verdict of a session.
type SessionResult struct {
	SessionID   string   `json:"session_id"`
	TotalCharts int      `json:"total_charts"`
	GreenCount  int      `json:"green_count"`
	RedCount    int      `json:"red_count"`
	Choices     []Choice `json:"choices"`
}

// Summarize counts verdicts. Choices are kept in the given order.
func Summarize(sessionID string, choices []Choice) SessionResult {
	res := SessionResult{
		SessionID:   sessionID,
		TotalCharts: len(choices),
		Choices:     choices,
	}
	if res.Choices == nil {
		res.Choices = []Choice{}
	}
	for _, c := range choices {
		if c.Verdict.Positive() {
			res.GreenCount++
		} else {
			res.RedCount++
		}
	}
	return res
}
