// Package client provides an HTTP client for the chartbracket server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/raphaelgruber/chartbracket/internal/bracket"
	"github.com/raphaelgruber/chartbracket/internal/collector"
	"github.com/raphaelgruber/chartbracket/internal/models"
	"github.com/raphaelgruber/chartbracket/internal/service"
)

// Client talks to the chartbracket REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new client.
// If baseURL is empty, uses CHARTBRACKET_SERVER_URL env var or defaults to localhost:8001.
// Timeout can be configured via CHARTBRACKET_CLIENT_TIMEOUT env var (default 60s; trending
// lookups fan out to many upstream searches).
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("CHARTBRACKET_SERVER_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8001"
	}

	timeout := 60 * time.Second
	if t := os.Getenv("CHARTBRACKET_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int                   `json:"-"`
	Message string                `json:"error"`
	Code    string                `json:"code"`
	Summary *models.SessionResult `json:"summary,omitempty"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("server error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("server error %d: %s", e.Status, e.Message)
}

// HasCode reports whether err is an APIError with the given code.
func HasCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// Chart is a chart with its embed URL.
type Chart struct {
	models.Chart
	EmbedURL string `json:"embed_url"`
}

// Session mirrors the server's session view.
type Session struct {
	ID        string             `json:"session_id"`
	Status    string             `json:"status"`
	CreatedAt time.Time          `json:"created_at"`
	Progress  collector.Progress `json:"progress"`
	Charts    []Chart            `json:"charts"`
}

// Entry is a bracket entry whose payload is a chart.
type Entry struct {
	ID     string       `json:"id"`
	Chart  models.Chart `json:"payload"`
	Losses int          `json:"losses"`
}

// Matchup is the pair awaiting a result.
type Matchup struct {
	Round int   `json:"round"`
	Left  Entry `json:"left"`
	Right Entry `json:"right"`
}

// LastResult is the result that produced an event.
type LastResult struct {
	Round  int           `json:"round"`
	Played bracket.Phase `json:"played"`
	Next   bracket.Phase `json:"next"`
	Winner Entry         `json:"winner"`
	Loser  Entry         `json:"loser"`
}

// Tournament mirrors the server's tournament view.
type Tournament struct {
	SessionID  string         `json:"session_id"`
	Phase      bracket.Phase  `json:"phase"`
	Round      int            `json:"round"`
	Winners    []Entry        `json:"winners_bracket"`
	Losers     []Entry        `json:"losers_bracket"`
	Eliminated []Entry        `json:"eliminated_entries"`
	Matchup    *Matchup       `json:"matchup,omitempty"`
	Podium     []models.Chart `json:"podium,omitempty"`
	Last       *LastResult    `json:"last_result,omitempty"`
}

// Done reports whether the tournament has a final ranking.
func (t Tournament) Done() bool {
	return t.Phase == bracket.PhaseDone
}

// do sends a JSON request and decodes a JSON response into out when non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(data, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// GenerateSession asks the server for a fresh session id.
func (c *Client) GenerateSession(ctx context.Context) (string, error) {
	var out struct {
		SessionID string `json:"session_id"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/generate-session", nil, &out); err != nil {
		return "", err
	}
	return out.SessionID, nil
}

// TrendingCharts returns the current trending charts.
func (c *Client) TrendingCharts(ctx context.Context) ([]Chart, error) {
	var out struct {
		Charts []Chart `json:"charts"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/trending-charts", nil, &out); err != nil {
		return nil, err
	}
	return out.Charts, nil
}

// TrendingTickers returns trending tickers and the metadata id their charts
// are cached under.
func (c *Client) TrendingTickers(ctx context.Context) ([]string, string, error) {
	var out struct {
		Tickers    []string `json:"tickers"`
		MetadataID string   `json:"metadata_id"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/trending-tickers", nil, &out); err != nil {
		return nil, "", err
	}
	return out.Tickers, out.MetadataID, nil
}

// TopTickers returns up to limit market-cap tickers.
func (c *Client) TopTickers(ctx context.Context, limit int) ([]string, error) {
	var out struct {
		Tickers []string `json:"tickers"`
	}
	path := "/api/top-tickers"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Tickers, nil
}

// CreateSessionInput selects what a new session rates. With neither Charts
// nor Tickers the server uses the trending list.
type CreateSessionInput struct {
	SessionID  string         `json:"session_id,omitempty"`
	Charts     []models.Chart `json:"charts,omitempty"`
	Tickers    []string       `json:"tickers,omitempty"`
	MetadataID string         `json:"metadata_id,omitempty"`
}

// CreateSession starts a new rating session.
func (c *Client) CreateSession(ctx context.Context, in CreateSessionInput) (*Session, error) {
	var out Session
	if err := c.do(ctx, http.MethodPost, "/api/sessions", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Session fetches a session.
func (c *Client) Session(ctx context.Context, id string) (*Session, error) {
	var out Session
	if err := c.do(ctx, http.MethodGet, "/api/sessions/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteSession removes a session and its stored verdicts.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/sessions/"+url.PathEscape(id), nil, nil)
}

// RecordChoice records the verdict for the chart at index.
func (c *Client) RecordChoice(ctx context.Context, sessionID string, index int, v models.Verdict) (collector.Progress, error) {
	var out struct {
		Progress collector.Progress `json:"progress"`
	}
	body := map[string]any{"session_id": sessionID, "chart_index": index, "choice": v}
	if err := c.do(ctx, http.MethodPost, "/api/record-choice", body, &out); err != nil {
		return collector.Progress{}, err
	}
	return out.Progress, nil
}

// Finish ends rating early.
func (c *Client) Finish(ctx context.Context, sessionID string) (collector.Progress, error) {
	var out struct {
		Progress collector.Progress `json:"progress"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/sessions/"+url.PathEscape(sessionID)+"/finish", nil, &out); err != nil {
		return collector.Progress{}, err
	}
	return out.Progress, nil
}

// Results returns the verdict summary and, once played, the podium.
func (c *Client) Results(ctx context.Context, sessionID string) (*service.Results, error) {
	var out service.Results
	if err := c.do(ctx, http.MethodGet, "/api/session-results/"+url.PathEscape(sessionID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StartTournament seeds the bracket. With fewer than two green charts the
// returned *APIError has code "insufficient_seed" and carries the summary.
func (c *Client) StartTournament(ctx context.Context, sessionID string) (*Tournament, error) {
	var out Tournament
	if err := c.do(ctx, http.MethodPost, "/api/sessions/"+url.PathEscape(sessionID)+"/tournament", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Tournament fetches the bracket state.
func (c *Client) Tournament(ctx context.Context, sessionID string) (*Tournament, error) {
	var out Tournament
	if err := c.do(ctx, http.MethodGet, "/api/sessions/"+url.PathEscape(sessionID)+"/tournament", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ReportResult reports winnerID for the matchup shown at round.
func (c *Client) ReportResult(ctx context.Context, sessionID string, round int, winnerID string) (*Tournament, error) {
	var out Tournament
	body := map[string]any{"round": round, "winner_id": winnerID}
	if err := c.do(ctx, http.MethodPost, "/api/sessions/"+url.PathEscape(sessionID)+"/tournament/result", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Events streams tournament views until ctx is cancelled, the server closes
// the stream, or onEvent returns an error.
func (c *Client) Events(ctx context.Context, sessionID string, onEvent func(Tournament) error) error {
	wsEndpoint := c.baseURL
	wsEndpoint = strings.Replace(wsEndpoint, "http://", "ws://", 1)
	wsEndpoint = strings.Replace(wsEndpoint, "https://", "wss://", 1)

	u, err := url.Parse(wsEndpoint + "/api/sessions/" + url.PathEscape(sessionID) + "/events")
	if err != nil {
		return fmt.Errorf("parse endpoint: %w", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
			return &APIError{Status: resp.StatusCode, Message: "websocket handshake failed"}
		}
		return fmt.Errorf("websocket connect: %w", err)
	}

	var mu sync.Mutex
	closed := false
	closeConn := func() {
		mu.Lock()
		defer mu.Unlock()
		if !closed {
			closed = true
			conn.Close()
		}
	}
	defer closeConn()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			closeConn()
		case <-done:
		}
	}()

	for {
		var ev Tournament
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read event: %w", err)
		}
		if err := onEvent(ev); err != nil {
			return err
		}
	}
}
