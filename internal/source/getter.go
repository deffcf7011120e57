// Package source is the shared HTTP plumbing for the public market-data APIs:
// every request waits on a token-bucket limiter and then runs through a
// circuit breaker.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	cb "github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/raphaelgruber/chartbracket/internal/metrics"
)

// ErrUnavailable means the breaker is open and the request was not sent.
var ErrUnavailable = errors.New("source temporarily unavailable")

// ErrCanceled means the caller's context ended while the request was in
// flight. It says nothing about upstream health and never trips the breaker.
var ErrCanceled = errors.New("request canceled by caller")

// StatusError is a non-2xx response.
type StatusError struct {
	Source string
	Code   int
	URL    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s returned %d", e.Source, e.URL, e.Code)
}

// Options configures a Getter. Zero values get sensible defaults.
type Options struct {
	RPS      float64
	Burst    int
	Timeout  time.Duration
	Client   *http.Client
	Metrics  *metrics.Collector
	Requests *prometheus.CounterVec // labels: source, outcome
	Logger   *slog.Logger

	// ConsecutiveFailures trips the breaker. Default 3.
	ConsecutiveFailures uint32
	// OpenFor is how long the breaker stays open. Default 30s.
	OpenFor time.Duration
}

// Getter fetches JSON documents from one upstream.
type Getter struct {
	name     string
	op       string
	http     *http.Client
	limiter  *rate.Limiter
	breaker  *cb.CircuitBreaker
	metrics  *metrics.Collector
	requests *prometheus.CounterVec
	logger   *slog.Logger
}

// NewGetter builds a Getter named name; op is the metrics operation it records under.
func NewGetter(name, op string, opts Options) *Getter {
	if opts.RPS <= 0 {
		opts.RPS = 4
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ConsecutiveFailures == 0 {
		opts.ConsecutiveFailures = 3
	}
	if opts.OpenFor <= 0 {
		opts.OpenFor = 30 * time.Second
	}

	logger := opts.Logger.With("source", name)
	st := cb.Settings{Name: name}
	st.Interval = 60 * time.Second
	st.Timeout = opts.OpenFor
	st.ReadyToTrip = func(counts cb.Counts) bool {
		return counts.ConsecutiveFailures >= opts.ConsecutiveFailures
	}
	st.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, ErrCanceled)
	}
	st.OnStateChange = func(name string, from, to cb.State) {
		logger.Warn("circuit breaker state changed", "from", from.String(), "to", to.String())
	}

	return &Getter{
		name:     name,
		op:       op,
		http:     opts.Client,
		limiter:  rate.NewLimiter(rate.Limit(opts.RPS), opts.Burst),
		breaker:  cb.NewCircuitBreaker(st),
		metrics:  opts.Metrics,
		requests: opts.Requests,
		logger:   logger,
	}
}

// Name returns the upstream name.
func (g *Getter) Name() string {
	return g.name
}

// GetJSON fetches url and decodes the body into out.
func (g *Getter) GetJSON(ctx context.Context, url string, out any) error {
	if err := g.limiter.Wait(ctx); err != nil {
		g.count("throttled")
		return fmt.Errorf("%s: rate limit wait: %w", g.name, err)
	}

	start := time.Now()
	body, err := g.breaker.Execute(func() (interface{}, error) {
		return g.fetch(ctx, url)
	})
	g.metrics.RecordOutcome(g.op, time.Since(start), err)

	if errors.Is(err, cb.ErrOpenState) || errors.Is(err, cb.ErrTooManyRequests) {
		g.count("rejected")
		return fmt.Errorf("%s: %w", g.name, ErrUnavailable)
	}
	if errors.Is(err, ErrCanceled) {
		g.count("canceled")
		return err
	}
	if err != nil {
		g.count("error")
		return err
	}
	g.count("ok")

	if err := json.Unmarshal(body.([]byte), out); err != nil {
		return fmt.Errorf("%s: decode %s: %w", g.name, url, err)
	}
	return nil
}

func (g *Getter) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", g.name, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s: %w: %w", g.name, ErrCanceled, ctxErr)
		}
		return nil, fmt.Errorf("%s: request: %w", g.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{Source: g.name, Code: resp.StatusCode, URL: url}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s: %w: %w", g.name, ErrCanceled, ctxErr)
		}
		return nil, fmt.Errorf("%s: read body: %w", g.name, err)
	}
	g.logger.Debug("fetched", "url", url, "bytes", len(body))
	return body, nil
}

func (g *Getter) count(outcome string) {
	if g.requests == nil {
		return
	}
	g.requests.WithLabelValues(g.name, outcome).Inc()
}
