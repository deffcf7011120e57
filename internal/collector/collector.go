// Package collector records a user's green/red verdicts over an ordered list
// of charts and turns the green ones into tournament seeds.
package collector

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/raphaelgruber/chartbracket/internal/bracket"
	"github.com/raphaelgruber/chartbracket/internal/models"
)

var (
	// ErrOutOfOrder means a verdict skipped ahead of the next unrated chart.
	ErrOutOfOrder = errors.New("verdict out of order")
	// ErrAlreadyRecorded means the chart already has a verdict.
	ErrAlreadyRecorded = errors.New("verdict already recorded")
	// ErrIndexOutOfRange means the index does not name a chart in the list.
	ErrIndexOutOfRange = errors.New("chart index out of range")
	// ErrFinished means rating is over; no more verdicts are accepted.
	ErrFinished = errors.New("rating already finished")
	// ErrNotFinished means seeds were requested while charts are still unrated.
	ErrNotFinished = errors.New("rating not finished")
)

// Progress reports how far rating has got.
type Progress struct {
	Recorded int  `json:"recorded"`
	Total    int  `json:"total"`
	Green    int  `json:"green"`
	Red      int  `json:"red"`
	Done     bool `json:"done"`
}

// Collector accumulates verdicts for one session.
// All methods are thread-safe.
type Collector struct {
	mu        sync.RWMutex
	sessionID string
	charts    []models.Chart
	choices   []models.Choice
	finished  bool
	logger    *slog.Logger
}

// New creates a collector over charts, which are rated in order.
func New(sessionID string, charts []models.Chart, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		sessionID: sessionID,
		charts:    append([]models.Chart(nil), charts...),
		choices:   make([]models.Choice, 0, len(charts)),
		finished:  len(charts) == 0,
		logger:    logger,
	}
}

// Record stores the verdict for the chart at index. Verdicts must arrive in
// order; the returned Choice is what callers persist.
func (c *Collector) Record(index int, v models.Verdict) (models.Choice, Progress, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.finished {
		return models.Choice{}, c.progressLocked(), ErrFinished
	}
	if index < 0 || index >= len(c.charts) {
		return models.Choice{}, c.progressLocked(), fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, index, len(c.charts))
	}
	switch next := len(c.choices); {
	case index < next:
		return models.Choice{}, c.progressLocked(), fmt.Errorf("%w: chart %d", ErrAlreadyRecorded, index)
	case index > next:
		return models.Choice{}, c.progressLocked(), fmt.Errorf("%w: got %d, next is %d", ErrOutOfOrder, index, next)
	}

	choice := models.Choice{
		SessionID:  c.sessionID,
		ChartIndex: index,
		Chart:      c.charts[index].Ref(),
		Verdict:    v,
		Timestamp:  time.Now().UTC(),
	}
	c.choices = append(c.choices, choice)
	if len(c.choices) == len(c.charts) {
		c.finished = true
	}
	return choice, c.progressLocked(), nil
}

// Finish ends rating early. Unrated charts are left out of the tournament.
func (c *Collector) Finish() Progress {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.finished {
		c.logger.Debug("rating finished early", "session_id", c.sessionID, "recorded", len(c.choices), "total", len(c.charts))
	}
	c.finished = true
	return c.progressLocked()
}

// Progress returns the current counts.
func (c *Collector) Progress() Progress {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.progressLocked()
}

func (c *Collector) progressLocked() Progress {
	p := Progress{
		Recorded: len(c.choices),
		Total:    len(c.charts),
		Done:     c.finished,
	}
	for _, ch := range c.choices {
		if ch.Verdict.Positive() {
			p.Green++
		} else {
			p.Red++
		}
	}
	return p
}

// Charts returns the rated list.
func (c *Collector) Charts() []models.Chart {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]models.Chart(nil), c.charts...)
}

// Summary returns the verdicts recorded so far.
func (c *Collector) Summary() models.SessionResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return models.Summarize(c.sessionID, append([]models.Choice(nil), c.choices...))
}

// Seeds returns the green charts as bracket entries, in rating order, with
// repeated charts dropped. Fewer than two unique greens yields
// bracket.ErrInsufficientSeed.
func (c *Collector) Seeds() ([]bracket.Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.finished {
		return nil, fmt.Errorf("%w: %d of %d rated", ErrNotFinished, len(c.choices), len(c.charts))
	}

	seen := make(map[string]bool)
	var seeds []bracket.Entry
	for _, ch := range c.choices {
		if !ch.Verdict.Positive() {
			continue
		}
		chart := c.charts[ch.ChartIndex]
		key := chart.Key()
		if seen[key] {
			c.logger.Debug("duplicate green chart skipped", "session_id", c.sessionID, "key", key)
			continue
		}
		seen[key] = true
		seeds = append(seeds, bracket.Entry{ID: key, Payload: chart})
	}

	if len(seeds) < 2 {
		return nil, fmt.Errorf("%w: %d green charts", bracket.ErrInsufficientSeed, len(seeds))
	}
	return seeds, nil
}
