// Package service holds chart-rating sessions: verdict collection, the
// tournament that follows it, and the stores and sources both depend on.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/raphaelgruber/chartbracket/internal/collector"
	"github.com/raphaelgruber/chartbracket/internal/metrics"
	"github.com/raphaelgruber/chartbracket/internal/models"
)

var (
	// ErrSessionNotFound means no session with the id is held in memory.
	ErrSessionNotFound = errors.New("session not found")
	// ErrNoCharts means a session would have nothing to rate.
	ErrNoCharts = errors.New("no charts to rate")
	// ErrNoTournament means the tournament has not been started.
	ErrNoTournament = errors.New("tournament not started")
	// ErrInvalidSessionID means a caller-supplied session id is not a UUID.
	ErrInvalidSessionID = errors.New("invalid session id")
	// ErrSessionExists means a caller-supplied session id is already in use.
	ErrSessionExists = errors.New("session already exists")
	// ErrNoSource means the operation needs a chart source and none is configured.
	ErrNoSource = errors.New("no chart source configured")
	// ErrInvalidChart means a chart has neither a pair address nor a base symbol.
	ErrInvalidChart = errors.New("chart has no pair address or base symbol")
)

// Store persists verdicts and rankings. *db.Client implements it.
type Store interface {
	CreateChoice(ctx context.Context, choice models.Choice) (*models.Choice, error)
	SessionResults(ctx context.Context, sessionID string) (*models.SessionResult, error)
	SaveRanking(ctx context.Context, rec models.RankingRecord) error
	GetRanking(ctx context.Context, sessionID string) (*models.RankingRecord, error)
	DeleteSession(ctx context.Context, sessionID string) (int, error)
}

// ChartSource supplies chart metadata. *dexscreener.Client implements it.
type ChartSource interface {
	Trending(ctx context.Context) ([]models.Chart, error)
	BestPair(ctx context.Context, ticker string) models.Chart
}

// MetadataStore caches trending chart lists. *cache.MetadataCache implements it.
type MetadataStore interface {
	Store(ctx context.Context, id string, charts []models.Chart) error
	Load(ctx context.Context, id string) ([]models.Chart, error)
}

// Options configures a Manager. Every dependency is optional; without a
// Store sessions live in memory only.
type Options struct {
	Store    Store
	Charts   ChartSource
	Metadata MetadataStore
	Metrics  *metrics.Registry
	Stats    *metrics.Collector
	Logger   *slog.Logger

	// PersistTimeout bounds each background write (default 10s).
	PersistTimeout time.Duration
}

// Manager tracks sessions in memory and mirrors verdicts to the store.
type Manager struct {
	sessions map[string]*Session
	mu       sync.RWMutex

	store    Store
	charts   ChartSource
	metadata MetadataStore
	prom     *metrics.Registry
	stats    *metrics.Collector
	logger   *slog.Logger

	persistTimeout time.Duration
	inflight       sync.WaitGroup
}

// NewManager creates a manager.
func NewManager(opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = 10 * time.Second
	}
	return &Manager{
		sessions:       make(map[string]*Session),
		store:          opts.Store,
		charts:         opts.Charts,
		metadata:       opts.Metadata,
		prom:           opts.Metrics,
		stats:          opts.Stats,
		logger:         opts.Logger,
		persistTimeout: opts.PersistTimeout,
	}
}

// NewSessionID returns a fresh session id.
func NewSessionID() string {
	return uuid.New().String()
}

// NewSession starts rating charts in order. With nil charts the trending
// list is fetched from the chart source.
func (m *Manager) NewSession(ctx context.Context, charts []models.Chart) (SessionView, error) {
	return m.NewSessionWithID(ctx, "", charts)
}

// NewSessionWithID is NewSession for a pre-generated id. An empty id gets a
// fresh one; an id already in use is rejected.
func (m *Manager) NewSessionWithID(ctx context.Context, id string, charts []models.Chart) (SessionView, error) {
	if charts == nil {
		trending, err := m.Trending(ctx)
		if err != nil {
			return SessionView{}, err
		}
		charts = trending
	}
	if len(charts) == 0 {
		return SessionView{}, ErrNoCharts
	}
	for i, c := range charts {
		if !c.HasKey() {
			return SessionView{}, fmt.Errorf("%w: index %d", ErrInvalidChart, i)
		}
	}

	id = strings.TrimSpace(id)
	if id == "" {
		id = NewSessionID()
	}
	if _, err := uuid.Parse(id); err != nil {
		return SessionView{}, fmt.Errorf("%w %q: %v", ErrInvalidSessionID, id, err)
	}

	logger := m.logger.With("session_id", id)
	sess := &Session{
		ID:          id,
		CreatedAt:   time.Now(),
		status:      StatusRating,
		collector:   collector.New(id, charts, logger),
		subscribers: make(map[int]chan TournamentView),
		logger:      logger,
	}

	m.mu.Lock()
	if _, exists := m.sessions[id]; exists {
		m.mu.Unlock()
		return SessionView{}, fmt.Errorf("%w: %s", ErrSessionExists, id)
	}
	m.sessions[id] = sess
	active := len(m.sessions)
	m.mu.Unlock()

	m.observe(func(r *metrics.Registry) {
		r.SessionsCreated.Inc()
		r.SessionsActive.Set(float64(active))
	})
	logger.Info("session created", "charts", len(charts))
	return sess.view(), nil
}

// Session returns the session view.
func (m *Manager) Session(id string) (SessionView, error) {
	sess, err := m.get(id)
	if err != nil {
		return SessionView{}, err
	}
	return sess.view(), nil
}

// ListSessions returns all sessions, most recent first.
func (m *Manager) ListSessions() []SessionView {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	slices.SortFunc(sessions, func(a, b *Session) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	views := make([]SessionView, len(sessions))
	for i, s := range sessions {
		views[i] = s.view()
	}
	return views
}

// RecordChoice records the verdict for the chart at index. The write to the
// store happens in the background; a failed write is logged and does not
// affect the in-memory session.
func (m *Manager) RecordChoice(ctx context.Context, id string, index int, v models.Verdict) (collector.Progress, error) {
	sess, err := m.get(id)
	if err != nil {
		return collector.Progress{}, err
	}

	choice, progress, err := sess.collector.Record(index, v)
	if err != nil {
		return progress, err
	}
	m.observe(func(r *metrics.Registry) { r.ChoicesRecorded.WithLabelValues(string(v)).Inc() })

	if m.store != nil {
		m.persist("choice", id, func(ctx context.Context) error {
			_, err := m.store.CreateChoice(ctx, choice)
			return err
		})
	}
	return progress, nil
}

// Finish ends rating early.
func (m *Manager) Finish(id string) (collector.Progress, error) {
	sess, err := m.get(id)
	if err != nil {
		return collector.Progress{}, err
	}
	return sess.collector.Finish(), nil
}

// Summary returns the in-memory verdict summary.
func (m *Manager) Summary(id string) (models.SessionResult, error) {
	sess, err := m.get(id)
	if err != nil {
		return models.SessionResult{}, err
	}
	return sess.collector.Summary(), nil
}

// Results is the verdict summary plus the podium once the tournament is over.
type Results struct {
	models.SessionResult
	Podium []models.ChartRef `json:"podium,omitempty"`
}

// Results returns the stored verdict summary for a session. When the store
// is missing, fails, or has nothing yet, the in-memory summary is used.
func (m *Manager) Results(ctx context.Context, id string) (Results, error) {
	sess, _ := m.get(id)

	var res Results
	stored := false
	if m.store != nil {
		r, err := m.store.SessionResults(ctx, id)
		switch {
		case err == nil:
			res.SessionResult = *r
			stored = true
		case sess != nil:
			m.logger.Warn("stored results unavailable, using in-memory summary", "session_id", id, "error", err)
		default:
			return Results{}, fmt.Errorf("%w: %s (%v)", ErrSessionNotFound, id, err)
		}
	}
	if !stored {
		if sess == nil {
			return Results{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		res.SessionResult = sess.collector.Summary()
	}

	if sess != nil {
		res.Podium = sess.podium()
	}
	if res.Podium == nil && m.store != nil {
		rec, err := m.store.GetRanking(ctx, id)
		if err != nil {
			m.logger.Warn("failed to load ranking", "session_id", id, "error", err)
		} else if rec != nil {
			res.Podium = rec.Places
		}
	}
	return res, nil
}

// Delete drops the session from memory, closes its subscribers and removes
// its stored verdicts.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	delete(m.sessions, id)
	active := len(m.sessions)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	sess.closeSubscribers()
	m.observe(func(r *metrics.Registry) { r.SessionsActive.Set(float64(active)) })

	if m.store != nil {
		n, err := m.store.DeleteSession(ctx, id)
		if err != nil {
			return fmt.Errorf("delete stored session: %w", err)
		}
		sess.logger.Info("session deleted", "stored_choices", n)
	}
	return nil
}

// Close waits for in-flight writes, or until ctx is done.
func (m *Manager) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for pending writes: %w", ctx.Err())
	}
}

func (m *Manager) get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, nil
}

// persist runs fn in a tracked goroutine detached from the request context.
func (m *Manager) persist(what, sessionID string, fn func(ctx context.Context) error) {
	m.inflight.Add(1)
	go func() {
		defer m.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error("persist goroutine panicked", "session_id", sessionID, "what", what, "panic", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), m.persistTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			m.logger.Warn("failed to persist "+what, "session_id", sessionID, "error", err)
			m.observe(func(r *metrics.Registry) { r.PersistFailures.Inc() })
		}
	}()
}

func (m *Manager) observe(fn func(r *metrics.Registry)) {
	if m.prom != nil {
		fn(m.prom)
	}
}
