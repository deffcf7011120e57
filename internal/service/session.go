package service

import (
	"log/slog"
	"sync"
	"time"

	"github.com/raphaelgruber/chartbracket/internal/bracket"
	"github.com/raphaelgruber/chartbracket/internal/collector"
	"github.com/raphaelgruber/chartbracket/internal/models"
)

// SessionStatus is the stage a session is in.
type SessionStatus string

const (
	StatusRating     SessionStatus = "rating"
	StatusTournament SessionStatus = "tournament"
	// StatusSummary means rating ended with fewer than two green charts, so
	// the verdict summary is the final result.
	StatusSummary SessionStatus = "summary"
	StatusDone    SessionStatus = "done"
)

// subscriberBuffer is the number of views a slow subscriber may lag behind
// before views are dropped for it.
const subscriberBuffer = 8

// Session is one user's pass over a chart list.
type Session struct {
	ID        string
	CreatedAt time.Time

	collector *collector.Collector
	logger    *slog.Logger

	mu          sync.RWMutex
	status      SessionStatus
	engine      *bracket.Engine
	subscribers map[int]chan TournamentView
	nextSub     int
	closed      bool
}

// SessionView is the externally visible state of a session.
type SessionView struct {
	ID        string             `json:"session_id"`
	Status    SessionStatus      `json:"status"`
	CreatedAt time.Time          `json:"created_at"`
	Progress  collector.Progress `json:"progress"`
	Charts    []models.Chart     `json:"charts"`
}

// TournamentView is the bracket state plus the chart podium once done.
// Last is set on views delivered to subscribers.
type TournamentView struct {
	SessionID string `json:"session_id"`
	bracket.Snapshot
	Podium []models.Chart  `json:"podium,omitempty"`
	Last   *bracket.Result `json:"last_result,omitempty"`
}

func (s *Session) view() SessionView {
	s.mu.RLock()
	status := s.status
	s.mu.RUnlock()
	return SessionView{
		ID:        s.ID,
		Status:    status,
		CreatedAt: s.CreatedAt,
		Progress:  s.collector.Progress(),
		Charts:    s.collector.Charts(),
	}
}

func (s *Session) currentEngine() *bracket.Engine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

func (s *Session) setStatus(st SessionStatus) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

func tournamentView(sessionID string, e *bracket.Engine) TournamentView {
	v := TournamentView{SessionID: sessionID, Snapshot: e.Snapshot()}
	v.Podium = chartsOf(v.Ranking)
	return v
}

func chartsOf(entries []bracket.Entry) []models.Chart {
	var out []models.Chart
	for _, e := range entries {
		if ch, ok := e.Payload.(models.Chart); ok {
			out = append(out, ch)
		}
	}
	return out
}

// podium returns the finished ranking as chart refs, or nil.
func (s *Session) podium() []models.ChartRef {
	e := s.currentEngine()
	if e == nil {
		return nil
	}
	ranking, ok := e.FinalRanking()
	if !ok {
		return nil
	}
	var refs []models.ChartRef
	for _, ch := range chartsOf(ranking) {
		refs = append(refs, ch.Ref())
	}
	return refs
}

func (s *Session) subscribe() (<-chan TournamentView, func(), bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, nil, false
	}
	id := s.nextSub
	s.nextSub++
	ch := make(chan TournamentView, subscriberBuffer)
	s.subscribers[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.subscribers[id]; ok {
				delete(s.subscribers, id)
				close(c)
			}
		})
	}
	return ch, cancel, true
}

// publish delivers v to every subscriber without blocking.
func (s *Session) publish(v TournamentView) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, ch := range s.subscribers {
		select {
		case ch <- v:
		default:
			s.logger.Debug("subscriber lagging, view dropped", "subscriber", id, "round", v.Round)
		}
	}
}

func (s *Session) closeSubscribers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, ch := range s.subscribers {
		delete(s.subscribers, id)
		close(ch)
	}
}
