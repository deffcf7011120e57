package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/raphaelgruber/chartbracket/internal/bracket"
	"github.com/raphaelgruber/chartbracket/internal/metrics"
	"github.com/raphaelgruber/chartbracket/internal/models"
)

// StartTournament seeds the bracket with the session's green charts. Rating
// must be finished. With fewer than two greens the session moves to
// StatusSummary and bracket.ErrInsufficientSeed is returned. Starting an
// already started tournament returns its current view.
func (m *Manager) StartTournament(id string) (TournamentView, error) {
	sess, err := m.get(id)
	if err != nil {
		return TournamentView{}, err
	}

	sess.mu.Lock()
	if sess.engine != nil {
		e := sess.engine
		sess.mu.Unlock()
		return tournamentView(id, e), nil
	}

	seeds, err := sess.collector.Seeds()
	if err != nil {
		if errors.Is(err, bracket.ErrInsufficientSeed) {
			sess.status = StatusSummary
			sess.mu.Unlock()
			m.observe(func(r *metrics.Registry) { r.TournamentsSkipped.Inc() })
			sess.logger.Info("tournament skipped", "reason", err)
		} else {
			sess.mu.Unlock()
		}
		return TournamentView{}, err
	}

	engine, err := bracket.New(seeds, sess.logger)
	if err != nil {
		sess.mu.Unlock()
		return TournamentView{}, fmt.Errorf("seed tournament: %w", err)
	}
	engine.SetObserver(func(res bracket.Result) { m.onResult(sess, engine, res) })
	sess.engine = engine
	sess.status = StatusTournament
	sess.mu.Unlock()

	m.observe(func(r *metrics.Registry) { r.TournamentsStarted.Inc() })
	sess.logger.Info("tournament started", "entries", len(seeds))
	return tournamentView(id, engine), nil
}

// Tournament returns the current bracket state.
func (m *Manager) Tournament(id string) (TournamentView, error) {
	sess, err := m.get(id)
	if err != nil {
		return TournamentView{}, err
	}
	e := sess.currentEngine()
	if e == nil {
		return TournamentView{}, fmt.Errorf("%w: %s", ErrNoTournament, id)
	}
	return tournamentView(id, e), nil
}

// ReportResult applies winnerID to the current matchup. A positive round
// must match the matchup's round (ErrStaleMatchup otherwise); round 0
// applies to whatever matchup is current. A result whose ctx is already
// done is not applied.
func (m *Manager) ReportResult(ctx context.Context, id string, round int, winnerID string) (TournamentView, error) {
	sess, err := m.get(id)
	if err != nil {
		return TournamentView{}, err
	}
	if err := ctx.Err(); err != nil {
		sess.logger.DebugContext(ctx, "result dropped", "round", round, "winner_id", winnerID, "error", err)
		return TournamentView{}, fmt.Errorf("report result: %w", err)
	}
	e := sess.currentEngine()
	if e == nil {
		return TournamentView{}, fmt.Errorf("%w: %s", ErrNoTournament, id)
	}

	start := time.Now()
	if round > 0 {
		err = e.ReportResultAt(round, winnerID)
	} else {
		err = e.ReportResult(winnerID)
	}
	m.stats.RecordOutcome(metrics.OpResult, time.Since(start), err)
	if err != nil {
		reason := rejectReason(err)
		m.observe(func(r *metrics.Registry) { r.ResultsRejected.WithLabelValues(reason).Inc() })
		sess.logger.DebugContext(ctx, "result rejected", "round", round, "winner_id", winnerID, "reason", reason)
		return TournamentView{}, err
	}
	return tournamentView(id, e), nil
}

// Subscribe returns a channel receiving a view after every applied result.
// The channel is closed by cancel or when the session is deleted.
func (m *Manager) Subscribe(id string) (<-chan TournamentView, func(), error) {
	sess, err := m.get(id)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel, ok := sess.subscribe()
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return ch, cancel, nil
}

// onResult runs as the engine observer after each applied result.
func (m *Manager) onResult(sess *Session, e *bracket.Engine, res bracket.Result) {
	m.observe(func(r *metrics.Registry) { r.Results.WithLabelValues(string(res.Played)).Inc() })

	v := tournamentView(sess.ID, e)
	v.Last = &res

	if res.Next == bracket.PhaseDone {
		sess.setStatus(StatusDone)
		m.observe(func(r *metrics.Registry) { r.TournamentsDone.Inc() })
		sess.logger.Info("tournament finished", "rounds", res.Round, "winner_id", res.Winner.ID)

		if m.store != nil {
			rec := models.RankingRecord{
				SessionID:   sess.ID,
				Rounds:      res.Round,
				Rematch:     res.Played == bracket.PhaseGrandFinalsRematch,
				CompletedAt: time.Now(),
			}
			for _, ch := range v.Podium {
				rec.Places = append(rec.Places, ch.Ref())
			}
			m.persist("ranking", sess.ID, func(ctx context.Context) error {
				return m.store.SaveRanking(ctx, rec)
			})
		}
	}

	sess.publish(v)
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, bracket.ErrBusy):
		return "busy"
	case errors.Is(err, bracket.ErrStaleMatchup):
		return "stale"
	case errors.Is(err, bracket.ErrInvalidResult):
		return "invalid"
	default:
		return "other"
	}
}
