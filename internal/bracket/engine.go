package bracket

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// anyRound disables the staleness check in report.
const anyRound = 0

// Engine runs one double-elimination tournament.
//
// Reads are safe from any goroutine. Results are applied one at a time: a
// ReportResult that arrives while another is still being applied (including
// one issued from the observer) fails fast with ErrBusy and changes nothing.
type Engine struct {
	mu   sync.RWMutex
	busy atomic.Bool

	phase      Phase
	round      int
	winners    *entrySet
	losers     *entrySet
	eliminated []Entry
	ranking    Ranking

	// Fixed once the grand final begins.
	champion   string
	challenger string

	observer func(Result)
	logger   *slog.Logger
}

// New seeds the winners bracket in the given order. Entries with an empty ID
// are rejected; duplicate IDs keep the first occurrence.
func New(seed []Entry, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	winners := newEntrySet()
	for i, e := range seed {
		if e.ID == "" {
			return nil, fmt.Errorf("%w: entry %d has no id", ErrInvalidSeed, i)
		}
		e.Losses = 0
		if !winners.add(e) {
			logger.Warn("duplicate seed entry dropped", "entry_id", e.ID)
		}
	}
	if winners.len() < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrInsufficientSeed, winners.len())
	}

	return &Engine{
		phase:   PhaseWinners,
		round:   1,
		winners: winners,
		losers:  newEntrySet(),
		logger:  logger,
	}, nil
}

// SetObserver registers fn to be called after every applied result. fn runs
// on the reporting goroutine after the state lock is released, so it may read
// the engine freely.
func (e *Engine) SetObserver(fn func(Result)) {
	e.mu.Lock()
	e.observer = fn
	e.mu.Unlock()
}

// CurrentMatchup returns the pair awaiting a result. ok is false once the
// tournament is done.
func (e *Engine) CurrentMatchup() (Matchup, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.currentLocked()
}

// ReportResult records winnerID as the winner of the current matchup.
func (e *Engine) ReportResult(winnerID string) error {
	return e.report(anyRound, winnerID)
}

// ReportResultAt is ReportResult guarded by the round the caller was shown.
// A result for any other round fails with ErrStaleMatchup.
func (e *Engine) ReportResultAt(round int, winnerID string) error {
	if round <= 0 {
		return fmt.Errorf("%w: round %d", ErrStaleMatchup, round)
	}
	return e.report(round, winnerID)
}

// Status returns the phase and bracket sizes.
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.statusLocked()
}

// FinalRanking returns the podium. ok is false until the phase is done.
func (e *Engine) FinalRanking() (Ranking, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.phase != PhaseDone {
		return nil, false
	}
	return append(Ranking(nil), e.ranking...), true
}

// Snapshot copies the full state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s := Snapshot{
		Status:     e.statusLocked(),
		Winners:    e.winners.entries(),
		Losers:     e.losers.entries(),
		Eliminated: append([]Entry(nil), e.eliminated...),
	}
	if m, ok := e.currentLocked(); ok {
		s.Matchup = &m
	}
	if e.phase == PhaseDone {
		s.Ranking = append(Ranking(nil), e.ranking...)
	}
	return s
}

func (e *Engine) statusLocked() Status {
	return Status{
		Phase:      e.phase,
		Round:      e.round,
		Winners:    e.winners.len(),
		Losers:     e.losers.len(),
		Eliminated: len(e.eliminated),
	}
}

func (e *Engine) currentLocked() (Matchup, bool) {
	var left, right Entry
	var ok bool

	switch e.phase {
	case PhaseWinners:
		left, right, ok = pickPair(e.winners.entries(), e.logger)
	case PhaseLosers:
		left, right, ok = pickPair(e.losers.entries(), e.logger)
	case PhaseGrandFinals:
		left, _ = e.winners.get(e.champion)
		right, _ = e.losers.get(e.challenger)
		ok = true
	case PhaseGrandFinalsRematch:
		left, _ = e.losers.get(e.challenger)
		right, _ = e.winners.get(e.champion)
		ok = true
	}
	if !ok {
		return Matchup{}, false
	}
	return Matchup{Round: e.round, Left: left, Right: right}, true
}

// pickPair returns the first two entries with distinct IDs. Buckets are sets,
// so a repeat means an upstream bug; it is logged and the next distinct entry
// takes the second slot.
func pickPair(entries []Entry, logger *slog.Logger) (Entry, Entry, bool) {
	if len(entries) < 2 {
		return Entry{}, Entry{}, false
	}
	left := entries[0]
	for i, right := range entries[1:] {
		if right.ID == left.ID {
			continue
		}
		if i > 0 {
			logger.Error("self matchup repaired", "entry_id", left.ID, "substitute_id", right.ID)
		}
		return left, right, true
	}
	logger.Error("no distinct opponent available", "entry_id", left.ID, "size", len(entries))
	return Entry{}, Entry{}, false
}

func (e *Engine) report(round int, winnerID string) error {
	if !e.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer e.busy.Store(false)

	res, observer, err := e.apply(round, winnerID)
	if err != nil {
		return err
	}

	e.logger.Debug("result applied",
		"round", res.Round,
		"played", res.Played,
		"next", res.Next,
		"winner_id", res.Winner.ID,
		"loser_id", res.Loser.ID,
	)

	if observer != nil {
		observer(res)
	}
	return nil
}

func (e *Engine) apply(round int, winnerID string) (Result, func(Result), error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase == PhaseDone {
		return Result{}, nil, fmt.Errorf("%w: tournament is over", ErrInvalidResult)
	}
	if round != anyRound && round != e.round {
		return Result{}, nil, fmt.Errorf("%w: round %d, current is %d", ErrStaleMatchup, round, e.round)
	}

	m, ok := e.currentLocked()
	if !ok {
		return Result{}, nil, fmt.Errorf("%w: no matchup pending", ErrInvalidResult)
	}

	var winner, loser Entry
	switch winnerID {
	case m.Left.ID:
		winner, loser = m.Left, m.Right
	case m.Right.ID:
		winner, loser = m.Right, m.Left
	default:
		return Result{}, nil, fmt.Errorf("%w: %q is not in the current matchup", ErrInvalidResult, winnerID)
	}

	played := e.phase
	switch played {
	case PhaseWinners:
		loser = e.applyWinners(winner, loser)
	case PhaseLosers:
		loser = e.applyLosers(winner, loser)
	case PhaseGrandFinals:
		loser = e.applyGrandFinal(winner, loser)
	case PhaseGrandFinalsRematch:
		loser = e.applyRematch(winner, loser)
	}

	res := Result{
		Round:  e.round,
		Played: played,
		Next:   e.phase,
		Winner: winner,
		Loser:  loser,
	}
	e.round++
	return res, e.observer, nil
}

// applyWinners rotates the winner to the back of the winners bracket and
// drops the loser into the losers bracket.
func (e *Engine) applyWinners(winner, loser Entry) Entry {
	e.winners.remove(winner.ID)
	e.winners.remove(loser.ID)
	e.winners.add(winner)

	loser.Losses++
	e.losers.add(loser)

	if e.winners.len() > 1 {
		return loser
	}
	if e.losers.len() >= 2 {
		e.phase = PhaseLosers
		e.logger.Info("winners bracket decided", "champion_id", winner.ID, "losers", e.losers.len())
		return loser
	}
	e.beginGrandFinal()
	return loser
}

// applyLosers rotates the winner and eliminates the loser.
func (e *Engine) applyLosers(winner, loser Entry) Entry {
	e.losers.remove(winner.ID)
	e.losers.remove(loser.ID)
	e.losers.add(winner)

	loser.Losses++
	e.eliminated = append(e.eliminated, loser)

	if e.losers.len() == 1 && e.winners.len() == 1 {
		e.beginGrandFinal()
	}
	return loser
}

func (e *Engine) beginGrandFinal() {
	champion, _ := e.winners.front()
	challenger, _ := e.losers.front()
	e.champion = champion.ID
	e.challenger = challenger.ID
	e.phase = PhaseGrandFinals
	e.logger.Info("grand final", "champion_id", e.champion, "challenger_id", e.challenger)
}

// applyGrandFinal finishes the tournament if the champion holds, otherwise
// hands the champion its first loss and schedules the one rematch.
func (e *Engine) applyGrandFinal(winner, loser Entry) Entry {
	loser.Losses++
	if winner.ID == e.champion {
		e.losers.update(loser)
		e.finish(winner, loser)
		return loser
	}
	e.winners.update(loser)
	e.phase = PhaseGrandFinalsRematch
	e.logger.Info("grand final reset", "champion_id", e.champion, "challenger_id", e.challenger)
	return loser
}

func (e *Engine) applyRematch(winner, loser Entry) Entry {
	loser.Losses++
	if loser.ID == e.champion {
		e.winners.update(loser)
	} else {
		e.losers.update(loser)
	}
	e.finish(winner, loser)
	return loser
}

// finish freezes the brackets and records the podium. Third place is the
// most recent elimination.
func (e *Engine) finish(first, second Entry) {
	e.ranking = Ranking{first, second}
	if n := len(e.eliminated); n > 0 {
		e.ranking = append(e.ranking, e.eliminated[n-1])
	}
	e.phase = PhaseDone
	e.logger.Info("tournament done", "first_id", first.ID, "second_id", second.ID, "rounds", e.round)
}
