package cli

import (
	"context"

	"github.com/raphaelgruber/chartbracket/internal/bracket"
	"github.com/raphaelgruber/chartbracket/internal/client"
	"github.com/raphaelgruber/chartbracket/internal/models"
)

// contender is one side of a duel as the TUI shows it.
type contender struct {
	ID    string
	Label string
	Chart *models.Chart
}

// standing is the tournament state the TUI renders.
type standing struct {
	Phase      bracket.Phase
	Round      int
	Winners    int
	Losers     int
	Eliminated int
	Left       *contender
	Right      *contender
	Podium     []string
}

func (s standing) done() bool {
	return s.Phase == bracket.PhaseDone
}

// arena runs a tournament, either on the server or in process.
type arena interface {
	Standing(ctx context.Context) (standing, error)
	Pick(ctx context.Context, round int, winnerID string) (standing, error)
}

// remoteArena plays a session's tournament through the API.
type remoteArena struct {
	client    *client.Client
	sessionID string
}

func (a remoteArena) Standing(ctx context.Context) (standing, error) {
	t, err := a.client.Tournament(ctx, a.sessionID)
	if err != nil {
		return standing{}, err
	}
	return fromTournament(t), nil
}

func (a remoteArena) Pick(ctx context.Context, round int, winnerID string) (standing, error) {
	t, err := a.client.ReportResult(ctx, a.sessionID, round, winnerID)
	if err != nil {
		return standing{}, err
	}
	return fromTournament(t), nil
}

func fromTournament(t *client.Tournament) standing {
	s := standing{
		Phase:      t.Phase,
		Round:      t.Round,
		Winners:    len(t.Winners),
		Losers:     len(t.Losers),
		Eliminated: len(t.Eliminated),
	}
	if m := t.Matchup; m != nil {
		s.Left = chartContender(m.Left)
		s.Right = chartContender(m.Right)
	}
	for _, ch := range t.Podium {
		s.Podium = append(s.Podium, ch.Symbol())
	}
	return s
}

func chartContender(e client.Entry) *contender {
	ch := e.Chart
	return &contender{ID: e.ID, Label: ch.Symbol(), Chart: &ch}
}

// localArena plays an in-process engine over plain names.
type localArena struct {
	engine *bracket.Engine
}

func newLocalArena(names []string) (localArena, error) {
	seed := make([]bracket.Entry, len(names))
	for i, n := range names {
		seed[i] = bracket.Entry{ID: n}
	}
	e, err := bracket.New(seed, discardLogger())
	if err != nil {
		return localArena{}, err
	}
	return localArena{engine: e}, nil
}

func (a localArena) Standing(context.Context) (standing, error) {
	return fromSnapshot(a.engine.Snapshot()), nil
}

func (a localArena) Pick(_ context.Context, round int, winnerID string) (standing, error) {
	if err := a.engine.ReportResultAt(round, winnerID); err != nil {
		return standing{}, err
	}
	return fromSnapshot(a.engine.Snapshot()), nil
}

func fromSnapshot(snap bracket.Snapshot) standing {
	s := standing{
		Phase:      snap.Phase,
		Round:      snap.Round,
		Winners:    len(snap.Winners),
		Losers:     len(snap.Losers),
		Eliminated: len(snap.Eliminated),
	}
	if m := snap.Matchup; m != nil {
		s.Left = &contender{ID: m.Left.ID, Label: m.Left.ID}
		s.Right = &contender{ID: m.Right.ID, Label: m.Right.ID}
	}
	for _, e := range snap.Ranking {
		s.Podium = append(s.Podium, e.ID)
	}
	return s
}
