package cli

import (
	"context"
	"errors"
	"testing"

	tea "charm.land/bubbletea/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/chartbracket/internal/bracket"
	"github.com/raphaelgruber/chartbracket/internal/client"
	"github.com/raphaelgruber/chartbracket/internal/models"
)

// fakeSession records the calls the model makes.
type fakeSession struct {
	charts   []client.Chart
	verdicts []models.Verdict
	finished bool
	summary  *models.SessionResult
}

func (f *fakeSession) model(t *testing.T) playModel {
	t.Helper()
	m := newPlayModel(defaultTheme, "1h")
	m.start = func(context.Context) (*client.Session, error) {
		return &client.Session{ID: "s1", Charts: f.charts}, nil
	}
	m.rate = func(_ context.Context, _ string, index int, v models.Verdict) (bool, error) {
		if index != len(f.verdicts) {
			return false, errors.New("out of order")
		}
		f.verdicts = append(f.verdicts, v)
		return len(f.verdicts) == len(f.charts), nil
	}
	m.finish = func(context.Context, string) error {
		f.finished = true
		return nil
	}
	m.begin = func(context.Context, string) (arena, *models.SessionResult, error) {
		if f.summary != nil {
			return nil, f.summary, nil
		}
		var names []string
		for i, v := range f.verdicts {
			if v.Positive() {
				names = append(names, f.charts[i].Symbol())
			}
		}
		a, err := newLocalArena(names)
		return a, nil, err
	}
	return m
}

func testCharts(symbols ...string) []client.Chart {
	out := make([]client.Chart, len(symbols))
	for i, s := range symbols {
		out[i] = client.Chart{Chart: models.Chart{
			PairAddress: "0x" + s,
			BaseToken:   models.Token{Symbol: s},
			QuoteToken:  models.Token{Symbol: "USDT"},
		}}
	}
	return out
}

// step applies msg and runs any returned command, feeding its message back
// until the model goes idle.
func step(t *testing.T, m playModel, msg tea.Msg) playModel {
	t.Helper()
	for range 10 {
		next, cmd := m.Update(msg)
		m = next.(playModel)
		if cmd == nil {
			return m
		}
		msg = cmd()
		if msg == nil {
			return m
		}
		if _, quit := msg.(tea.QuitMsg); quit {
			return m
		}
	}
	t.Fatal("model did not settle")
	return m
}

func press(t *testing.T, m playModel, key string) playModel {
	t.Helper()
	next, cmd := m.handleKey(key)
	m = next.(playModel)
	if cmd == nil {
		return m
	}
	return step(t, m, cmd())
}

func TestPlayModel_RateThenBracket(t *testing.T) {
	f := &fakeSession{charts: testCharts("BTC", "ETH", "SOL")}
	m := f.model(t)

	m = step(t, m, m.startSession()())
	require.Equal(t, stageRating, m.stage)
	assert.Contains(t, m.renderContent(), "BTC")

	m = press(t, m, "g")
	m = press(t, m, "r")
	assert.Contains(t, m.renderContent(), "previous:")
	m = press(t, m, "g")

	assert.Equal(t, []models.Verdict{models.VerdictGreen, models.VerdictRed, models.VerdictGreen}, f.verdicts)
	require.Equal(t, stageTournament, m.stage)
	require.NotNil(t, m.standing.Left)
	assert.Contains(t, m.renderContent(), "vs")

	for i := 0; m.stage != stageDone; i++ {
		require.Less(t, i, 10)
		m = press(t, m, "1")
	}
	assert.Len(t, m.standing.Podium, 2)
	assert.Contains(t, m.renderContent(), "Final ranking")
	assert.Contains(t, m.renderContent(), "chartbracket results s1")
}

func TestPlayModel_FinishEarlyWithoutSeed(t *testing.T) {
	f := &fakeSession{
		charts:  testCharts("BTC", "ETH", "SOL"),
		summary: &models.SessionResult{SessionID: "s1", TotalCharts: 1, GreenCount: 1},
	}
	m := f.model(t)
	m = step(t, m, m.startSession()())

	m = press(t, m, "g")
	m = press(t, m, "f")

	assert.True(t, f.finished)
	assert.Equal(t, stageDone, m.stage)
	assert.Contains(t, m.renderContent(), "At least two green charts")
}

func TestPlayModel_IgnoresKeysWhilePending(t *testing.T) {
	f := &fakeSession{charts: testCharts("BTC", "ETH")}
	m := f.model(t)
	m = step(t, m, m.startSession()())

	next, cmd := m.handleKey("g")
	require.NotNil(t, cmd)
	m = next.(playModel)
	assert.True(t, m.pending)

	_, cmd = m.handleKey("r")
	assert.Nil(t, cmd, "a second verdict must wait for the first")
}

func TestPlayModel_RateErrorShowsNotice(t *testing.T) {
	f := &fakeSession{charts: testCharts("BTC", "ETH")}
	m := f.model(t)
	m = step(t, m, m.startSession()())

	m = step(t, m, ratedMsg{err: errors.New("verdict already recorded")})
	assert.False(t, m.pending)
	assert.Equal(t, stageRating, m.stage)
	assert.Contains(t, m.renderContent(), "verdict already recorded")
}

func TestPlayModel_Quit(t *testing.T) {
	f := &fakeSession{charts: testCharts("BTC", "ETH")}
	m := f.model(t)
	m = step(t, m, m.startSession()())

	next, cmd := m.handleKey("q")
	require.NotNil(t, cmd)
	m = next.(playModel)
	assert.True(t, m.quitting)
	assert.Contains(t, m.renderContent(), "left unfinished")
}

func TestPlayModel_OfflineBracket(t *testing.T) {
	a, err := newLocalArena([]string{"tea", "coffee"})
	require.NoError(t, err)

	m := newPlayModel(defaultTheme, "")
	m.arena = a
	m.stage = stageTournament

	m = step(t, m, m.Init()())
	require.NotNil(t, m.standing.Right)

	m = press(t, m, "2")
	require.Equal(t, bracket.PhaseGrandFinals, m.standing.Phase)
	require.Equal(t, "coffee", m.standing.Left.ID, "the winners champion sits on the left")

	m = press(t, m, "1")
	assert.Equal(t, stageDone, m.stage)
	assert.Equal(t, []string{"coffee", "tea"}, m.standing.Podium)
	assert.NotContains(t, m.renderContent(), "chartbracket results")
}
