package bracket_test

import (
	"io"
	"log/slog"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/chartbracket/internal/bracket"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seed(ids ...string) []bracket.Entry {
	out := make([]bracket.Entry, len(ids))
	for i, id := range ids {
		out[i] = bracket.Entry{ID: id, Payload: "chart " + id}
	}
	return out
}

func newEngine(t *testing.T, ids ...string) *bracket.Engine {
	t.Helper()
	e, err := bracket.New(seed(ids...), testLogger())
	require.NoError(t, err)
	return e
}

func ids(entries []bracket.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

// play reports each winner in turn, asserting the matchup contains it.
func play(t *testing.T, e *bracket.Engine, winners ...string) {
	t.Helper()
	for _, w := range winners {
		m, ok := e.CurrentMatchup()
		require.True(t, ok, "expected a matchup before %s wins", w)
		require.True(t, m.Has(w), "%s is not in matchup %s vs %s", w, m.Left.ID, m.Right.ID)
		require.NoError(t, e.ReportResult(w))
	}
}

func requireMatchup(t *testing.T, e *bracket.Engine, left, right string) {
	t.Helper()
	m, ok := e.CurrentMatchup()
	require.True(t, ok)
	assert.Equal(t, left, m.Left.ID)
	assert.Equal(t, right, m.Right.ID)
}

func TestNew_Seeding(t *testing.T) {
	tests := []struct {
		name    string
		seed    []bracket.Entry
		wantErr error
		want    []string
	}{
		{"empty", nil, bracket.ErrInsufficientSeed, nil},
		{"single", seed("A"), bracket.ErrInsufficientSeed, nil},
		{"duplicate pair collapses", seed("A", "A"), bracket.ErrInsufficientSeed, nil},
		{"missing id", []bracket.Entry{{ID: "A"}, {ID: ""}}, bracket.ErrInvalidSeed, nil},
		{"two", seed("A", "B"), nil, []string{"A", "B"}},
		{"duplicates keep first", seed("A", "B", "A", "C"), nil, []string{"A", "B", "C"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := bracket.New(tt.seed, testLogger())
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, e)
				return
			}
			require.NoError(t, err)
			snap := e.Snapshot()
			assert.Equal(t, tt.want, ids(snap.Winners))
			assert.Empty(t, snap.Losers)
			assert.Empty(t, snap.Eliminated)
			assert.Equal(t, bracket.PhaseWinners, snap.Phase)
		})
	}
}

func TestNew_ResetsLosses(t *testing.T) {
	e, err := bracket.New([]bracket.Entry{{ID: "A", Losses: 3}, {ID: "B", Losses: 1}}, testLogger())
	require.NoError(t, err)

	m, ok := e.CurrentMatchup()
	require.True(t, ok)
	assert.Zero(t, m.Left.Losses)
	assert.Zero(t, m.Right.Losses)
}

func TestFourEntries_ChampionSweeps(t *testing.T) {
	e := newEngine(t, "A", "B", "C", "D")

	requireMatchup(t, e, "A", "B")
	play(t, e, "A")
	requireMatchup(t, e, "C", "D")
	play(t, e, "C")

	snap := e.Snapshot()
	assert.Equal(t, []string{"A", "C"}, ids(snap.Winners))
	assert.Equal(t, []string{"B", "D"}, ids(snap.Losers))

	play(t, e, "A")
	snap = e.Snapshot()
	assert.Equal(t, bracket.PhaseLosers, snap.Phase)
	assert.Equal(t, []string{"A"}, ids(snap.Winners))
	assert.Equal(t, []string{"B", "D", "C"}, ids(snap.Losers))

	// Losers bracket: D knocks out B, then C knocks out D.
	requireMatchup(t, e, "B", "D")
	play(t, e, "D")
	requireMatchup(t, e, "C", "D")
	play(t, e, "C")

	snap = e.Snapshot()
	assert.Equal(t, bracket.PhaseGrandFinals, snap.Phase)
	assert.Equal(t, []string{"B", "D"}, ids(snap.Eliminated))
	requireMatchup(t, e, "A", "C")

	play(t, e, "A")
	ranking, ok := e.FinalRanking()
	require.True(t, ok)
	assert.Equal(t, []string{"A", "C", "D"}, ids(ranking))
	assert.Equal(t, bracket.PhaseDone, e.Status().Phase)

	_, ok = e.CurrentMatchup()
	assert.False(t, ok)
}

func TestFourEntries_GrandFinalReset(t *testing.T) {
	e := newEngine(t, "A", "B", "C", "D")

	play(t, e, "A", "C", "A")
	// Losers bracket: B beats D, B beats C.
	play(t, e, "B", "B")

	snap := e.Snapshot()
	require.Equal(t, bracket.PhaseGrandFinals, snap.Phase)
	assert.Equal(t, []string{"D", "C"}, ids(snap.Eliminated))
	requireMatchup(t, e, "A", "B")

	play(t, e, "B")
	snap = e.Snapshot()
	require.Equal(t, bracket.PhaseGrandFinalsRematch, snap.Phase)
	require.NotNil(t, snap.Matchup)
	assert.Equal(t, "B", snap.Matchup.Left.ID)
	assert.Equal(t, "A", snap.Matchup.Right.ID)
	assert.Equal(t, 1, snap.Matchup.Right.Losses, "champion carries its first loss into the rematch")

	play(t, e, "A")
	ranking, ok := e.FinalRanking()
	require.True(t, ok)
	assert.Equal(t, []string{"A", "B", "C"}, ids(ranking))
}

func TestRematchIsPlayedOnce(t *testing.T) {
	e := newEngine(t, "A", "B", "C", "D")
	play(t, e, "A", "C", "A", "B", "B")

	// Challenger wins both grand finals.
	play(t, e, "B", "B")

	ranking, ok := e.FinalRanking()
	require.True(t, ok)
	assert.Equal(t, []string{"B", "A", "C"}, ids(ranking))
	assert.Equal(t, 2, ranking[1].Losses)

	err := e.ReportResult("B")
	require.ErrorIs(t, err, bracket.ErrInvalidResult)
	assert.Equal(t, bracket.PhaseDone, e.Status().Phase)
}

func TestTwoEntries_SkipLosersBracket(t *testing.T) {
	e := newEngine(t, "A", "B")

	play(t, e, "B")
	assert.Equal(t, bracket.PhaseGrandFinals, e.Status().Phase)
	requireMatchup(t, e, "B", "A")

	play(t, e, "B")
	ranking, ok := e.FinalRanking()
	require.True(t, ok)
	assert.Equal(t, []string{"B", "A"}, ids(ranking))
}

func TestThreeEntries(t *testing.T) {
	e := newEngine(t, "A", "B", "C")

	play(t, e, "A") // winners [C A], losers [B]
	requireMatchup(t, e, "C", "A")
	play(t, e, "C") // winners [C], losers [B A]

	assert.Equal(t, bracket.PhaseLosers, e.Status().Phase)
	requireMatchup(t, e, "B", "A")
	play(t, e, "A")

	requireMatchup(t, e, "C", "A")
	play(t, e, "C")

	ranking, ok := e.FinalRanking()
	require.True(t, ok)
	assert.Equal(t, []string{"C", "A", "B"}, ids(ranking))
}

func TestReportResult_InvalidWinner(t *testing.T) {
	e := newEngine(t, "A", "B", "C", "D")
	before := e.Snapshot()

	err := e.ReportResult("C")
	require.ErrorIs(t, err, bracket.ErrInvalidResult)

	err = e.ReportResult("nope")
	require.ErrorIs(t, err, bracket.ErrInvalidResult)

	if diff := cmp.Diff(before, e.Snapshot()); diff != "" {
		t.Errorf("state changed after invalid result (-before +after):\n%s", diff)
	}
}

func TestReportResultAt_Stale(t *testing.T) {
	e := newEngine(t, "A", "B", "C", "D")

	m, ok := e.CurrentMatchup()
	require.True(t, ok)
	require.NoError(t, e.ReportResultAt(m.Round, "A"))

	// A repeated submission for the same round must not touch C vs D.
	err := e.ReportResultAt(m.Round, "A")
	require.ErrorIs(t, err, bracket.ErrStaleMatchup)

	err = e.ReportResultAt(0, "C")
	require.ErrorIs(t, err, bracket.ErrStaleMatchup)

	next, ok := e.CurrentMatchup()
	require.True(t, ok)
	assert.Equal(t, m.Round+1, next.Round)
	require.NoError(t, e.ReportResultAt(next.Round, "C"))
}

func TestBusyGuard_ObserverReentry(t *testing.T) {
	e := newEngine(t, "A", "B", "C", "D")

	var results []bracket.Result
	var reentryErr error
	e.SetObserver(func(r bracket.Result) {
		results = append(results, r)
		// A second click arriving while the first is still settling.
		reentryErr = e.ReportResult(r.Winner.ID)
	})

	require.NoError(t, e.ReportResult("A"))
	require.ErrorIs(t, reentryErr, bracket.ErrBusy)
	require.Len(t, results, 1)

	assert.Equal(t, 1, results[0].Round)
	assert.Equal(t, "A", results[0].Winner.ID)
	assert.Equal(t, "B", results[0].Loser.ID)
	assert.Equal(t, 1, results[0].Loser.Losses)
	assert.Equal(t, bracket.PhaseWinners, results[0].Next)

	st := e.Status()
	assert.Equal(t, 2, st.Round)
	assert.Equal(t, 3, st.Winners)
	assert.Equal(t, 1, st.Losers)

	// Guard is released once the first result returns.
	e.SetObserver(nil)
	require.NoError(t, e.ReportResult("C"))
}

func TestSnapshot_IsACopy(t *testing.T) {
	e := newEngine(t, "A", "B", "C")
	snap := e.Snapshot()
	snap.Winners[0].ID = "mutated"

	requireMatchup(t, e, "A", "B")
}

func TestInvariants_RandomTournaments(t *testing.T) {
	strategies := map[string]func(r *rand.Rand, m bracket.Matchup) string{
		"left": func(_ *rand.Rand, m bracket.Matchup) string {
			return m.Left.ID
		},
		"right": func(_ *rand.Rand, m bracket.Matchup) string {
			return m.Right.ID
		},
		"random": func(r *rand.Rand, m bracket.Matchup) string {
			if r.IntN(2) == 0 {
				return m.Left.ID
			}
			return m.Right.ID
		},
	}

	for name, pick := range strategies {
		for n := 2; n <= 16; n++ {
			for trial := range 5 {
				r := rand.New(rand.NewPCG(uint64(n), uint64(trial)))
				runTournament(t, name, n, func(m bracket.Matchup) string { return pick(r, m) })
			}
		}
	}
}

func runTournament(t *testing.T, name string, n int, pick func(bracket.Matchup) string) {
	t.Helper()

	all := make([]string, n)
	for i := range all {
		all[i] = string(rune('a' + i))
	}
	e := newEngine(t, all...)

	// winners n-1, losers n-2, grand finals at most 2
	maxMatches := 2*n - 1
	matches := 0
	for {
		snap := e.Snapshot()
		checkPartition(t, name, n, snap)

		if snap.Phase == bracket.PhaseDone {
			break
		}
		require.NotNil(t, snap.Matchup, "%s n=%d: no matchup in phase %s", name, n, snap.Phase)
		require.NotEqual(t, snap.Matchup.Left.ID, snap.Matchup.Right.ID, "%s n=%d: self matchup", name, n)

		require.NoError(t, e.ReportResultAt(snap.Matchup.Round, pick(*snap.Matchup)))
		matches++
		require.LessOrEqual(t, matches, maxMatches, "%s n=%d: tournament did not terminate", name, n)
	}

	ranking, ok := e.FinalRanking()
	require.True(t, ok)
	want := min(n, 3)
	require.Len(t, ranking, want, "%s n=%d", name, n)
	seen := map[string]bool{}
	for _, r := range ranking {
		assert.False(t, seen[r.ID], "%s n=%d: duplicate %s on podium", name, n, r.ID)
		seen[r.ID] = true
	}
	assert.GreaterOrEqual(t, matches, 2*n-2, "%s n=%d: too few matches", name, n)

	for _, el := range e.Snapshot().Eliminated {
		assert.Equal(t, 2, el.Losses, "%s n=%d: %s eliminated with %d losses", name, n, el.ID, el.Losses)
	}
}

// checkPartition asserts every entry sits in exactly one of the three collections.
func checkPartition(t *testing.T, name string, n int, snap bracket.Snapshot) {
	t.Helper()

	seen := map[string]int{}
	for _, group := range [][]bracket.Entry{snap.Winners, snap.Losers, snap.Eliminated} {
		for _, e := range group {
			seen[e.ID]++
		}
	}
	require.Len(t, seen, n, "%s n=%d phase=%s: entries lost", name, n, snap.Phase)
	for id, count := range seen {
		require.Equal(t, 1, count, "%s n=%d phase=%s: %s appears %d times", name, n, snap.Phase, id, count)
	}
	if snap.Phase == bracket.PhaseGrandFinalsRematch || snap.Phase == bracket.PhaseDone {
		return
	}
	for _, e := range snap.Winners {
		require.Zero(t, e.Losses, "%s n=%d: %s in winners with a loss", name, n, e.ID)
	}
}
