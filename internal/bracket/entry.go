// Package bracket implements the double-elimination tournament engine that
// ranks the charts a user rated green.
package bracket

// Phase is the coarse state of a tournament.
type Phase string

const (
	// PhaseWinners plays the winners bracket until one entry is left in it.
	PhaseWinners Phase = "winners"
	// PhaseLosers plays the losers bracket; a loss here eliminates.
	PhaseLosers Phase = "losers"
	// PhaseGrandFinals pits the winners champion against the losers champion.
	PhaseGrandFinals Phase = "grandfinals"
	// PhaseGrandFinalsRematch is the single reset match played after the
	// winners champion loses the first grand final.
	PhaseGrandFinalsRematch Phase = "grandfinals_awaiting_rematch"
	// PhaseDone holds the final ranking.
	PhaseDone Phase = "done"
)

// Entry is one participant. ID is derived from a content key (the chart's
// pair address), never from a position in a list.
type Entry struct {
	ID      string `json:"id"`
	Payload any    `json:"payload,omitempty"`
	Losses  int    `json:"losses"`
}

// Matchup is the pair currently facing off. Round increases by one after
// every applied result.
type Matchup struct {
	Round int   `json:"round"`
	Left  Entry `json:"left"`
	Right Entry `json:"right"`
}

// Has reports whether id is one side of the matchup.
func (m Matchup) Has(id string) bool {
	return m.Left.ID == id || m.Right.ID == id
}

// Ranking is the final podium, best first. It holds three places unless no
// entry was eliminated before the grand final (a two-entry tournament).
type Ranking []Entry

// Status summarizes progress for display.
type Status struct {
	Phase      Phase `json:"phase"`
	Round      int   `json:"round"`
	Winners    int   `json:"winners"`
	Losers     int   `json:"losers"`
	Eliminated int   `json:"eliminated"`
}

// Snapshot is a read-only copy of the whole engine state.
type Snapshot struct {
	Status
	Winners    []Entry  `json:"winners_bracket"`
	Losers     []Entry  `json:"losers_bracket"`
	Eliminated []Entry  `json:"eliminated_entries"`
	Matchup    *Matchup `json:"matchup,omitempty"`
	Ranking    Ranking  `json:"ranking,omitempty"`
}

// Result describes one applied match. It is handed to the observer.
type Result struct {
	Round  int   `json:"round"`
	Played Phase `json:"played"`
	Next   Phase `json:"next"`
	Winner Entry `json:"winner"`
	Loser  Entry `json:"loser"`
}
