package bracket

import "errors"

// Sentinel errors returned by the engine.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrInvalidResult means the reported winner is not part of the current
	// matchup, or the tournament is already over. State is unchanged.
	ErrInvalidResult = errors.New("invalid result")

	// ErrBusy means another result is still being applied. The call was a no-op.
	ErrBusy = errors.New("result already in progress")

	// ErrStaleMatchup means the result targets a round that has already been decided.
	ErrStaleMatchup = errors.New("stale matchup")

	// ErrInsufficientSeed means fewer than two unique entries were supplied.
	// No engine is built; callers fall back to the plain verdict summary.
	ErrInsufficientSeed = errors.New("at least two unique entries are required")

	// ErrInvalidSeed means a seed entry has no identifier.
	ErrInvalidSeed = errors.New("invalid seed entry")
)
