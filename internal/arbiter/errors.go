package arbiter

import (
	"errors"
	"fmt"

	"github.com/lox/settlersforbots/internal/game"
)

var (
	// ErrNotFound is returned for unknown games or state indices.
	ErrNotFound = errors.New("arbiter: not found")
	// ErrForbidden is returned when the caller is not allowed to act.
	ErrForbidden = errors.New("arbiter: forbidden")
	// ErrConflict is returned when the expected index is not the latest.
	ErrConflict = errors.New("arbiter: conflict")
	// ErrFatal marks a server-side defect such as a bot with no move or a
	// runaway auto-play loop.
	ErrFatal = errors.New("arbiter: fatal")
	// ErrActionRequired is returned for an empty submission on a human turn.
	ErrActionRequired = fmt.Errorf("%w: action required", game.ErrInvalidAction)
)

// errStale reports that an off-lock decision was computed against a state
// that is no longer the latest.
var errStale = errors.New("arbiter: stale snapshot")
