package game

import (
	"errors"
	"fmt"
)

// ErrInvalidAction is matched by every rejection from Apply.
var ErrInvalidAction = errors.New("game: invalid action")

// InvalidActionError explains why an action was refused.
type InvalidActionError struct {
	Action *Action
	Reason string
}

func (e *InvalidActionError) Error() string {
	if e.Action == nil {
		return fmt.Sprintf("invalid action: %s", e.Reason)
	}
	return fmt.Sprintf("invalid action %s: %s", e.Action, e.Reason)
}

func (e *InvalidActionError) Is(target error) bool {
	return target == ErrInvalidAction
}

func invalid(a *Action, format string, args ...any) error {
	return &InvalidActionError{Action: a, Reason: fmt.Sprintf(format, args...)}
}
