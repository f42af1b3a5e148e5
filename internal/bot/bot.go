// Package bot provides the automated players and position evaluators that
// plug into the arbiter.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/lox/settlersforbots/internal/game"
)

// ErrNoLegalAction is returned when a player is asked to move in a state that
// offers it nothing to do. It always indicates a defect in the caller.
var ErrNoLegalAction = errors.New("bot: no legal action")

// Player chooses one of the legal actions for the current actor. It must not
// modify the state it is given.
type Player interface {
	Decide(ctx context.Context, s *game.State, legal []game.Action) (game.Action, error)
}

// Evaluator estimates each seat's chance of winning from a position.
type Evaluator interface {
	Estimate(ctx context.Context, s *game.State, simulations int) (Estimate, error)
}

// Kind names a seat's controller. The set is closed.
type Kind string

const (
	Human      Kind = "HUMAN"
	Random     Kind = "RANDOM"
	Value      Kind = "VALUE"
	Catanatron Kind = "CATANATRON"
)

// Kinds lists every controller kind.
var Kinds = []Kind{Human, Random, Value, Catanatron}

// ParseKind accepts a case-insensitive kind name. ALPHABETA is an alias for
// CATANATRON.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToUpper(strings.TrimSpace(s)))
	if k == "ALPHABETA" {
		return Catanatron, nil
	}
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown player kind %q", s)
}

// IsHuman reports whether seats of this kind wait for external input.
func (k Kind) IsHuman() bool { return k == Human }

// DefaultSearchDepth is the look-ahead used by CATANATRON seats.
const DefaultSearchDepth = 2

// Options configures the players built by New.
type Options struct {
	SearchDepth int
	Seed        int64
}

// New builds the player for a bot kind. Human seats have no player and are
// rejected.
func New(kind Kind, opts Options, logger *log.Logger) (Player, error) {
	switch kind {
	case Random:
		return NewRandom(opts.Seed, logger), nil
	case Value:
		return NewValue(opts.Seed, logger), nil
	case Catanatron:
		depth := opts.SearchDepth
		if depth <= 0 {
			depth = DefaultSearchDepth
		}
		return NewAlphaBeta(depth, opts.Seed, logger), nil
	case Human:
		return nil, fmt.Errorf("%s seats are not automated", kind)
	}
	return nil, fmt.Errorf("unknown player kind %q", kind)
}

// ownActions drops moves that belong to a seat other than the current actor,
// such as an initiator's trade cancellation.
func ownActions(s *game.State, legal []game.Action) []game.Action {
	c := s.CurrentColor()
	out := make([]game.Action, 0, len(legal))
	for _, a := range legal {
		if a.Color == c {
			out = append(out, a)
		}
	}
	return out
}
