package bot

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/lox/settlersforbots/internal/game"
	"github.com/lox/settlersforbots/internal/randutil"
)

// RandomBot plays a uniformly random legal action.
type RandomBot struct {
	seed   int64
	logger *log.Logger
}

// NewRandom creates a RandomBot. Choices are derived from the seed and the
// state, so the bot holds no mutable state between calls.
func NewRandom(seed int64, logger *log.Logger) *RandomBot {
	return &RandomBot{seed: seed, logger: logger.WithPrefix("random-bot")}
}

func (b *RandomBot) Decide(_ context.Context, s *game.State, legal []game.Action) (game.Action, error) {
	legal = ownActions(s, legal)
	if len(legal) == 0 {
		return game.Action{}, ErrNoLegalAction
	}
	rng := randutil.Derive(b.seed^s.Seed, s.Index)
	a := legal[rng.IntN(len(legal))]
	b.logger.Debug("Bot decision made", "color", s.CurrentColor(), "action", a)
	return a, nil
}
