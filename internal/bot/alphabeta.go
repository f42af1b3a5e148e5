package bot

import (
	"context"
	"math"
	rand "math/rand/v2"

	"github.com/charmbracelet/log"
	"github.com/lox/settlersforbots/internal/game"
	"github.com/lox/settlersforbots/internal/randutil"
)

// AlphaBetaBot searches a fixed number of plies with paranoid minimax: every
// other seat is assumed to play against it. Chance moves (rolls, card draws,
// discards and robber steals) end the line and are scored on a sampled
// outcome, so the search never sees the real future.
type AlphaBetaBot struct {
	depth  int
	seed   int64
	logger *log.Logger
}

// NewAlphaBeta creates a search player with the given ply depth.
func NewAlphaBeta(depth int, seed int64, logger *log.Logger) *AlphaBetaBot {
	return &AlphaBetaBot{depth: depth, seed: seed, logger: logger.WithPrefix("alphabeta-bot")}
}

func isChance(t game.ActionType) bool {
	switch t {
	case game.Roll, game.BuyDevelopmentCard, game.Discard, game.MoveRobber:
		return true
	}
	return false
}

func (b *AlphaBetaBot) Decide(ctx context.Context, s *game.State, legal []game.Action) (game.Action, error) {
	legal = ownActions(s, legal)
	if len(legal) == 0 {
		return game.Action{}, ErrNoLegalAction
	}
	if len(legal) == 1 {
		return legal[0], nil
	}

	me := s.CurrentColor()
	rng := randutil.Derive(b.seed^s.Seed, s.Index)
	view := obscure(s, rng)
	baseline := Evaluate(view, me)

	alpha, beta := math.Inf(-1), math.Inf(1)
	best, bestScore := legal[0], math.Inf(-1)
	for _, a := range legal {
		score, err := b.child(ctx, view, a, me, b.depth-1, alpha, beta, rng)
		if err != nil {
			return game.Action{}, err
		}
		if a.Type == game.OfferTrade && score <= baseline {
			continue
		}
		if score > bestScore {
			best, bestScore = a, score
		}
		alpha = math.Max(alpha, score)
	}

	b.logger.Debug("Bot decision made", "color", me, "action", best, "score", bestScore, "depth", b.depth)
	return best, nil
}

func (b *AlphaBetaBot) child(ctx context.Context, s *game.State, a game.Action, me game.Color, depth int, alpha, beta float64, rng *rand.Rand) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if a.Type == game.AcceptTrade && s.Trade != nil {
		// Intermediate acceptances change nothing until the last responder
		// answers; score the exchange itself.
		return Evaluate(settle(s), me), nil
	}
	next, _, err := game.Apply(s, a)
	if err != nil {
		return 0, err
	}
	if depth <= 0 || isChance(a.Type) || next.IsTerminal() {
		return Evaluate(next, me), nil
	}
	return b.search(ctx, obscure(next, rng), me, depth, alpha, beta, rng)
}

func (b *AlphaBetaBot) search(ctx context.Context, s *game.State, me game.Color, depth int, alpha, beta float64, rng *rand.Rand) (float64, error) {
	legal := ownActions(s, s.LegalActions())
	if len(legal) == 0 {
		return Evaluate(s, me), nil
	}

	maximizing := s.CurrentColor() == me
	value := math.Inf(1)
	if maximizing {
		value = math.Inf(-1)
	}
	for _, a := range legal {
		score, err := b.child(ctx, s, a, me, depth-1, alpha, beta, rng)
		if err != nil {
			return 0, err
		}
		if maximizing {
			value = math.Max(value, score)
			alpha = math.Max(alpha, value)
		} else {
			value = math.Min(value, score)
			beta = math.Min(beta, value)
		}
		if alpha >= beta {
			break
		}
	}
	return value, nil
}
