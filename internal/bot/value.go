package bot

import (
	"context"
	"math"
	rand "math/rand/v2"

	"github.com/charmbracelet/log"
	"github.com/lox/settlersforbots/internal/game"
	"github.com/lox/settlersforbots/internal/randutil"
)

const (
	winScore         = 1e6
	pointWeight      = 1000.0
	productionWeight = 40.0
	knightWeight     = 15.0
	cardWeight       = 1.0
	overLimitPenalty = 8.0
	opponentFactor   = 0.5
)

var buildTargets = []struct {
	cost   game.ResourceVector
	weight float64
}{
	{game.CityCost, 60},
	{game.SettlementCost, 50},
	{game.DevelopmentCost, 25},
}

// Evaluate scores s from c's point of view. Higher is better for c.
func Evaluate(s *game.State, c game.Color) float64 {
	if s.IsTerminal() {
		if s.Winner == c {
			return winScore
		}
		return -winScore
	}
	best := math.Inf(-1)
	for _, other := range s.Colors {
		if other != c {
			best = math.Max(best, seatScore(s, other, false))
		}
	}
	return seatScore(s, c, true) - opponentFactor*best
}

func seatScore(s *game.State, c game.Color, own bool) float64 {
	p := s.Player(c)
	vp := s.PublicVictoryPoints(c)
	if own {
		vp = s.ActualVictoryPoints(c)
	}
	score := pointWeight * float64(vp)

	for i, site := range s.Sites {
		if site.Owner != c || i == s.Robber {
			continue
		}
		score += productionWeight * float64(site.Yield()) * game.DiceProbability(site.Number) * 36 / 5
	}

	score += knightWeight * float64(p.Knights+p.PlayedKnights)
	score += handScore(p.Resources)
	return score
}

func handScore(hand game.ResourceVector) float64 {
	score := cardWeight * float64(min(hand.Total(), game.DiscardLimit))
	if over := hand.Total() - game.DiscardLimit; over > 0 {
		score -= overLimitPenalty * float64(over)
	}
	for _, t := range buildTargets {
		score += t.weight / float64(1+missing(hand, t.cost))
	}
	return score
}

func missing(hand, cost game.ResourceVector) int {
	n := 0
	for r := range cost {
		if d := cost[r] - hand[r]; d > 0 {
			n += d
		}
	}
	return n
}

// obscure returns a copy of s in which the outcome of chance is unknown to
// the caller: a fresh seed and a reshuffled development deck.
func obscure(s *game.State, rng *rand.Rand) *game.State {
	c := s.Clone()
	c.Seed = rng.Int64()
	rng.Shuffle(len(c.DevDeck), func(i, j int) { c.DevDeck[i], c.DevDeck[j] = c.DevDeck[j], c.DevDeck[i] })
	return c
}

// scoreAction evaluates the result of a on the obscured state for c. Trade
// offers and acceptances are scored by the exchange they would produce.
func scoreAction(s *game.State, a game.Action, c game.Color) (float64, error) {
	switch a.Type {
	case game.OfferTrade:
		h := s.Clone()
		seat := h.Seat(c)
		h.Players[seat].Resources = h.Players[seat].Resources.Sub(a.Offer.Give).Add(a.Offer.Want)
		return Evaluate(h, c), nil
	case game.AcceptTrade:
		return Evaluate(settle(s), c), nil
	}
	next, _, err := game.Apply(s, a)
	if err != nil {
		return 0, err
	}
	return Evaluate(next, c), nil
}

// settle returns a copy of s in which the pending trade has been carried out
// between the initiator and the current responder.
func settle(s *game.State) *game.State {
	h := s.Clone()
	t := h.Trade
	init, resp := &h.Players[t.Initiator], &h.Players[h.CurrentSeat]
	init.Resources = init.Resources.Sub(t.Offer.Give).Add(t.Offer.Want)
	resp.Resources = resp.Resources.Sub(t.Offer.Want).Add(t.Offer.Give)
	h.CurrentSeat = t.ReturnSeat
	h.Prompt = game.PromptPlayTurn
	h.Trade = nil
	return h
}

// ValueBot plays the action whose immediate result scores best.
type ValueBot struct {
	seed   int64
	logger *log.Logger
}

// NewValue creates a greedy value-function player.
func NewValue(seed int64, logger *log.Logger) *ValueBot {
	return &ValueBot{seed: seed, logger: logger.WithPrefix("value-bot")}
}

func (b *ValueBot) Decide(ctx context.Context, s *game.State, legal []game.Action) (game.Action, error) {
	legal = ownActions(s, legal)
	if len(legal) == 0 {
		return game.Action{}, ErrNoLegalAction
	}
	if len(legal) == 1 {
		return legal[0], nil
	}

	c := s.CurrentColor()
	view := obscure(s, randutil.Derive(b.seed^s.Seed, s.Index))
	baseline := Evaluate(view, c)

	best, bestScore := legal[0], math.Inf(-1)
	for _, a := range legal {
		if err := ctx.Err(); err != nil {
			return game.Action{}, err
		}
		score, err := scoreAction(view, a, c)
		if err != nil {
			return game.Action{}, err
		}
		if a.Type == game.OfferTrade && score <= baseline {
			continue
		}
		if score > bestScore {
			best, bestScore = a, score
		}
	}

	b.logger.Debug("Bot decision made", "color", c, "action", best, "score", bestScore)
	return best, nil
}
