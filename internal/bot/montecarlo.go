package bot

import (
	"context"
	"fmt"
	"math"
	rand "math/rand/v2"
	"runtime"

	"github.com/lox/settlersforbots/internal/game"
	"github.com/lox/settlersforbots/internal/randutil"
	"golang.org/x/sync/errgroup"
)

// DefaultRolloutSteps caps the length of a single rollout.
const DefaultRolloutSteps = 5000

// Estimate is the result of a batch of rollouts.
type Estimate struct {
	Simulations int                `json:"simulations"`
	Wins        map[game.Color]int `json:"wins"`
	Unfinished  int                `json:"unfinished"`
}

// Probability is the fraction of rollouts c won.
func (e Estimate) Probability(c game.Color) float64 {
	if e.Simulations == 0 {
		return 0
	}
	return float64(e.Wins[c]) / float64(e.Simulations)
}

// Probabilities maps every seat to its estimated win probability.
func (e Estimate) Probabilities() map[game.Color]float64 {
	out := make(map[game.Color]float64, len(e.Wins))
	for c := range e.Wins {
		out[c] = e.Probability(c)
	}
	return out
}

// ConfidenceInterval returns the 95% confidence interval for c's probability.
func (e Estimate) ConfidenceInterval(c game.Color) (lower, upper float64) {
	if e.Simulations == 0 {
		return 0, 0
	}
	p := e.Probability(c)
	// Standard error for binomial proportion
	margin := 1.96 * math.Sqrt(p*(1-p)/float64(e.Simulations))
	return math.Max(0, p-margin), math.Min(1, p+margin)
}

// MonteCarlo estimates win probabilities by playing the position out many
// times with a fast heuristic policy. Every rollout works on its own copy,
// with a fresh seed and a reshuffled development deck.
type MonteCarlo struct {
	// Workers bounds parallel rollouts. Zero uses the CPU count, capped at 8.
	Workers int
	// MaxSteps caps actions per rollout. Zero uses DefaultRolloutSteps.
	MaxSteps int
	// Seed, when non-nil, makes estimates reproducible.
	Seed *int64
}

type rolloutResult struct {
	wins       map[game.Color]int
	unfinished int
}

func (m *MonteCarlo) Estimate(ctx context.Context, s *game.State, simulations int) (Estimate, error) {
	if simulations <= 0 {
		return Estimate{}, fmt.Errorf("simulations must be positive, got %d", simulations)
	}

	workers := m.Workers
	if workers <= 0 {
		workers = min(runtime.NumCPU(), 8)
	}
	workers = min(workers, simulations)
	maxSteps := m.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultRolloutSteps
	}

	master := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	if m.Seed != nil {
		master = randutil.New(*m.Seed)
	}

	perWorker := simulations / workers
	remainder := simulations % workers
	results := make([]rolloutResult, workers)

	g, ctx := errgroup.WithContext(ctx)
	for w := range workers {
		n := perWorker
		if w < remainder {
			n++
		}
		// Independent RNG per worker to avoid contention
		workerSeed := master.Int64()

		g.Go(func() error {
			rng := randutil.New(workerSeed)
			res := rolloutResult{wins: make(map[game.Color]int)}
			for range n {
				if err := ctx.Err(); err != nil {
					return err
				}
				winner, err := rollout(s, rng, maxSteps)
				if err != nil {
					return err
				}
				if winner == "" {
					res.unfinished++
				} else {
					res.wins[winner]++
				}
			}
			results[w] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Estimate{}, err
	}

	est := Estimate{Simulations: simulations, Wins: make(map[game.Color]int, len(s.Colors))}
	for _, c := range s.Colors {
		est.Wins[c] = 0
	}
	for _, r := range results {
		for c, n := range r.wins {
			est.Wins[c] += n
		}
		est.Unfinished += r.unfinished
	}
	return est, nil
}

// rollout plays a private copy of s to the end and returns the winner, or ""
// when the step cap is hit.
func rollout(s *game.State, rng *rand.Rand, maxSteps int) (game.Color, error) {
	cur := obscure(s, rng)
	for range maxSteps {
		if cur.IsTerminal() {
			return cur.Winner, nil
		}
		legal := ownActions(cur, cur.LegalActions())
		if len(legal) == 0 {
			return "", fmt.Errorf("rollout at index %d: %w", cur.Index, ErrNoLegalAction)
		}
		next, _, err := game.Apply(cur, rolloutPolicy(cur, legal, rng))
		if err != nil {
			return "", fmt.Errorf("rollout at index %d: %w", cur.Index, err)
		}
		cur = next
	}
	return cur.Winner, nil
}

var rolloutPreference = []game.ActionType{
	game.BuildCity,
	game.BuildSettlement,
	game.BuyDevelopmentCard,
	game.PlayKnightCard,
	game.Roll,
	game.Discard,
	game.MoveRobber,
	game.RejectTrade,
	game.MaritimeTrade,
	game.EndTurn,
}

// rolloutPolicy is a cheap rule-based player: build whenever possible, trade
// with the bank toward the scarcest resource, and otherwise end the turn.
// Ties between equally preferred moves are broken at random.
func rolloutPolicy(s *game.State, legal []game.Action, rng *rand.Rand) game.Action {
	hand := s.Players[s.CurrentSeat].Resources
	for _, t := range rolloutPreference {
		var candidates []game.Action
		for _, a := range legal {
			if a.Type == t {
				candidates = append(candidates, a)
			}
		}
		if len(candidates) == 0 {
			continue
		}
		if t == game.MaritimeTrade {
			best := candidates[0]
			for _, a := range candidates[1:] {
				if hand[wanted(a.Offer)] < hand[wanted(best.Offer)] {
					best = a
				}
			}
			return best
		}
		return candidates[rng.IntN(len(candidates))]
	}
	return legal[rng.IntN(len(legal))]
}

func wanted(o game.TradeOffer) game.Resource {
	for r, n := range o.Want {
		if n > 0 {
			return game.Resource(r)
		}
	}
	return game.Wood
}
