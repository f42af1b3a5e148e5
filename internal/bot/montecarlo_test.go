package bot

import (
	"context"
	"math"
	"testing"

	"github.com/lox/settlersforbots/internal/game"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonteCarloEstimatesAreProbabilities(t *testing.T) {
	t.Parallel()

	s := playing(t, 6, game.Red, game.Blue, game.White)
	before := s.Clone()
	mc := &MonteCarlo{}

	est, err := mc.Estimate(context.Background(), s, 60)
	require.NoError(t, err)
	assert.Equal(t, before, s, "estimate must not modify the state")
	assert.Equal(t, 60, est.Simulations)

	probs := est.Probabilities()
	require.Len(t, probs, 3)
	total := 0.0
	for c, p := range probs {
		assert.GreaterOrEqual(t, p, 0.0, "%s", c)
		assert.LessOrEqual(t, p, 1.0, "%s", c)
		total += p
	}
	assert.LessOrEqual(t, total, 1.0+1e-9)
}

func TestMonteCarloRepeatedEstimatesAgree(t *testing.T) {
	t.Parallel()

	s := playing(t, 6, game.Red, game.Blue)
	mc := &MonteCarlo{}
	ctx := context.Background()

	maxDiff := func(sims int) float64 {
		a, err := mc.Estimate(ctx, s, sims)
		require.NoError(t, err)
		b, err := mc.Estimate(ctx, s, sims)
		require.NoError(t, err)
		d := 0.0
		for _, c := range s.Colors {
			d = math.Max(d, math.Abs(a.Probability(c)-b.Probability(c)))
		}
		return d
	}

	assert.LessOrEqual(t, maxDiff(100), 0.3)
	assert.LessOrEqual(t, maxDiff(400), 0.15)
}

func TestMonteCarloIntervalNarrowsWithSimulations(t *testing.T) {
	t.Parallel()

	s := playing(t, 6, game.Red, game.Blue)
	seed := int64(7)
	mc := &MonteCarlo{Seed: &seed}
	ctx := context.Background()

	small, err := mc.Estimate(ctx, s, 25)
	require.NoError(t, err)
	large, err := mc.Estimate(ctx, s, 400)
	require.NoError(t, err)

	lo, hi := small.ConfidenceInterval(game.Red)
	smallWidth := hi - lo
	lo, hi = large.ConfidenceInterval(game.Red)
	assert.Less(t, hi-lo, smallWidth)
}

func TestMonteCarloSeedIsReproducible(t *testing.T) {
	t.Parallel()

	s := playing(t, 5, game.Red, game.Blue)
	seed := int64(3)
	mc := &MonteCarlo{Seed: &seed, Workers: 4}

	a, err := mc.Estimate(context.Background(), s, 40)
	require.NoError(t, err)
	b, err := mc.Estimate(context.Background(), s, 40)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestMonteCarloTerminalState(t *testing.T) {
	t.Parallel()

	s := playing(t, 3, game.Red, game.Blue)
	s.HasRolled = true
	s.Players[0].Resources = game.SettlementCost
	s, _, err := game.Apply(s, game.SiteAction(game.Red, game.BuildSettlement, firstEmpty(s)))
	require.NoError(t, err)
	require.True(t, s.IsTerminal())

	est, err := (&MonteCarlo{}).Estimate(context.Background(), s, 10)
	require.NoError(t, err)
	assert.Equal(t, 1.0, est.Probability(game.Red))
	assert.Equal(t, 0.0, est.Probability(game.Blue))
}

func TestMonteCarloRejectsBadInput(t *testing.T) {
	t.Parallel()

	s := playing(t, 0, game.Red, game.Blue)
	_, err := (&MonteCarlo{}).Estimate(context.Background(), s, 0)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = (&MonteCarlo{}).Estimate(ctx, s, 50)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConfidenceInterval(t *testing.T) {
	t.Parallel()

	e := Estimate{Simulations: 100, Wins: map[game.Color]int{game.Red: 50, game.Blue: 40}}
	lo, hi := e.ConfidenceInterval(game.Red)
	assert.InDelta(t, 0.402, lo, 0.001)
	assert.InDelta(t, 0.598, hi, 0.001)

	lo, hi = Estimate{}.ConfidenceInterval(game.Red)
	assert.Zero(t, lo)
	assert.Zero(t, hi)
}

func firstEmpty(s *game.State) int {
	for i, site := range s.Sites {
		if site.Building == game.NoBuilding {
			return i
		}
	}
	return -1
}
