package game

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// newPlaying returns a state past the initial build phase with the first seat
// to act, each seat having placed on the lowest free sites.
func newPlaying(t *testing.T, colors ...Color) *State {
	t.Helper()
	s, err := New(colors, Options{Seed: 42})
	require.NoError(t, err)
	for s.InitialBuildPhase {
		s = mustApply(t, s, s.LegalActions()[0])
	}
	require.Equal(t, PromptPlayTurn, s.Prompt)
	return s
}

// rolled returns a copy of s in which the turn seat has already rolled and
// every seat holds the given hand.
func rolled(s *State, hand ResourceVector) *State {
	s = s.Clone()
	s.HasRolled = true
	for i := range s.Players {
		s.Players[i].Resources = hand
	}
	return s
}

func mustApply(t *testing.T, s *State, a Action) *State {
	t.Helper()
	next, _, err := Apply(s, a)
	require.NoError(t, err, "apply %s", a)
	return next
}
