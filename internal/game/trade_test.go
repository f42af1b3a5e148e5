package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var woodForBrick = TradeOffer{Give: Single(Wood, 1), Want: Single(Brick, 1)}

func offered(t *testing.T) *State {
	t.Helper()
	s := rolled(newPlaying(t, Red, Blue, White), ResourceVector{2, 2, 0, 0, 0})
	return mustApply(t, s, OfferAction(Red, OfferTrade, woodForBrick))
}

func TestOfferRedirectsToFirstResponder(t *testing.T) {
	t.Parallel()

	s := offered(t)

	assert.Equal(t, TradeProposed, s.TradePhase())
	assert.Equal(t, Blue, s.CurrentColor())
	assert.Equal(t, PromptDecideTrade, s.CurrentPrompt())
	assert.Equal(t, []Color{Blue, Red}, s.Actors())
	assert.Equal(t, Red, s.TurnColor())

	legal := s.LegalActions()
	assert.Contains(t, legal, NewAction(Blue, AcceptTrade))
	assert.Contains(t, legal, NewAction(Blue, RejectTrade))
	assert.Contains(t, legal, NewAction(Red, CancelTrade))
	assert.Len(t, legal, 3)
}

func TestTradeAcceptedOnlyWhenEveryoneAccepts(t *testing.T) {
	t.Parallel()

	s := offered(t)
	s = mustApply(t, s, NewAction(Blue, AcceptTrade))
	assert.Equal(t, TradeResolving, s.TradePhase())
	assert.Equal(t, White, s.CurrentColor())
	assert.Equal(t, ResourceVector{2, 2, 0, 0, 0}, s.Player(Red).Resources)

	s, a, err := Apply(s, NewAction(White, AcceptTrade))
	require.NoError(t, err)

	assert.Nil(t, s.Trade)
	assert.Equal(t, TradeNone, s.TradePhase())
	assert.Equal(t, Red, s.CurrentColor())
	assert.Equal(t, PromptPlayTurn, s.CurrentPrompt())
	require.NotNil(t, a.Outcome)
	assert.True(t, *a.Outcome.Accepted)
	assert.Equal(t, Blue, a.Outcome.Partner)
	assert.Equal(t, ResourceVector{1, 3, 0, 0, 0}, s.Player(Red).Resources)
	assert.Equal(t, ResourceVector{3, 1, 0, 0, 0}, s.Player(Blue).Resources)
	assert.Equal(t, ResourceVector{2, 2, 0, 0, 0}, s.Player(White).Resources)
}

func TestSingleRejectResolvesTrade(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		steps []Action
	}{
		{"first responder rejects", []Action{NewAction(Blue, RejectTrade)}},
		{"last responder rejects", []Action{NewAction(Blue, AcceptTrade), NewAction(White, RejectTrade)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := offered(t)
			for _, a := range tt.steps {
				s = mustApply(t, s, a)
			}
			assert.Nil(t, s.Trade)
			assert.Equal(t, Red, s.CurrentColor())
			assert.Equal(t, PromptPlayTurn, s.CurrentPrompt())
			for _, p := range s.Players {
				assert.Equal(t, ResourceVector{2, 2, 0, 0, 0}, p.Resources)
			}
		})
	}
}

func TestInitiatorMayCancelAtAnyStage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		responses []Action
	}{
		{"before any response", nil},
		{"after one accept", []Action{NewAction(Blue, AcceptTrade)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := offered(t)
			for _, a := range tt.responses {
				s = mustApply(t, s, a)
			}
			index := s.Index

			s = mustApply(t, s, NewAction(Red, CancelTrade))
			assert.Equal(t, index+1, s.Index)
			assert.Nil(t, s.Trade)
			assert.Equal(t, Red, s.CurrentColor())
			assert.Equal(t, PromptPlayTurn, s.CurrentPrompt())
			assert.Equal(t, ResourceVector{2, 2, 0, 0, 0}, s.Player(Red).Resources)
		})
	}
}

func TestNonInitiatorCannotCancel(t *testing.T) {
	t.Parallel()

	s := offered(t)
	_, _, err := Apply(s, NewAction(Blue, CancelTrade))
	assert.ErrorIs(t, err, ErrInvalidAction)
	_, _, err = Apply(s, NewAction(White, AcceptTrade))
	assert.ErrorIs(t, err, ErrInvalidAction, "white has not been asked yet")
	_, _, err = Apply(s, NewAction(Red, EndTurn))
	assert.ErrorIs(t, err, ErrInvalidAction, "turn is suspended while the trade resolves")
}

func TestAcceptRequiresWantedResources(t *testing.T) {
	t.Parallel()

	s := rolled(newPlaying(t, Red, Blue), ResourceVector{2, 0, 0, 0, 0})
	s = mustApply(t, s, OfferAction(Red, OfferTrade, woodForBrick))

	assert.NotContains(t, s.LegalActions(), NewAction(Blue, AcceptTrade))
	_, _, err := Apply(s, NewAction(Blue, AcceptTrade))
	assert.ErrorIs(t, err, ErrInvalidAction)
}

func TestOfferValidation(t *testing.T) {
	t.Parallel()

	base := rolled(newPlaying(t, Red, Blue), ResourceVector{2, 2, 0, 0, 0})
	unrolled := base.Clone()
	unrolled.HasRolled = false

	tests := []struct {
		name  string
		state *State
		offer TradeOffer
	}{
		{"before roll", unrolled, woodForBrick},
		{"empty want", base, TradeOffer{Give: Single(Wood, 1)}},
		{"empty give", base, TradeOffer{Want: Single(Wood, 1)}},
		{"same resource", base, TradeOffer{Give: Single(Wood, 1), Want: Single(Wood, 1)}},
		{"negative amount", base, TradeOffer{Give: Single(Wood, 1), Want: Single(Ore, -1)}},
		{"cannot afford", base, TradeOffer{Give: Single(Wood, 3), Want: Single(Ore, 1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Apply(tt.state, OfferAction(Red, OfferTrade, tt.offer))
			assert.ErrorIs(t, err, ErrInvalidAction)
		})
	}

	// Offers outside the enumerated one-for-one set are still playable.
	s := mustApply(t, base, OfferAction(Red, OfferTrade, TradeOffer{Give: Single(Wood, 2), Want: ResourceVector{0, 0, 1, 1, 0}}))
	assert.Equal(t, TradeProposed, s.TradePhase())
}

func TestOneOfferPerTurn(t *testing.T) {
	t.Parallel()

	s := offered(t)
	s = mustApply(t, s, NewAction(Red, CancelTrade))

	_, _, err := Apply(s, OfferAction(Red, OfferTrade, woodForBrick))
	assert.ErrorIs(t, err, ErrInvalidAction)
	for _, a := range s.LegalActions() {
		assert.NotEqual(t, OfferTrade, a.Type)
	}

	s = mustApply(t, s, NewAction(Red, EndTurn))
	assert.Equal(t, 0, s.TradeOffers)
}

func TestTradeInFourSeatRotation(t *testing.T) {
	t.Parallel()

	s := rolled(newPlaying(t, Red, Blue, White, Orange), ResourceVector{1, 1, 1, 1, 1})
	s = mustApply(t, s, NewAction(Red, EndTurn))
	s.HasRolled = true

	s = mustApply(t, s, OfferAction(Blue, OfferTrade, TradeOffer{Give: Single(Ore, 1), Want: Single(Sheep, 1)}))

	var asked []Color
	for s.Trade != nil {
		asked = append(asked, s.CurrentColor())
		s = mustApply(t, s, NewAction(s.CurrentColor(), AcceptTrade))
	}
	assert.Equal(t, []Color{White, Orange, Red}, asked)
	assert.Equal(t, Blue, s.CurrentColor())
	assert.Equal(t, ResourceVector{1, 1, 2, 1, 0}, s.Player(Blue).Resources)
	assert.Equal(t, ResourceVector{1, 1, 0, 1, 2}, s.Player(White).Resources, "first acceptee after the initiator trades")
}
