// Package game implements the turn-ordered state machine for a four-seat
// resource trading game.
//
// The main type is State, an immutable snapshot of one point in a game's
// history. Apply validates an action against a state and returns the next
// state; it never modifies the state it was given and never persists
// anything, so a log of (action, state) pairs is kept by the caller.
//
// # Basic Usage
//
//	s, _ := game.New([]game.Color{game.Red, game.Blue}, game.Options{Seed: 42})
//	for !s.IsTerminal() {
//	    s, _, _ = game.Apply(s, s.LegalActions()[0])
//	}
//
// # Turn Control
//
// Every state exposes a uniform (CurrentColor, CurrentPrompt) pair. Rolling a
// seven redirects control to each seat that must discard and then to the
// roller to move the robber. A domestic trade offer redirects control to each
// responder in rotation order; the initiator keeps the right to cancel, which
// is why Actors may return two colors. When the trade resolves control
// returns to the seat that proposed it.
//
// # Determinism
//
// Dice, discards, steals and the development deck are drawn from a generator
// derived from the game seed and the state index, so replaying a log gives
// back exactly the same states.
package game
