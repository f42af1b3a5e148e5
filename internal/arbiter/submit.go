package arbiter

import (
	"context"
	"errors"
	"fmt"

	"github.com/lox/settlersforbots/internal/bot"
	"github.com/lox/settlersforbots/internal/game"
	"github.com/lox/settlersforbots/internal/store"
)

// Submission is one request to advance a game by a single action.
type Submission struct {
	GameID string
	// Claimed is the color the caller acts for. Nil skips the ownership
	// check.
	Claimed *game.Color
	// ExpectedIndex, when set, must equal the latest index.
	ExpectedIndex *int
	// Action is nil for a bot tick.
	Action *game.Action
}

// Submit validates and applies one action, or one bot move when the
// submission carries no action, and returns the resulting latest entry.
// Terminal games are returned unchanged.
func (a *Arbiter) Submit(ctx context.Context, sub Submission) (store.Entry, error) {
	for attempt := 0; ; attempt++ {
		entry, err := a.submitOnce(ctx, sub)
		if !errors.Is(err, errStale) {
			return entry, err
		}
		if sub.ExpectedIndex != nil || attempt >= a.opts.MaxRetries {
			return entry, fmt.Errorf("%w: %w", ErrConflict, err)
		}
		a.logger.Debug("Recomputing stale bot move", "game", sub.GameID, "attempt", attempt+1)
	}
}

func (a *Arbiter) submitOnce(ctx context.Context, sub Submission) (store.Entry, error) {
	if err := ctx.Err(); err != nil {
		return store.Entry{}, err
	}
	players, err := a.seatPlayers(ctx, sub.GameID)
	if err != nil {
		return store.Entry{}, err
	}

	mu := a.lock(sub.GameID)
	mu.Lock()
	latest, err := a.store.Read(ctx, sub.GameID, store.Latest)
	if err != nil {
		mu.Unlock()
		return store.Entry{}, mapStoreErr(err)
	}
	s := latest.State
	if s.IsTerminal() {
		mu.Unlock()
		return latest, nil
	}

	// A stale view is a conflict even when the turn has since moved on.
	if sub.ExpectedIndex != nil && *sub.ExpectedIndex != latest.Index {
		mu.Unlock()
		return latest, fmt.Errorf("%w: expected state %d, latest is %d", ErrConflict, *sub.ExpectedIndex, latest.Index)
	}
	player := players[s.CurrentSeat]
	botTick := sub.Action == nil && player != nil
	if err := a.checkActor(s, sub, botTick); err != nil {
		mu.Unlock()
		return latest, err
	}
	if err := checkBotSeat(s, players, sub.Action); err != nil {
		mu.Unlock()
		return latest, err
	}

	var action game.Action
	switch {
	case sub.Action != nil:
		action = *sub.Action
	case player == nil:
		mu.Unlock()
		return latest, fmt.Errorf("%w: %s must choose an action", ErrActionRequired, s.CurrentColor())
	default:
		// Bots can be slow, so decide without holding the lock and discard
		// the move if the log moved on meanwhile.
		mu.Unlock()
		action, err = decide(ctx, player, s)
		if err != nil {
			return latest, err
		}
		mu.Lock()
		current, err := a.store.Read(ctx, sub.GameID, store.Latest)
		if err != nil {
			mu.Unlock()
			return store.Entry{}, mapStoreErr(err)
		}
		if current.Index != latest.Index {
			mu.Unlock()
			return current, fmt.Errorf("%w: decided on %d, latest is %d", errStale, latest.Index, current.Index)
		}
	}

	next, applied, err := game.Apply(s, action)
	if err != nil {
		mu.Unlock()
		if sub.Action == nil {
			return latest, fmt.Errorf("%w: bot chose an illegal move: %w", ErrFatal, err)
		}
		return latest, err
	}
	entry := store.Entry{Index: next.Index, Action: &applied, State: next, CreatedAt: a.now()}
	if err := a.store.Append(ctx, sub.GameID, latest.Index, entry); err != nil {
		mu.Unlock()
		if errors.Is(err, store.ErrConflict) {
			// Another process wrote to the same log.
			return latest, fmt.Errorf("%w: %w", errStale, err)
		}
		return latest, fmt.Errorf("append: %w", err)
	}
	mu.Unlock()

	a.logger.Debug("Action applied", "game", sub.GameID, "index", entry.Index, "color", applied.Color, "type", applied.Type)
	if next.IsTerminal() {
		a.logger.Info("Game finished", "game", sub.GameID, "winner", next.Winner, "index", entry.Index)
	}
	a.notify(sub.GameID, entry)
	return entry, nil
}

func (a *Arbiter) checkActor(s *game.State, sub Submission, botTick bool) error {
	if !a.opts.StrictTurns || sub.Claimed == nil || botTick {
		return nil
	}
	claimed := *sub.Claimed
	if !s.MayAct(claimed) {
		return fmt.Errorf("%w: %s may not act, waiting on %s", ErrForbidden, claimed, s.CurrentColor())
	}
	if sub.Action != nil && sub.Action.Color != claimed {
		return fmt.Errorf("%w: %s submitted an action for %s", ErrForbidden, claimed, sub.Action.Color)
	}
	return nil
}

// checkBotSeat rejects explicit actions for colors a bot controls. Bots move
// only through ticks, so a human initiator may still cancel while a bot
// responder is pending.
func checkBotSeat(s *game.State, players []bot.Player, action *game.Action) error {
	if action == nil {
		return nil
	}
	seat := s.Seat(action.Color)
	if seat >= 0 && players[seat] != nil {
		return fmt.Errorf("%w: %s is played by a bot", ErrForbidden, action.Color)
	}
	return nil
}

func decide(ctx context.Context, p bot.Player, s *game.State) (game.Action, error) {
	action, err := p.Decide(ctx, s, s.LegalActions())
	switch {
	case err == nil:
		return action, nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return game.Action{}, err
	default:
		return game.Action{}, fmt.Errorf("%w: bot for %s: %w", ErrFatal, s.CurrentColor(), err)
	}
}

// Advance lets bots act until a human must move or the game ends. It gives
// up with ErrFatal after MaxAutoPlaySteps moves.
func (a *Arbiter) Advance(ctx context.Context, gameID string) (store.Entry, error) {
	latest, err := a.Read(ctx, gameID, store.Latest)
	if err != nil {
		return store.Entry{}, err
	}
	for steps := 0; ; steps++ {
		isBot, err := a.IsBotTurn(ctx, gameID, latest.State)
		if err != nil || !isBot {
			return latest, err
		}
		if steps >= a.opts.MaxAutoPlaySteps {
			a.logger.Error("Auto-play did not settle", "game", gameID, "steps", steps, "index", latest.Index)
			return latest, fmt.Errorf("%w: auto-play exceeded %d steps", ErrFatal, a.opts.MaxAutoPlaySteps)
		}
		latest, err = a.Submit(ctx, Submission{GameID: gameID})
		if err != nil {
			return latest, err
		}
	}
}

// SubmitAndAdvance submits and then runs the bots.
func (a *Arbiter) SubmitAndAdvance(ctx context.Context, sub Submission) (store.Entry, error) {
	if entry, err := a.Submit(ctx, sub); err != nil {
		if latest, rerr := a.Read(ctx, sub.GameID, store.Latest); rerr == nil {
			entry = latest
		}
		return entry, err
	}
	return a.Advance(ctx, sub.GameID)
}
