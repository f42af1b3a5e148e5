// Package arbiter serialises submissions against each game's action log. It
// checks turn ownership and the caller's expected index, asks bots for moves
// when a submission carries no action, applies the move and appends the
// result, all as one step per game.
package arbiter

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/lox/settlersforbots/internal/bot"
	"github.com/lox/settlersforbots/internal/game"
	"github.com/lox/settlersforbots/internal/gameid"
	"github.com/lox/settlersforbots/internal/randutil"
	"github.com/lox/settlersforbots/internal/store"
)

const (
	DefaultMaxAutoPlaySteps = 10000
	DefaultMaxRetries       = 16
)

// PlayerFactory builds the automated player for a seat.
type PlayerFactory func(kind bot.Kind, seat int, opts bot.Options) (bot.Player, error)

// Options configures an Arbiter.
type Options struct {
	// StrictTurns rejects submissions whose claimed actor may not act.
	StrictTurns bool
	// MaxAutoPlaySteps bounds Advance. Exceeding it is a fatal error.
	MaxAutoPlaySteps int
	// MaxRetries bounds how often a bot move computed on a stale snapshot is
	// recomputed before giving up with ErrConflict.
	MaxRetries int
	Bots       bot.Options
	Players    PlayerFactory
	Evaluator  bot.Evaluator
	Clock      quartz.Clock
	IDs        *gameid.Generator
}

// Observer is told about every appended entry.
type Observer func(gameID string, e store.Entry)

// Arbiter is the only writer of game logs.
type Arbiter struct {
	store  store.Store
	logger *log.Logger
	opts   Options

	locks   sync.Map // game id -> *sync.Mutex
	players sync.Map // game id -> []bot.Player, nil for human seats

	observerMu sync.RWMutex
	observers  map[int]Observer
	nextObs    int
}

// New creates an arbiter over st.
func New(st store.Store, logger *log.Logger, opts Options) *Arbiter {
	if opts.MaxAutoPlaySteps <= 0 {
		opts.MaxAutoPlaySteps = DefaultMaxAutoPlaySteps
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}
	if opts.IDs == nil {
		opts.IDs = gameid.NewGenerator(nil, opts.Clock)
	}
	if opts.Evaluator == nil {
		opts.Evaluator = &bot.MonteCarlo{}
	}
	if opts.Players == nil {
		l := logger
		opts.Players = func(kind bot.Kind, _ int, bo bot.Options) (bot.Player, error) {
			return bot.New(kind, bo, l)
		}
	}
	return &Arbiter{
		store:     st,
		logger:    logger.WithPrefix("arbiter"),
		opts:      opts,
		observers: make(map[int]Observer),
	}
}

// Subscribe registers fn for appended entries and returns a function that
// removes it. Observers run on the submitting goroutine after the per-game
// lock has been released.
func (a *Arbiter) Subscribe(fn Observer) func() {
	a.observerMu.Lock()
	defer a.observerMu.Unlock()
	id := a.nextObs
	a.nextObs++
	a.observers[id] = fn
	return func() {
		a.observerMu.Lock()
		defer a.observerMu.Unlock()
		delete(a.observers, id)
	}
}

func (a *Arbiter) notify(gameID string, e store.Entry) {
	a.observerMu.RLock()
	defer a.observerMu.RUnlock()
	for _, fn := range a.observers {
		fn(gameID, e)
	}
}

func (a *Arbiter) lock(gameID string) *sync.Mutex {
	mu, _ := a.locks.LoadOrStore(gameID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func mapStoreErr(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, store.ErrConflict):
		return fmt.Errorf("%w: %w", ErrConflict, err)
	}
	return err
}

// CreateRequest describes a new game. Seats are assigned colors in seat
// order unless Colors names them.
type CreateRequest struct {
	Seats         []bot.Kind
	Colors        []game.Color
	Seed          *int64
	VictoryPoints int
}

// Create starts a game and writes its index-0 state.
func (a *Arbiter) Create(ctx context.Context, req CreateRequest) (string, store.Entry, error) {
	if len(req.Seats) < 2 || len(req.Seats) > game.MaxSeats {
		return "", store.Entry{}, fmt.Errorf("%w: game needs 2 to %d seats, got %d", game.ErrInvalidAction, game.MaxSeats, len(req.Seats))
	}
	now := a.opts.Clock.Now()
	seed := now.UnixNano()
	if req.Seed != nil {
		seed = *req.Seed
	}

	colors := game.SeatOrder[:len(req.Seats)]
	if len(req.Colors) > 0 {
		if len(req.Colors) != len(req.Seats) {
			return "", store.Entry{}, fmt.Errorf("%w: %d colors for %d seats", game.ErrInvalidAction, len(req.Colors), len(req.Seats))
		}
		colors = req.Colors
	}
	seats := make([]store.Seat, len(req.Seats))
	for i, kind := range req.Seats {
		k, err := bot.ParseKind(string(kind))
		if err != nil {
			return "", store.Entry{}, fmt.Errorf("%w: seat %s: %w", game.ErrInvalidAction, colors[i], err)
		}
		seats[i] = store.Seat{Color: colors[i], Kind: string(k)}
	}
	players, err := a.buildPlayers(seats, seed)
	if err != nil {
		return "", store.Entry{}, err
	}

	initial, err := game.New(colors, game.Options{Seed: seed, VictoryPoints: req.VictoryPoints})
	if err != nil {
		return "", store.Entry{}, fmt.Errorf("%w: %w", game.ErrInvalidAction, err)
	}
	id := a.opts.IDs.New(gameid.GamePrefix)
	entry := store.Entry{Index: 0, State: initial, CreatedAt: now}
	if err := a.store.Create(ctx, store.Game{ID: id, Seats: seats, CreatedAt: now}, entry); err != nil {
		return "", store.Entry{}, fmt.Errorf("create game: %w", err)
	}
	a.players.Store(id, players)

	a.logger.Info("Game created", "game", id, "seats", req.Seats, "seed", seed)
	return id, entry, nil
}

func (a *Arbiter) buildPlayers(seats []store.Seat, seed int64) ([]bot.Player, error) {
	players := make([]bot.Player, len(seats))
	for i, seat := range seats {
		kind, err := bot.ParseKind(seat.Kind)
		if err != nil {
			return nil, fmt.Errorf("%w: seat %s: %w", game.ErrInvalidAction, seat.Color, err)
		}
		if kind.IsHuman() {
			continue
		}
		opts := a.opts.Bots
		opts.Seed = randutil.DeriveSeed(seed, i)
		p, err := a.opts.Players(kind, i, opts)
		if err != nil {
			return nil, fmt.Errorf("seat %s: %w", seat.Color, err)
		}
		players[i] = p
	}
	return players, nil
}

// seatPlayers returns the per-seat bot handles, rebuilding them from the
// stored seat kinds when the game was created by another process.
func (a *Arbiter) seatPlayers(ctx context.Context, gameID string) ([]bot.Player, error) {
	if p, ok := a.players.Load(gameID); ok {
		return p.([]bot.Player), nil
	}
	meta, err := a.store.Game(ctx, gameID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	first, err := a.store.Read(ctx, gameID, 0)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	players, err := a.buildPlayers(meta.Seats, first.State.Seed)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFatal, err)
	}
	p, _ := a.players.LoadOrStore(gameID, players)
	return p.([]bot.Player), nil
}

// Read returns the entry at index, or the latest for store.Latest.
func (a *Arbiter) Read(ctx context.Context, gameID string, index int) (store.Entry, error) {
	e, err := a.store.Read(ctx, gameID, index)
	return e, mapStoreErr(err)
}

// Entries returns the log from index 0 through upTo.
func (a *Arbiter) Entries(ctx context.Context, gameID string, upTo int) ([]store.Entry, error) {
	entries, err := a.store.Entries(ctx, gameID, upTo)
	return entries, mapStoreErr(err)
}

// Game returns a game's metadata.
func (a *Arbiter) Game(ctx context.Context, gameID string) (store.Game, error) {
	g, err := a.store.Game(ctx, gameID)
	return g, mapStoreErr(err)
}

// List returns recently updated games.
func (a *Arbiter) List(ctx context.Context, limit int) ([]store.Game, error) {
	return a.store.List(ctx, limit)
}

// Delete removes a game and its log.
func (a *Arbiter) Delete(ctx context.Context, gameID string) error {
	mu := a.lock(gameID)
	mu.Lock()
	defer mu.Unlock()
	if err := a.store.Delete(ctx, gameID); err != nil {
		return mapStoreErr(err)
	}
	a.players.Delete(gameID)
	a.logger.Info("Game deleted", "game", gameID)
	return nil
}

// Estimate runs the configured evaluator on the state at index.
func (a *Arbiter) Estimate(ctx context.Context, gameID string, index, simulations int) (bot.Estimate, store.Entry, error) {
	e, err := a.Read(ctx, gameID, index)
	if err != nil {
		return bot.Estimate{}, store.Entry{}, err
	}
	est, err := a.opts.Evaluator.Estimate(ctx, e.State, simulations)
	if err != nil {
		return bot.Estimate{}, e, fmt.Errorf("estimate: %w", err)
	}
	return est, e, nil
}

// IsBotTurn reports whether the actor the state waits on is automated.
func (a *Arbiter) IsBotTurn(ctx context.Context, gameID string, s *game.State) (bool, error) {
	players, err := a.seatPlayers(ctx, gameID)
	if err != nil {
		return false, err
	}
	return !s.IsTerminal() && players[s.CurrentSeat] != nil, nil
}

// Seats returns each seat's controller kind.
func (a *Arbiter) Seats(ctx context.Context, gameID string) ([]store.Seat, error) {
	g, err := a.Game(ctx, gameID)
	if err != nil {
		return nil, err
	}
	return slices.Clone(g.Seats), nil
}

func (a *Arbiter) now() time.Time { return a.opts.Clock.Now() }
