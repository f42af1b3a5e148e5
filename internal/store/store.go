// Package store persists each game's append-only action log.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/lox/settlersforbots/internal/game"
)

var (
	// ErrNotFound is returned for unknown games or indices.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned when an append's expected index is stale.
	ErrConflict = errors.New("store: index conflict")
	// ErrExists is returned when creating a game id twice.
	ErrExists = errors.New("store: game exists")
)

// Latest addresses the newest entry of a log.
const Latest = -1

// Seat records who controls a color.
type Seat struct {
	Color game.Color `json:"color"`
	Kind  string     `json:"kind"`
}

// Game is the metadata row of one game.
type Game struct {
	ID        string     `json:"game_id"`
	Seats     []Seat     `json:"seats"`
	Latest    int        `json:"state_index"`
	Winner    game.Color `json:"winner,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Entry is one log position: the action that produced State, or no action
// for index 0.
type Entry struct {
	Index     int          `json:"index"`
	Action    *game.Action `json:"action,omitempty"`
	State     *game.State  `json:"state"`
	CreatedAt time.Time    `json:"created_at"`
}

// Event is an auxiliary record attached to a game, such as an analysis or
// advice request. Events are never part of the action log.
type Event struct {
	ID         int64           `json:"id"`
	GameID     string          `json:"game_id"`
	Type       string          `json:"type"`
	StateIndex int             `json:"state_index"`
	Color      game.Color      `json:"color,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Store is the action log storage contract.
type Store interface {
	// Create registers a game and writes its index-0 entry.
	Create(ctx context.Context, g Game, initial Entry) error
	// Append writes e at expected+1 if and only if the latest index is still
	// expected. The check and the write are atomic; a stale expected index
	// fails with ErrConflict and writes nothing.
	Append(ctx context.Context, gameID string, expected int, e Entry) error
	// Read returns the entry at index, or the newest entry for Latest.
	Read(ctx context.Context, gameID string, index int) (Entry, error)
	// Entries returns every entry from index 0 through upTo inclusive.
	Entries(ctx context.Context, gameID string, upTo int) ([]Entry, error)
	Game(ctx context.Context, gameID string) (Game, error)
	// List returns up to limit games, most recently updated first.
	List(ctx context.Context, limit int) ([]Game, error)
	Delete(ctx context.Context, gameID string) error
	AppendEvent(ctx context.Context, ev Event) (Event, error)
	Events(ctx context.Context, gameID string) ([]Event, error)
	Close() error
}
