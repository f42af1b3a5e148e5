package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
)

type memGame struct {
	mu      sync.RWMutex
	meta    Game
	entries []Entry
	events  []Event
}

// Memory is an in-process Store. Each game has its own lock so appends to
// different games never contend.
type Memory struct {
	mu      sync.RWMutex
	games   map[string]*memGame
	eventID int64
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{games: make(map[string]*memGame)}
}

func (m *Memory) lookup(id string) (*memGame, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.games[id]
	if !ok {
		return nil, fmt.Errorf("game %s: %w", id, ErrNotFound)
	}
	return g, nil
}

func copyEntry(e Entry) Entry {
	if e.State != nil {
		e.State = e.State.Clone()
	}
	if e.Action != nil {
		a := *e.Action
		e.Action = &a
	}
	return e
}

func (m *Memory) Create(ctx context.Context, g Game, initial Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if initial.Index != 0 || initial.State == nil {
		return fmt.Errorf("initial entry must be index 0 with a state")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.games[g.ID]; ok {
		return fmt.Errorf("game %s: %w", g.ID, ErrExists)
	}
	g.Seats = slices.Clone(g.Seats)
	g.Latest = 0
	if g.UpdatedAt.IsZero() {
		g.UpdatedAt = g.CreatedAt
	}
	m.games[g.ID] = &memGame{meta: g, entries: []Entry{copyEntry(initial)}}
	return nil
}

func (m *Memory) Append(ctx context.Context, gameID string, expected int, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g, err := m.lookup(gameID)
	if err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	latest := len(g.entries) - 1
	if expected != latest {
		return fmt.Errorf("game %s: expected index %d, latest is %d: %w", gameID, expected, latest, ErrConflict)
	}
	if e.Index != expected+1 || e.State == nil {
		return fmt.Errorf("entry must be index %d with a state", expected+1)
	}
	g.entries = append(g.entries, copyEntry(e))
	g.meta.Latest = e.Index
	g.meta.Winner = e.State.Winner
	g.meta.UpdatedAt = e.CreatedAt
	return nil
}

func (m *Memory) Read(ctx context.Context, gameID string, index int) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	g, err := m.lookup(gameID)
	if err != nil {
		return Entry{}, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	if index == Latest {
		index = len(g.entries) - 1
	}
	if index < 0 || index >= len(g.entries) {
		return Entry{}, fmt.Errorf("game %s index %d: %w", gameID, index, ErrNotFound)
	}
	return copyEntry(g.entries[index]), nil
}

func (m *Memory) Entries(ctx context.Context, gameID string, upTo int) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g, err := m.lookup(gameID)
	if err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	if upTo == Latest {
		upTo = len(g.entries) - 1
	}
	if upTo < 0 || upTo >= len(g.entries) {
		return nil, fmt.Errorf("game %s index %d: %w", gameID, upTo, ErrNotFound)
	}
	out := make([]Entry, 0, upTo+1)
	for _, e := range g.entries[:upTo+1] {
		out = append(out, copyEntry(e))
	}
	return out, nil
}

func (m *Memory) Game(ctx context.Context, gameID string) (Game, error) {
	if err := ctx.Err(); err != nil {
		return Game{}, err
	}
	g, err := m.lookup(gameID)
	if err != nil {
		return Game{}, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	meta := g.meta
	meta.Seats = slices.Clone(meta.Seats)
	return meta, nil
}

func (m *Memory) List(ctx context.Context, limit int) ([]Game, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	ids := make([]string, 0, len(m.games))
	for id := range m.games {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	out := make([]Game, 0, len(ids))
	for _, id := range ids {
		g, err := m.Game(ctx, id)
		if err != nil {
			continue // deleted concurrently
		}
		out = append(out, g)
	}
	slices.SortFunc(out, func(a, b Game) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) Delete(ctx context.Context, gameID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.games[gameID]; !ok {
		return fmt.Errorf("game %s: %w", gameID, ErrNotFound)
	}
	delete(m.games, gameID)
	return nil
}

func (m *Memory) AppendEvent(ctx context.Context, ev Event) (Event, error) {
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}
	g, err := m.lookup(ev.GameID)
	if err != nil {
		return Event{}, err
	}
	m.mu.Lock()
	m.eventID++
	ev.ID = m.eventID
	m.mu.Unlock()

	g.mu.Lock()
	defer g.mu.Unlock()
	ev.Payload = slices.Clone(ev.Payload)
	g.events = append(g.events, ev)
	return ev, nil
}

func (m *Memory) Events(ctx context.Context, gameID string) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g, err := m.lookup(gameID)
	if err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.events), nil
}

func (m *Memory) Close() error { return nil }

var _ Store = (*Memory)(nil)
