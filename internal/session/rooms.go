package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/lox/settlersforbots/internal/arbiter"
	"github.com/lox/settlersforbots/internal/bot"
	"github.com/lox/settlersforbots/internal/game"
	"github.com/lox/settlersforbots/internal/gameid"
	"github.com/lox/settlersforbots/internal/store"
)

var (
	ErrRoomNotFound = errors.New("session: room not found")
	ErrRoomFull     = errors.New("session: room full")
	// ErrInvalidRequest covers lobby requests that can never succeed in the
	// room's current phase.
	ErrInvalidRequest = errors.New("session: invalid request")
)

const (
	DefaultRoomName   = "Room"
	MinPlayersToStart = 2
	roomListLimit     = 100
)

// Games is the part of the arbiter the lobby drives.
type Games interface {
	Create(ctx context.Context, req arbiter.CreateRequest) (string, store.Entry, error)
	Submit(ctx context.Context, sub arbiter.Submission) (store.Entry, error)
	Read(ctx context.Context, gameID string, index int) (store.Entry, error)
}

// SeatView is one seat as shown to a caller.
type SeatView struct {
	Color    game.Color `json:"color"`
	UserName *string    `json:"user_name"`
	IsYou    bool       `json:"is_you"`
}

// RoomView is a room as shown to a caller.
type RoomView struct {
	RoomID     string     `json:"room_id"`
	RoomName   string     `json:"room_name"`
	Seats      []SeatView `json:"seats"`
	Started    bool       `json:"started"`
	GameID     string     `json:"game_id,omitempty"`
	StateIndex *int       `json:"state_index"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Joined is the result of joining a room.
type Joined struct {
	Token    string     `json:"token"`
	Seat     game.Color `json:"seat_color"`
	UserName string     `json:"user_name"`
	Room     RoomView   `json:"room"`
}

type room struct {
	id         string
	name       string
	users      [game.MaxSeats]string
	started    bool
	starting   bool
	gameID     string
	stateIndex int
	createdAt  time.Time
	updatedAt  time.Time
}

// Rooms is the lobby for human-only games.
type Rooms struct {
	games    Games
	registry *Registry
	clock    quartz.Clock
	ids      *gameid.Generator
	logger   *log.Logger

	mu    sync.Mutex
	rooms map[string]*room
}

// NewRooms creates an empty lobby.
func NewRooms(games Games, registry *Registry, clock quartz.Clock, logger *log.Logger) *Rooms {
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &Rooms{
		games:    games,
		registry: registry,
		clock:    clock,
		ids:      gameid.NewGenerator(nil, clock),
		logger:   logger.WithPrefix("rooms"),
		rooms:    make(map[string]*room),
	}
}

func (r *room) view(s *Session) RoomView {
	v := RoomView{
		RoomID:    r.id,
		RoomName:  r.name,
		Seats:     make([]SeatView, len(r.users)),
		Started:   r.started,
		GameID:    r.gameID,
		CreatedAt: r.createdAt,
		UpdatedAt: r.updatedAt,
	}
	if r.started {
		idx := r.stateIndex
		v.StateIndex = &idx
	}
	for i, c := range game.SeatOrder {
		seat := SeatView{Color: c}
		if r.users[i] != "" {
			name := r.users[i]
			seat.UserName = &name
		}
		seat.IsYou = s != nil && s.RoomID == r.id && s.Seat == c
		v.Seats[i] = seat
	}
	return v
}

func (r *room) seated() []game.Color {
	var colors []game.Color
	for i, u := range r.users {
		if u != "" {
			colors = append(colors, game.SeatOrder[i])
		}
	}
	return colors
}

// Create opens a room. A blank name becomes DefaultRoomName.
func (rs *Rooms) Create(name string) RoomView {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultRoomName
	}
	now := rs.clock.Now()
	r := &room{id: rs.ids.New(gameid.RoomPrefix), name: name, createdAt: now, updatedAt: now}

	rs.mu.Lock()
	rs.rooms[r.id] = r
	rs.mu.Unlock()

	rs.logger.Info("Room created", "room", r.id, "name", name)
	return r.view(nil)
}

// List returns the newest rooms first.
func (rs *Rooms) List() []RoomView {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rooms := make([]*room, 0, len(rs.rooms))
	for _, r := range rs.rooms {
		rooms = append(rooms, r)
	}
	slices.SortFunc(rooms, func(a, b *room) int {
		if c := b.createdAt.Compare(a.createdAt); c != 0 {
			return c
		}
		return strings.Compare(b.id, a.id)
	})
	if len(rooms) > roomListLimit {
		rooms = rooms[:roomListLimit]
	}
	views := make([]RoomView, len(rooms))
	for i, r := range rooms {
		views[i] = r.view(nil)
	}
	return views
}

func (rs *Rooms) lookup(roomID string) (*room, error) {
	r, ok := rs.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}
	return r, nil
}

// Status shows a room. A valid token for the room marks the caller's seat;
// any other token is ignored.
func (rs *Rooms) Status(roomID, token string) (RoomView, error) {
	var caller *Session
	if s, err := rs.registry.Resolve(token); err == nil && s.RoomID == roomID {
		caller = &s
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	r, err := rs.lookup(roomID)
	if err != nil {
		return RoomView{}, err
	}
	return r.view(caller), nil
}

// Join seats a user in the first free seat. Joining again under the same name
// issues a new credential for the seat already held.
func (rs *Rooms) Join(roomID, userName string) (Joined, error) {
	userName = strings.TrimSpace(userName)
	if userName == "" {
		return Joined{}, fmt.Errorf("%w: user name required", ErrInvalidRequest)
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()
	r, err := rs.lookup(roomID)
	if err != nil {
		return Joined{}, err
	}
	if r.started || r.starting {
		return Joined{}, fmt.Errorf("%w: game already started", ErrInvalidRequest)
	}

	seat := slices.Index(r.users[:], userName)
	if seat < 0 {
		seat = slices.Index(r.users[:], "")
		if seat < 0 {
			return Joined{}, fmt.Errorf("%w: %s", ErrRoomFull, roomID)
		}
		r.users[seat] = userName
		r.updatedAt = rs.clock.Now()
	}

	s, err := rs.registry.Issue(r.id, game.SeatOrder[seat], userName)
	if err != nil {
		return Joined{}, err
	}
	rs.logger.Info("Player joined", "room", r.id, "user", userName, "seat", s.Seat)
	return Joined{Token: s.Token, Seat: s.Seat, UserName: userName, Room: r.view(&s)}, nil
}

// Authenticate resolves token and checks it belongs to roomID.
func (rs *Rooms) Authenticate(token, roomID string) (Session, error) {
	s, err := rs.registry.Resolve(token)
	if err != nil {
		return Session{}, err
	}
	if roomID != "" && s.RoomID != roomID {
		return Session{}, fmt.Errorf("%w: credential is for another room", ErrUnauthorized)
	}
	return s, nil
}

// Leave frees the caller's seat and revokes the credential.
func (rs *Rooms) Leave(s Session) (RoomView, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	r, err := rs.lookup(s.RoomID)
	if err != nil {
		return RoomView{}, err
	}
	if r.started || r.starting {
		return RoomView{}, fmt.Errorf("%w: cannot leave a started game", ErrInvalidRequest)
	}
	r.users[slices.Index(game.SeatOrder, s.Seat)] = ""
	r.updatedAt = rs.clock.Now()
	rs.registry.Revoke(s.ID)

	rs.logger.Info("Player left", "room", r.id, "user", s.UserName, "seat", s.Seat)
	return r.view(nil), nil
}

// Start creates the room's game. Only the RED seat may start it and starting
// twice returns the existing game. The seats are frozen while the game is
// created, without holding the lobby lock.
func (rs *Rooms) Start(ctx context.Context, s Session) (string, error) {
	rs.mu.Lock()
	r, err := rs.lookup(s.RoomID)
	if err != nil {
		rs.mu.Unlock()
		return "", err
	}
	if s.Seat != game.SeatOrder[0] {
		rs.mu.Unlock()
		return "", fmt.Errorf("%w: only the host can start", ErrUnauthorized)
	}
	if r.started {
		id := r.gameID
		rs.mu.Unlock()
		return id, nil
	}
	if r.starting {
		rs.mu.Unlock()
		return "", fmt.Errorf("%w: room is already starting", ErrInvalidRequest)
	}
	colors := r.seated()
	if len(colors) < MinPlayersToStart {
		rs.mu.Unlock()
		return "", fmt.Errorf("%w: need at least %d players", ErrInvalidRequest, MinPlayersToStart)
	}
	r.starting = true
	rs.mu.Unlock()

	kinds := make([]bot.Kind, len(colors))
	for i := range kinds {
		kinds[i] = bot.Human
	}
	id, entry, err := rs.games.Create(ctx, arbiter.CreateRequest{Seats: kinds, Colors: colors})

	rs.mu.Lock()
	defer rs.mu.Unlock()
	r.starting = false
	if err != nil {
		return "", fmt.Errorf("start room: %w", err)
	}
	r.started = true
	r.gameID = id
	r.stateIndex = entry.Index
	r.updatedAt = rs.clock.Now()

	rs.logger.Info("Room started", "room", r.id, "game", id, "players", len(colors))
	return id, nil
}

// GameID returns the game of a started room.
func (rs *Rooms) GameID(roomID string) (string, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	r, err := rs.lookup(roomID)
	if err != nil {
		return "", err
	}
	if !r.started {
		return "", fmt.Errorf("%w: game not started", ErrInvalidRequest)
	}
	return r.gameID, nil
}

// Game reads the room's game at index, or the latest for store.Latest.
func (rs *Rooms) Game(ctx context.Context, s Session, index int) (string, store.Entry, error) {
	gameID, err := rs.GameID(s.RoomID)
	if err != nil {
		return "", store.Entry{}, err
	}
	entry, err := rs.games.Read(ctx, gameID, index)
	return gameID, entry, err
}

// Submit plays an action for the caller's seat. The caller must be allowed
// to act regardless of how the arbiter enforces turns.
func (rs *Rooms) Submit(ctx context.Context, s Session, action *game.Action, expected *int) (store.Entry, error) {
	if action == nil {
		return store.Entry{}, fmt.Errorf("%w: action required", ErrInvalidRequest)
	}
	if action.Color != s.Seat {
		return store.Entry{}, fmt.Errorf("%w: %s cannot act for %s", arbiter.ErrForbidden, s.Seat, action.Color)
	}
	gameID, err := rs.GameID(s.RoomID)
	if err != nil {
		return store.Entry{}, err
	}
	latest, err := rs.games.Read(ctx, gameID, store.Latest)
	if err != nil {
		return store.Entry{}, err
	}
	if expected != nil && *expected != latest.Index {
		return latest, fmt.Errorf("%w: expected state %d, latest is %d", arbiter.ErrConflict, *expected, latest.Index)
	}
	if !latest.State.IsTerminal() && !latest.State.MayAct(s.Seat) {
		return latest, fmt.Errorf("%w: not %s's turn", arbiter.ErrForbidden, s.Seat)
	}

	entry, err := rs.games.Submit(ctx, arbiter.Submission{
		GameID:        gameID,
		Claimed:       &s.Seat,
		ExpectedIndex: expected,
		Action:        action,
	})
	if err != nil {
		return entry, err
	}

	rs.mu.Lock()
	if r, ok := rs.rooms[s.RoomID]; ok && entry.Index > r.stateIndex {
		r.stateIndex = entry.Index
		r.updatedAt = rs.clock.Now()
	}
	rs.mu.Unlock()
	return entry, nil
}
