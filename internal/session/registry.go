// Package session maps player credentials to rooms and seats and runs the
// player-versus-player lobby on top of the arbiter.
package session

import (
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/lox/settlersforbots/internal/game"
)

var (
	// ErrUnauthenticated indicates a missing, malformed, expired or revoked
	// credential.
	ErrUnauthenticated = errors.New("session: unauthenticated")
	// ErrUnauthorized indicates a valid credential used outside its room or
	// role.
	ErrUnauthorized = errors.New("session: unauthorized")
)

// DefaultTTL is how long an issued credential stays valid.
const DefaultTTL = 24 * time.Hour

// Session is a resolved credential.
type Session struct {
	Token    string     `json:"token"`
	ID       string     `json:"-"`
	RoomID   string     `json:"room_id"`
	Seat     game.Color `json:"seat_color"`
	UserName string     `json:"user_name"`
}

type claims struct {
	Room string     `json:"room"`
	Seat game.Color `json:"seat"`
	User string     `json:"user"`
	jwt.RegisteredClaims
}

// Registry issues and resolves signed credentials. A credential is only
// honoured while its id is registered, so Revoke takes effect immediately.
type Registry struct {
	secret []byte
	clock  quartz.Clock
	ttl    time.Duration
	parser *jwt.Parser

	mu   sync.RWMutex
	live map[string]Session
}

// NewRegistry creates a registry. An empty secret generates a random one,
// which invalidates credentials across restarts.
func NewRegistry(secret []byte, clock quartz.Clock, ttl time.Duration) *Registry {
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			panic("failed to generate session secret: " + err.Error())
		}
	}
	if clock == nil {
		clock = quartz.NewReal()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Registry{
		secret: secret,
		clock:  clock,
		ttl:    ttl,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithTimeFunc(func() time.Time { return clock.Now() }),
			jwt.WithExpirationRequired(),
		),
		live: make(map[string]Session),
	}
}

// Issue creates a credential for a seat in a room.
func (r *Registry) Issue(roomID string, seat game.Color, userName string) (Session, error) {
	now := r.clock.Now()
	id := uuid.NewString()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Room: roomID,
		Seat: seat,
		User: userName,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(r.ttl)),
		},
	})
	signed, err := token.SignedString(r.secret)
	if err != nil {
		return Session{}, fmt.Errorf("sign session: %w", err)
	}
	s := Session{Token: signed, ID: id, RoomID: roomID, Seat: seat, UserName: userName}

	r.mu.Lock()
	r.live[id] = s
	r.mu.Unlock()
	return s, nil
}

// Resolve verifies a credential and returns its session.
func (r *Registry) Resolve(token string) (Session, error) {
	if token == "" {
		return Session{}, fmt.Errorf("%w: token required", ErrUnauthenticated)
	}
	var c claims
	if _, err := r.parser.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return r.secret, nil
	}); err != nil {
		return Session{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}

	r.mu.RLock()
	s, ok := r.live[c.ID]
	r.mu.RUnlock()
	if !ok {
		return Session{}, fmt.Errorf("%w: session revoked", ErrUnauthenticated)
	}
	return s, nil
}

// Revoke forgets a session. Unknown ids are ignored.
func (r *Registry) Revoke(id string) {
	r.mu.Lock()
	delete(r.live, id)
	r.mu.Unlock()
}
