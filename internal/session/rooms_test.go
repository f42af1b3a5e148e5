package session

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/lox/settlersforbots/internal/arbiter"
	"github.com/lox/settlersforbots/internal/game"
	"github.com/lox/settlersforbots/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRooms(t *testing.T) (*Rooms, *quartz.Mock) {
	t.Helper()
	logger := log.NewWithOptions(io.Discard, log.Options{})
	clock := quartz.NewMock(t)
	st := store.NewMemory()
	t.Cleanup(func() { _ = st.Close() })
	games := arbiter.New(st, logger, arbiter.Options{StrictTurns: true, Clock: clock})
	return NewRooms(games, NewRegistry([]byte("test"), clock, time.Hour), clock, logger), clock
}

func join(t *testing.T, rs *Rooms, roomID, name string) Session {
	t.Helper()
	j, err := rs.Join(roomID, name)
	require.NoError(t, err)
	s, err := rs.Authenticate(j.Token, roomID)
	require.NoError(t, err)
	return s
}

func TestCreateRoom(t *testing.T) {
	t.Parallel()
	rs, _ := newRooms(t)

	r := rs.Create("  ")
	assert.Equal(t, DefaultRoomName, r.RoomName)
	assert.False(t, r.Started)
	assert.Nil(t, r.StateIndex)
	require.Len(t, r.Seats, 4)
	for i, seat := range r.Seats {
		assert.Equal(t, game.SeatOrder[i], seat.Color)
		assert.Nil(t, seat.UserName)
	}

	assert.Equal(t, "Friday", rs.Create(" Friday ").RoomName)
}

func TestListRoomsNewestFirst(t *testing.T) {
	t.Parallel()
	rs, clock := newRooms(t)

	first := rs.Create("first")
	clock.Advance(time.Second)
	second := rs.Create("second")

	rooms := rs.List()
	require.Len(t, rooms, 2)
	assert.Equal(t, second.RoomID, rooms[0].RoomID)
	assert.Equal(t, first.RoomID, rooms[1].RoomID)
}

func TestJoinAssignsSeatsInOrder(t *testing.T) {
	t.Parallel()
	rs, _ := newRooms(t)
	id := rs.Create("").RoomID

	for i, name := range []string{"alice", "bob", "carol", "dave"} {
		j, err := rs.Join(id, name)
		require.NoError(t, err)
		assert.Equal(t, game.SeatOrder[i], j.Seat)
		require.NotNil(t, j.Room.Seats[i].UserName)
		assert.Equal(t, name, *j.Room.Seats[i].UserName)
		assert.True(t, j.Room.Seats[i].IsYou)
	}

	_, err := rs.Join(id, "erin")
	assert.ErrorIs(t, err, ErrRoomFull)

	again, err := rs.Join(id, " bob ")
	require.NoError(t, err)
	assert.Equal(t, game.Blue, again.Seat)
}

func TestJoinValidation(t *testing.T) {
	t.Parallel()
	rs, _ := newRooms(t)
	id := rs.Create("").RoomID

	_, err := rs.Join(id, " ")
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = rs.Join("room_missing", "alice")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestStatusMarksCaller(t *testing.T) {
	t.Parallel()
	rs, _ := newRooms(t)
	id := rs.Create("").RoomID
	join(t, rs, id, "alice")
	bob, err := rs.Join(id, "bob")
	require.NoError(t, err)

	v, err := rs.Status(id, bob.Token)
	require.NoError(t, err)
	assert.False(t, v.Seats[0].IsYou)
	assert.True(t, v.Seats[1].IsYou)

	v, err = rs.Status(id, "")
	require.NoError(t, err)
	assert.False(t, v.Seats[1].IsYou)

	_, err = rs.Status("room_missing", "")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestAuthenticateChecksRoom(t *testing.T) {
	t.Parallel()
	rs, _ := newRooms(t)
	a := rs.Create("a").RoomID
	b := rs.Create("b").RoomID
	j, err := rs.Join(a, "alice")
	require.NoError(t, err)

	_, err = rs.Authenticate(j.Token, b)
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = rs.Authenticate("", a)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestLeaveFreesSeatAndRevokes(t *testing.T) {
	t.Parallel()
	rs, _ := newRooms(t)
	id := rs.Create("").RoomID
	alice := join(t, rs, id, "alice")
	bob := join(t, rs, id, "bob")

	v, err := rs.Leave(bob)
	require.NoError(t, err)
	assert.Nil(t, v.Seats[1].UserName)
	_, err = rs.Authenticate(bob.Token, id)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	carol := join(t, rs, id, "carol")
	assert.Equal(t, game.Blue, carol.Seat)
	_, err = rs.Authenticate(alice.Token, id)
	assert.NoError(t, err)
}

func TestStartRules(t *testing.T) {
	t.Parallel()
	rs, _ := newRooms(t)
	ctx := context.Background()
	id := rs.Create("").RoomID
	alice := join(t, rs, id, "alice")

	_, err := rs.Start(ctx, alice)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	bob := join(t, rs, id, "bob")
	_, err = rs.Start(ctx, bob)
	assert.ErrorIs(t, err, ErrUnauthorized)

	gameID, err := rs.Start(ctx, alice)
	require.NoError(t, err)
	assert.NotEmpty(t, gameID)

	again, err := rs.Start(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, gameID, again)

	_, err = rs.Join(id, "carol")
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = rs.Leave(bob)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	v, err := rs.Status(id, "")
	require.NoError(t, err)
	assert.True(t, v.Started)
	require.NotNil(t, v.StateIndex)
	assert.Equal(t, 0, *v.StateIndex)
}

func TestStartSeatsOnlyOccupiedColors(t *testing.T) {
	t.Parallel()
	rs, _ := newRooms(t)
	ctx := context.Background()
	id := rs.Create("").RoomID
	alice := join(t, rs, id, "alice")
	bob := join(t, rs, id, "bob")
	join(t, rs, id, "carol")
	_, err := rs.Leave(bob)
	require.NoError(t, err)

	_, err = rs.Start(ctx, alice)
	require.NoError(t, err)
	_, entry, err := rs.Game(ctx, alice, store.Latest)
	require.NoError(t, err)
	assert.Equal(t, []game.Color{game.Red, game.White}, entry.State.Colors)
}

func TestSubmitEnforcesSeat(t *testing.T) {
	t.Parallel()
	rs, _ := newRooms(t)
	ctx := context.Background()
	id := rs.Create("").RoomID
	alice := join(t, rs, id, "alice")
	bob := join(t, rs, id, "bob")

	first := game.SiteAction(game.Red, game.BuildSettlement, 0)
	_, err := rs.Submit(ctx, alice, &first, nil)
	assert.ErrorIs(t, err, ErrInvalidRequest, "not started")

	_, err = rs.Start(ctx, alice)
	require.NoError(t, err)
	_, entry, err := rs.Game(ctx, alice, store.Latest)
	require.NoError(t, err)
	move := entry.State.LegalActions()[0]

	_, err = rs.Submit(ctx, alice, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = rs.Submit(ctx, bob, &move, nil)
	assert.ErrorIs(t, err, arbiter.ErrForbidden)

	blue := move
	blue.Color = game.Blue
	_, err = rs.Submit(ctx, bob, &blue, nil)
	assert.ErrorIs(t, err, arbiter.ErrForbidden)

	stale := 3
	_, err = rs.Submit(ctx, alice, &move, &stale)
	assert.ErrorIs(t, err, arbiter.ErrConflict)

	zero := 0
	got, err := rs.Submit(ctx, alice, &move, &zero)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Index)

	// Retrying from the old view is a conflict, not a lost seat.
	_, err = rs.Submit(ctx, alice, &move, &zero)
	assert.ErrorIs(t, err, arbiter.ErrConflict)
	assert.NotErrorIs(t, err, arbiter.ErrForbidden)

	v, err := rs.Status(id, "")
	require.NoError(t, err)
	require.NotNil(t, v.StateIndex)
	assert.Equal(t, 1, *v.StateIndex)
}

// slowGames blocks game creation until released.
type slowGames struct {
	Games
	entered chan struct{}
	release chan struct{}
	fail    error
}

func (g *slowGames) Create(ctx context.Context, req arbiter.CreateRequest) (string, store.Entry, error) {
	close(g.entered)
	<-g.release
	if g.fail != nil {
		return "", store.Entry{}, g.fail
	}
	return g.Games.Create(ctx, req)
}

func newSlowRooms(t *testing.T, fail error) (*Rooms, *slowGames) {
	t.Helper()
	logger := log.NewWithOptions(io.Discard, log.Options{})
	clock := quartz.NewMock(t)
	st := store.NewMemory()
	t.Cleanup(func() { _ = st.Close() })
	games := &slowGames{
		Games:   arbiter.New(st, logger, arbiter.Options{StrictTurns: true, Clock: clock}),
		entered: make(chan struct{}),
		release: make(chan struct{}),
		fail:    fail,
	}
	return NewRooms(games, NewRegistry([]byte("test"), clock, time.Hour), clock, logger), games
}

func TestStartDoesNotHoldLobby(t *testing.T) {
	t.Parallel()
	rs, games := newSlowRooms(t, nil)
	ctx := context.Background()
	id := rs.Create("").RoomID
	alice := join(t, rs, id, "alice")
	bob := join(t, rs, id, "bob")

	started := make(chan error, 1)
	go func() {
		_, err := rs.Start(ctx, alice)
		started <- err
	}()
	<-games.entered

	// The lobby keeps serving while the game is created.
	other := rs.Create("other").RoomID
	join(t, rs, other, "dave")
	assert.Len(t, rs.List(), 2)

	// The starting room's seats are frozen.
	_, err := rs.Join(id, "carol")
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = rs.Leave(bob)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = rs.Start(ctx, alice)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	close(games.release)
	require.NoError(t, <-started)
	v, err := rs.Status(id, "")
	require.NoError(t, err)
	assert.True(t, v.Started)
	assert.NotEmpty(t, v.GameID)
}

func TestFailedStartReopensRoom(t *testing.T) {
	t.Parallel()
	rs, games := newSlowRooms(t, errors.New("disk full"))
	ctx := context.Background()
	id := rs.Create("").RoomID
	alice := join(t, rs, id, "alice")
	join(t, rs, id, "bob")

	close(games.release)
	_, err := rs.Start(ctx, alice)
	assert.ErrorContains(t, err, "disk full")

	v, err := rs.Status(id, "")
	require.NoError(t, err)
	assert.False(t, v.Started)
	join(t, rs, id, "carol")
}
