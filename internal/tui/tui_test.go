package tui

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/lox/settlersforbots/internal/arbiter"
	"github.com/lox/settlersforbots/internal/game"
	"github.com/lox/settlersforbots/internal/server"
	"github.com/lox/settlersforbots/internal/session"
	"github.com/lox/settlersforbots/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})
}

type submission struct {
	action   *game.Action
	expected int
}

type fakeSubmitter struct {
	calls []submission
	reply server.GameView
	err   error
}

func (f *fakeSubmitter) Submit(_ context.Context, action *game.Action, expected int) (server.GameView, error) {
	f.calls = append(f.calls, submission{action: action, expected: expected})
	return f.reply, f.err
}

func testView(t *testing.T, index int) server.GameView {
	t.Helper()
	s, err := game.New([]game.Color{game.Red, game.Blue}, game.Options{Seed: 3})
	require.NoError(t, err)
	return server.GameView{
		GameID:                 "game_test",
		StateIndex:             index,
		Colors:                 s.Colors,
		BotColors:              []game.Color{game.Blue},
		CurrentColor:           s.CurrentColor(),
		CurrentPrompt:          s.Prompt,
		CurrentPlayableActions: s.LegalActions(),
		State:                  s,
	}
}

func enter(m *Model, input string) tea.Cmd {
	m.actionInput.SetValue(input)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return cmd
}

func TestParseChoice(t *testing.T) {
	t.Parallel()
	actions := []game.Action{game.NewAction(game.Red, game.Roll), game.NewAction(game.Red, game.EndTurn)}

	a, err := parseChoice("", actions)
	require.NoError(t, err)
	assert.Nil(t, a, "empty input is a bot tick")

	a, err = parseChoice("2", actions)
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, game.EndTurn, a.Type)

	for _, bad := range []string{"0", "3", "-1", "roll"} {
		_, err := parseChoice(bad, actions)
		assert.Error(t, err, bad)
	}
}

func TestModelSubmitsChosenAction(t *testing.T) {
	t.Parallel()
	initial := testView(t, 0)
	reply := testView(t, 1)
	reply.LastAction = &initial.CurrentPlayableActions[1]
	fake := &fakeSubmitter{reply: reply}

	m := NewModel(context.Background(), fake, initial, nil, quietLogger())
	cmd := enter(m, "2")
	require.NotNil(t, cmd)
	assert.True(t, m.pending)

	msg := cmd()
	require.Len(t, fake.calls, 1)
	require.NotNil(t, fake.calls[0].action)
	assert.True(t, fake.calls[0].action.Matches(initial.CurrentPlayableActions[1]))
	assert.Equal(t, 0, fake.calls[0].expected)

	m.Update(msg)
	assert.False(t, m.pending)
	assert.Equal(t, 1, m.view.StateIndex)
	lines := m.Log()
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "#1")
}

func TestModelBotTick(t *testing.T) {
	t.Parallel()
	fake := &fakeSubmitter{reply: testView(t, 4)}
	m := NewModel(context.Background(), fake, testView(t, 3), nil, quietLogger())

	cmd := enter(m, "")
	require.NotNil(t, cmd)
	cmd()
	require.Len(t, fake.calls, 1)
	assert.Nil(t, fake.calls[0].action)
	assert.Equal(t, 3, fake.calls[0].expected)
}

func TestModelRejectsBadInput(t *testing.T) {
	t.Parallel()
	fake := &fakeSubmitter{}
	m := NewModel(context.Background(), fake, testView(t, 0), nil, quietLogger())

	enter(m, "999")
	assert.False(t, m.pending)
	assert.Empty(t, fake.calls)
	assert.Contains(t, m.status, "pick an action")
}

func TestModelIgnoresOlderStates(t *testing.T) {
	t.Parallel()
	m := NewModel(context.Background(), &fakeSubmitter{}, testView(t, 5), nil, quietLogger())

	m.Update(feedMsg{view: testView(t, 4)})
	assert.Equal(t, 5, m.view.StateIndex)

	m.Update(ViewMsg{View: testView(t, 7)})
	assert.Equal(t, 7, m.view.StateIndex)
}

func TestModelReportsConflict(t *testing.T) {
	t.Parallel()
	fake := &fakeSubmitter{err: &APIError{Status: 409, Code: "conflict", Message: "stale"}}
	m := NewModel(context.Background(), fake, testView(t, 0), nil, quietLogger())

	cmd := enter(m, "1")
	require.NotNil(t, cmd)
	m.Update(cmd())
	assert.False(t, m.pending)
	assert.Contains(t, m.status, "moved on")

	fake.err = errors.New("connection refused")
	cmd = enter(m, "1")
	require.NotNil(t, cmd)
	m.Update(cmd())
	assert.Contains(t, m.status, "connection refused")
}

func TestModelView(t *testing.T) {
	t.Parallel()
	m := NewModel(context.Background(), &fakeSubmitter{}, testView(t, 0), nil, quietLogger())
	assert.Equal(t, "Loading...", m.View())

	m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	out := m.View()
	assert.Contains(t, out, "BUILD_INITIAL_SETTLEMENT")
	assert.Contains(t, out, "[1]")
	assert.Contains(t, out, "(bot)")
}

func TestClientAgainstServer(t *testing.T) {
	t.Parallel()
	logger := quietLogger()
	clock := quartz.NewMock(t)
	st := store.NewMemory()
	games := arbiter.New(st, logger, arbiter.Options{StrictTurns: true, Clock: clock})
	rooms := session.NewRooms(games, session.NewRegistry(nil, clock, time.Hour), clock, logger)
	srv := server.NewServer(server.Services{Games: games, Rooms: rooms, Events: st}, server.Options{Clock: clock}, logger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
		ts.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	seed := int64(9)
	_, err := CreateGame(ctx, nil, ts.URL, []string{"HUMAN", "CHESSMASTER"}, &seed)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 400, apiErr.Status)

	id, err := CreateGame(ctx, nil, ts.URL, []string{"HUMAN", "RANDOM"}, &seed)
	require.NoError(t, err)

	client := NewClient(ts.URL, id, nil, logger)
	initial, err := client.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, initial.StateIndex)
	assert.Equal(t, game.Red, initial.CurrentColor)

	feed, err := client.Watch(ctx)
	require.NoError(t, err)
	first := <-feed
	assert.Equal(t, 0, first.StateIndex)

	got, err := client.Submit(ctx, &initial.CurrentPlayableActions[0], 0)
	require.NoError(t, err)
	assert.Equal(t, 1, got.StateIndex)
	pushed := <-feed
	assert.Equal(t, 1, pushed.StateIndex)

	_, err = client.Submit(ctx, nil, 0)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 409, apiErr.Status)
	assert.Equal(t, "conflict", apiErr.Code)

	got, err = client.Submit(ctx, nil, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, got.StateIndex)
}
