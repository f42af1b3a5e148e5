package advice

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/lox/settlersforbots/internal/arbiter"
	"github.com/lox/settlersforbots/internal/bot"
	"github.com/lox/settlersforbots/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{})
}

func TestParseConfig(t *testing.T) {
	t.Parallel()

	cfg, err := parseConfig(env.Options{Environment: map[string]string{}})
	require.NoError(t, err)
	assert.Equal(t, "https://api.openai.com/v1", cfg.BaseURL)
	assert.Equal(t, "gpt-4o-mini", cfg.PreferredModel())
	assert.Equal(t, 32, cfg.LogLimit)
	assert.Nil(t, cfg.TemperatureValue())

	cfg, err = parseConfig(env.Options{Environment: map[string]string{
		"OPENAI_MODEL":                   "gpt-4.1",
		"NEGOTIATION_ADVICE_TEMPERATURE": " 0.4 ",
		"NEGOTIATION_LOG_LIMIT":          "5",
	}})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4.1", cfg.PreferredModel())
	require.NotNil(t, cfg.TemperatureValue())
	assert.InDelta(t, 0.4, *cfg.TemperatureValue(), 1e-9)
	assert.Equal(t, 5, cfg.LogLimit)

	cfg.Model = "o3"
	assert.Equal(t, "o3", cfg.PreferredModel())
	cfg.Temperature = "warm"
	assert.Nil(t, cfg.TemperatureValue())

	_, err = parseConfig(env.Options{Environment: map[string]string{"NEGOTIATION_LOG_LIMIT": "many"}})
	assert.Error(t, err)
}

func TestNewOpenAIRequiresKey(t *testing.T) {
	t.Parallel()
	_, err := NewOpenAI(Config{}, nil)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestMessageWithImage(t *testing.T) {
	t.Parallel()
	b, err := json.Marshal(Message{Role: "user", Content: "look", ImageURL: "data:image/jpeg;base64,AAAA"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"user","content":[
		{"type":"text","text":"look"},
		{"type":"image_url","image_url":{"url":"data:image/jpeg;base64,AAAA","detail":"low"}}
	]}`, string(b))
}

func TestOpenAIComplete(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"  trade wood  "},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	c, err := NewOpenAI(Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1/"}, srv.Client())
	require.NoError(t, err)
	text, err := c.Complete(context.Background(), Request{
		Model:    "gpt-4o-mini",
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "trade wood", text)
	assert.Equal(t, "gpt-4o-mini", got["model"])
	assert.NotContains(t, got, "temperature")
}

func TestOpenAIErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		status   int
		body     string
		wantCode string
	}{
		{"model not found", http.StatusNotFound, `{"error":{"message":"no such model","type":"invalid_request_error","code":"model_not_found"}}`, "model_not_found"},
		{"plain text", http.StatusBadGateway, "upstream down", ""},
		{"no choices", http.StatusOK, `{"choices":[]}`, ""},
		{"empty content", http.StatusOK, `{"choices":[{"message":{"content":" "}}]}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			c, err := NewOpenAI(Config{APIKey: "k", BaseURL: srv.URL}, srv.Client())
			require.NoError(t, err)
			_, err = c.Complete(context.Background(), Request{Model: "m"})
			require.ErrorIs(t, err, ErrAdvice)

			var apiErr *APIError
			if tt.status != http.StatusOK {
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, tt.status, apiErr.Status)
				assert.Equal(t, tt.wantCode, apiErr.Code)
			}
		})
	}
}

// scriptedClient returns the scripted errors in order, then succeeds.
type scriptedClient struct {
	errs     []error
	requests []Request
}

func (c *scriptedClient) Complete(_ context.Context, req Request) (string, error) {
	c.requests = append(c.requests, req)
	if n := len(c.requests); n <= len(c.errs) && c.errs[n-1] != nil {
		return "", c.errs[n-1]
	}
	return "offer wheat to BLUE", nil
}

type fixture struct {
	games  *arbiter.Arbiter
	events store.Store
	gameID string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	st := store.NewMemory()
	a := arbiter.New(st, quietLogger(), arbiter.Options{StrictTurns: true, Clock: quartz.NewMock(t)})
	seed := int64(4)
	id, _, err := a.Create(context.Background(), arbiter.CreateRequest{Seats: []bot.Kind{bot.Human, bot.Random, bot.Random}, Seed: &seed})
	require.NoError(t, err)
	return fixture{games: a, events: st, gameID: id}
}

func (f fixture) service(t *testing.T, c Client, cfg Config) *Service {
	if cfg.FallbackModel == "" {
		cfg.FallbackModel = "gpt-4o-mini"
	}
	return NewService(c, f.games, f.events, cfg, quartz.NewMock(t), quietLogger())
}

func TestAdviseRecordsEvent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	client := &scriptedClient{}
	svc := f.service(t, client, Config{Model: "gpt-4.1"})

	got, err := svc.Advise(context.Background(), f.gameID, store.Latest, "")
	require.NoError(t, err)
	assert.Equal(t, "offer wheat to BLUE", got.Advice)

	require.Len(t, client.requests, 1)
	req := client.requests[0]
	assert.Equal(t, "gpt-4.1", req.Model)
	require.Len(t, req.Messages, 2)
	assert.Contains(t, req.Messages[1].Content, "Current turn: RED")
	assert.Contains(t, req.Messages[1].Content, "Human players: RED")

	events, err := f.events.Events(context.Background(), f.gameID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventRequested, events[0].Type)
	assert.Equal(t, 0, events[0].StateIndex)
	assert.Equal(t, "RED", string(events[0].Color))
}

func TestAdviseRetries(t *testing.T) {
	t.Parallel()
	temp := "0.7"

	t.Run("drops unsupported temperature", func(t *testing.T) {
		f := newFixture(t)
		client := &scriptedClient{errs: []error{&APIError{Status: 400, Code: "unsupported_value"}}}
		_, err := f.service(t, client, Config{Model: "o3", Temperature: temp}).Advise(context.Background(), f.gameID, 0, "")
		require.NoError(t, err)
		require.Len(t, client.requests, 2)
		assert.NotNil(t, client.requests[0].Temperature)
		assert.Nil(t, client.requests[1].Temperature)
	})

	t.Run("falls back to default model", func(t *testing.T) {
		f := newFixture(t)
		client := &scriptedClient{errs: []error{&APIError{Status: 404, Code: "model_not_found"}}}
		_, err := f.service(t, client, Config{Model: "gpt-9"}).Advise(context.Background(), f.gameID, 0, "")
		require.NoError(t, err)
		require.Len(t, client.requests, 2)
		assert.Equal(t, "gpt-4o-mini", client.requests[1].Model)
	})

	t.Run("gives up on other errors", func(t *testing.T) {
		f := newFixture(t)
		boom := errors.New("boom")
		client := &scriptedClient{errs: []error{boom}}
		_, err := f.service(t, client, Config{}).Advise(context.Background(), f.gameID, 0, "")
		assert.ErrorIs(t, err, boom)
		assert.Len(t, client.requests, 1)
	})

	t.Run("retries only once", func(t *testing.T) {
		f := newFixture(t)
		notFound := &APIError{Status: 404, Code: "model_not_found"}
		client := &scriptedClient{errs: []error{notFound, notFound}}
		_, err := f.service(t, client, Config{Model: "gpt-9"}).Advise(context.Background(), f.gameID, 0, "")
		assert.ErrorIs(t, err, ErrAdvice)
		assert.Len(t, client.requests, 2)
	})
}

func TestAdviseWithoutClient(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	_, err := f.service(t, nil, Config{}).Advise(context.Background(), f.gameID, 0, "")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestAdviseUnknownState(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	_, err := f.service(t, &scriptedClient{}, Config{}).Advise(context.Background(), f.gameID, 50, "")
	assert.ErrorIs(t, err, arbiter.ErrNotFound)
}

func TestSummarizeActionsKeepsTail(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	for range 6 {
		_, err := f.games.Advance(ctx, f.gameID)
		require.NoError(t, err)
		latest, err := f.games.Read(ctx, f.gameID, store.Latest)
		require.NoError(t, err)
		move := latest.State.LegalActions()[0]
		_, err = f.games.Submit(ctx, arbiter.Submission{GameID: f.gameID, Action: &move})
		require.NoError(t, err)
	}
	entries, err := f.games.Entries(ctx, f.gameID, store.Latest)
	require.NoError(t, err)

	records, offset := summarizeActions(entries, 3)
	require.Len(t, records, 3)
	assert.Equal(t, len(entries)-1-3, offset)
	assert.Equal(t, entries[len(entries)-1].Index, records[2].Sequence)

	all, offset := summarizeActions(entries, 0)
	assert.Len(t, all, len(entries)-1)
	assert.Zero(t, offset)
}
