// Package advice asks a language model for negotiation tips about a game
// position.
package advice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/lox/settlersforbots/internal/store"
)

// EventRequested is recorded for every advice request.
const EventRequested = "NEGOTIATION_ADVICE_REQUEST"

// Games reads game history.
type Games interface {
	Read(ctx context.Context, gameID string, index int) (store.Entry, error)
	Entries(ctx context.Context, gameID string, upTo int) ([]store.Entry, error)
	Seats(ctx context.Context, gameID string) ([]store.Seat, error)
}

// Events records auxiliary game events.
type Events interface {
	AppendEvent(ctx context.Context, ev store.Event) (store.Event, error)
}

// Advice is the text returned to the caller.
type Advice struct {
	Advice string `json:"advice"`
}

// Service builds prompts and calls the model.
type Service struct {
	client Client
	games  Games
	events Events
	cfg    Config
	clock  quartz.Clock
	logger *log.Logger
}

// NewService creates a service. A nil client makes every request fail with
// ErrUnavailable.
func NewService(client Client, games Games, events Events, cfg Config, clock quartz.Clock, logger *log.Logger) *Service {
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &Service{
		client: client,
		games:  games,
		events: events,
		cfg:    cfg,
		clock:  clock,
		logger: logger.WithPrefix("advice"),
	}
}

// Advise returns negotiation advice for the position at index. imageDataURL
// optionally attaches a rendering of the board.
func (s *Service) Advise(ctx context.Context, gameID string, index int, imageDataURL string) (Advice, error) {
	if s.client == nil {
		return Advice{}, fmt.Errorf("%w: no model client configured", ErrUnavailable)
	}
	entry, err := s.games.Read(ctx, gameID, index)
	if err != nil {
		return Advice{}, err
	}
	entries, err := s.games.Entries(ctx, gameID, entry.Index)
	if err != nil {
		return Advice{}, err
	}
	seats, err := s.games.Seats(ctx, gameID)
	if err != nil {
		return Advice{}, err
	}

	pc := buildContext(entry.State, entries, seats, s.cfg.LogLimit)
	prompt := pc.render(imageDataURL != "")
	req := Request{
		Model: s.cfg.PreferredModel(),
		Messages: []Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt, ImageURL: imageDataURL},
		},
		Temperature: s.cfg.TemperatureValue(),
	}

	payload, err := json.Marshal(map[string]any{
		"model":            req.Model,
		"prompt_chars":     len(prompt),
		"human_colors":     pc.HumanColors,
		"playable_actions": len(pc.PlayableActions),
		"board_image":      imageDataURL != "",
	})
	if err != nil {
		return Advice{}, fmt.Errorf("marshal advice event: %w", err)
	}
	if _, err := s.events.AppendEvent(ctx, store.Event{
		GameID:     gameID,
		Type:       EventRequested,
		StateIndex: entry.Index,
		Color:      pc.CurrentColor,
		Payload:    payload,
		CreatedAt:  s.clock.Now(),
	}); err != nil {
		return Advice{}, fmt.Errorf("record advice request: %w", err)
	}

	s.logger.Info("Requesting negotiation advice", "game", gameID, "index", entry.Index,
		"model", req.Model, "prompt_chars", len(prompt), "playable_actions", len(pc.PlayableActions))
	text, err := s.complete(ctx, req)
	if err != nil {
		s.logger.Error("Negotiation advice failed", "game", gameID, "error", err)
		return Advice{}, err
	}
	return Advice{Advice: text}, nil
}

// complete retries once without temperature when the model rejects it, and
// once with the fallback model when the preferred one does not exist.
func (s *Service) complete(ctx context.Context, req Request) (string, error) {
	text, err := s.client.Complete(ctx, req)
	var apiErr *APIError
	if err == nil || !errors.As(err, &apiErr) {
		return text, err
	}
	switch {
	case apiErr.Code == "unsupported_value" && req.Temperature != nil:
		s.logger.Warn("Temperature unsupported, retrying without it", "model", req.Model, "temperature", *req.Temperature)
		req.Temperature = nil
	case apiErr.Code == "model_not_found" && req.Model != s.cfg.FallbackModel:
		s.logger.Warn("Model not found, using fallback", "model", req.Model, "fallback", s.cfg.FallbackModel)
		req.Model = s.cfg.FallbackModel
	default:
		return "", err
	}
	return s.client.Complete(ctx, req)
}
