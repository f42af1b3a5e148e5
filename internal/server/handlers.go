package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/lox/settlersforbots/internal/advice"
	"github.com/lox/settlersforbots/internal/arbiter"
	"github.com/lox/settlersforbots/internal/bot"
	"github.com/lox/settlersforbots/internal/game"
	"github.com/lox/settlersforbots/internal/store"
)

const (
	maxBodySize    = 1 << 20
	maxSimulations = 10000
	gameListLimit  = 200
	EventAnalysis  = "MCTS_ANALYSIS_REQUEST"
)

func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", errBadRequest, err)
	}
	return bytes.TrimSpace(body), nil
}

func decodeBody(r *http.Request, v any) error {
	body, err := readBody(r)
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return nil
}

// parseIndex accepts a non-negative integer or "latest".
func parseIndex(raw string) (int, error) {
	if raw == "" || raw == "latest" {
		return store.Latest, nil
	}
	i, err := strconv.Atoi(raw)
	if err != nil || i < 0 {
		return 0, fmt.Errorf("%w: state index must be an integer or 'latest', got %q", errBadRequest, raw)
	}
	return i, nil
}

func (s *Server) view(w http.ResponseWriter, r *http.Request, gameID string, e store.Entry) {
	seats, err := s.services.Games.Seats(r.Context(), gameID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newGameView(gameID, e, seats))
}

type createGameRequest struct {
	Players       []string `json:"players"`
	Seed          *int64   `json:"seed"`
	VictoryPoints int      `json:"victory_points"`
}

func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	var req createGameRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(req.Players) == 0 {
		s.writeError(w, r, fmt.Errorf("%w: 'players' is required", errBadRequest))
		return
	}
	kinds := make([]bot.Kind, len(req.Players))
	for i, p := range req.Players {
		kinds[i] = bot.Kind(p)
	}

	id, _, err := s.services.Games.Create(r.Context(), arbiter.CreateRequest{
		Seats:         kinds,
		Seed:          req.Seed,
		VictoryPoints: req.VictoryPoints,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.opts.AutoAdvance {
		if _, err := s.services.Games.Advance(r.Context(), id); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"game_id": id})
}

func (s *Server) handleListGames(w http.ResponseWriter, r *http.Request) {
	games, err := s.services.Games.List(r.Context(), gameListLimit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	summaries := make([]GameSummary, 0, len(games))
	for _, g := range games {
		colors := make([]game.Color, len(g.Seats))
		for i, seat := range g.Seats {
			colors[i] = seat.Color
		}
		summary := GameSummary{
			GameID:       g.ID,
			StateIndex:   g.Latest,
			WinningColor: g.Winner,
			PlayerColors: colors,
			Seats:        g.Seats,
			UpdatedAt:    g.UpdatedAt.UTC().Format(time.RFC3339),
		}
		if latest, err := s.services.Games.Read(r.Context(), g.ID, store.Latest); err == nil {
			summary.CurrentColor = latest.State.CurrentColor()
		}
		summaries = append(summaries, summary)
	}
	writeJSON(w, http.StatusOK, map[string]any{"games": summaries})
}

func (s *Server) handleDeleteGame(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.services.Games.Delete(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true, "game_id": id})
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	index, err := parseIndex(r.PathValue("index"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	e, err := s.services.Games.Read(r.Context(), id, index)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.view(w, r, id, e)
}

// submission is the envelope form of an action request.
type submission struct {
	Action        *game.Action `json:"action"`
	ExpectedIndex *int         `json:"expected_state_index"`
	ClaimedColor  *string      `json:"claimed_color"`
}

// parseSubmission accepts an empty body, a bare action in triple or object
// form, or a submission envelope.
func parseSubmission(body []byte) (submission, error) {
	var sub submission
	if len(body) == 0 || string(body) == "null" || string(body) == "{}" {
		return sub, nil
	}
	if body[0] == '{' {
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(body, &probe); err != nil {
			return sub, fmt.Errorf("%w: %w", errBadRequest, err)
		}
		_, hasAction := probe["action"]
		_, hasExpected := probe["expected_state_index"]
		_, hasClaimed := probe["claimed_color"]
		if hasAction || hasExpected || hasClaimed {
			if err := json.Unmarshal(body, &sub); err != nil {
				return sub, fmt.Errorf("%w: %w", game.ErrInvalidAction, err)
			}
			return sub, nil
		}
	}
	var a game.Action
	if err := json.Unmarshal(body, &a); err != nil {
		return sub, fmt.Errorf("%w: %w", game.ErrInvalidAction, err)
	}
	sub.Action = &a
	return sub, nil
}

func (s *Server) handlePostAction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	body, err := readBody(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	parsed, err := parseSubmission(body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sub := arbiter.Submission{GameID: id, ExpectedIndex: parsed.ExpectedIndex, Action: parsed.Action}
	if parsed.ClaimedColor != nil {
		c, err := game.ParseColor(*parsed.ClaimedColor)
		if err != nil {
			s.writeError(w, r, fmt.Errorf("%w: claimed_color: %w", errBadRequest, err))
			return
		}
		sub.Claimed = &c
	}

	submit := s.services.Games.Submit
	if s.opts.AutoAdvance {
		submit = s.services.Games.SubmitAndAdvance
	}
	e, err := submit(r.Context(), sub)
	if err != nil {
		s.logger.Warn("Submission rejected", "game", id, "error", err)
		if errors.Is(err, arbiter.ErrFatal) {
			s.notifyFatal(id, err)
		}
		s.writeError(w, r, err)
		return
	}
	s.view(w, r, id, e)
}

// notifyFatal tells a game's subscribers that its bots cannot continue.
func (s *Server) notifyFatal(gameID string, err error) {
	_, code := statusFor(err)
	msg, merr := NewMessage(MessageTypeError, gameID, ErrorData{Error: err.Error(), Code: code}, s.opts.Clock.Now())
	if merr != nil {
		return
	}
	s.BroadcastToGame(gameID, msg)
}

type analysisResponse struct {
	Success             bool                      `json:"success"`
	Probabilities       map[game.Color]float64    `json:"probabilities"`
	ConfidenceIntervals map[game.Color][2]float64 `json:"confidence_intervals"`
	Simulations         int                       `json:"simulations"`
	Unfinished          int                       `json:"unfinished"`
	StateIndex          int                       `json:"state_index"`
}

func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	index, err := parseIndex(r.PathValue("index"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	simulations := s.opts.Simulations
	if raw := r.URL.Query().Get("simulations"); raw != "" {
		simulations, err = strconv.Atoi(raw)
		if err != nil || simulations < 1 || simulations > maxSimulations {
			s.writeError(w, r, fmt.Errorf("%w: simulations must be between 1 and %d", errBadRequest, maxSimulations))
			return
		}
	}

	est, e, err := s.services.Games.Estimate(r.Context(), id, index, simulations)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := analysisResponse{
		Success:             true,
		Probabilities:       make(map[game.Color]float64, len(e.State.Colors)),
		ConfidenceIntervals: make(map[game.Color][2]float64, len(e.State.Colors)),
		Simulations:         est.Simulations,
		Unfinished:          est.Unfinished,
		StateIndex:          e.Index,
	}
	for _, c := range e.State.Colors {
		resp.Probabilities[c] = est.Probability(c)
		lo, hi := est.ConfidenceInterval(c)
		resp.ConfidenceIntervals[c] = [2]float64{lo, hi}
	}
	s.logger.Info("Win probabilities estimated", "game", id, "index", e.Index, "simulations", est.Simulations)

	if payload, err := json.Marshal(resp.Probabilities); err == nil {
		if _, err := s.services.Events.AppendEvent(r.Context(), store.Event{
			GameID:     id,
			Type:       EventAnalysis,
			StateIndex: e.Index,
			Color:      e.State.CurrentColor(),
			Payload:    payload,
			CreatedAt:  s.opts.Clock.Now(),
		}); err != nil {
			s.logger.Warn("Failed to record analysis event", "game", id, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type adviceRequest struct {
	BoardImage string `json:"board_image"`
}

func (s *Server) handleAdvice(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	index, err := parseIndex(r.PathValue("index"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req adviceRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.services.Advice == nil {
		s.writeError(w, r, fmt.Errorf("%w: negotiation advice is disabled", advice.ErrUnavailable))
		return
	}
	a, err := s.services.Advice.Advise(r.Context(), id, index, req.BoardImage)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "advice": a.Advice})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.services.Events.Events(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if events == nil {
		events = []store.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}
