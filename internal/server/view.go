package server

import (
	"github.com/lox/settlersforbots/internal/bot"
	"github.com/lox/settlersforbots/internal/game"
	"github.com/lox/settlersforbots/internal/store"
)

// GameView is the client representation of one log position.
type GameView struct {
	GameID                 string          `json:"game_id"`
	StateIndex             int             `json:"state_index"`
	Colors                 []game.Color    `json:"colors"`
	BotColors              []game.Color    `json:"bot_colors"`
	CurrentColor           game.Color      `json:"current_color"`
	CurrentPrompt          game.Prompt     `json:"current_prompt"`
	IsInitialBuildPhase    bool            `json:"is_initial_build_phase"`
	TradePhase             game.TradePhase `json:"trade_phase"`
	CurrentPlayableActions []game.Action   `json:"current_playable_actions"`
	WinningColor           game.Color      `json:"winning_color,omitempty"`
	LastAction             *game.Action    `json:"last_action,omitempty"`
	DevCardsRemaining      int             `json:"dev_cards_remaining"`
	State                  *game.State     `json:"state"`
}

// newGameView redacts the seed and deck order, which would reveal future
// rolls and draws.
func newGameView(gameID string, e store.Entry, seats []store.Seat) GameView {
	s := e.State
	var bots []game.Color
	for _, seat := range seats {
		if seat.Kind != string(bot.Human) {
			bots = append(bots, seat.Color)
		}
	}
	redacted := s.Clone()
	redacted.Seed = 0
	redacted.DevDeck = nil

	legal := s.LegalActions()
	if legal == nil {
		legal = []game.Action{}
	}
	return GameView{
		GameID:                 gameID,
		StateIndex:             e.Index,
		Colors:                 s.Colors,
		BotColors:              bots,
		CurrentColor:           s.CurrentColor(),
		CurrentPrompt:          s.Prompt,
		IsInitialBuildPhase:    s.InitialBuildPhase,
		TradePhase:             s.TradePhase(),
		CurrentPlayableActions: legal,
		WinningColor:           s.Winner,
		LastAction:             e.Action,
		DevCardsRemaining:      len(s.DevDeck),
		State:                  redacted,
	}
}

// GameSummary is one row of the game list.
type GameSummary struct {
	GameID       string       `json:"game_id"`
	StateIndex   int          `json:"state_index"`
	WinningColor game.Color   `json:"winning_color,omitempty"`
	CurrentColor game.Color   `json:"current_color"`
	PlayerColors []game.Color `json:"player_colors"`
	Seats        []store.Seat `json:"seats"`
	UpdatedAt    string       `json:"updated_at"`
}
