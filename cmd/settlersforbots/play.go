package main

import (
	"context"
	"fmt"
	"time"

	"github.com/lox/settlersforbots/internal/server"
	"github.com/lox/settlersforbots/internal/tui"
)

const connectTimeout = 10 * time.Second

type PlayCmd struct {
	Server  string   `short:"s" default:"http://localhost:8080" help:"Server base URL"`
	Game    string   `short:"g" help:"Game id to join (creates a new game when empty)"`
	Players []string `short:"p" default:"HUMAN,VALUE,VALUE" help:"Seat kinds for a new game"`
	Seed    int64    `default:"0" help:"Seed for a new game (0 lets the server choose)"`
}

func (c *PlayCmd) Run(cli *CLI) error {
	logger := newLogger(cli.LogLevel)
	ctx, cancel := signalContext(logger)
	defer cancel()

	waitCtx, waitCancel := context.WithTimeout(ctx, connectTimeout)
	err := server.WaitForHealthy(waitCtx, c.Server)
	waitCancel()
	if err != nil {
		return err
	}

	gameID := c.Game
	if gameID == "" {
		var seed *int64
		if c.Seed != 0 {
			seed = &c.Seed
		}
		id, err := tui.CreateGame(ctx, nil, c.Server, c.Players, seed)
		if err != nil {
			return fmt.Errorf("creating game: %w", err)
		}
		gameID = id
		logger.Info("Created game", "game", gameID)
	}
	return tui.Run(ctx, c.Server, gameID, logger)
}
