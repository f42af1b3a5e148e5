package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/lox/settlersforbots/internal/advice"
	"github.com/lox/settlersforbots/internal/arbiter"
	"github.com/lox/settlersforbots/internal/bot"
	"github.com/lox/settlersforbots/internal/server"
	"github.com/lox/settlersforbots/internal/session"
	"github.com/lox/settlersforbots/internal/store"
)

const shutdownTimeout = 5 * time.Second

type ServerCmd struct {
	Config        string `short:"c" default:"settlersforbots.hcl" help:"Path to HCL configuration file"`
	Addr          string `short:"a" help:"Address to bind to as host:port (overrides config)"`
	DB            string `help:"SQLite database path, selects the sqlite driver (overrides config)"`
	AutoAdvance   bool   `help:"Let bots move after every accepted submission (overrides config)"`
	Lenient       bool   `help:"Skip claimed-color checks, only legality is enforced (overrides config)"`
	SessionSecret string `env:"SETTLERS_SESSION_SECRET" help:"Secret signing player credentials (overrides config)"`
}

// config loads the config file and applies flag overrides.
func (c *ServerCmd) config() (*server.Config, error) {
	cfg, err := server.LoadConfig(c.Config)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if c.Addr != "" {
		host, port, err := net.SplitHostPort(c.Addr)
		if err != nil {
			return nil, fmt.Errorf("invalid address %q: %w", c.Addr, err)
		}
		cfg.Server.Address = host
		if cfg.Server.Port, err = strconv.Atoi(port); err != nil {
			return nil, fmt.Errorf("invalid port %q: %w", port, err)
		}
	}
	if c.DB != "" {
		cfg.Storage.Driver = server.DriverSQLite
		cfg.Storage.Path = c.DB
	}
	if c.AutoAdvance {
		cfg.Server.AutoAdvance = true
	}
	if c.Lenient {
		strict := false
		cfg.Server.StrictTurns = &strict
	}
	if c.SessionSecret != "" {
		cfg.Session.Secret = c.SessionSecret
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func openStore(cfg *server.StorageSettings) (store.Store, error) {
	if cfg.Driver == server.DriverSQLite {
		return store.OpenSQLite(cfg.Path)
	}
	return store.NewMemory(), nil
}

// newServer wires the store, arbiter, lobby and advice service described by
// cfg into an HTTP server.
func newServer(cfg *server.Config, st store.Store, clock quartz.Clock, logger *log.Logger) (*server.Server, error) {
	ttl, err := cfg.SessionTTL()
	if err != nil {
		return nil, err
	}
	games := arbiter.New(st, logger, arbiter.Options{
		StrictTurns:      *cfg.Server.StrictTurns,
		MaxAutoPlaySteps: cfg.Server.MaxAutoPlaySteps,
		Bots:             bot.Options{SearchDepth: cfg.Bots.SearchDepth},
		Evaluator:        &bot.MonteCarlo{Workers: cfg.Bots.Workers},
		Clock:            clock,
	})

	var secret []byte
	if cfg.Session.Secret != "" {
		secret = []byte(cfg.Session.Secret)
	} else {
		logger.Warn("No session secret configured, player credentials end with the process")
	}
	rooms := session.NewRooms(games, session.NewRegistry(secret, clock, ttl), clock, logger)

	var adv *advice.Service
	if cfg.Advice.Enabled {
		acfg, err := advice.LoadConfig()
		if err != nil {
			return nil, fmt.Errorf("advice config: %w", err)
		}
		var client advice.Client
		if oc, err := advice.NewOpenAI(acfg, nil); err != nil {
			logger.Warn("Negotiation advice unavailable", "error", err)
		} else {
			client = oc
		}
		adv = advice.NewService(client, games, st, acfg, clock, logger)
	}

	return server.NewServer(server.Services{
		Games:  games,
		Rooms:  rooms,
		Advice: adv,
		Events: st,
	}, server.Options{
		Address:     cfg.Address(),
		AutoAdvance: cfg.Server.AutoAdvance,
		Simulations: cfg.Bots.Simulations,
		Clock:       clock,
	}, logger), nil
}

func (c *ServerCmd) Run(cli *CLI) error {
	cfg, err := c.config()
	if err != nil {
		return err
	}
	if cli.LogLevel != "" {
		cfg.Server.LogLevel = cli.LogLevel
	}
	logger := newLogger(cfg.Server.LogLevel)

	st, err := openStore(cfg.Storage)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer func() { _ = st.Close() }()

	srv, err := newServer(cfg, st, quartz.NewReal(), logger)
	if err != nil {
		return err
	}
	logger.Info("Starting settlersforbots server",
		"addr", cfg.Address(),
		"storage", cfg.Storage.Driver,
		"strict_turns", *cfg.Server.StrictTurns,
		"auto_advance", cfg.Server.AutoAdvance)

	ctx, cancel := signalContext(logger)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}
