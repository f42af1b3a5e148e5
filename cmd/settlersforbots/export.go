package main

import (
	"context"
	"fmt"
	"time"

	"github.com/lox/settlersforbots/internal/fileutil"
	"github.com/lox/settlersforbots/internal/store"
)

type ExportCmd struct {
	DB     string `required:"" help:"SQLite database path"`
	Game   string `arg:"" help:"Game id to export"`
	Output string `short:"o" help:"Output file (defaults to <game>.json)"`
}

// Export is the file layout written by the export command.
type Export struct {
	Game       store.Game    `json:"game"`
	Entries    []store.Entry `json:"entries"`
	Events     []store.Event `json:"events"`
	ExportedAt time.Time     `json:"exported_at"`
}

func exportGame(ctx context.Context, st store.Store, gameID string, now time.Time) (Export, error) {
	meta, err := st.Game(ctx, gameID)
	if err != nil {
		return Export{}, err
	}
	entries, err := st.Entries(ctx, gameID, store.Latest)
	if err != nil {
		return Export{}, err
	}
	events, err := st.Events(ctx, gameID)
	if err != nil {
		return Export{}, err
	}
	if events == nil {
		events = []store.Event{}
	}
	return Export{Game: meta, Entries: entries, Events: events, ExportedAt: now.UTC()}, nil
}

func (c *ExportCmd) Run(cli *CLI) error {
	logger := newLogger(cli.LogLevel)
	st, err := store.OpenSQLite(c.DB)
	if err != nil {
		return fmt.Errorf("opening %s: %w", c.DB, err)
	}
	defer func() { _ = st.Close() }()

	out, err := exportGame(context.Background(), st, c.Game, time.Now())
	if err != nil {
		return fmt.Errorf("export %s: %w", c.Game, err)
	}
	path := c.Output
	if path == "" {
		path = c.Game + ".json"
	}
	if err := fileutil.WriteJSONAtomic(path, out, 0o644); err != nil {
		return err
	}
	logger.Info("Exported game", "game", c.Game, "entries", len(out.Entries), "events", len(out.Events), "file", path)
	return nil
}
