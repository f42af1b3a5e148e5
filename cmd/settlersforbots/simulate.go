package main

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/lox/settlersforbots/internal/arbiter"
	"github.com/lox/settlersforbots/internal/bot"
	"github.com/lox/settlersforbots/internal/game"
	"github.com/lox/settlersforbots/internal/randutil"
	"github.com/lox/settlersforbots/internal/store"
	"golang.org/x/sync/errgroup"
)

type SimulateCmd struct {
	Games         int      `short:"n" default:"20" help:"Number of games to play"`
	Players       []string `short:"p" default:"VALUE,RANDOM" help:"Seat kinds in seat order (RANDOM, VALUE, CATANATRON)"`
	Seed          int64    `default:"0" help:"Base seed (0 for time-based)"`
	VictoryPoints int      `default:"10" help:"Points needed to win"`
	Parallel      int      `default:"0" help:"Games played at once (0 for CPU count)"`
	MaxSteps      int      `default:"20000" help:"Actions allowed per game before it counts as unfinished"`
	SearchDepth   int      `default:"2" help:"Look-ahead for CATANATRON seats"`
}

// SimulationResult tallies finished games.
type SimulationResult struct {
	Games      int
	Unfinished int
	Wins       map[game.Color]int
	Actions    int
	Duration   time.Duration
}

// simulate plays every game to completion on an in-memory store.
func (c *SimulateCmd) simulate(ctx context.Context, kinds []bot.Kind, seed int64) (SimulationResult, error) {
	logger := newLogger("error")
	st := store.NewMemory()
	defer func() { _ = st.Close() }()
	games := arbiter.New(st, logger, arbiter.Options{
		StrictTurns:      true,
		MaxAutoPlaySteps: c.MaxSteps,
		Bots:             bot.Options{SearchDepth: c.SearchDepth},
		Clock:            quartz.NewReal(),
	})

	parallel := c.Parallel
	if parallel <= 0 {
		parallel = runtime.NumCPU()
	}
	result := SimulationResult{Games: c.Games, Wins: make(map[game.Color]int)}
	var mu sync.Mutex
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i := range c.Games {
		gameSeed := randutil.DeriveSeed(seed, i)
		g.Go(func() error {
			id, _, err := games.Create(gctx, arbiter.CreateRequest{Seats: kinds, Seed: &gameSeed, VictoryPoints: c.VictoryPoints})
			if err != nil {
				return err
			}
			final, err := games.Advance(gctx, id)
			if err != nil && !errors.Is(err, arbiter.ErrFatal) {
				return fmt.Errorf("game %d: %w", i, err)
			}
			// Logs are dropped once the result is known.
			if err := games.Delete(gctx, id); err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			result.Actions += final.Index
			if final.State == nil || final.State.Winner == "" {
				result.Unfinished++
				return nil
			}
			result.Wins[final.State.Winner]++
			return nil
		})
	}
	err := g.Wait()
	result.Duration = time.Since(start)
	return result, err
}

func (c *SimulateCmd) Run(cli *CLI) error {
	if c.Games < 1 {
		return fmt.Errorf("--games must be positive")
	}
	kinds := make([]bot.Kind, len(c.Players))
	for i, p := range c.Players {
		k, err := bot.ParseKind(p)
		if err != nil {
			return err
		}
		if k.IsHuman() {
			return fmt.Errorf("simulations need bot seats, seat %d is %s", i, k)
		}
		kinds[i] = k
	}
	seed := c.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	logger := newLogger(cli.LogLevel)
	ctx, cancel := signalContext(logger)
	defer cancel()

	logger.Info("Simulating", "games", c.Games, "players", strings.Join(c.Players, ","), "seed", seed)
	result, err := c.simulate(ctx, kinds, seed)
	if err != nil {
		return err
	}
	printSimulation(result, kinds)
	return nil
}

func printSimulation(r SimulationResult, kinds []bot.Kind) {
	fmt.Printf("\n=== Simulation Results ===\n")
	fmt.Printf("Games: %d  Unfinished: %d  Duration: %s\n", r.Games, r.Unfinished, r.Duration.Round(time.Millisecond))
	if r.Games > 0 {
		fmt.Printf("Average actions per game: %.1f\n", float64(r.Actions)/float64(r.Games))
	}
	fmt.Println()

	type row struct {
		color game.Color
		kind  bot.Kind
		wins  int
	}
	rows := make([]row, len(kinds))
	for i, k := range kinds {
		c := game.SeatOrder[i]
		rows[i] = row{color: c, kind: k, wins: r.Wins[c]}
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].wins > rows[j].wins })
	for _, row := range rows {
		pct := 100 * float64(row.wins) / float64(r.Games)
		fmt.Printf("%-7s %-11s %5d wins  %5.1f%%\n", row.color, row.kind, row.wins, pct)
	}
}
