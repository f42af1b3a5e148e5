package main

import (
	"github.com/alecthomas/kong"
)

// version is set by ldflags during build
var version = "dev"

type CLI struct {
	Version  kong.VersionFlag `short:"v" help:"Show version"`
	LogLevel string           `short:"l" help:"Log level: debug, info, warn or error"`

	Server   ServerCmd   `cmd:"" help:"Run the game server"`
	Simulate SimulateCmd `cmd:"" help:"Play bot-only games in memory and report win rates"`
	Play     PlayCmd     `cmd:"" help:"Play a game in the terminal against a server"`
	Export   ExportCmd   `cmd:"" help:"Write a stored game's full action log to a JSON file"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("settlersforbots"),
		kong.Description("Turn-ordered settlement game server for humans and bots"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": version,
		},
	)
	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
