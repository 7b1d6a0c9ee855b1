package main

import (
	"errors"

	"github.com/alecthomas/kong"

	"github.com/liaptui/liaptui/internal/server"
)

// version is set by ldflags during build
var version = "dev"

type CLI struct {
	Version kong.VersionFlag `short:"v" help:"Show version"`
	Server  ServerCmd        `cmd:"" default:"withargs" help:"Run the game server"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("liaptui"),
		kong.Description("Real-time multiplayer server for Liap Tui"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": version,
		},
	)
	err := ctx.Run()
	if errors.Is(err, server.ErrBindFailed) {
		// Exit 2 distinguishes a taken or unbindable port from a bad
		// configuration, which exits 1.
		ctx.Errorf("%v", err)
		ctx.Exit(2)
	}
	ctx.FatalIfErrorf(err)
}
