package main

import (
	"time"

	"github.com/liaptui/liaptui/cmd/liaptui/shared"
	"github.com/liaptui/liaptui/internal/config"
	"github.com/liaptui/liaptui/internal/server"
)

// ServerCmd runs the game server.
type ServerCmd struct {
	Config string `kong:"default='liaptui.hcl',help='Path to the HCL configuration file'"`
	Addr   string `kong:"help='Listen address, overrides the config file (host:port)'"`
	Debug  bool   `kong:"help='Enable debug logging'"`
	Seed   *int64 `kong:"help='Deterministic deal seed (optional)'"`
}

func (c *ServerCmd) Run() error {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return err
	}
	if c.Addr != "" {
		if err := cfg.SetListenAddress(c.Addr); err != nil {
			return err
		}
	}
	if c.Debug {
		cfg.Server.LogLevel = "debug"
	}
	if c.Seed != nil {
		cfg.Game.Seed = *c.Seed
	} else if cfg.Game.Seed == 0 {
		cfg.Game.Seed = time.Now().UnixNano()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, cleanup, err := shared.SetupLogger(cfg.Server.LogLevel, cfg.Server.LogFile)
	if err != nil {
		return err
	}
	defer cleanup()

	s, err := server.New(cfg, logger)
	if err != nil {
		return err
	}

	logger.Info("Starting Liap Tui server",
		"addr", cfg.ListenAddress(),
		"max_rooms", cfg.Server.MaxRooms,
		"winning_score", cfg.Game.WinningScore,
		"max_rounds", cfg.Game.MaxRounds,
		"seed", cfg.Game.Seed)

	ctx := shared.SetupSignalHandler(logger)
	return s.Run(ctx)
}
