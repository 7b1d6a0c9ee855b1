// Package config loads and validates the server configuration from HCL.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/liaptui/liaptui/internal/piece"
)

// Config is the complete server configuration.
type Config struct {
	Server ServerSettings `hcl:"server,block"`
	Game   *GameSettings  `hcl:"game,block"`
	Pieces *PieceSettings `hcl:"pieces,block"`
}

// ServerSettings contains transport-level configuration.
type ServerSettings struct {
	Address             string `hcl:"address,optional"`
	Port                int    `hcl:"port,optional"`
	StaticDir           string `hcl:"static_dir,optional"`
	MaxRooms            int    `hcl:"max_rooms,optional"`
	HeartbeatIntervalMs int    `hcl:"heartbeat_interval_ms,optional"`
	HeartbeatMissLimit  int    `hcl:"heartbeat_miss_limit,optional"`
	SnapshotPath        string `hcl:"snapshot_path,optional"`
	LogLevel            string `hcl:"log_level,optional"`
	LogFile             string `hcl:"log_file,optional"`
}

// GameSettings contains per-room game tunables.
type GameSettings struct {
	WinningScore       int   `hcl:"winning_score,optional"`
	MaxRounds          int   `hcl:"max_rounds,optional"`
	ChangeLogLimit     int   `hcl:"change_log_limit,optional"`
	BotThinkDelayMinMs int   `hcl:"bot_think_delay_min_ms,optional"`
	BotThinkDelayMaxMs int   `hcl:"bot_think_delay_max_ms,optional"`
	TakeoverDelayMs    int   `hcl:"takeover_delay_ms,optional"`
	ActionTimeoutMs    int   `hcl:"action_timeout_ms,optional"`
	// Per-phase decision deadlines; zero inherits action_timeout_ms.
	PreparationTimeoutMs int   `hcl:"preparation_timeout_ms,optional"`
	DeclarationTimeoutMs int   `hcl:"declaration_timeout_ms,optional"`
	TurnTimeoutMs        int   `hcl:"turn_timeout_ms,optional"`
	Seed                 int64 `hcl:"seed,optional"`
}

// PieceSettings overrides the default point table. Every field is a red
// or black point value for one rank; zero means keep the default.
type PieceSettings struct {
	GeneralRed    int `hcl:"general_red,optional"`
	GeneralBlack  int `hcl:"general_black,optional"`
	AdvisorRed    int `hcl:"advisor_red,optional"`
	AdvisorBlack  int `hcl:"advisor_black,optional"`
	ElephantRed   int `hcl:"elephant_red,optional"`
	ElephantBlack int `hcl:"elephant_black,optional"`
	ChariotRed    int `hcl:"chariot_red,optional"`
	ChariotBlack  int `hcl:"chariot_black,optional"`
	HorseRed      int `hcl:"horse_red,optional"`
	HorseBlack    int `hcl:"horse_black,optional"`
	CannonRed     int `hcl:"cannon_red,optional"`
	CannonBlack   int `hcl:"cannon_black,optional"`
	SoldierRed    int `hcl:"soldier_red,optional"`
	SoldierBlack  int `hcl:"soldier_black,optional"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerSettings{
			Address:             "0.0.0.0",
			Port:                8080,
			MaxRooms:            100,
			HeartbeatIntervalMs: 5000,
			HeartbeatMissLimit:  2,
			LogLevel:            "info",
		},
		Game: &GameSettings{
			WinningScore:       50,
			MaxRounds:          20,
			ChangeLogLimit:     256,
			BotThinkDelayMinMs: 500,
			BotThinkDelayMaxMs: 1500,
			TakeoverDelayMs:    0,
			ActionTimeoutMs:    30000,
		},
	}
}

// Load reads the configuration from an HCL file, returning defaults when
// the file does not exist.
func Load(filename string) (*Config, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return Default(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var cfg Config
	diags = gohcl.DecodeBody(file.Body, nil, &cfg)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.Server.Address == "" {
		c.Server.Address = def.Server.Address
	}
	if c.Server.Port == 0 {
		c.Server.Port = def.Server.Port
	}
	if c.Server.MaxRooms == 0 {
		c.Server.MaxRooms = def.Server.MaxRooms
	}
	if c.Server.HeartbeatIntervalMs == 0 {
		c.Server.HeartbeatIntervalMs = def.Server.HeartbeatIntervalMs
	}
	if c.Server.HeartbeatMissLimit == 0 {
		c.Server.HeartbeatMissLimit = def.Server.HeartbeatMissLimit
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = def.Server.LogLevel
	}

	if c.Game == nil {
		c.Game = def.Game
		return
	}
	if c.Game.WinningScore == 0 {
		c.Game.WinningScore = def.Game.WinningScore
	}
	if c.Game.MaxRounds == 0 {
		c.Game.MaxRounds = def.Game.MaxRounds
	}
	if c.Game.ChangeLogLimit == 0 {
		c.Game.ChangeLogLimit = def.Game.ChangeLogLimit
	}
	if c.Game.BotThinkDelayMinMs == 0 && c.Game.BotThinkDelayMaxMs == 0 {
		c.Game.BotThinkDelayMinMs = def.Game.BotThinkDelayMinMs
		c.Game.BotThinkDelayMaxMs = def.Game.BotThinkDelayMaxMs
	}
	if c.Game.ActionTimeoutMs == 0 {
		c.Game.ActionTimeoutMs = def.Game.ActionTimeoutMs
	}
	if c.Game.PreparationTimeoutMs == 0 {
		c.Game.PreparationTimeoutMs = c.Game.ActionTimeoutMs
	}
	if c.Game.DeclarationTimeoutMs == 0 {
		c.Game.DeclarationTimeoutMs = c.Game.ActionTimeoutMs
	}
	if c.Game.TurnTimeoutMs == 0 {
		c.Game.TurnTimeoutMs = c.Game.ActionTimeoutMs
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Server.MaxRooms < 1 {
		return fmt.Errorf("max_rooms must be positive, got %d", c.Server.MaxRooms)
	}
	if c.Server.HeartbeatIntervalMs < 100 {
		return fmt.Errorf("heartbeat_interval_ms too small: %d", c.Server.HeartbeatIntervalMs)
	}
	if c.Server.HeartbeatMissLimit < 1 {
		return fmt.Errorf("heartbeat_miss_limit must be positive, got %d", c.Server.HeartbeatMissLimit)
	}
	if c.Server.StaticDir != "" {
		info, err := os.Stat(c.Server.StaticDir)
		if err != nil {
			return fmt.Errorf("static_dir: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("static_dir is not a directory: %s", c.Server.StaticDir)
		}
	}

	if c.Game.WinningScore < 1 {
		return fmt.Errorf("winning_score must be positive, got %d", c.Game.WinningScore)
	}
	if c.Game.MaxRounds < 1 {
		return fmt.Errorf("max_rounds must be positive, got %d", c.Game.MaxRounds)
	}
	if c.Game.BotThinkDelayMinMs < 0 || c.Game.BotThinkDelayMaxMs < c.Game.BotThinkDelayMinMs {
		return fmt.Errorf("bot think delay range invalid: [%d, %d]",
			c.Game.BotThinkDelayMinMs, c.Game.BotThinkDelayMaxMs)
	}
	if c.Game.TakeoverDelayMs < 0 {
		return fmt.Errorf("takeover_delay_ms must not be negative, got %d", c.Game.TakeoverDelayMs)
	}
	if c.Game.ActionTimeoutMs < 0 || c.Game.PreparationTimeoutMs < 0 ||
		c.Game.DeclarationTimeoutMs < 0 || c.Game.TurnTimeoutMs < 0 {
		return fmt.Errorf("phase timeouts must not be negative")
	}

	if _, err := c.PointTable(); err != nil {
		return err
	}
	return nil
}

// PointTable builds the piece point table, applying any configured
// overrides to the defaults.
func (c *Config) PointTable() (piece.PointTable, error) {
	table := piece.DefaultPointTable()
	if c.Pieces == nil {
		return table, nil
	}

	overrides := []struct {
		rank       piece.Rank
		red, black int
	}{
		{piece.General, c.Pieces.GeneralRed, c.Pieces.GeneralBlack},
		{piece.Advisor, c.Pieces.AdvisorRed, c.Pieces.AdvisorBlack},
		{piece.Elephant, c.Pieces.ElephantRed, c.Pieces.ElephantBlack},
		{piece.Chariot, c.Pieces.ChariotRed, c.Pieces.ChariotBlack},
		{piece.Horse, c.Pieces.HorseRed, c.Pieces.HorseBlack},
		{piece.Cannon, c.Pieces.CannonRed, c.Pieces.CannonBlack},
		{piece.Soldier, c.Pieces.SoldierRed, c.Pieces.SoldierBlack},
	}
	for _, o := range overrides {
		points := table[o.rank]
		if o.red != 0 {
			points[piece.Red] = o.red
		}
		if o.black != 0 {
			points[piece.Black] = o.black
		}
		table[o.rank] = points
	}

	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("pieces: %w", err)
	}
	return table, nil
}

// ListenAddress returns the host:port the server binds to.
func (c *Config) ListenAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// SetListenAddress overrides address and port from a host:port string.
// An empty host keeps the configured address.
func (c *Config) SetListenAddress(addr string) error {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid port in %q: %w", addr, err)
	}
	if host != "" {
		c.Server.Address = host
	}
	c.Server.Port = port
	return nil
}
