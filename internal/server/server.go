// Package server is the network layer: WebSocket connections, the seat
// registry with heartbeat supervision, per-room action buses and the
// room manager that ties them to the game sessions.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/liaptui/liaptui/internal/bot"
	"github.com/liaptui/liaptui/internal/config"
	"github.com/liaptui/liaptui/internal/game"
	"github.com/liaptui/liaptui/internal/storage"
)

// ErrBindFailed marks a failure to bind the listen address, so the CLI
// can exit with a distinct code.
var ErrBindFailed = errors.New("failed to bind listen address")

// Server is the HTTP front of the game: WebSocket upgrades on /ws, a
// health probe and optionally the static client bundle.
type Server struct {
	cfg      *config.Config
	logger   *log.Logger
	upgrader websocket.Upgrader

	registry *Registry
	manager  *Manager
	repo     storage.Repository

	httpServer *http.Server
}

// New builds a server from its configuration. The caller owns Run.
func New(cfg *config.Config, logger *log.Logger) (*Server, error) {
	table, err := cfg.PointTable()
	if err != nil {
		return nil, err
	}

	var repo storage.Repository
	if cfg.Server.SnapshotPath != "" {
		repo, err = storage.NewSQLite(cfg.Server.SnapshotPath)
		if err != nil {
			return nil, err
		}
		logger.Info("Using SQLite room storage", "path", cfg.Server.SnapshotPath)
	} else {
		repo = storage.NewMemory()
	}

	clock := quartz.NewReal()
	registry := NewRegistry(clock,
		time.Duration(cfg.Server.HeartbeatIntervalMs)*time.Millisecond,
		cfg.Server.HeartbeatMissLimit,
		logger)

	manager := NewManager(ManagerConfig{
		MaxRooms: cfg.Server.MaxRooms,
		Game: game.Config{
			WinningScore:   cfg.Game.WinningScore,
			MaxRounds:      cfg.Game.MaxRounds,
			ChangeLogLimit: cfg.Game.ChangeLogLimit,
			Seed:           cfg.Game.Seed,
		},
		Table: table,
		Bot: bot.Config{
			ThinkDelayMin:      time.Duration(cfg.Game.BotThinkDelayMinMs) * time.Millisecond,
			ThinkDelayMax:      time.Duration(cfg.Game.BotThinkDelayMaxMs) * time.Millisecond,
			ActionTimeout:      time.Duration(cfg.Game.ActionTimeoutMs) * time.Millisecond,
			PreparationTimeout: time.Duration(cfg.Game.PreparationTimeoutMs) * time.Millisecond,
			DeclarationTimeout: time.Duration(cfg.Game.DeclarationTimeoutMs) * time.Millisecond,
			TurnTimeout:        time.Duration(cfg.Game.TurnTimeoutMs) * time.Millisecond,
			Seed:               cfg.Game.Seed,
		},
		TakeoverDelay: time.Duration(cfg.Game.TakeoverDelayMs) * time.Millisecond,
	}, registry, repo, clock, logger)

	s := &Server{
		cfg:    cfg,
		logger: logger.WithPrefix("server"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Browser clients connect from arbitrary origins; the game
				// carries no credentials worth protecting with origin checks.
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		registry: registry,
		manager:  manager,
		repo:     repo,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	if cfg.Server.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(cfg.Server.StaticDir)))
	}
	s.httpServer = &http.Server{
		Addr:    cfg.ListenAddress(),
		Handler: mux,
	}
	return s, nil
}

// Manager exposes the room manager, mainly for tests.
func (s *Server) Manager() *Manager { return s.manager }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("%w %s: %v", ErrBindFailed, s.httpServer.Addr, err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.registry.Run(ctx)
	})

	g.Go(func() error {
		s.logger.Info("Listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		s.logger.Info("Shutting down")
		s.manager.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
		return s.repo.Close()
	})

	return g.Wait()
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection", "error", err)
		return
	}
	conn := NewConn(ws, s.manager, s.logger)
	s.logger.Debug("Client connected", "conn", conn.ID()[:8], "remote", r.RemoteAddr)
	conn.Start()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
