package server

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/liaptui/liaptui/internal/bot"
	"github.com/liaptui/liaptui/internal/game"
	"github.com/liaptui/liaptui/internal/piece"
	"github.com/liaptui/liaptui/internal/protocol"
	"github.com/liaptui/liaptui/internal/storage"
)

// Room owns one game: the session, its action bus and its bot driver.
// A single worker goroutine drains the bus and runs manager commands, so
// the session is never touched concurrently.
type Room struct {
	ID        string
	Name      string
	Public    bool
	CreatedAt time.Time

	session    *game.Session
	bus        *ActionBus
	driver     *bot.Driver
	registry   *Registry
	repo       storage.Repository
	logger     *log.Logger
	onGameOver func(*Room)

	commands chan func()
	ctx      context.Context
	cancel   context.CancelFunc

	// joinedAt orders humans by arrival for host transfer.
	joinedAt map[string]time.Time

	// summary is rebuilt by the worker after every command and action so
	// lobby listings never read the session concurrently.
	summaryMu sync.RWMutex
	summary   protocol.RoomSummary
}

// RoomConfig collects what a room needs beyond its identity.
type RoomConfig struct {
	Game       game.Config
	Table      piece.PointTable
	BotConfig  bot.Config
	Registry   *Registry
	Repository storage.Repository
	Clock      quartz.Clock
	Logger     *log.Logger
	// OnGameOver fires on the worker when the session reaches GAME_OVER,
	// so the manager can reap rooms nobody human is left watching.
	OnGameOver func(*Room)
}

// NewRoom creates a room and starts its worker.
func NewRoom(id, name string, public bool, cfg RoomConfig) *Room {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Room{
		ID:         id,
		Name:       name,
		Public:     public,
		CreatedAt:  time.Now(),
		bus:        NewActionBus(cfg.Clock),
		registry:   cfg.Registry,
		repo:       cfg.Repository,
		logger:     cfg.Logger.WithPrefix("room").With("room", id),
		onGameOver: cfg.OnGameOver,
		commands:   make(chan func(), 32),
		ctx:        ctx,
		cancel:     cancel,
		joinedAt:   make(map[string]time.Time),
	}
	r.session = game.NewSession(id, cfg.Table, cfg.Game, r, r.logger)
	r.driver = bot.NewDriver(cfg.BotConfig, bot.NewHeuristic(cfg.Game.Seed), func(a game.Action) {
		if !r.bus.SubmitAsync(a) {
			r.logger.Warn("Dropped synthetic action, bus full", "kind", a.Kind, "position", a.Position)
		}
	}, cfg.Clock, r.logger)

	r.summary = r.buildSummary()

	go r.run()
	return r
}

// Close stops the room's worker and outstanding bot timers.
func (r *Room) Close() {
	r.cancel()
}

func (r *Room) run() {
	for {
		select {
		case req := <-r.bus.Requests():
			r.dispatch(req)
			r.refreshSummary()
		case fn := <-r.commands:
			fn()
		case <-r.ctx.Done():
			r.driver.Stop()
			return
		}
	}
}

func (r *Room) dispatch(req busRequest) {
	phaseBefore := r.session.Phase()
	result := r.bus.Resolve(r.session, req)

	r.logger.Debug("Action dispatched",
		"actionSeq", req.actionSeq,
		"kind", req.action.Kind,
		"position", req.action.Position,
		"synthetic", req.action.Synthetic,
		"ok", result.OK(),
		"seq", result.Seq)

	if !result.OK() {
		return
	}
	r.driver.OnStateChange(r.session)

	if phase := r.session.Phase(); phase != phaseBefore &&
		(phase == game.Scoring || phase == game.GameOver) {
		r.persistSnapshot()
	}
	if r.session.Phase() == game.GameOver && phaseBefore != game.GameOver && r.onGameOver != nil {
		r.onGameOver(r)
	}
}

// Do runs fn on the room worker and waits for it, serializing manager
// operations with game actions. Never call from the worker itself.
func (r *Room) Do(fn func()) {
	done := make(chan struct{})
	select {
	case r.commands <- func() {
		defer close(done)
		fn()
		r.refreshSummary()
	}:
	case <-r.ctx.Done():
		return
	}
	select {
	case <-done:
	case <-r.ctx.Done():
	}
}

// Submit runs a client action through the bus and returns its result.
func (r *Room) Submit(ctx context.Context, action game.Action) (game.ActionResult, error) {
	return r.bus.Submit(ctx, action)
}

// Session returns the room's session. Outside the worker, treat it as
// read-only and access it through Do.
func (r *Room) Session() *game.Session { return r.session }

// Driver returns the room's bot driver.
func (r *Room) Driver() *bot.Driver { return r.driver }

// Playing reports whether a game is in progress.
func (r *Room) Playing() bool {
	phase := r.session.Phase()
	return phase != game.Waiting && phase != game.GameOver
}

// MarkJoined records a human player's arrival time for host transfer
// ordering. Worker only.
func (r *Room) MarkJoined(name string) {
	if _, ok := r.joinedAt[name]; !ok {
		r.joinedAt[name] = time.Now()
	}
}

// ForgetJoined drops a player's arrival record. Worker only.
func (r *Room) ForgetJoined(name string) {
	delete(r.joinedAt, name)
}

// EarliestHuman returns the position of the earliest-joined connected
// human, excluding exclude; -1 when none. Worker only.
func (r *Room) EarliestHuman(exclude int) int {
	best := -1
	var bestAt time.Time
	for _, seat := range r.session.Seats() {
		if !seat.Occupied || seat.IsBot || seat.Position == exclude {
			continue
		}
		at, ok := r.joinedAt[seat.Name]
		if !ok {
			at = time.Now()
		}
		if best == -1 || at.Before(bestAt) {
			best = seat.Position
			bestAt = at
		}
	}
	return best
}

// Broadcast implements game.Publisher: frames go to every connected seat
// and into the event history.
func (r *Room) Broadcast(frame *protocol.Frame) {
	r.registry.Broadcast(r.ID, frame)
	if r.repo == nil {
		return
	}
	payload := []byte(frame.Data)
	if payload == nil {
		payload = []byte("{}")
	}
	if err := r.repo.AppendEvent(r.ctx, storage.Event{
		RoomID:   r.ID,
		Sequence: frame.SequenceNumber,
		Kind:     frame.Event,
		Payload:  payload,
		At:       time.Now(),
	}); err != nil {
		r.logger.Debug("Failed to append event", "error", err)
	}
}

// SendToSeat implements game.Publisher.
func (r *Room) SendToSeat(position int, frame *protocol.Frame) {
	r.registry.SendToSeat(r.ID, position, frame)
}

func (r *Room) persistSnapshot() {
	if r.repo == nil {
		return
	}
	snap := storage.Snapshot{
		RoomID:   r.ID,
		Sequence: r.session.Sequence(),
		Phase:    r.session.Phase().String(),
		State:    r.session.FullStateJSON(),
		SavedAt:  time.Now(),
	}
	if err := r.repo.SaveSnapshot(r.ctx, snap); err != nil {
		r.logger.Warn("Failed to persist snapshot", "error", err)
	}
}

// Summary returns the lobby listing entry for this room. The worker
// keeps it current, so any goroutine may call this without touching the
// session.
func (r *Room) Summary() protocol.RoomSummary {
	r.summaryMu.RLock()
	defer r.summaryMu.RUnlock()
	return r.summary
}

func (r *Room) refreshSummary() {
	summary := r.buildSummary()
	r.summaryMu.Lock()
	r.summary = summary
	r.summaryMu.Unlock()
}

// buildSummary reads the session; worker only.
func (r *Room) buildSummary() protocol.RoomSummary {
	host := ""
	occupancy := 0
	for _, seat := range r.session.Seats() {
		if seat.Occupied {
			occupancy++
		}
	}
	if h := r.session.Host(); h >= 0 {
		host = r.session.Seat(h).Name
	}
	return protocol.RoomSummary{
		RoomID:    r.ID,
		Host:      host,
		Occupancy: occupancy,
		MaxSeats:  4,
		CreatedAt: r.CreatedAt.UTC().Format(time.RFC3339),
	}
}
