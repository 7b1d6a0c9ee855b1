package server

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/google/uuid"

	"github.com/liaptui/liaptui/internal/protocol"
)

// seatKey identifies one seat of one room.
type seatKey struct {
	roomID   string
	position int
}

// binding ties a live connection to a room seat, with the state needed
// for heartbeat supervision and replay on reconnect.
type binding struct {
	conn        *Conn
	roomID      string
	position    int
	playerName  string
	token       string
	lastSeen    time.Time
	lastSeenSeq uint64
}

// Registry tracks which connection occupies which seat, supervises
// application-level heartbeats and issues reconnection tokens.
type Registry struct {
	mu      sync.RWMutex
	seats   map[seatKey]*binding
	byConn  map[string]*binding
	tokens  map[string]*binding
	clock   quartz.Clock
	logger  *log.Logger
	timeout time.Duration

	// onTimeout is invoked off the registry lock when a seat misses too
	// many heartbeats.
	onTimeout func(roomID string, position int)
}

// NewRegistry creates a registry. A seat is considered disconnected when
// no heartbeat arrives for missLimit consecutive intervals.
func NewRegistry(clock quartz.Clock, interval time.Duration, missLimit int, logger *log.Logger) *Registry {
	return &Registry{
		seats:   make(map[seatKey]*binding),
		byConn:  make(map[string]*binding),
		tokens:  make(map[string]*binding),
		clock:   clock,
		logger:  logger.WithPrefix("registry"),
		timeout: interval * time.Duration(missLimit),
	}
}

// SetTimeoutHandler registers the callback fired when a seat times out.
func (r *Registry) SetTimeoutHandler(fn func(roomID string, position int)) {
	r.onTimeout = fn
}

// Attach binds a connection to a seat and returns the session token the
// client presents on reconnect. An existing binding for the seat (a
// previous connection) is replaced; its token is reused so an older
// client token stays valid across the swap.
func (r *Registry) Attach(conn *Conn, roomID string, position int, playerName string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := seatKey{roomID, position}
	token := uuid.NewString()
	if prev, ok := r.seats[key]; ok {
		if prev.conn != nil {
			delete(r.byConn, prev.conn.ID())
		}
		token = prev.token
	}

	b := &binding{
		conn:       conn,
		roomID:     roomID,
		position:   position,
		playerName: playerName,
		token:      token,
		lastSeen:   r.clock.Now(),
	}
	r.seats[key] = b
	r.byConn[conn.ID()] = b
	r.tokens[token] = b
	return token
}

// Detach removes the connection's seat binding, keeping the token alive
// for reconnection.
func (r *Registry) Detach(conn *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.byConn[conn.ID()]
	if !ok {
		return
	}
	delete(r.byConn, conn.ID())
	if r.seats[seatKey{b.roomID, b.position}] == b {
		delete(r.seats, seatKey{b.roomID, b.position})
	}
	b.conn = nil
}

// Release drops every binding and token of a room, used when the room
// closes.
func (r *Registry) Release(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, b := range r.seats {
		if key.roomID != roomID {
			continue
		}
		if b.conn != nil {
			delete(r.byConn, b.conn.ID())
		}
		delete(r.tokens, b.token)
		delete(r.seats, key)
	}
	for token, b := range r.tokens {
		if b.roomID == roomID {
			delete(r.tokens, token)
		}
	}
}

// SeatConn returns the live connection for a seat.
func (r *Registry) SeatConn(roomID string, position int) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.seats[seatKey{roomID, position}]
	if !ok || b.conn == nil {
		return nil, false
	}
	return b.conn, true
}

// ByToken resolves a reconnection token to its seat.
func (r *Registry) ByToken(token string) (roomID string, position int, playerName string, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, found := r.tokens[token]
	if !found {
		return "", -1, "", false
	}
	return b.roomID, b.position, b.playerName, true
}

// Touch records a heartbeat for the connection.
func (r *Registry) Touch(conn *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.byConn[conn.ID()]; ok {
		b.lastSeen = r.clock.Now()
	}
}

// SetLastSeenSeq records the latest broadcast sequence a client has
// acknowledged seeing, used to size the replay on reconnect.
func (r *Registry) SetLastSeenSeq(conn *Conn, seq uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.byConn[conn.ID()]; ok && seq > b.lastSeenSeq {
		b.lastSeenSeq = seq
	}
}

// Broadcast queues a frame to every connected seat of a room.
func (r *Registry) Broadcast(roomID string, frame *protocol.Frame) {
	r.mu.RLock()
	conns := make([]*Conn, 0, 4)
	for key, b := range r.seats {
		if key.roomID == roomID && b.conn != nil {
			conns = append(conns, b.conn)
		}
	}
	r.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.Send(frame); err != nil {
			r.logger.Debug("Failed to deliver broadcast", "room", roomID, "error", err)
		}
	}
}

// SendToSeat queues a frame to one seat, dropping it silently when the
// seat has no live connection.
func (r *Registry) SendToSeat(roomID string, position int, frame *protocol.Frame) {
	conn, ok := r.SeatConn(roomID, position)
	if !ok {
		return
	}
	_ = conn.Send(frame)
}

// Run supervises heartbeats until ctx is cancelled. Seats whose last
// heartbeat is older than the timeout are detached and reported.
func (r *Registry) Run(ctx context.Context) error {
	interval := r.timeout / 2
	if interval <= 0 {
		interval = time.Second
	}
	waiter := r.clock.TickerFunc(ctx, interval, func() error {
		r.sweep()
		return nil
	}, "heartbeat-monitor")
	err := waiter.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (r *Registry) sweep() {
	now := r.clock.Now()

	type expired struct {
		roomID   string
		position int
		conn     *Conn
	}
	var timedOut []expired

	r.mu.Lock()
	for key, b := range r.seats {
		if b.conn == nil {
			continue
		}
		if now.Sub(b.lastSeen) >= r.timeout {
			r.logger.Info("Seat missed heartbeats",
				"room", b.roomID, "position", b.position, "player", b.playerName)
			delete(r.byConn, b.conn.ID())
			timedOut = append(timedOut, expired{key.roomID, key.position, b.conn})
			b.conn = nil
		}
	}
	r.mu.Unlock()

	for _, e := range timedOut {
		// Tear the transport down too, so the timed-out client cannot
		// keep submitting actions for a seat a bot now drives.
		e.conn.ClearSeat()
		_ = e.conn.Close()
		if r.onTimeout != nil {
			r.onTimeout(e.roomID, e.position)
		}
	}
}
