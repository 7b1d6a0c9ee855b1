package server

import (
	"context"
	"sync"
	"time"

	"github.com/coder/quartz"

	"github.com/liaptui/liaptui/internal/game"
)

// dedupeTTL is how long a resolved decision point's result is cached.
// Duplicate submissions within the window get the original result back
// instead of a confusing phase error.
const dedupeTTL = 5 * time.Second

// busRequest is one queued action. reply is nil for fire-and-forget
// submissions (bot driver, timeouts).
type busRequest struct {
	action    game.Action
	actionSeq uint64
	reply     chan game.ActionResult
}

// ActionBus serializes all writes into a room's state machine: FIFO
// order, one at a time, with duplicate collapsing per decision point.
type ActionBus struct {
	queue chan busRequest
	clock quartz.Clock

	mu        sync.Mutex
	actionSeq uint64
	cache     map[game.DedupeKey]cachedResult
}

type cachedResult struct {
	result game.ActionResult
	at     time.Time
}

// NewActionBus creates a bus with a bounded queue.
func NewActionBus(clock quartz.Clock) *ActionBus {
	return &ActionBus{
		queue: make(chan busRequest, 128),
		clock: clock,
		cache: make(map[game.DedupeKey]cachedResult),
	}
}

// Submit enqueues an action and waits for its result.
func (b *ActionBus) Submit(ctx context.Context, action game.Action) (game.ActionResult, error) {
	req := busRequest{
		action:    action,
		actionSeq: b.nextSeq(),
		reply:     make(chan game.ActionResult, 1),
	}
	select {
	case b.queue <- req:
	case <-ctx.Done():
		return game.ActionResult{}, ctx.Err()
	}

	select {
	case res := <-req.reply:
		return res, nil
	case <-ctx.Done():
		return game.ActionResult{}, ctx.Err()
	}
}

// SubmitAsync enqueues an action without waiting. Returns false when the
// queue is full or the bus is shutting down; synthetic actions are safe
// to drop, the driver reschedules from the next state change.
func (b *ActionBus) SubmitAsync(action game.Action) bool {
	req := busRequest{action: action, actionSeq: b.nextSeq()}
	select {
	case b.queue <- req:
		return true
	default:
		return false
	}
}

func (b *ActionBus) nextSeq() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.actionSeq++
	return b.actionSeq
}

// Requests exposes the queue to the room worker.
func (b *ActionBus) Requests() <-chan busRequest { return b.queue }

// Resolve runs one request against the session, collapsing duplicates at
// the same decision point. Must be called only from the room worker.
func (b *ActionBus) Resolve(s *game.Session, req busRequest) game.ActionResult {
	key := game.DedupeKey{
		Position:   req.action.Position,
		Phase:      s.Phase(),
		TurnNumber: s.TurnNumber(),
		Kind:       req.action.Kind,
	}

	now := b.clock.Now()
	b.mu.Lock()
	if cached, ok := b.cache[key]; ok && now.Sub(cached.at) < dedupeTTL {
		b.mu.Unlock()
		if req.reply != nil {
			req.reply <- cached.result
		}
		return cached.result
	}
	b.mu.Unlock()

	result := s.HandleAction(req.action)

	if result.OK() {
		b.mu.Lock()
		b.cache[key] = cachedResult{result: result, at: now}
		// Opportunistic pruning keeps the cache from growing across
		// turns.
		for k, v := range b.cache {
			if now.Sub(v.at) >= dedupeTTL {
				delete(b.cache, k)
			}
		}
		b.mu.Unlock()
	}

	if req.reply != nil {
		req.reply <- result
	}
	return result
}
