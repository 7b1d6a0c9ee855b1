package bot

import (
	rand "math/rand/v2"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/liaptui/liaptui/internal/game"
	"github.com/liaptui/liaptui/internal/piece"
	"github.com/liaptui/liaptui/internal/randutil"
	"github.com/liaptui/liaptui/internal/round"
	"github.com/liaptui/liaptui/internal/rules"
)

// Config holds the driver's timing tunables.
type Config struct {
	// ThinkDelayMin and ThinkDelayMax bound the randomized pacing delay
	// before a bot action is submitted.
	ThinkDelayMin time.Duration
	ThinkDelayMax time.Duration
	// ActionTimeout is the fallback deadline after which a human seat's
	// pending decision is resolved with a default action. Zero disables
	// timeouts.
	ActionTimeout time.Duration
	// PreparationTimeout, DeclarationTimeout and TurnTimeout bound the
	// redeal decision, the declaration and a play respectively. Zero
	// inherits ActionTimeout.
	PreparationTimeout time.Duration
	DeclarationTimeout time.Duration
	TurnTimeout        time.Duration
	// Seed feeds the think-delay randomness.
	Seed int64
}

// Driver schedules actions for one room. After every state change the
// room worker calls OnStateChange; the driver computes an action for each
// bot seat expected to act (and a default action deadline for human
// seats), then submits it through the room's action bus like any client.
//
// OnStateChange, CancelSeat and Stop must be called from the room worker.
// Scheduled timers fire on their own goroutines and only touch the submit
// callback, which must be safe to call from any goroutine.
type Driver struct {
	strategy Strategy
	submit   func(game.Action)
	clock    quartz.Clock
	logger   *log.Logger
	cfg      Config
	rng      *rand.Rand

	mu        sync.Mutex
	scheduled map[game.DedupeKey]*scheduledAction
}

type scheduledAction struct {
	position int
	timer    *quartz.Timer
}

// NewDriver creates a driver submitting through submit.
func NewDriver(cfg Config, strategy Strategy, submit func(game.Action), clock quartz.Clock, logger *log.Logger) *Driver {
	return &Driver{
		strategy:  strategy,
		submit:    submit,
		clock:     clock,
		logger:    logger.WithPrefix("bot"),
		cfg:       cfg,
		rng:       randutil.New(cfg.Seed),
		scheduled: make(map[game.DedupeKey]*scheduledAction),
	}
}

// OnStateChange reconciles the scheduled actions against the session's
// pending decision points: stale timers are cancelled, new decision
// points get an action scheduled. Decisions are computed now, against the
// current state; if the state moves on before the timer fires, the stale
// submission fails its phase or turn check and is dropped by the session.
func (d *Driver) OnStateChange(s *game.Session) {
	pending := s.PendingDecisions()

	current := make(map[game.DedupeKey]bool, len(pending))
	for _, dec := range pending {
		current[dec.Key()] = true
	}

	d.mu.Lock()
	for key, sched := range d.scheduled {
		if !current[key] {
			sched.timer.Stop()
			delete(d.scheduled, key)
		}
	}
	d.mu.Unlock()

	for _, dec := range pending {
		key := dec.Key()
		d.mu.Lock()
		_, exists := d.scheduled[key]
		d.mu.Unlock()
		if exists {
			continue
		}

		seat := s.Seat(dec.Position)
		var action game.Action
		var delay time.Duration
		if seat.IsBot {
			action = d.decide(s, dec)
			delay = d.thinkDelay()
		} else {
			delay = d.timeoutFor(dec.Kind)
			if delay <= 0 {
				continue
			}
			action = defaultAction(s, dec)
		}
		action.Synthetic = true

		d.logger.Debug("Scheduling action",
			"position", dec.Position, "kind", action.Kind, "delay", delay, "bot", seat.IsBot)
		d.schedule(key, dec.Position, action, delay)
	}
}

func (d *Driver) schedule(key game.DedupeKey, position int, action game.Action, delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	timer := d.clock.AfterFunc(delay, func() {
		d.mu.Lock()
		delete(d.scheduled, key)
		d.mu.Unlock()
		d.submit(action)
	})
	d.scheduled[key] = &scheduledAction{position: position, timer: timer}
}

// CancelSeat drops every scheduled action for a seat, used when a
// returning human reclaims a bot-controlled seat.
func (d *Driver) CancelSeat(position int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, sched := range d.scheduled {
		if sched.position == position {
			sched.timer.Stop()
			delete(d.scheduled, key)
		}
	}
}

// Stop cancels everything scheduled.
func (d *Driver) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, sched := range d.scheduled {
		sched.timer.Stop()
		delete(d.scheduled, key)
	}
}

// Scheduled returns the number of pending timers, for tests.
func (d *Driver) Scheduled() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.scheduled)
}

// timeoutFor picks the human decision deadline for an action kind,
// falling back to the shared ActionTimeout.
func (d *Driver) timeoutFor(kind game.ActionKind) time.Duration {
	var t time.Duration
	switch kind {
	case game.ActionAcceptRedeal, game.ActionDeclineRedeal:
		t = d.cfg.PreparationTimeout
	case game.ActionDeclare:
		t = d.cfg.DeclarationTimeout
	case game.ActionPlay:
		t = d.cfg.TurnTimeout
	}
	if t == 0 {
		return d.cfg.ActionTimeout
	}
	return t
}

func (d *Driver) thinkDelay() time.Duration {
	if d.cfg.ThinkDelayMax <= d.cfg.ThinkDelayMin {
		return d.cfg.ThinkDelayMin
	}
	return d.cfg.ThinkDelayMin + time.Duration(d.rng.Int64N(int64(d.cfg.ThinkDelayMax-d.cfg.ThinkDelayMin)))
}

// decide computes a bot seat's action for a decision point.
func (d *Driver) decide(s *game.Session, dec game.Decision) game.Action {
	r := s.Round()
	hand := r.Hand(dec.Position)

	switch dec.Kind {
	case game.ActionAcceptRedeal:
		kind := game.ActionDeclineRedeal
		if d.strategy.AcceptRedeal(hand) {
			kind = game.ActionAcceptRedeal
		}
		return game.Action{Kind: kind, Position: dec.Position}

	case game.ActionDeclare:
		value := d.strategy.Declare(hand, r.DeclarationSum(), r.IsLastDeclarer(dec.Position))
		return game.Action{Kind: game.ActionDeclare, Position: dec.Position, Value: value}

	case game.ActionPlay:
		ctx := PlayContext{
			Hand:          hand,
			RequiredCount: r.RequiredCount(),
			IsLeader:      dec.Position == r.CurrentLeader() && r.RequiredCount() == rules.NoRequiredCount,
			CurrentPlays:  r.CurrentPlays(),
			Leader:        r.CurrentLeader(),
			Declared:      r.Declarations()[dec.Position],
			Captured:      r.PileCounts()[dec.Position],
		}
		pieceIDs := d.strategy.Play(ctx)
		if ctx.IsLeader && len(pieceIDs) == 0 {
			pieceIDs = lowestSingle(hand)
		}
		return game.Action{Kind: game.ActionPlay, Position: dec.Position, PieceIDs: pieceIDs}
	}

	d.logger.Error("No decision rule for action kind", "kind", dec.Kind)
	return game.Action{Kind: dec.Kind, Position: dec.Position}
}

// defaultAction is the timeout fallback for an unresponsive human seat:
// decline the redeal, declare the safest zero, or pass (play the lowest
// single when leading, since the leader cannot pass).
func defaultAction(s *game.Session, dec game.Decision) game.Action {
	r := s.Round()

	switch dec.Kind {
	case game.ActionAcceptRedeal:
		return game.Action{Kind: game.ActionDeclineRedeal, Position: dec.Position}

	case game.ActionDeclare:
		value := 0
		if r.IsLastDeclarer(dec.Position) && r.DeclarationSum()+value == round.HandSize {
			value = 1
		}
		return game.Action{Kind: game.ActionDeclare, Position: dec.Position, Value: value}

	case game.ActionPlay:
		var pieceIDs []string
		if dec.Position == r.CurrentLeader() && r.RequiredCount() == rules.NoRequiredCount {
			pieceIDs = lowestSingle(r.Hand(dec.Position))
		}
		return game.Action{Kind: game.ActionPlay, Position: dec.Position, PieceIDs: pieceIDs}
	}

	return game.Action{Kind: dec.Kind, Position: dec.Position}
}

func lowestSingle(hand []piece.Piece) []string {
	if len(hand) == 0 {
		return nil
	}
	return ids(sortedByPoint(hand)[:1])
}
