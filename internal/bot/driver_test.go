package bot

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/liaptui/liaptui/internal/game"
	"github.com/liaptui/liaptui/internal/piece"
	"github.com/liaptui/liaptui/internal/protocol"
)

func testLogger() *log.Logger {
	return log.New(io.Discard)
}

type nullPublisher struct{}

func (nullPublisher) Broadcast(*protocol.Frame)      {}
func (nullPublisher) SendToSeat(int, *protocol.Frame) {}

// actionQueue collects submitted actions across goroutines.
type actionQueue struct {
	mu      sync.Mutex
	actions []game.Action
}

func (q *actionQueue) submit(a game.Action) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.actions = append(q.actions, a)
}

func (q *actionQueue) drain() []game.Action {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.actions
	q.actions = nil
	return out
}

const thinkDelay = 10 * time.Millisecond

func newBotSession(t *testing.T, maxRounds int) *game.Session {
	t.Helper()
	cfg := game.DefaultConfig()
	cfg.MaxRounds = maxRounds
	cfg.WinningScore = 10000 // end on round limit
	s := game.NewSession("abc123", piece.DefaultPointTable(), cfg, nullPublisher{}, testLogger())
	for pos, name := range []string{"bot-a", "bot-b", "bot-c", "bot-d"} {
		s.SeatPlayer(pos, name, true)
	}
	s.SetHost(0)
	return s
}

func newTestDriver(t *testing.T, q *actionQueue, timeout time.Duration) (*Driver, *quartz.Mock) {
	t.Helper()
	mock := quartz.NewMock(t)
	drv := NewDriver(Config{
		ThinkDelayMin: thinkDelay,
		ThinkDelayMax: thinkDelay,
		ActionTimeout: timeout,
		Seed:          1,
	}, NewHeuristic(1), q.submit, mock, testLogger())
	return drv, mock
}

func TestDriverPlaysFullGame(t *testing.T) {
	t.Parallel()
	s := newBotSession(t, 2)
	q := &actionQueue{}
	drv, mock := newTestDriver(t, q, 0)
	ctx := context.Background()

	res := s.HandleAction(game.Action{Kind: game.ActionStartGame, Position: 0})
	if !res.OK() {
		t.Fatalf("start_game failed: %v", res.Err)
	}

	for step := 0; step < 2000 && s.Phase() != game.GameOver; step++ {
		drv.OnStateChange(s)
		if drv.Scheduled() == 0 {
			t.Fatalf("Driver idle in phase %s with no pending decisions resolved", s.Phase())
		}
		mock.Advance(thinkDelay).MustWait(ctx)

		// Stale submissions (scheduled before a redeal or phase change)
		// are expected to fail their phase or turn checks; progress comes
		// from the rescheduled fresh decisions.
		for _, a := range q.drain() {
			if !a.Synthetic {
				t.Error("Driver actions must be marked synthetic")
			}
			s.HandleAction(a)
		}
	}

	if s.Phase() != game.GameOver {
		t.Fatalf("Game did not finish, stuck in %s", s.Phase())
	}
}

func TestDriverDoesNotDoubleSchedule(t *testing.T) {
	t.Parallel()
	s := newBotSession(t, 1)
	q := &actionQueue{}
	drv, _ := newTestDriver(t, q, 0)

	res := s.HandleAction(game.Action{Kind: game.ActionStartGame, Position: 0})
	if !res.OK() {
		t.Fatal(res.Err)
	}

	drv.OnStateChange(s)
	n := drv.Scheduled()
	if n == 0 {
		t.Fatal("Expected scheduled actions")
	}
	drv.OnStateChange(s)
	drv.OnStateChange(s)
	if drv.Scheduled() != n {
		t.Errorf("Repeated notifications changed schedule: %d -> %d", n, drv.Scheduled())
	}
}

func TestDriverCancelSeat(t *testing.T) {
	t.Parallel()
	s := newBotSession(t, 1)
	q := &actionQueue{}
	drv, mock := newTestDriver(t, q, 0)
	ctx := context.Background()

	res := s.HandleAction(game.Action{Kind: game.ActionStartGame, Position: 0})
	if !res.OK() {
		t.Fatal(res.Err)
	}
	drv.OnStateChange(s)
	if drv.Scheduled() == 0 {
		t.Fatal("Expected scheduled actions")
	}

	for pos := 0; pos < 4; pos++ {
		drv.CancelSeat(pos)
	}
	if drv.Scheduled() != 0 {
		t.Fatalf("Expected empty schedule after cancel, got %d", drv.Scheduled())
	}

	mock.Advance(thinkDelay).MustWait(ctx)
	if got := q.drain(); len(got) != 0 {
		t.Errorf("Cancelled timers still submitted %d actions", len(got))
	}
}

func TestDriverStop(t *testing.T) {
	t.Parallel()
	s := newBotSession(t, 1)
	q := &actionQueue{}
	drv, mock := newTestDriver(t, q, 0)
	ctx := context.Background()

	res := s.HandleAction(game.Action{Kind: game.ActionStartGame, Position: 0})
	if !res.OK() {
		t.Fatal(res.Err)
	}
	drv.OnStateChange(s)
	drv.Stop()
	if drv.Scheduled() != 0 {
		t.Error("Stop should cancel all timers")
	}
	mock.Advance(thinkDelay).MustWait(ctx)
	if got := q.drain(); len(got) != 0 {
		t.Errorf("Stopped driver still submitted %d actions", len(got))
	}
}

func TestDriverTimesOutHumanSeats(t *testing.T) {
	t.Parallel()
	cfg := game.DefaultConfig()
	s := game.NewSession("abc123", piece.DefaultPointTable(), cfg, nullPublisher{}, testLogger())
	for pos, name := range []string{"Alice", "Bob", "Carol", "David"} {
		s.SeatPlayer(pos, name, false)
	}
	s.SetHost(0)

	q := &actionQueue{}
	timeout := 30 * time.Second
	drv, mock := newTestDriver(t, q, timeout)
	ctx := context.Background()

	res := s.HandleAction(game.Action{Kind: game.ActionStartGame, Position: 0})
	if !res.OK() {
		t.Fatal(res.Err)
	}

	// Drive to a decision point and let the human sit on it.
	for step := 0; step < 200 && s.Phase() != game.GameOver; step++ {
		drv.OnStateChange(s)
		if drv.Scheduled() == 0 {
			break
		}
		mock.Advance(timeout).MustWait(ctx)

		acted := false
		for _, a := range q.drain() {
			s.HandleAction(a)
			acted = true
		}
		if !acted {
			t.Fatal("Timeout fired but no default action submitted")
		}
	}

	if s.Phase() != game.GameOver && s.Phase() == game.Waiting {
		t.Fatalf("No progress made, phase %s", s.Phase())
	}
}

func TestDriverIdleBeforeGameStarts(t *testing.T) {
	t.Parallel()
	s := newBotSession(t, 1)
	q := &actionQueue{}
	drv, _ := newTestDriver(t, q, 0)

	drv.OnStateChange(s)
	if drv.Scheduled() != 0 {
		t.Errorf("Nothing to schedule in WAITING, got %d", drv.Scheduled())
	}
}

func TestDriverPerPhaseTimeouts(t *testing.T) {
	t.Parallel()
	s := game.NewSession("abc123", piece.DefaultPointTable(), game.DefaultConfig(), nullPublisher{}, testLogger())
	for pos, name := range []string{"Alice", "Bob", "Carol", "David"} {
		s.SeatPlayer(pos, name, false)
	}
	s.SetHost(0)

	q := &actionQueue{}
	mock := quartz.NewMock(t)
	drv := NewDriver(Config{
		ActionTimeout:      30 * time.Second,
		DeclarationTimeout: 5 * time.Second,
	}, NewHeuristic(1), q.submit, mock, testLogger())
	ctx := context.Background()

	res := s.HandleAction(game.Action{Kind: game.ActionStartGame, Position: 0})
	if !res.OK() {
		t.Fatal(res.Err)
	}
	for s.Phase() == game.Preparation {
		for _, dec := range s.PendingDecisions() {
			s.HandleAction(game.Action{Kind: game.ActionDeclineRedeal, Position: dec.Position})
		}
	}
	if s.Phase() != game.Declaration {
		t.Fatalf("Expected declaration phase, got %s", s.Phase())
	}

	drv.OnStateChange(s)
	if drv.Scheduled() == 0 {
		t.Fatal("Expected a declaration deadline scheduled")
	}

	// The declaration deadline applies, not the 30s fallback.
	mock.Advance(5 * time.Second).MustWait(ctx)
	acted := q.drain()
	if len(acted) == 0 {
		t.Fatal("Declaration deadline did not fire at the per-phase timeout")
	}
	if acted[0].Kind != game.ActionDeclare {
		t.Errorf("Default action = %s, want declare", acted[0].Kind)
	}
}
