package server

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/coder/quartz"

	"github.com/liaptui/liaptui/internal/bot"
	"github.com/liaptui/liaptui/internal/game"
	"github.com/liaptui/liaptui/internal/piece"
	"github.com/liaptui/liaptui/internal/protocol"
	"github.com/liaptui/liaptui/internal/storage"
)

// startedRoom builds a mid-game room with humans Alice (host) and Bob
// plus two bots, returning both connections and the room id.
func startedRoom(t *testing.T, m *Manager) (alice, bob *Conn, roomID string) {
	t.Helper()
	alice, roomID = createRoomAs(t, m, "Alice")
	bob = joinRoomAs(t, m, roomID, "Bob")
	addBots(t, m, alice, 2)
	m.HandleGameAction(alice, roomID, 0, protocol.EventStartGame, nil)
	drainFrames(alice)
	drainFrames(bob)
	return alice, bob, roomID
}

func TestClientReadyEntersLobby(t *testing.T) {
	t.Parallel()
	m, _ := newTestManager(t)

	c := NewConn(nil, m, testLogger())
	m.HandleClientReady(c, protocol.ClientReadyData{PlayerName: "Alice"})

	frames := drainFrames(c)
	connected := decode[protocol.ConnectedData](t, frameByEvent(t, frames, protocol.EventConnected))
	if connected.Reconnected {
		t.Error("fresh client marked reconnected")
	}
	if connected.ConnectionID == "" {
		t.Error("connected frame missing connection id")
	}
	frameByEvent(t, frames, protocol.EventRoomListUpdate)
}

func TestClientReadyRequiresName(t *testing.T) {
	t.Parallel()
	m, _ := newTestManager(t)

	c := NewConn(nil, m, testLogger())
	m.HandleClientReady(c, protocol.ClientReadyData{})

	errData := decode[protocol.ErrorData](t, frameByEvent(t, drainFrames(c), protocol.EventError))
	if errData.Code != protocol.CodeMissingRequiredField {
		t.Errorf("error code = %s, want %s", errData.Code, protocol.CodeMissingRequiredField)
	}
}

func TestReconnectReclaimsSeatAndReplays(t *testing.T) {
	t.Parallel()
	m, _ := newTestManager(t)

	alice, bob, roomID := startedRoom(t, m)
	room, _ := m.Room(roomID)
	seqAtDrop := room.Session().Sequence()

	m.HandleDisconnect(bob)
	if seat := room.Session().Seat(1); !seat.IsBot {
		t.Fatal("disconnected seat should be bot-controlled")
	}

	back := NewConn(nil, m, testLogger())
	m.HandleClientReady(back, protocol.ClientReadyData{
		PlayerName:   "Bob",
		Reconnecting: true,
		RoomID:       roomID,
		LastSeenSeq:  seqAtDrop,
	})

	frames := drainFrames(back)
	connected := decode[protocol.ConnectedData](t, frameByEvent(t, frames, protocol.EventConnected))
	if !connected.Reconnected || connected.RoomID != roomID {
		t.Fatalf("connected = %+v, want reconnection into %s", connected, roomID)
	}
	if connected.SessionToken == "" {
		t.Error("reconnection should issue a session token")
	}

	sync := decode[protocol.SyncResponseData](t, frameByEvent(t, frames, protocol.EventSyncResponse))
	if sync.CurrentSequence != room.Session().Sequence() {
		t.Errorf("sync currentSequence = %d, want %d", sync.CurrentSequence, room.Session().Sequence())
	}
	if sync.FullState != nil {
		t.Error("short gap should replay events, not force a full sync")
	}

	hand := decode[protocol.HandUpdatedData](t, frameByEvent(t, frames, protocol.EventHandUpdated))
	if hand.Count == 0 {
		t.Error("reconnecting client got an empty hand")
	}

	seat := room.Session().Seat(1)
	if seat.IsBot || !seat.Connected {
		t.Errorf("seat 1 = %+v, want restored human", seat)
	}
	if roomIDGot, pos := back.Seat(); roomIDGot != roomID || pos != 1 {
		t.Errorf("connection seat = %s/%d, want %s/1", roomIDGot, pos, roomID)
	}

	reconnected := decode[protocol.PlayerReconnectedData](t, frameByEvent(t, drainFrames(alice), protocol.EventPlayerReconnected))
	if reconnected.Player != "Bob" {
		t.Errorf("player_reconnected = %+v", reconnected)
	}
}

func TestReconnectByToken(t *testing.T) {
	t.Parallel()
	m, _ := newTestManager(t)

	_, bob, roomID := startedRoom(t, m)

	// The token issued at join time survives the disconnect.
	token := ""
	m.registry.mu.RLock()
	for tok, b := range m.registry.tokens {
		if b.roomID == roomID && b.position == 1 {
			token = tok
		}
	}
	m.registry.mu.RUnlock()
	if token == "" {
		t.Fatal("no token recorded for Bob's seat")
	}

	m.HandleDisconnect(bob)

	back := NewConn(nil, m, testLogger())
	m.HandleClientReady(back, protocol.ClientReadyData{
		Reconnecting: true,
		SessionToken: token,
	})

	connected := decode[protocol.ConnectedData](t, frameByEvent(t, drainFrames(back), protocol.EventConnected))
	if !connected.Reconnected || connected.RoomID != roomID || connected.PlayerName != "Bob" {
		t.Fatalf("connected = %+v, want Bob back in %s", connected, roomID)
	}
}

func TestReconnectFallsBackToFullSync(t *testing.T) {
	t.Parallel()
	// A tiny change log forces truncation during game start, so a client
	// that saw nothing cannot be caught up by replay alone.
	mock := quartz.NewMock(t)
	registry := NewRegistry(mock, 5*time.Second, 2, testLogger())
	gameCfg := game.DefaultConfig()
	gameCfg.ChangeLogLimit = 2
	m := NewManager(ManagerConfig{
		MaxRooms: 4,
		Game:     gameCfg,
		Table:    piece.DefaultPointTable(),
		Bot: bot.Config{
			ThinkDelayMin: 10 * time.Millisecond,
			ThinkDelayMax: 10 * time.Millisecond,
			Seed:          1,
		},
	}, registry, storage.NewMemory(), mock, testLogger())
	t.Cleanup(m.Shutdown)

	_, bob, roomID := startedRoom(t, m)
	m.HandleDisconnect(bob)

	room, _ := m.Room(roomID)
	if room.Session().Sequence() <= 2 {
		t.Fatalf("game start produced only %d broadcasts, log not truncated", room.Session().Sequence())
	}

	back := NewConn(nil, m, testLogger())
	m.HandleClientReady(back, protocol.ClientReadyData{
		PlayerName:   "Bob",
		Reconnecting: true,
		RoomID:       roomID,
		LastSeenSeq:  0,
	})

	sync := decode[protocol.SyncResponseData](t, frameByEvent(t, drainFrames(back), protocol.EventSyncResponse))
	if sync.FullState == nil {
		t.Error("truncated change log must force a full state sync")
	}
	if len(sync.MissedEvents) != 0 {
		t.Error("full sync should not also carry a partial replay")
	}
}

func TestReconnectUnknownRoomLandsInLobby(t *testing.T) {
	t.Parallel()
	m, _ := newTestManager(t)

	c := NewConn(nil, m, testLogger())
	m.HandleClientReady(c, protocol.ClientReadyData{
		PlayerName:   "Ghost",
		Reconnecting: true,
		RoomID:       "zzzzzz",
		LastSeenSeq:  10,
	})

	frames := drainFrames(c)
	connected := decode[protocol.ConnectedData](t, frameByEvent(t, frames, protocol.EventConnected))
	if connected.Reconnected {
		t.Error("reconnect into a dead room must degrade to a fresh session")
	}
	frameByEvent(t, frames, protocol.EventRoomListUpdate)
}

func TestReconnectCannotStealLiveSeat(t *testing.T) {
	t.Parallel()
	m, _ := newTestManager(t)

	_, _, roomID := startedRoom(t, m)

	// Bob is still connected; an impostor presenting his name must not
	// take the seat over.
	impostor := NewConn(nil, m, testLogger())
	m.HandleClientReady(impostor, protocol.ClientReadyData{
		PlayerName:   "Bob",
		Reconnecting: true,
		RoomID:       roomID,
	})

	connected := decode[protocol.ConnectedData](t, frameByEvent(t, drainFrames(impostor), protocol.EventConnected))
	if connected.Reconnected {
		t.Fatal("live seat was taken over")
	}

	room, _ := m.Room(roomID)
	if seat := room.Session().Seat(1); seat.IsBot {
		t.Error("takeover attempt disturbed the live seat")
	}
}

func TestOriginalBotSeatNotReclaimable(t *testing.T) {
	t.Parallel()
	m, _ := newTestManager(t)

	alice, _, roomID := startedRoom(t, m)
	drainFrames(alice)

	room, _ := m.Room(roomID)
	botName := room.Session().Seat(2).Name

	c := NewConn(nil, m, testLogger())
	m.HandleClientReady(c, protocol.ClientReadyData{
		PlayerName:   botName,
		Reconnecting: true,
		RoomID:       roomID,
	})

	connected := decode[protocol.ConnectedData](t, frameByEvent(t, drainFrames(c), protocol.EventConnected))
	if connected.Reconnected {
		t.Fatal("an original bot seat must never convert to a human")
	}
	if seat := room.Session().Seat(2); !seat.IsBot {
		t.Error("bot seat corrupted by reclaim attempt")
	}
}

func TestReconnectMissesNoBroadcasts(t *testing.T) {
	t.Parallel()
	m, mock := newTestManager(t)
	ctx := context.Background()

	alice, bob, roomID := startedRoom(t, m)
	room, _ := m.Room(roomID)

	// Settle into DECLARATION: bots resolve their own redeal decisions,
	// any human weak hand declines.
	for i := 0; i < 100; i++ {
		var phase game.Phase
		var humanDecs []int
		room.Do(func() {
			s := room.Session()
			phase = s.Phase()
			for _, dec := range s.PendingDecisions() {
				if !s.Seat(dec.Position).IsBot {
					humanDecs = append(humanDecs, dec.Position)
				}
			}
		})
		if phase != game.Preparation {
			break
		}
		for _, pos := range humanDecs {
			m.HandleGameAction(alice, roomID, pos, protocol.EventDeclineRedeal, nil)
		}
		mock.Advance(10 * time.Millisecond).MustWait(ctx)
	}

	var seqAtDrop uint64
	var phase game.Phase
	room.Do(func() {
		seqAtDrop = room.Session().Sequence()
		phase = room.Session().Phase()
	})
	if phase != game.Declaration {
		t.Fatalf("game stuck in %s", phase)
	}

	m.HandleDisconnect(bob)
	drainFrames(bob)

	// Reconnect while declarations keep landing, so broadcasts race the
	// replay capture.
	back := NewConn(nil, m, testLogger())
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.HandleClientReady(back, protocol.ClientReadyData{
			PlayerName:   "Bob",
			Reconnecting: true,
			RoomID:       roomID,
			LastSeenSeq:  seqAtDrop,
		})
	}()
	m.HandleGameAction(alice, roomID, 0, protocol.EventDeclare, &protocol.DeclareData{Value: 2})
	for i := 0; i < 10; i++ {
		mock.Advance(10 * time.Millisecond).MustWait(ctx)
	}
	<-done

	var finalSeq uint64
	room.Do(func() { finalSeq = room.Session().Sequence() })
	if finalSeq <= seqAtDrop {
		t.Fatal("no broadcasts landed during the reconnect window")
	}

	// Every sequence number after the drop must reach the client exactly
	// once somewhere: in the replay, or live after the seat rebind.
	seen := make(map[uint64]bool)
	frames := drainFrames(back)
	syncData := decode[protocol.SyncResponseData](t, frameByEvent(t, frames, protocol.EventSyncResponse))
	for _, raw := range syncData.MissedEvents {
		var f protocol.Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			t.Fatalf("bad replay frame: %v", err)
		}
		seen[f.SequenceNumber] = true
	}
	for _, f := range frames {
		if f.SequenceNumber > 0 {
			seen[f.SequenceNumber] = true
		}
	}
	for seq := seqAtDrop + 1; seq <= finalSeq; seq++ {
		if !seen[seq] {
			t.Errorf("sequence %d neither replayed nor delivered live", seq)
		}
	}
}

func TestReconnectIntoDeadRoomSeesFinalState(t *testing.T) {
	t.Parallel()
	m, _ := newTestManager(t)
	ctx := context.Background()

	// A snapshot left behind by a previous process, with no live room.
	err := m.repo.SaveSnapshot(ctx, storage.Snapshot{
		RoomID:   "abc123",
		Sequence: 42,
		Phase:    "GAME_OVER",
		State:    json.RawMessage(`{"phase":"GAME_OVER","winner":"Bob"}`),
		SavedAt:  time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}

	c := NewConn(nil, m, testLogger())
	m.HandleClientReady(c, protocol.ClientReadyData{
		PlayerName:   "Bob",
		Reconnecting: true,
		RoomID:       "abc123",
		LastSeenSeq:  10,
	})

	frames := drainFrames(c)
	syncData := decode[protocol.SyncResponseData](t, frameByEvent(t, frames, protocol.EventSyncResponse))
	if syncData.CurrentSequence != 42 || syncData.FullState == nil {
		t.Errorf("sync_response = %+v, want the stored final state at seq 42", syncData)
	}

	// The seat itself is gone; the client still degrades to the lobby.
	connected := decode[protocol.ConnectedData](t, frameByEvent(t, frames, protocol.EventConnected))
	if connected.Reconnected {
		t.Error("dead room reconnect must not claim success")
	}
}
