package server

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/liaptui/liaptui/internal/bot"
	"github.com/liaptui/liaptui/internal/game"
	"github.com/liaptui/liaptui/internal/piece"
	"github.com/liaptui/liaptui/internal/protocol"
	"github.com/liaptui/liaptui/internal/roomid"
	"github.com/liaptui/liaptui/internal/round"
	"github.com/liaptui/liaptui/internal/storage"
)

// actionSubmitTimeout bounds how long a client action may wait on a
// room's bus before the connection gets an error back.
const actionSubmitTimeout = 10 * time.Second

// codeReuseGrace holds a closed room's code out of circulation so a
// stale invite link cannot land in a stranger's new room.
const codeReuseGrace = 5 * time.Minute

// ManagerConfig carries the per-room settings the manager stamps onto
// every room it creates.
type ManagerConfig struct {
	MaxRooms      int
	Game          game.Config
	Table         piece.PointTable
	Bot           bot.Config
	TakeoverDelay time.Duration
}

// Manager owns the room lifecycle and the lobby. Connections hand it
// every frame that is not a raw game action; game actions are forwarded
// to the owning room's bus.
type Manager struct {
	cfg      ManagerConfig
	registry *Registry
	repo     storage.Repository
	clock    quartz.Clock
	logger   *log.Logger
	idgen    *roomid.Generator

	mu    sync.RWMutex
	rooms map[string]*Room
	lobby map[string]*Conn
	// released maps recently closed room codes to their close time.
	released map[string]time.Time
	// takeovers holds the pending bot-takeover timer per dropped seat.
	takeovers map[seatKey]*quartz.Timer
}

// NewManager creates a manager and wires it to the registry's heartbeat
// supervision.
func NewManager(cfg ManagerConfig, registry *Registry, repo storage.Repository, clock quartz.Clock, logger *log.Logger) *Manager {
	m := &Manager{
		cfg:       cfg,
		registry:  registry,
		repo:      repo,
		clock:     clock,
		logger:    logger.WithPrefix("manager"),
		idgen:     roomid.NewGenerator(nil),
		rooms:     make(map[string]*Room),
		lobby:     make(map[string]*Conn),
		released:  make(map[string]time.Time),
		takeovers: make(map[seatKey]*quartz.Timer),
	}
	registry.SetTimeoutHandler(m.handleSeatTimeout)
	return m
}

// Room looks up a room by its code.
func (m *Manager) Room(id string) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[id]
	return room, ok
}

// RoomCount returns the number of active rooms.
func (m *Manager) RoomCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// Shutdown closes every active room.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	rooms := make([]*Room, 0, len(m.rooms))
	for id, room := range m.rooms {
		rooms = append(rooms, room)
		delete(m.rooms, id)
	}
	for key, t := range m.takeovers {
		t.Stop()
		delete(m.takeovers, key)
	}
	m.mu.Unlock()

	for _, room := range rooms {
		room.Close()
		m.registry.Release(room.ID)
	}
}

// HandleCreateRoom creates a room and seats the creator as its host.
func (m *Manager) HandleCreateRoom(c *Conn, data protocol.CreateRoomData) {
	name := strings.TrimSpace(data.PlayerName)
	if name == "" {
		c.sendError(protocol.CodeMissingRequiredField, "playerName is required")
		return
	}
	if roomID, _ := c.Seat(); roomID != "" {
		c.sendError(protocol.CodeAlreadyInRoom, "Leave your current room first")
		return
	}

	room, err := m.createRoom(data.RoomName, !data.Private)
	if err != nil {
		c.sendErrorData(*err)
		return
	}

	room.Do(func() {
		room.Session().SeatPlayer(0, name, false)
		room.Session().SetHost(0)
		room.MarkJoined(name)
	})
	token := m.registry.Attach(c, room.ID, 0, name)
	c.SetSeat(room.ID, 0, name)
	m.leaveLobby(c)

	m.sendFrame(c, protocol.EventRoomCreated, protocol.RoomCreatedData{
		RoomID:   room.ID,
		RoomName: room.Name,
	})
	m.sendRoomJoined(c, room, 0)
	m.logger.Info("Room created", "room", room.ID, "host", name, "token", token[:8])
	m.broadcastRoomList()
}

func (m *Manager) createRoom(roomName string, public bool) (*Room, *protocol.ErrorData) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cfg.MaxRooms > 0 && len(m.rooms) >= m.cfg.MaxRooms {
		return nil, &protocol.ErrorData{
			Code:        protocol.CodeServerError,
			Message:     "Room limit reached, try again later",
			Recoverable: true,
		}
	}

	now := m.clock.Now()
	for code, at := range m.released {
		if now.Sub(at) >= codeReuseGrace {
			delete(m.released, code)
		}
	}

	var id string
	for {
		id = m.idgen.Generate()
		if _, taken := m.rooms[id]; taken {
			continue
		}
		if _, held := m.released[id]; held {
			continue
		}
		break
	}
	if roomName == "" {
		roomName = id
	}

	room := NewRoom(id, roomName, public, RoomConfig{
		Game:       m.cfg.Game,
		Table:      m.cfg.Table,
		BotConfig:  m.cfg.Bot,
		Registry:   m.registry,
		Repository: m.repo,
		Clock:      m.clock,
		Logger:     m.logger,
		OnGameOver: m.handleGameOver,
	})
	m.rooms[id] = room
	return room, nil
}

// HandleJoinRoom seats a player at the lowest empty position of an
// existing room.
func (m *Manager) HandleJoinRoom(c *Conn, data protocol.JoinRoomData) {
	name := strings.TrimSpace(data.PlayerName)
	if name == "" {
		c.sendError(protocol.CodeMissingRequiredField, "playerName is required")
		return
	}
	if roomID, _ := c.Seat(); roomID != "" {
		c.sendError(protocol.CodeAlreadyInRoom, "Leave your current room first")
		return
	}

	code := strings.ToLower(strings.TrimSpace(data.RoomName))
	if roomid.Validate(code) != nil {
		c.sendError(protocol.CodeRoomNotFound, "No such room: "+data.RoomName)
		return
	}
	room, ok := m.Room(code)
	if !ok {
		c.sendError(protocol.CodeRoomNotFound, "No such room: "+data.RoomName)
		return
	}

	position := -1
	var joinErr *protocol.ErrorData
	room.Do(func() {
		s := room.Session()
		if room.Playing() {
			joinErr = &protocol.ErrorData{
				Code:        protocol.CodeOutOfPhase,
				Message:     "Game already in progress",
				Recoverable: false,
			}
			return
		}
		if _, taken := s.SeatByName(name); taken {
			joinErr = &protocol.ErrorData{
				Code:        protocol.CodeAlreadyInRoom,
				Message:     "Name already taken in this room",
				Recoverable: true,
			}
			return
		}
		for pos := 0; pos < round.NumSeats; pos++ {
			if !s.Seat(pos).Occupied {
				position = pos
				break
			}
		}
		if position < 0 {
			joinErr = &protocol.ErrorData{
				Code:        protocol.CodeRoomFull,
				Message:     "Room is full",
				Recoverable: false,
			}
			return
		}
		s.SeatPlayer(position, name, false)
		room.MarkJoined(name)
		if s.Host() < 0 {
			s.SetHost(position)
		}
	})
	if joinErr != nil {
		c.sendErrorData(*joinErr)
		return
	}

	m.registry.Attach(c, room.ID, position, name)
	c.SetSeat(room.ID, position, name)
	m.leaveLobby(c)

	m.sendRoomJoined(c, room, position)
	m.broadcastToRoom(room, protocol.EventPlayerJoined, protocol.PlayerJoinedData{
		PlayerName: name,
		Position:   position,
		IsBot:      false,
	})
	m.broadcastRoomList()
}

// HandleLeaveRoom vacates the connection's seat. Mid-game the seat is
// handed to a bot instead so the game can finish.
func (m *Manager) HandleLeaveRoom(c *Conn) {
	roomID, position := c.Seat()
	if roomID == "" || position < 0 {
		c.sendError(protocol.CodeRoomNotFound, "Not seated in a room")
		return
	}
	room, ok := m.Room(roomID)

	m.registry.Detach(c)
	c.ClearSeat()
	m.joinLobby(c)

	if !ok {
		return
	}
	m.vacateSeat(room, position)
}

// HandleDisconnect is called by the read pump when a connection drops.
func (m *Manager) HandleDisconnect(c *Conn) {
	m.leaveLobby(c)

	roomID, position := c.Seat()
	if roomID == "" || position < 0 {
		return
	}
	// Only detach if this connection still owns the seat; a reconnected
	// client may have replaced it already.
	if current, ok := m.registry.SeatConn(roomID, position); !ok || current != c {
		return
	}
	m.registry.Detach(c)

	if room, ok := m.Room(roomID); ok {
		m.handleSeatDrop(room, position)
	}
}

func (m *Manager) handleSeatTimeout(roomID string, position int) {
	room, ok := m.Room(roomID)
	if !ok {
		return
	}
	m.logger.Info("Seat heartbeat timeout", "room", roomID, "position", position)
	m.handleSeatDrop(room, position)
}

// handleSeatDrop reacts to a transport loss. Mid-game, with a takeover
// grace period configured, the seat is held for the returning player
// before bot conversion; otherwise the seat is vacated right away.
func (m *Manager) handleSeatDrop(room *Room, position int) {
	if m.cfg.TakeoverDelay <= 0 || !room.Playing() {
		m.vacateSeat(room, position)
		return
	}

	held := false
	room.Do(func() {
		s := room.Session()
		seat := s.Seat(position)
		if !seat.Occupied || seat.IsBot {
			return
		}
		s.SetConnected(position, false)
		held = true
		m.broadcastFromWorker(room, protocol.EventPlayerDisconnected, protocol.PlayerDisconnectedData{
			Player:         seat.Name,
			TimeoutSeconds: int(m.cfg.TakeoverDelay / time.Second),
		})
	})
	if !held {
		m.vacateSeat(room, position)
		return
	}

	key := seatKey{room.ID, position}
	m.mu.Lock()
	if t, ok := m.takeovers[key]; ok {
		t.Stop()
	}
	m.takeovers[key] = m.clock.AfterFunc(m.cfg.TakeoverDelay, func() {
		m.mu.Lock()
		delete(m.takeovers, key)
		m.mu.Unlock()
		m.finishTakeover(room, position)
	})
	m.mu.Unlock()
	m.logger.Info("Seat held for reconnect",
		"room", room.ID, "position", position, "grace", m.cfg.TakeoverDelay)
}

// finishTakeover converts a held seat to bot control unless the player
// made it back within the grace period.
func (m *Manager) finishTakeover(room *Room, position int) {
	reclaimed := false
	room.Do(func() {
		reclaimed = room.Session().Seat(position).Connected
	})
	if !reclaimed {
		m.vacateSeat(room, position)
	}
}

func (m *Manager) cancelTakeover(roomID string, position int) {
	key := seatKey{roomID, position}
	m.mu.Lock()
	if t, ok := m.takeovers[key]; ok {
		t.Stop()
		delete(m.takeovers, key)
	}
	m.mu.Unlock()
}

// vacateSeat removes a player from a seat: mid-game the seat converts to
// bot control and stays reclaimable, otherwise it empties. Closes the
// room when no humans remain outside a game.
func (m *Manager) vacateSeat(room *Room, position int) {
	shouldClose := false
	room.Do(func() {
		s := room.Session()
		seat := s.Seat(position)
		if !seat.Occupied {
			return
		}
		wasHost := s.Host() == position

		if room.Playing() {
			if seat.IsBot {
				return
			}
			s.ConvertToBot(position)
			if wasHost {
				if next := room.EarliestHuman(position); next >= 0 {
					s.SetHost(next)
				}
			}
			m.broadcastFromWorker(room, protocol.EventPlayerDisconnected, protocol.PlayerDisconnectedData{
				Player:      seat.Name,
				AIActivated: true,
			})
			room.Driver().OnStateChange(s)
		} else {
			s.VacateSeat(position)
			room.ForgetJoined(seat.Name)
			newHost := ""
			if wasHost {
				if next := room.EarliestHuman(position); next >= 0 {
					s.SetHost(next)
					newHost = s.Seat(next).Name
				} else {
					s.SetHost(-1)
				}
			}
			m.broadcastFromWorker(room, protocol.EventPlayerLeft, protocol.PlayerLeftData{
				PlayerName: seat.Name,
				NewHost:    newHost,
			})
		}

		humans := 0
		for _, st := range s.Seats() {
			if st.Occupied && !st.IsBot {
				humans++
			}
		}
		shouldClose = humans == 0 && !room.Playing()
	})

	if shouldClose {
		m.closeRoom(room)
	}
	m.broadcastRoomList()
}

// handleGameOver reaps a room whose game finished with nobody human left
// watching. Runs on the room worker.
func (m *Manager) handleGameOver(room *Room) {
	for _, seat := range room.Session().Seats() {
		if seat.Occupied && !seat.IsBot {
			return
		}
	}
	m.logger.Info("Game finished with no humans seated", "room", room.ID)
	m.closeRoom(room)
	m.broadcastRoomList()
}

func (m *Manager) closeRoom(room *Room) {
	m.mu.Lock()
	delete(m.rooms, room.ID)
	m.released[room.ID] = m.clock.Now()
	for key, t := range m.takeovers {
		if key.roomID == room.ID {
			t.Stop()
			delete(m.takeovers, key)
		}
	}
	m.mu.Unlock()

	room.Close()
	m.registry.Release(room.ID)
	if m.repo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := m.repo.DeleteRoom(ctx, room.ID); err != nil {
			m.logger.Debug("Failed to delete room history", "room", room.ID, "error", err)
		}
	}
	m.logger.Info("Room closed", "room", room.ID)
}

// HandleAddBot seats a bot. Host only, and only before the game starts.
func (m *Manager) HandleAddBot(c *Conn, data protocol.AddBotData) {
	room, position, ok := m.hostRoom(c)
	if !ok {
		return
	}

	var botName string
	var addErr *protocol.ErrorData
	botPos := -1
	room.Do(func() {
		s := room.Session()
		if s.Host() != position {
			addErr = &protocol.ErrorData{
				Code:        protocol.CodeNotHost,
				Message:     "Only the host may add bots",
				Recoverable: false,
			}
			return
		}
		if room.Playing() {
			addErr = &protocol.ErrorData{
				Code:        protocol.CodeOutOfPhase,
				Message:     "Cannot change seats during a game",
				Recoverable: false,
			}
			return
		}

		botPos = data.Position
		if botPos < 0 {
			for pos := 0; pos < round.NumSeats; pos++ {
				if !s.Seat(pos).Occupied {
					botPos = pos
					break
				}
			}
		}
		if botPos < 0 || botPos >= round.NumSeats {
			addErr = &protocol.ErrorData{
				Code:        protocol.CodeOutOfRange,
				Message:     "No seat available for a bot",
				Recoverable: true,
			}
			return
		}
		if s.Seat(botPos).Occupied {
			addErr = &protocol.ErrorData{
				Code:        protocol.CodeRoomFull,
				Message:     fmt.Sprintf("Seat %d is occupied", botPos),
				Recoverable: true,
			}
			return
		}

		botName = fmt.Sprintf("Bot %d", botPos+1)
		for {
			if _, taken := s.SeatByName(botName); !taken {
				break
			}
			botName += "+"
		}
		s.SeatPlayer(botPos, botName, true)
		m.broadcastFromWorker(room, protocol.EventPlayerJoined, protocol.PlayerJoinedData{
			PlayerName: botName,
			Position:   botPos,
			IsBot:      true,
		})
	})
	if addErr != nil {
		c.sendErrorData(*addErr)
		return
	}
	m.broadcastRoomList()
}

// HandleRemoveBot vacates a bot seat. Host only, and only before the
// game starts.
func (m *Manager) HandleRemoveBot(c *Conn, data protocol.RemoveBotData) {
	room, position, ok := m.hostRoom(c)
	if !ok {
		return
	}

	var removeErr *protocol.ErrorData
	room.Do(func() {
		s := room.Session()
		if s.Host() != position {
			removeErr = &protocol.ErrorData{
				Code:        protocol.CodeNotHost,
				Message:     "Only the host may remove bots",
				Recoverable: false,
			}
			return
		}
		if room.Playing() {
			removeErr = &protocol.ErrorData{
				Code:        protocol.CodeOutOfPhase,
				Message:     "Cannot change seats during a game",
				Recoverable: false,
			}
			return
		}
		if data.Position < 0 || data.Position >= round.NumSeats {
			removeErr = &protocol.ErrorData{
				Code:        protocol.CodeOutOfRange,
				Message:     "Invalid seat position",
				Recoverable: true,
			}
			return
		}
		seat := s.Seat(data.Position)
		if !seat.Occupied || !seat.IsBot {
			removeErr = &protocol.ErrorData{
				Code:        protocol.CodeOutOfRange,
				Message:     fmt.Sprintf("No bot at seat %d", data.Position),
				Recoverable: true,
			}
			return
		}
		s.VacateSeat(data.Position)
		m.broadcastFromWorker(room, protocol.EventPlayerLeft, protocol.PlayerLeftData{
			PlayerName: seat.Name,
		})
	})
	if removeErr != nil {
		c.sendErrorData(*removeErr)
		return
	}
	m.broadcastRoomList()
}

func (m *Manager) hostRoom(c *Conn) (*Room, int, bool) {
	roomID, position := c.Seat()
	if roomID == "" || position < 0 {
		c.sendError(protocol.CodeRoomNotFound, "Not seated in a room")
		return nil, -1, false
	}
	room, ok := m.Room(roomID)
	if !ok {
		c.sendError(protocol.CodeRoomNotFound, "Room no longer exists")
		return nil, -1, false
	}
	return room, position, true
}

// HandlePing answers an application-level heartbeat and refreshes the
// seat's liveness.
func (m *Manager) HandlePing(c *Conn, data protocol.PingData) {
	m.registry.Touch(c)
	m.sendFrame(c, protocol.EventPong, protocol.PongData{
		ClientTime: data.ClientTime,
		ServerTime: m.clock.Now().UnixMilli(),
	})
}

// HandleGameAction forwards a client game event to its room's action
// bus and reports failures back on the connection.
func (m *Manager) HandleGameAction(c *Conn, roomID string, position int, event string, data interface{}) {
	room, ok := m.Room(roomID)
	if !ok {
		c.sendError(protocol.CodeRoomNotFound, "Room no longer exists")
		return
	}

	action := game.Action{Position: position}
	switch event {
	case protocol.EventStartGame:
		action.Kind = game.ActionStartGame
	case protocol.EventDeclare:
		action.Kind = game.ActionDeclare
		action.Value = data.(*protocol.DeclareData).Value
	case protocol.EventPlay:
		action.Kind = game.ActionPlay
		action.PieceIDs = data.(*protocol.PlayData).PieceIDs
	case protocol.EventAcceptRedeal:
		action.Kind = game.ActionAcceptRedeal
	case protocol.EventDeclineRedeal:
		action.Kind = game.ActionDeclineRedeal
	default:
		c.sendError(protocol.CodeInvalidMessageFormat, "Unknown game action: "+event)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), actionSubmitTimeout)
	defer cancel()
	result, err := room.Submit(ctx, action)
	if err != nil {
		c.sendError(protocol.CodeServerError, "Action timed out, try again")
		return
	}
	if result.Err != nil {
		c.sendErrorData(result.Err.WireData())
		return
	}
	m.registry.Touch(c)
}

// Lobby membership and listing.

func (m *Manager) joinLobby(c *Conn) {
	m.mu.Lock()
	m.lobby[c.ID()] = c
	m.mu.Unlock()
}

func (m *Manager) leaveLobby(c *Conn) {
	m.mu.Lock()
	delete(m.lobby, c.ID())
	m.mu.Unlock()
}

func (m *Manager) roomList() protocol.RoomListUpdateData {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rooms := make([]protocol.RoomSummary, 0, len(m.rooms))
	for _, room := range m.rooms {
		if !room.Public {
			continue
		}
		rooms = append(rooms, room.Summary())
	}
	return protocol.RoomListUpdateData{Rooms: rooms}
}

// broadcastRoomList pushes the current listing to everyone in the lobby.
func (m *Manager) broadcastRoomList() {
	frame, err := protocol.NewFrame(protocol.EventRoomListUpdate, m.roomList())
	if err != nil {
		m.logger.Error("Failed to build room list frame", "error", err)
		return
	}

	m.mu.RLock()
	conns := make([]*Conn, 0, len(m.lobby))
	for _, c := range m.lobby {
		conns = append(conns, c)
	}
	m.mu.RUnlock()

	for _, c := range conns {
		_ = c.Send(frame)
	}
}

// Frame helpers.

func (m *Manager) sendFrame(c *Conn, event string, data interface{}) {
	frame, err := protocol.NewFrame(event, data)
	if err != nil {
		m.logger.Error("Failed to build frame", "event", event, "error", err)
		return
	}
	_ = c.Send(frame)
}

func (m *Manager) broadcastToRoom(room *Room, event string, data interface{}) {
	frame, err := protocol.NewFrame(event, data)
	if err != nil {
		m.logger.Error("Failed to build frame", "event", event, "error", err)
		return
	}
	room.Broadcast(frame)
}

// broadcastFromWorker is broadcastToRoom for use inside room.Do
// closures. Identical today; the split keeps call sites honest about
// which goroutine they run on.
func (m *Manager) broadcastFromWorker(room *Room, event string, data interface{}) {
	m.broadcastToRoom(room, event, data)
}

// sendRoomJoined delivers the room snapshot a client needs after taking
// a seat.
func (m *Manager) sendRoomJoined(c *Conn, room *Room, position int) {
	var data protocol.RoomJoinedData
	room.Do(func() {
		s := room.Session()
		data = protocol.RoomJoinedData{
			RoomID:    room.ID,
			RoomName:  room.Name,
			Position:  position,
			Players:   seatInfos(s),
			GameState: s.GameStateJSON(),
		}
	})
	m.sendFrame(c, protocol.EventRoomJoined, data)
}

func seatInfos(s *game.Session) []protocol.SeatInfo {
	infos := make([]protocol.SeatInfo, round.NumSeats)
	for pos, seat := range s.Seats() {
		infos[pos] = protocol.SeatInfo{
			Position: pos,
			Name:     seat.Name,
			IsBot:    seat.IsBot,
			IsHost:   pos == s.Host(),
			Score:    seat.Score,
			Occupied: seat.Occupied,
		}
	}
	return infos
}
