package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/liaptui/liaptui/internal/protocol"
)

const (
	// Time allowed to write a frame to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192
)

var ErrConnectionClosed = websocket.ErrCloseSent

// Conn wraps one WebSocket client. Incoming frames are routed to the
// room manager; outgoing frames are queued on the send channel and
// written by the write pump.
type Conn struct {
	id      string
	ws      *websocket.Conn
	send    chan *protocol.Frame
	manager *Manager
	logger  *log.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	mu         sync.RWMutex
	playerName string
	roomID     string
	position   int
}

// NewConn wraps an upgraded WebSocket connection.
func NewConn(ws *websocket.Conn, manager *Manager, logger *log.Logger) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	return &Conn{
		id:       id,
		ws:       ws,
		send:     make(chan *protocol.Frame, 256),
		manager:  manager,
		logger:   logger.WithPrefix("conn").With("conn", id[:8]),
		ctx:      ctx,
		cancel:   cancel,
		position: -1,
	}
}

// ID returns the connection's unique identifier.
func (c *Conn) ID() string { return c.id }

// Start begins the read and write pumps.
func (c *Conn) Start() {
	go c.writePump()
	go c.readPump()
}

// Done is closed when the connection shuts down.
func (c *Conn) Done() <-chan struct{} { return c.ctx.Done() }

// Close tears the connection down exactly once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		close(c.send)
		if c.ws != nil {
			err = c.ws.Close()
		}
	})
	return err
}

// Send queues a frame for delivery. A full send buffer closes the
// connection; a slow reader must not stall the room.
func (c *Conn) Send(frame *protocol.Frame) error {
	defer func() {
		if r := recover(); r != nil {
			// Channel closed during shutdown
			c.logger.Debug("Send on closed connection", "error", r)
		}
	}()

	select {
	case c.send <- frame:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
		c.logger.Warn("Send buffer full, closing connection")
		_ = c.Close()
		return ErrConnectionClosed
	}
}

// SetSeat binds the connection to a room seat.
func (c *Conn) SetSeat(roomID string, position int, playerName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomID = roomID
	c.position = position
	c.playerName = playerName
}

// ClearSeat detaches the connection from its room seat.
func (c *Conn) ClearSeat() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomID = ""
	c.position = -1
}

// Seat returns the room and position this connection occupies; position
// is -1 when unseated.
func (c *Conn) Seat() (roomID string, position int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roomID, c.position
}

// SetPlayerName records the name announced by the client before it has a
// seat.
func (c *Conn) SetPlayerName(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playerName = name
}

// PlayerName returns the name announced by the client.
func (c *Conn) PlayerName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.playerName
}

func (c *Conn) readPump() {
	defer func() {
		c.manager.HandleDisconnect(c)
		_ = c.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		var frame protocol.Frame
		if err := c.ws.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", "error", err)
			}
			return
		}
		c.handleFrame(&frame)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteJSON(frame); err != nil {
				c.logger.Error("Failed to write frame", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// handleFrame dispatches one client frame.
func (c *Conn) handleFrame(frame *protocol.Frame) {
	c.logger.Debug("Received frame", "event", frame.Event, "player", c.PlayerName())

	switch frame.Event {
	case protocol.EventClientReady:
		var data protocol.ClientReadyData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			c.sendError(protocol.CodeInvalidMessageFormat, "Failed to parse client_ready data")
			return
		}
		c.manager.HandleClientReady(c, data)

	case protocol.EventCreateRoom:
		var data protocol.CreateRoomData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			c.sendError(protocol.CodeInvalidMessageFormat, "Failed to parse create_room data")
			return
		}
		c.manager.HandleCreateRoom(c, data)

	case protocol.EventJoinRoom:
		var data protocol.JoinRoomData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			c.sendError(protocol.CodeInvalidMessageFormat, "Failed to parse join_room data")
			return
		}
		c.manager.HandleJoinRoom(c, data)

	case protocol.EventLeaveRoom:
		c.manager.HandleLeaveRoom(c)

	case protocol.EventStartGame:
		c.submitAction(protocol.EventStartGame, nil)

	case protocol.EventDeclare:
		var data protocol.DeclareData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			c.sendError(protocol.CodeInvalidMessageFormat, "Failed to parse declare data")
			return
		}
		c.submitAction(protocol.EventDeclare, &data)

	case protocol.EventPlay:
		var data protocol.PlayData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			c.sendError(protocol.CodeInvalidMessageFormat, "Failed to parse play data")
			return
		}
		c.submitAction(protocol.EventPlay, &data)

	case protocol.EventAcceptRedeal:
		c.submitAction(protocol.EventAcceptRedeal, nil)

	case protocol.EventDeclineRedeal:
		c.submitAction(protocol.EventDeclineRedeal, nil)

	case protocol.EventAddBot:
		var data protocol.AddBotData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			c.sendError(protocol.CodeInvalidMessageFormat, "Failed to parse add_bot data")
			return
		}
		c.manager.HandleAddBot(c, data)

	case protocol.EventRemoveBot:
		var data protocol.RemoveBotData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			c.sendError(protocol.CodeInvalidMessageFormat, "Failed to parse remove_bot data")
			return
		}
		c.manager.HandleRemoveBot(c, data)

	case protocol.EventPing:
		var data protocol.PingData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			c.sendError(protocol.CodeInvalidMessageFormat, "Failed to parse ping data")
			return
		}
		c.manager.HandlePing(c, data)

	default:
		c.sendError(protocol.CodeInvalidMessageFormat, "Unknown event: "+frame.Event)
	}
}

// submitAction turns a game event into an action on the room's bus.
func (c *Conn) submitAction(event string, data interface{}) {
	roomID, position := c.Seat()
	if roomID == "" || position < 0 {
		c.sendError(protocol.CodeRoomNotFound, "Not seated in a room")
		return
	}
	c.manager.HandleGameAction(c, roomID, position, event, data)
}

func (c *Conn) sendError(code protocol.ErrorCode, message string) {
	c.sendErrorData(protocol.ErrorData{
		Code:        code,
		Message:     message,
		Recoverable: true,
	})
}

func (c *Conn) sendErrorData(data protocol.ErrorData) {
	frame, err := protocol.NewFrame(protocol.EventError, data)
	if err != nil {
		c.logger.Error("Failed to build error frame", "error", err)
		return
	}
	_ = c.Send(frame)
}
