package server

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/liaptui/liaptui/internal/protocol"
)

// HandleClientReady is the first frame of every connection: a fresh
// client lands in the lobby, a reconnecting one reclaims its seat and
// gets caught up on what it missed.
func (m *Manager) HandleClientReady(c *Conn, data protocol.ClientReadyData) {
	name := strings.TrimSpace(data.PlayerName)

	if data.Reconnecting {
		if m.handleReconnect(c, name, data) {
			return
		}
		// Seat gone or unreachable; fall through to a fresh lobby entry so
		// the client can rejoin by hand.
		m.logger.Info("Reconnect failed, entering lobby", "player", name, "room", data.RoomID)
	}

	if name == "" {
		c.sendError(protocol.CodeMissingRequiredField, "playerName is required")
		return
	}
	c.SetPlayerName(name)
	m.joinLobby(c)

	m.sendFrame(c, protocol.EventConnected, protocol.ConnectedData{
		ConnectionID: c.ID(),
		PlayerName:   name,
	})
	m.sendFrame(c, protocol.EventRoomListUpdate, m.roomList())
}

// handleReconnect tries to give the connection its old seat back.
// Returns false when the room or seat cannot be reclaimed.
func (m *Manager) handleReconnect(c *Conn, name string, data protocol.ClientReadyData) bool {
	roomID := data.RoomID
	position := -1

	// A session token pins the exact seat; room plus name is the fallback
	// for clients that lost the token.
	if data.SessionToken != "" {
		tokRoom, tokPos, tokName, ok := m.registry.ByToken(data.SessionToken)
		if ok {
			roomID = tokRoom
			position = tokPos
			if name == "" {
				name = tokName
			}
		}
	}
	if roomID == "" || name == "" {
		return false
	}
	room, ok := m.Room(roomID)
	if !ok {
		// A snapshot without a live room means the room died with a
		// previous process. The session is not revivable, but the stored
		// final state is still worth showing before the client degrades
		// to the lobby.
		if m.repo != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if snap, err := m.repo.LoadSnapshot(ctx, roomID); err == nil {
				m.sendFrame(c, protocol.EventSyncResponse, protocol.SyncResponseData{
					CurrentSequence: snap.Sequence,
					FullState:       snap.State,
				})
				m.logger.Info("Reconnect into a room from a previous run",
					"room", roomID, "phase", snap.Phase, "seq", snap.Sequence)
			}
		}
		return false
	}

	var (
		reclaimed bool
		token     string
		syncData  protocol.SyncResponseData
		hand      *protocol.Frame
	)
	room.Do(func() {
		s := room.Session()
		if position < 0 {
			seat, found := s.SeatByName(name)
			if !found {
				return
			}
			position = seat.Position
		}
		seat := s.Seat(position)
		if !seat.Occupied || seat.Name != name {
			return
		}
		// Reclaimable seats: bot-converted after a disconnect, or a human
		// seat whose transport dropped. Original bots stay bots.
		if seat.IsOriginalBot {
			return
		}
		if !seat.IsBot && seat.Connected {
			if conn, live := m.registry.SeatConn(roomID, position); live && conn != c {
				// The seat already has a live connection; refuse the takeover.
				return
			}
		}

		s.RestoreHuman(position)
		room.Driver().CancelSeat(position)
		reclaimed = true

		syncData.CurrentSequence = s.Sequence()
		if frames, logOK := s.Replay(data.LastSeenSeq); logOK {
			syncData.MissedEvents = marshalFrames(frames)
		} else {
			syncData.FullState = s.FullStateJSON()
		}

		var err error
		if hand, err = s.HandFrame(position); err != nil {
			m.logger.Error("Failed to build hand frame", "error", err)
			hand = nil
		}

		m.broadcastFromWorker(room, protocol.EventPlayerReconnected, protocol.PlayerReconnectedData{
			Player: name,
		})

		// Bind before the worker moves on: every broadcast after the
		// replay snapshot above must reach this connection live, or the
		// client ends up with a sequence gap its sync never covers.
		token = m.registry.Attach(c, roomID, position, name)
		c.SetSeat(roomID, position, name)
		m.registry.SetLastSeenSeq(c, data.LastSeenSeq)
	})
	if !reclaimed {
		return false
	}

	m.cancelTakeover(roomID, position)
	m.leaveLobby(c)

	m.sendFrame(c, protocol.EventConnected, protocol.ConnectedData{
		ConnectionID: c.ID(),
		RoomID:       roomID,
		PlayerName:   name,
		Reconnected:  true,
		SessionToken: token,
	})
	m.sendFrame(c, protocol.EventSyncResponse, syncData)
	if hand != nil {
		_ = c.Send(hand)
	}
	m.logger.Info("Player reconnected", "room", roomID, "position", position, "player", name)
	return true
}

func marshalFrames(frames []*protocol.Frame) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(frames))
	for _, frame := range frames {
		raw, err := json.Marshal(frame)
		if err != nil {
			continue
		}
		out = append(out, raw)
	}
	return out
}
