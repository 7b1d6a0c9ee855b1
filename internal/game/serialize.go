package game

import (
	"encoding/json"
	"sort"

	"github.com/liaptui/liaptui/internal/piece"
	"github.com/liaptui/liaptui/internal/protocol"
	"github.com/liaptui/liaptui/internal/round"
	"github.com/liaptui/liaptui/internal/rules"
)

// The wire serializer. Everything published by the session flows through
// these helpers: enums become their string names, pieces become
// {id,rank,color,point}, sets become sorted arrays. Private hands never
// appear in broadcast payloads.

func pieceInfo(pc piece.Piece) protocol.PieceInfo {
	return protocol.PieceInfo{
		ID:    pc.ID,
		Rank:  pc.Rank.String(),
		Color: pc.Color.String(),
		Point: pc.Point,
	}
}

func piecesInfo(pieces []piece.Piece) []protocol.PieceInfo {
	infos := make([]protocol.PieceInfo, len(pieces))
	for i, pc := range pieces {
		infos[i] = pieceInfo(pc)
	}
	return infos
}

// playJSON is the broadcast form of one seat's play.
type playJSON struct {
	Type   string               `json:"type"`
	Pieces []protocol.PieceInfo `json:"pieces"`
}

func playToJSON(p piece.Play) playJSON {
	return playJSON{Type: p.Type.String(), Pieces: piecesInfo(p.Pieces)}
}

func playsToJSON(plays map[int]piece.Play) map[string]playJSON {
	out := make(map[string]playJSON, len(plays))
	for pos, play := range plays {
		out[posKey(pos)] = playToJSON(play)
	}
	return out
}

func posKey(pos int) string {
	return string(rune('0' + pos))
}

func handUpdatedData(hand []piece.Piece) protocol.HandUpdatedData {
	sorted := make([]piece.Piece, len(hand))
	copy(sorted, hand)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Point != sorted[j].Point {
			return sorted[i].Point > sorted[j].Point
		}
		return sorted[i].ID < sorted[j].ID
	})
	return protocol.HandUpdatedData{
		Pieces: piecesInfo(sorted),
		Count:  len(sorted),
	}
}

// gameStateJSON is the public game snapshot attached to every
// phase_change frame and to full syncs.
type gameStateJSON struct {
	RoomID        string              `json:"roomId"`
	Phase         string              `json:"phase"`
	RoundNumber   int                 `json:"roundNumber,omitempty"`
	Multiplier    int                 `json:"multiplier,omitempty"`
	TurnNumber    int                 `json:"turnNumber,omitempty"`
	CurrentLeader *int                `json:"currentLeader,omitempty"`
	RequiredCount *int                `json:"requiredCount,omitempty"`
	Declarations  map[string]int      `json:"declarations,omitempty"`
	HandSizes     []int               `json:"handSizes,omitempty"`
	PileCounts    []int               `json:"pileCounts,omitempty"`
	Seats         []protocol.SeatInfo `json:"seats"`
}

func (s *Session) gameState() gameStateJSON {
	state := gameStateJSON{
		RoomID: s.roomID,
		Phase:  s.phase.String(),
		Seats:  s.seatInfos(),
	}
	if s.round == nil {
		return state
	}

	r := s.round
	state.RoundNumber = r.Number
	state.Multiplier = r.Multiplier
	state.TurnNumber = r.TurnNumber

	leader := r.CurrentLeader()
	state.CurrentLeader = &leader
	if rc := r.RequiredCount(); rc != rules.NoRequiredCount {
		state.RequiredCount = &rc
	}

	if decls := r.Declarations(); len(decls) > 0 {
		state.Declarations = make(map[string]int, len(decls))
		for pos, v := range decls {
			state.Declarations[posKey(pos)] = v
		}
	}

	sizes := r.HandSizes()
	state.HandSizes = sizes[:]
	counts := r.PileCounts()
	state.PileCounts = make([]int, round.NumSeats)
	for pos := 0; pos < round.NumSeats; pos++ {
		state.PileCounts[pos] = counts[pos]
	}
	return state
}

func (s *Session) seatInfos() []protocol.SeatInfo {
	infos := make([]protocol.SeatInfo, round.NumSeats)
	for pos, seat := range s.seats {
		infos[pos] = protocol.SeatInfo{
			Position: pos,
			Name:     seat.Name,
			IsBot:    seat.IsBot,
			IsHost:   pos == s.hostPosition,
			Score:    seat.Score,
			Occupied: seat.Occupied,
		}
	}
	return infos
}

// GameStateJSON returns the serialized public game state.
func (s *Session) GameStateJSON() json.RawMessage {
	raw, err := json.Marshal(s.gameState())
	if err != nil {
		s.logger.Error("Failed to marshal game state", "error", err)
		return json.RawMessage("{}")
	}
	return raw
}

// PhaseDataJSON returns the serialized phase data.
func (s *Session) PhaseDataJSON() json.RawMessage {
	raw, err := json.Marshal(s.phaseData)
	if err != nil {
		s.logger.Error("Failed to marshal phase data", "error", err)
		return json.RawMessage("{}")
	}
	return raw
}

func (s *Session) phaseChangeFrame(reason string) *protocol.Frame {
	frame, err := protocol.NewFrame(protocol.EventPhaseChange, protocol.PhaseChangeData{
		Phase:          s.phase.String(),
		PhaseData:      s.PhaseDataJSON(),
		GameState:      s.GameStateJSON(),
		Reason:         reason,
		SequenceNumber: s.seq,
	})
	if err != nil {
		s.logger.Error("Failed to build phase_change frame", "error", err)
		frame = &protocol.Frame{Event: protocol.EventPhaseChange}
	}
	return frame.WithSequence(s.seq)
}

// fullState is what a reconnecting client receives when the change log no
// longer covers its gap: the complete public state plus phase data. The
// private hand travels separately as a hand_updated frame.
type fullState struct {
	Phase     string          `json:"phase"`
	PhaseData json.RawMessage `json:"phaseData"`
	GameState json.RawMessage `json:"gameState"`
}

// FullStateJSON returns the full-sync payload for sync_response frames.
func (s *Session) FullStateJSON() json.RawMessage {
	raw, err := json.Marshal(fullState{
		Phase:     s.phase.String(),
		PhaseData: s.PhaseDataJSON(),
		GameState: s.GameStateJSON(),
	})
	if err != nil {
		s.logger.Error("Failed to marshal full state", "error", err)
		return json.RawMessage("{}")
	}
	return raw
}

// HandFrame builds the private hand_updated frame for a seat, used both
// after deals and during reconnection sync.
func (s *Session) HandFrame(pos int) (*protocol.Frame, error) {
	if s.round == nil {
		return protocol.NewFrame(protocol.EventHandUpdated, protocol.HandUpdatedData{
			Pieces: []protocol.PieceInfo{},
		})
	}
	return protocol.NewFrame(protocol.EventHandUpdated, handUpdatedData(s.round.Hand(pos)))
}
