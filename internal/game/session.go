package game

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/charmbracelet/log"

	"github.com/liaptui/liaptui/internal/piece"
	"github.com/liaptui/liaptui/internal/protocol"
	"github.com/liaptui/liaptui/internal/round"
)

// Publisher delivers frames to a room's connected seats. The server layer
// implements it; the session never touches sockets directly.
type Publisher interface {
	// Broadcast queues a frame to every connected seat of the room.
	Broadcast(frame *protocol.Frame)
	// SendToSeat queues a frame to one seat, dropping it silently when the
	// seat has no live connection.
	SendToSeat(position int, frame *protocol.Frame)
}

// Config holds the tunables of a game session.
type Config struct {
	WinningScore   int
	MaxRounds      int
	ChangeLogLimit int
	Seed           int64
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		WinningScore:   50,
		MaxRounds:      20,
		ChangeLogLimit: 256,
	}
}

// Seat is one of the four player slots of a session. Hands, declarations
// and piles live on the Round; the seat carries identity and score.
type Seat struct {
	Position      int
	Name          string
	Occupied      bool
	IsBot         bool
	IsOriginalBot bool
	Connected     bool
	Score         int
}

// Delta is a shallow patch applied to phaseData. A nil value removes the
// key. Values must be JSON-serializable.
type Delta map[string]interface{}

// Session is the authoritative state of one game: the phase machine, the
// current round and the broadcast discipline around both.
//
// A Session is not safe for concurrent use. The room's single worker is
// the only caller; everything else talks to it through the action bus.
type Session struct {
	roomID       string
	hostPosition int
	cfg          Config
	table        piece.PointTable
	publisher    Publisher
	logger       *log.Logger

	phase     Phase
	phaseData map[string]interface{}
	seats     [round.NumSeats]Seat
	round     *round.Round
	seq       uint64
	changes   *changeLog
	handlers  map[Phase]phaseHandler
}

// NewSession creates a session in the WAITING phase.
func NewSession(roomID string, table piece.PointTable, cfg Config, publisher Publisher, logger *log.Logger) *Session {
	if cfg.ChangeLogLimit <= 0 {
		cfg.ChangeLogLimit = DefaultConfig().ChangeLogLimit
	}
	s := &Session{
		roomID:       roomID,
		hostPosition: -1,
		cfg:          cfg,
		table:        table,
		publisher:    publisher,
		logger:       logger.WithPrefix("session").With("room", roomID),
		phase:        Waiting,
		phaseData:    make(map[string]interface{}),
		changes:      newChangeLog(cfg.ChangeLogLimit),
	}
	for pos := range s.seats {
		s.seats[pos] = Seat{Position: pos}
	}
	s.handlers = map[Phase]phaseHandler{
		Waiting:     &waitingState{},
		Preparation: &preparationState{},
		Declaration: &declarationState{},
		Turn:        &turnState{},
		TurnResults: &turnResultsState{},
		Scoring:     &scoringState{},
		GameOver:    &gameOverState{},
	}
	return s
}

// RoomID returns the owning room's identifier.
func (s *Session) RoomID() string { return s.roomID }

// Phase returns the current phase.
func (s *Session) Phase() Phase { return s.phase }

// Sequence returns the latest broadcast sequence number.
func (s *Session) Sequence() uint64 { return s.seq }

// Round returns the current round, nil before the game starts. Callers
// outside the room worker must treat it as read-only.
func (s *Session) Round() *round.Round { return s.round }

// PhaseData returns a copy of the current phase data.
func (s *Session) PhaseData() map[string]interface{} {
	data := make(map[string]interface{}, len(s.phaseData))
	for k, v := range s.phaseData {
		data[k] = v
	}
	return data
}

// Seats returns a snapshot of all four seats.
func (s *Session) Seats() [round.NumSeats]Seat {
	return s.seats
}

// Seat returns a snapshot of one seat.
func (s *Session) Seat(pos int) Seat {
	return s.seats[pos]
}

// SeatByName finds the seat occupied under name.
func (s *Session) SeatByName(name string) (Seat, bool) {
	for _, seat := range s.seats {
		if seat.Occupied && seat.Name == name {
			return seat, true
		}
	}
	return Seat{}, false
}

// SeatPlayer occupies a seat.
func (s *Session) SeatPlayer(pos int, name string, isBot bool) {
	s.seats[pos] = Seat{
		Position:      pos,
		Name:          name,
		Occupied:      true,
		IsBot:         isBot,
		IsOriginalBot: isBot,
		Connected:     !isBot,
	}
}

// VacateSeat empties a seat, keeping its score history out of the room.
func (s *Session) VacateSeat(pos int) {
	s.seats[pos] = Seat{Position: pos}
}

// ConvertToBot flips a human seat to bot control, e.g. after a disconnect
// or an explicit mid-game leave.
func (s *Session) ConvertToBot(pos int) {
	s.seats[pos].IsBot = true
	s.seats[pos].Connected = false
}

// RestoreHuman flips an auto-bot seat back to its returning human.
func (s *Session) RestoreHuman(pos int) {
	if !s.seats[pos].IsOriginalBot {
		s.seats[pos].IsBot = false
	}
	s.seats[pos].Connected = true
}

// SetConnected records transport liveness for a seat.
func (s *Session) SetConnected(pos int, connected bool) {
	s.seats[pos].Connected = connected
}

// SetHost records which seat is the room host.
func (s *Session) SetHost(pos int) { s.hostPosition = pos }

// Host returns the host seat position, -1 when the room is empty.
func (s *Session) Host() int { return s.hostPosition }

// OccupiedSeats returns the number of occupied seats.
func (s *Session) OccupiedSeats() int {
	n := 0
	for _, seat := range s.seats {
		if seat.Occupied {
			n++
		}
	}
	return n
}

// HandleAction routes an action to the current phase handler. Actions the
// phase does not accept fail with OUT_OF_PHASE and leave state untouched.
func (s *Session) HandleAction(a Action) ActionResult {
	handler := s.handlers[s.phase]
	if !handler.accepts(a.Kind) {
		return ActionResult{Err: errOutOfPhase(s.phase, a.Kind), Seq: s.seq}
	}
	return handler.handleAction(s, a)
}

// update is the sole mutation path for phaseData: it applies the delta,
// appends a change record, increments the sequence number and publishes
// the phase_change frame, as one unit from the worker's perspective.
func (s *Session) update(delta Delta, reason string) uint64 {
	return s.commit(delta, reason)
}

func (s *Session) commit(delta Delta, reason string) uint64 {
	prior := digest(s.phaseData)
	for k, v := range delta {
		if v == nil {
			delete(s.phaseData, k)
		} else {
			s.phaseData[k] = v
		}
	}

	s.seq++

	deltaJSON, err := json.Marshal(delta)
	if err != nil {
		s.logger.Error("Failed to marshal delta", "error", err, "reason", reason)
		deltaJSON = []byte("{}")
	}

	frame := s.phaseChangeFrame(reason)
	s.changes.append(ChangeRecord{
		Seq:         s.seq,
		Reason:      reason,
		Delta:       deltaJSON,
		PriorDigest: prior,
		Frame:       frame,
		At:          time.Now(),
	})

	if s.publisher != nil {
		s.publisher.Broadcast(frame)
	}
	s.logger.Debug("Phase data updated", "phase", s.phase, "reason", reason, "seq", s.seq)
	return s.seq
}

// transitionTo moves the machine along a legal edge: exit hook, enter hook
// (which writes the state's initial phaseData), one broadcast, then any
// automatic follow-up transition of the new state.
func (s *Session) transitionTo(to Phase, reason string) {
	if !LegalTransition(s.phase, to) {
		s.logger.Error("Illegal phase transition refused",
			"from", s.phase, "to", to, "reason", reason)
		return
	}

	s.handlers[s.phase].onExit(s)
	from := s.phase
	s.phase = to
	s.phaseData = make(map[string]interface{})

	handler := s.handlers[to]
	delta := handler.onEnter(s)
	s.commit(delta, reason)
	s.logger.Info("Phase transition", "from", from, "to", to, "reason", reason, "seq", s.seq)

	handler.autoAdvance(s)
}

// startRound deals round n and enters PREPARATION. The round starter
// rotates from the host with the round number; deals are deterministic
// from the session seed.
func (s *Session) startRound(n int) {
	starter := (s.hostPosition + n - 1) % round.NumSeats
	s.round = round.New(n, starter, s.table, s.cfg.Seed+int64(n-1))
	s.transitionTo(Preparation, "round_start")
}

// sendHand delivers a seat's private hand as a hand_updated frame.
func (s *Session) sendHand(pos int) {
	if s.publisher == nil || s.round == nil || !s.seats[pos].Occupied {
		return
	}
	frame, err := protocol.NewFrame(protocol.EventHandUpdated, handUpdatedData(s.round.Hand(pos)))
	if err != nil {
		s.logger.Error("Failed to build hand frame", "error", err, "position", pos)
		return
	}
	s.publisher.SendToSeat(pos, frame)
}

func (s *Session) sendAllHands() {
	for pos := 0; pos < round.NumSeats; pos++ {
		s.sendHand(pos)
	}
}

// Replay returns the broadcast frames with sequence numbers greater than
// after. ok is false when the change log no longer reaches back that far;
// the caller should fall back to a full state sync.
func (s *Session) Replay(after uint64) (frames []*protocol.Frame, ok bool) {
	recs, ok := s.changes.since(after)
	if !ok {
		return nil, false
	}
	for _, rec := range recs {
		frames = append(frames, rec.Frame)
	}
	return frames, true
}

// ChangeLogLen returns the number of retained change records.
func (s *Session) ChangeLogLen() int {
	return s.changes.len()
}

// ChangeRecords returns the retained change records, oldest first.
func (s *Session) ChangeRecords() []ChangeRecord {
	recs := make([]ChangeRecord, len(s.changes.records))
	copy(recs, s.changes.records)
	return recs
}

func digest(data map[string]interface{}) string {
	raw, err := json.Marshal(data)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:8])
}
