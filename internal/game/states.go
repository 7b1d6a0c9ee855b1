package game

import "github.com/liaptui/liaptui/internal/protocol"

// phaseHandler is the capability set every phase exposes. onEnter is the
// sole writer of a state's initial phaseData; handleAction mutates state
// only through Session.update. autoAdvance runs after the enter broadcast
// for states whose exit gate may already hold.
type phaseHandler interface {
	accepts(kind ActionKind) bool
	onEnter(s *Session) Delta
	onExit(s *Session)
	handleAction(s *Session, a Action) ActionResult
	autoAdvance(s *Session)
}

// baseState provides the no-op defaults.
type baseState struct{}

func (baseState) accepts(ActionKind) bool { return false }
func (baseState) onEnter(*Session) Delta  { return Delta{} }
func (baseState) onExit(*Session)         {}
func (baseState) autoAdvance(*Session)    {}

func (baseState) handleAction(s *Session, a Action) ActionResult {
	return ActionResult{Err: errOutOfPhase(s.phase, a.Kind), Seq: s.seq}
}

// waitingState holds the room until the host starts the game.
type waitingState struct{ baseState }

func (waitingState) accepts(kind ActionKind) bool {
	return kind == ActionStartGame
}

func (waitingState) handleAction(s *Session, a Action) ActionResult {
	if s.OccupiedSeats() != len(s.seats) {
		return ActionResult{
			Err: NewError(protocol.CodeGameNotStarted, "all four seats must be occupied to start"),
			Seq: s.seq,
		}
	}
	s.startRound(1)
	return ActionResult{Seq: s.seq}
}

// gameOverState is terminal; it accepts nothing.
type gameOverState struct{ baseState }

func (gameOverState) onEnter(s *Session) Delta {
	scores := make([]int, len(s.seats))
	best := s.seats[0].Score
	for pos, seat := range s.seats {
		scores[pos] = seat.Score
		if seat.Score > best {
			best = seat.Score
		}
	}
	winners := []int{}
	for pos, seat := range s.seats {
		if seat.Score == best {
			winners = append(winners, pos)
		}
	}

	rounds := 0
	if s.round != nil {
		rounds = s.round.Number
	}
	return Delta{
		"finalScores":  scores,
		"winners":      winners,
		"roundsPlayed": rounds,
	}
}
