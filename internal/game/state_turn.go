package game

import (
	"errors"
	"fmt"

	"github.com/liaptui/liaptui/internal/protocol"
	"github.com/liaptui/liaptui/internal/rules"
)

// turnState plays out one turn: the leader's first play fixes the
// required piece count, then every other seat follows in order, matching
// the count or passing.
type turnState struct{ baseState }

func (turnState) accepts(kind ActionKind) bool {
	return kind == ActionPlay
}

func (turnState) onEnter(s *Session) Delta {
	r := s.round
	return Delta{
		"turnNumber":    r.TurnNumber,
		"currentLeader": r.CurrentLeader(),
		"turnOrder":     r.TurnOrder(),
		"currentPlayer": r.CurrentTurn(),
		"requiredCount": nil,
		"plays":         map[string]playJSON{},
	}
}

func (turnState) handleAction(s *Session, a Action) ActionResult {
	r := s.round

	expected := r.CurrentTurn()
	if a.Position != expected {
		return ActionResult{
			Err: errNotYourTurn(fmt.Sprintf("position %d plays next", expected)),
			Seq: s.seq,
		}
	}

	pieces, err := r.PiecesInHand(a.Position, a.PieceIDs)
	if err != nil {
		return ActionResult{
			Err: NewError(protocol.CodePiecesNotInHand, err.Error()),
			Seq: s.seq,
		}
	}

	play, err := rules.ValidatePlay(pieces, r.RequiredCount())
	if err != nil {
		code := protocol.CodeInvalidPlay
		if errors.Is(err, rules.ErrPieceCountMismatch) {
			code = protocol.CodePieceCountMismatch
		}
		return ActionResult{Err: NewError(code, err.Error()), Seq: s.seq}
	}

	if err := r.SubmitPlay(a.Position, play); err != nil {
		return ActionResult{
			Err: NewError(protocol.CodeInvalidPlay, err.Error()),
			Seq: s.seq,
		}
	}

	delta := Delta{
		"plays": playsToJSON(r.CurrentPlays()),
		"lastPlay": map[string]interface{}{
			"position": a.Position,
			"play":     playToJSON(play),
		},
	}
	if rc := r.RequiredCount(); rc != rules.NoRequiredCount {
		delta["requiredCount"] = rc
	}
	if next := r.CurrentTurn(); next >= 0 {
		delta["currentPlayer"] = next
	} else {
		delta["currentPlayer"] = nil
	}

	seq := s.update(delta, "play")
	s.sendHand(a.Position)

	if r.TurnComplete() {
		s.transitionTo(TurnResults, "turn_complete")
		seq = s.seq
	}
	return ActionResult{Seq: seq}
}

// turnResultsState resolves the finished turn: winner takes the pile and
// leads the next turn, or the round moves to scoring once hands are empty.
type turnResultsState struct{ baseState }

func (turnResultsState) onEnter(s *Session) Delta {
	record, err := s.round.ResolveTurn()
	if err != nil {
		// Unreachable: the only edge into TURN_RESULTS requires a
		// complete turn.
		s.logger.Error("Turn resolution failed", "error", err)
		return Delta{}
	}

	counts := s.round.PileCounts()
	pileCounts := make([]int, len(s.seats))
	for pos := range pileCounts {
		pileCounts[pos] = counts[pos]
	}
	return Delta{
		"turnNumber": record.TurnNumber,
		"winner":     record.Winner,
		"pileSize":   record.Size,
		"plays":      playsToJSON(record.Plays),
		"pileCounts": pileCounts,
	}
}

func (turnResultsState) autoAdvance(s *Session) {
	if s.round.HandsEmpty() {
		s.transitionTo(Scoring, "hands_empty")
	} else {
		s.transitionTo(Turn, "next_turn")
	}
}
