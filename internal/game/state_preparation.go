package game

import (
	"github.com/liaptui/liaptui/internal/protocol"
)

// preparationState covers the deal and the weak-hand redeal subprotocol.
// Seats holding a weak hand (no piece worth more than 9) each decide
// whether to force a reshuffle; any acceptance doubles the round
// multiplier and re-enters PREPARATION with fresh hands.
type preparationState struct{ baseState }

func (preparationState) accepts(kind ActionKind) bool {
	return kind == ActionAcceptRedeal || kind == ActionDeclineRedeal
}

func (preparationState) onEnter(s *Session) Delta {
	weak := s.round.WeakHands()
	if weak == nil {
		weak = []int{}
	}
	return Delta{
		"roundNumber":     s.round.Number,
		"starter":         s.round.Starter,
		"multiplier":      s.round.Multiplier,
		"weakHands":       weak,
		"redealDecisions": map[string]bool{},
	}
}

func (preparationState) autoAdvance(s *Session) {
	s.sendAllHands()
	if len(s.round.WeakHands()) == 0 {
		s.transitionTo(Declaration, "no_weak_hands")
	}
}

func (st *preparationState) handleAction(s *Session, a Action) ActionResult {
	weak := s.round.WeakHands()
	if !containsInt(weak, a.Position) {
		return ActionResult{
			Err: errNotYourTurn("no redeal decision expected from your seat"),
			Seq: s.seq,
		}
	}

	decisions := redealDecisions(s)
	if _, decided := decisions[posKey(a.Position)]; decided {
		return ActionResult{
			Err: NewError(protocol.CodeOutOfPhase, "redeal decision already recorded"),
			Seq: s.seq,
		}
	}
	decisions[posKey(a.Position)] = a.Kind == ActionAcceptRedeal

	seq := s.update(Delta{"redealDecisions": decisions}, "redeal_decision")

	if len(decisions) < len(weak) {
		return ActionResult{Seq: seq}
	}

	accepted := false
	for _, accept := range decisions {
		if accept {
			accepted = true
			break
		}
	}
	if accepted {
		s.round.Redeal()
		s.transitionTo(Preparation, "redeal")
	} else {
		s.transitionTo(Declaration, "redeal_declined")
	}
	return ActionResult{Seq: s.seq}
}

// redealDecisions copies the decision map out of phaseData so the update
// primitive stays the only writer.
func redealDecisions(s *Session) map[string]bool {
	out := make(map[string]bool)
	if m, ok := s.phaseData["redealDecisions"].(map[string]bool); ok {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

func containsInt(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
