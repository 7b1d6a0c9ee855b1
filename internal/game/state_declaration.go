package game

import (
	"fmt"

	"github.com/liaptui/liaptui/internal/protocol"
	"github.com/liaptui/liaptui/internal/round"
)

// declarationState collects one pile-count declaration per seat, in seat
// order from the round starter. The last declarer may not bring the sum
// to eight.
type declarationState struct{ baseState }

func (declarationState) accepts(kind ActionKind) bool {
	return kind == ActionDeclare
}

func (declarationState) onEnter(s *Session) Delta {
	order := s.round.DeclarationOrder()
	return Delta{
		"declarationOrder": order,
		"declarations":     map[string]int{},
		"currentDeclarer":  order[0],
	}
}

func (declarationState) handleAction(s *Session, a Action) ActionResult {
	r := s.round

	if a.Value < 0 || a.Value > round.HandSize {
		return ActionResult{
			Err: NewError(protocol.CodeInvalidDeclaration,
				fmt.Sprintf("declaration must be between 0 and %d", round.HandSize)),
			Seq: s.seq,
		}
	}

	next := r.NextDeclarer()
	if a.Position != next {
		if _, declared := r.Declarations()[a.Position]; declared {
			return ActionResult{
				Err: NewError(protocol.CodeAlreadyDeclared, "declaration already recorded"),
				Seq: s.seq,
			}
		}
		return ActionResult{
			Err: errNotYourTurn(fmt.Sprintf("position %d declares next", next)),
			Seq: s.seq,
		}
	}

	if r.IsLastDeclarer(a.Position) && r.DeclarationSum()+a.Value == round.HandSize {
		err := NewError(protocol.CodeInvalidDeclaration,
			"declarations must not sum to eight")
		err.Details = map[string]int{"declaredSum": r.DeclarationSum()}
		return ActionResult{Err: err, Seq: s.seq}
	}

	if err := r.RecordDeclaration(a.Position, a.Value); err != nil {
		return ActionResult{
			Err: NewError(protocol.CodeInvalidDeclaration, err.Error()),
			Seq: s.seq,
		}
	}

	decls := make(map[string]int)
	for pos, v := range r.Declarations() {
		decls[posKey(pos)] = v
	}
	delta := Delta{
		"declarations": decls,
		"lastDeclaration": map[string]int{
			"position": a.Position,
			"value":    a.Value,
		},
	}
	if next := r.NextDeclarer(); next >= 0 {
		delta["currentDeclarer"] = next
	} else {
		delta["currentDeclarer"] = nil
	}

	seq := s.update(delta, "declare")

	if r.AllDeclared() {
		s.transitionTo(Turn, "declarations_complete")
		seq = s.seq
	}
	return ActionResult{Seq: seq}
}
