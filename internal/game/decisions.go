package game

// Decision names a seat expected to act at the current decision point,
// and what kind of action is expected of it. The bot driver polls this
// after every state change to act for bot seats.
type Decision struct {
	Position   int
	Kind       ActionKind
	Phase      Phase
	TurnNumber int
}

// Key returns the dedupe key identifying this decision point.
func (d Decision) Key() DedupeKey {
	return DedupeKey{
		Position:   d.Position,
		Phase:      d.Phase,
		TurnNumber: d.TurnNumber,
		Kind:       d.Kind,
	}
}

// TurnNumber returns the current round's turn number, zero before any
// round has started.
func (s *Session) TurnNumber() int {
	if s.round == nil {
		return 0
	}
	return s.round.TurnNumber
}

// PendingDecisions lists every seat the current phase is waiting on.
func (s *Session) PendingDecisions() []Decision {
	if s.round == nil {
		return nil
	}

	var pending []Decision
	switch s.phase {
	case Preparation:
		decided := redealDecisions(s)
		for _, pos := range s.round.WeakHands() {
			if _, ok := decided[posKey(pos)]; !ok {
				pending = append(pending, Decision{
					Position:   pos,
					Kind:       ActionAcceptRedeal,
					Phase:      s.phase,
					TurnNumber: s.round.TurnNumber,
				})
			}
		}
	case Declaration:
		if next := s.round.NextDeclarer(); next >= 0 {
			pending = append(pending, Decision{
				Position:   next,
				Kind:       ActionDeclare,
				Phase:      s.phase,
				TurnNumber: s.round.TurnNumber,
			})
		}
	case Turn:
		if next := s.round.CurrentTurn(); next >= 0 {
			pending = append(pending, Decision{
				Position:   next,
				Kind:       ActionPlay,
				Phase:      s.phase,
				TurnNumber: s.round.TurnNumber,
			})
		}
	}
	return pending
}
