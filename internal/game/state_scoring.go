package game

// scoringState settles the round: declared versus captured piles per
// seat, multiplied by the round multiplier, applied to the running
// scores. The game continues with a fresh round or ends when a seat
// reaches the winning score or the round limit is hit.
type scoringState struct{ baseState }

func (scoringState) onEnter(s *Session) Delta {
	r := s.round
	deltas := r.Score()

	scoreDeltas := make(map[string]int, len(deltas))
	for pos, d := range deltas {
		s.seats[pos].Score += d
		scoreDeltas[posKey(pos)] = d
	}

	scores := make([]int, len(s.seats))
	for pos, seat := range s.seats {
		scores[pos] = seat.Score
	}

	decls := make(map[string]int)
	for pos, v := range r.Declarations() {
		decls[posKey(pos)] = v
	}
	counts := r.PileCounts()
	pileCounts := make([]int, len(s.seats))
	for pos := range pileCounts {
		pileCounts[pos] = counts[pos]
	}

	return Delta{
		"roundNumber":  r.Number,
		"multiplier":   r.Multiplier,
		"declarations": decls,
		"pileCounts":   pileCounts,
		"scoreDeltas":  scoreDeltas,
		"scores":       scores,
	}
}

func (scoringState) autoAdvance(s *Session) {
	best := s.seats[0].Score
	for _, seat := range s.seats {
		if seat.Score > best {
			best = seat.Score
		}
	}

	if best >= s.cfg.WinningScore {
		s.transitionTo(GameOver, "winning_score_reached")
		return
	}
	if s.round.Number >= s.cfg.MaxRounds {
		s.transitionTo(GameOver, "max_rounds_reached")
		return
	}
	s.startRound(s.round.Number + 1)
}
