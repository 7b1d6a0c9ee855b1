// Package rules implements play validation, play comparison, turn
// resolution and round scoring for Liap Tui.
package rules

import (
	"errors"
	"fmt"

	"github.com/liaptui/liaptui/internal/piece"
)

// NoRequiredCount is passed to ValidatePlay when the leader has not set a
// piece count for the turn yet.
const NoRequiredCount = 0

var (
	ErrEmptyPlay          = errors.New("leader must play at least one piece")
	ErrPieceCountMismatch = errors.New("play does not match required piece count")
	ErrInvalidComposition = errors.New("pieces form no valid play type")
)

// ValidatePlay checks a proposed set of pieces against the current required
// count and classifies it. required is NoRequiredCount for the leader's
// first play of a turn, in which case the leader chooses any count from 1
// to 6. Followers must either match the required count exactly or pass by
// submitting no pieces.
func ValidatePlay(pieces []piece.Piece, required int) (piece.Play, error) {
	if len(pieces) == 0 {
		if required == NoRequiredCount {
			return piece.Play{}, ErrEmptyPlay
		}
		return piece.NewPass(), nil
	}

	if required != NoRequiredCount && len(pieces) != required {
		return piece.Play{}, fmt.Errorf("%w: got %d, need %d",
			ErrPieceCountMismatch, len(pieces), required)
	}

	play, err := piece.Classify(pieces)
	if err != nil {
		return piece.Play{}, fmt.Errorf("%w: %v", ErrInvalidComposition, err)
	}
	return play, nil
}

// CompareResult is the outcome of comparing two plays
type CompareResult int

const (
	AWins CompareResult = iota
	BWins
	Tie
)

// String returns the string representation of a compare result
func (r CompareResult) String() string {
	switch r {
	case AWins:
		return "a"
	case BWins:
		return "b"
	default:
		return "tie"
	}
}

// Compare decides between an incumbent play a and a challenger b.
//
// Comparison matrix:
//   - PASS loses to any non-pass play; two passes tie.
//   - Different piece counts never contend; the incumbent holds.
//   - Same type: higher strength tuple wins, equal tuples tie.
//   - MIXED loses to a pure same-rank set (PAIR..FIVE_OF_A_KIND) of equal
//     count, and beats nothing but a weaker MIXED.
//   - Any other cross-type pairing is not a contest; the incumbent holds.
func Compare(a, b piece.Play) CompareResult {
	switch {
	case a.IsPass() && b.IsPass():
		return Tie
	case a.IsPass():
		return BWins
	case b.IsPass():
		return AWins
	}

	if a.Count() != b.Count() {
		return AWins
	}

	if a.Type == b.Type {
		switch {
		case a.Strength.Less(b.Strength):
			return BWins
		case b.Strength.Less(a.Strength):
			return AWins
		default:
			return Tie
		}
	}

	if a.Type == piece.Mixed && isPureSet(b.Type) {
		return BWins
	}
	return AWins
}

func isPureSet(t piece.PlayType) bool {
	switch t {
	case piece.Pair, piece.Triple, piece.Quad, piece.FiveOfAKind:
		return true
	}
	return false
}

// ResolveTurn determines the winner of a completed turn. plays maps seat
// position to the play it made (PASS included); order is the turn order
// starting with the leader. Only plays whose type and count match the
// leader's play contend for the pile; everything else counts as a pass for
// winner determination, though its pieces still left the hand and join the
// pile. On equal strength the earliest contender in turn order holds.
//
// Returns the winning position and the pile size in pieces.
func ResolveTurn(plays map[int]piece.Play, order []int) (winner int, pileSize int) {
	if len(order) == 0 {
		return -1, 0
	}

	leader := order[0]
	best := plays[leader]
	winner = leader

	for _, pos := range order {
		pileSize += plays[pos].Count()
		if pos == leader {
			continue
		}
		challenger := plays[pos]
		if challenger.IsPass() || challenger.Type != best.Type || challenger.Count() != best.Count() {
			continue
		}
		if Compare(best, challenger) == BWins {
			best = challenger
			winner = pos
		}
	}
	return winner, pileSize
}

// Scoring constants. Deltas are multiplied by the round multiplier.
const (
	matchBonus     = 5
	zeroDeclareWin = 3
)

// ScoreRound computes the per-position score delta for a finished round.
// A seat that captured exactly its declared pile count earns its
// declaration plus a bonus (a successful zero declaration earns a flat
// award); any miss costs the absolute difference.
func ScoreRound(declared, captured map[int]int, multiplier int) map[int]int {
	deltas := make(map[int]int, len(declared))
	for pos, d := range declared {
		c := captured[pos]
		var delta int
		switch {
		case d == c && d == 0:
			delta = zeroDeclareWin
		case d == c:
			delta = d + matchBonus
		case d > c:
			delta = -(d - c)
		default:
			delta = -(c - d)
		}
		deltas[pos] = delta * multiplier
	}
	return deltas
}
