package piece

import (
	"fmt"
	"sort"
)

// PlayType classifies an ordered multiset of pieces
type PlayType int

const (
	Pass PlayType = iota
	Single
	Pair
	Triple
	Quad
	FiveOfAKind
	Straight
	Mixed
)

// String returns the string representation of a play type
func (pt PlayType) String() string {
	switch pt {
	case Pass:
		return "PASS"
	case Single:
		return "SINGLE"
	case Pair:
		return "PAIR"
	case Triple:
		return "TRIPLE"
	case Quad:
		return "QUAD"
	case FiveOfAKind:
		return "FIVE_OF_A_KIND"
	case Straight:
		return "STRAIGHT"
	case Mixed:
		return "MIXED"
	default:
		return "?"
	}
}

// Strength is the comparison tuple for a play. Larger wins, compared
// lexicographically. The meaning of each slot depends on the play type but
// comparisons are only ever made within a type (see rules.Compare).
type Strength [3]int

// Less reports whether s sorts strictly below other.
func (s Strength) Less(other Strength) bool {
	for i := range s {
		if s[i] != other[i] {
			return s[i] < other[i]
		}
	}
	return false
}

// Equal reports whether the tuples are identical.
func (s Strength) Equal(other Strength) bool {
	return s == other
}

// Play is a classified set of pieces put down by one seat in one turn.
type Play struct {
	Pieces   []Piece
	Type     PlayType
	Strength Strength
}

// IsPass reports whether the play is a pass.
func (p Play) IsPass() bool {
	return p.Type == Pass
}

// Count returns the number of pieces in the play.
func (p Play) Count() int {
	return len(p.Pieces)
}

// NewPass returns the empty pass play.
func NewPass() Play {
	return Play{Type: Pass}
}

// rank strength: lower Rank constant is a stronger rank
func rankStrength(r Rank) int {
	return len(Ranks) - int(r)
}

// Classify determines the play type and strength tuple for a multiset of
// pieces. It is a pure function of the multiset; ordering of the input does
// not matter. An empty set classifies as PASS. Compositions that form no
// recognized type return an error.
//
// Recognized types:
//   - 1 piece: SINGLE, strength {point}.
//   - 2..5 same-rank single-color pieces: PAIR/TRIPLE/QUAD/FIVE_OF_A_KIND,
//     strength {point} (same-color same-rank pieces share a point value).
//   - 2..5 same-rank mixed-color pieces: MIXED, strength
//     {rank strength, red count, point sum}.
//   - 3..6 single-color pieces of strictly consecutive ranks, one per rank:
//     STRAIGHT, strength {top piece point, point sum}.
func Classify(pieces []Piece) (Play, error) {
	if len(pieces) == 0 {
		return NewPass(), nil
	}
	if len(pieces) > 6 {
		return Play{}, fmt.Errorf("too many pieces in play: %d", len(pieces))
	}

	sorted := make([]Piece, len(pieces))
	copy(sorted, pieces)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Rank != sorted[j].Rank {
			return sorted[i].Rank < sorted[j].Rank
		}
		return sorted[i].Color < sorted[j].Color
	})

	if len(sorted) == 1 {
		return Play{
			Pieces:   sorted,
			Type:     Single,
			Strength: Strength{sorted[0].Point},
		}, nil
	}

	sameRank := true
	sameColor := true
	reds := 0
	points := 0
	for _, pc := range sorted {
		if pc.Rank != sorted[0].Rank {
			sameRank = false
		}
		if pc.Color != sorted[0].Color {
			sameColor = false
		}
		if pc.Color == Red {
			reds++
		}
		points += pc.Point
	}

	if sameRank && len(sorted) <= 5 {
		if sameColor {
			t := map[int]PlayType{2: Pair, 3: Triple, 4: Quad, 5: FiveOfAKind}[len(sorted)]
			return Play{
				Pieces:   sorted,
				Type:     t,
				Strength: Strength{sorted[0].Point},
			}, nil
		}
		return Play{
			Pieces:   sorted,
			Type:     Mixed,
			Strength: Strength{rankStrength(sorted[0].Rank), reds, points},
		}, nil
	}

	if sameColor && len(sorted) >= 3 && isConsecutive(sorted) {
		return Play{
			Pieces:   sorted,
			Type:     Straight,
			Strength: Strength{sorted[0].Point, points},
		}, nil
	}

	return Play{}, fmt.Errorf("pieces form no valid play type")
}

// isConsecutive expects pieces sorted by rank and requires exactly one
// piece per rank with no gaps.
func isConsecutive(sorted []Piece) bool {
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Rank != sorted[i-1].Rank+1 {
			return false
		}
	}
	return true
}
