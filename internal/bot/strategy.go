// Package bot drives bot-controlled seats: a pluggable decision strategy
// and a per-room driver that reacts to state changes, schedules actions
// with a think delay and submits them through the room's action bus.
package bot

import (
	"sort"

	"github.com/liaptui/liaptui/internal/piece"
	"github.com/liaptui/liaptui/internal/round"
	"github.com/liaptui/liaptui/internal/rules"
)

// PlayContext carries everything a strategy needs to choose a play.
type PlayContext struct {
	Hand          []piece.Piece
	RequiredCount int
	IsLeader      bool
	// CurrentPlays holds the plays already made this turn, keyed by
	// position; the leader's play is always present for followers.
	CurrentPlays map[int]piece.Play
	Leader       int
	// Declared and Captured are the seat's own declaration and pile count
	// so far, for capture-urgency decisions.
	Declared int
	Captured int
}

// Strategy decides actions for a bot seat.
type Strategy interface {
	// AcceptRedeal decides whether a weak hand should force a reshuffle.
	AcceptRedeal(hand []piece.Piece) bool
	// Declare picks a pile-count declaration. sum is the total declared so
	// far; when last is true the result must keep sum+value != 8.
	Declare(hand []piece.Piece, sum int, last bool) int
	// Play returns the piece IDs to play; an empty slice is a pass.
	Play(ctx PlayContext) []string
}

// Heuristic is the default strategy: point-count declarations, lowest
// viable plays, and capture urgency driven by the declaration.
type Heuristic struct {
	// RedealThreshold is the total hand point value under which a weak
	// hand accepts a redeal.
	RedealThreshold int
}

// NewHeuristic creates the default strategy. The seed is unused today;
// the heuristic is deterministic and pacing randomness lives in the
// driver.
func NewHeuristic(seed int64) *Heuristic {
	return &Heuristic{RedealThreshold: 40}
}

func (h *Heuristic) AcceptRedeal(hand []piece.Piece) bool {
	total := 0
	for _, pc := range hand {
		total += pc.Point
	}
	return total < h.RedealThreshold
}

// strongPoint is the point value above which a piece is expected to win a
// single-piece turn.
const strongPoint = 10

func (h *Heuristic) Declare(hand []piece.Piece, sum int, last bool) int {
	value := 0
	for _, pc := range hand {
		if pc.Point > strongPoint {
			value++
		}
	}
	if value > round.HandSize {
		value = round.HandSize
	}

	if last && sum+value == round.HandSize {
		if value > 0 {
			value--
		} else {
			value++
		}
	}
	return value
}

func (h *Heuristic) Play(ctx PlayContext) []string {
	hand := sortedByPoint(ctx.Hand)
	if len(hand) == 0 {
		return nil
	}

	if ctx.IsLeader {
		return h.lead(hand)
	}
	return h.follow(hand, ctx)
}

// lead opens a turn: a low pure pair when one exists, else the lowest
// single, keeping strong pieces for contested turns.
func (h *Heuristic) lead(hand []piece.Piece) []string {
	for _, group := range groupsOfSize(hand, 2) {
		if play, err := piece.Classify(group); err == nil && play.Type == piece.Pair {
			return ids(group)
		}
	}
	return ids(hand[:1])
}

// follow answers the leader's play: beat it with the cheapest winning set
// when capturing is still wanted, otherwise pass.
func (h *Heuristic) follow(hand []piece.Piece, ctx PlayContext) []string {
	if ctx.RequiredCount == rules.NoRequiredCount || ctx.RequiredCount > len(hand) {
		return nil
	}

	best, ok := bestContender(ctx.CurrentPlays, ctx.Leader)
	if !ok {
		return nil
	}

	wantCapture := ctx.Captured < ctx.Declared
	if !wantCapture {
		return nil
	}

	// Cheapest candidate of the required size that beats the incumbent.
	var candidates [][]piece.Piece
	if ctx.RequiredCount == 1 {
		for _, pc := range hand {
			candidates = append(candidates, []piece.Piece{pc})
		}
	} else {
		candidates = groupsOfSize(hand, ctx.RequiredCount)
	}
	for _, cand := range candidates {
		play, err := piece.Classify(cand)
		if err != nil {
			continue
		}
		if play.Type != best.Type || play.Count() != best.Count() {
			continue
		}
		if rules.Compare(best, play) == rules.BWins {
			return ids(cand)
		}
	}
	return nil
}

// bestContender finds the play currently winning the turn.
func bestContender(plays map[int]piece.Play, leader int) (piece.Play, bool) {
	best, ok := plays[leader]
	if !ok || best.IsPass() {
		return piece.Play{}, false
	}
	positions := make([]int, 0, len(plays))
	for pos := range plays {
		positions = append(positions, pos)
	}
	sort.Ints(positions)
	for _, pos := range positions {
		if pos == leader {
			continue
		}
		challenger := plays[pos]
		if challenger.IsPass() || challenger.Type != best.Type || challenger.Count() != best.Count() {
			continue
		}
		if rules.Compare(best, challenger) == rules.BWins {
			best = challenger
		}
	}
	return best, true
}

// groupsOfSize returns the same-rank piece groups of exactly n pieces,
// cheapest first. Pure (same-color) subsets come before mixed ones.
func groupsOfSize(hand []piece.Piece, n int) [][]piece.Piece {
	byRank := make(map[piece.Rank][]piece.Piece)
	for _, pc := range hand {
		byRank[pc.Rank] = append(byRank[pc.Rank], pc)
	}

	var groups [][]piece.Piece
	for _, pieces := range byRank {
		if len(pieces) < n {
			continue
		}
		// Prefer the cheapest single-color subset when the rank has one.
		byColor := make(map[piece.Color][]piece.Piece)
		for _, pc := range pieces {
			byColor[pc.Color] = append(byColor[pc.Color], pc)
		}
		var best []piece.Piece
		for _, color := range []piece.Color{piece.Red, piece.Black} {
			colored := byColor[color]
			if len(colored) < n {
				continue
			}
			cand := sortedByPoint(colored)[:n]
			if best == nil || pointSum(cand) < pointSum(best) {
				best = cand
			}
		}
		if best == nil {
			best = sortedByPoint(pieces)[:n]
		}
		groups = append(groups, best)
	}

	sort.Slice(groups, func(i, j int) bool {
		return pointSum(groups[i]) < pointSum(groups[j])
	})
	return groups
}

func sortedByPoint(hand []piece.Piece) []piece.Piece {
	sorted := make([]piece.Piece, len(hand))
	copy(sorted, hand)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Point != sorted[j].Point {
			return sorted[i].Point < sorted[j].Point
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted
}

func pointSum(pieces []piece.Piece) int {
	sum := 0
	for _, pc := range pieces {
		sum += pc.Point
	}
	return sum
}

func ids(pieces []piece.Piece) []string {
	out := make([]string, len(pieces))
	for i, pc := range pieces {
		out[i] = pc.ID
	}
	return out
}
