// Package round owns the state of a single Liap Tui round: the deal, the
// private hands, declarations, turn order and captured piles.
package round

import (
	"fmt"

	"github.com/liaptui/liaptui/internal/piece"
	"github.com/liaptui/liaptui/internal/randutil"
	"github.com/liaptui/liaptui/internal/rules"
)

// NumSeats is the fixed number of seats per room.
const NumSeats = 4

// HandSize is the number of pieces dealt to each seat.
const HandSize = piece.DeckSize / NumSeats

// weakThreshold: a hand with no piece above this point value is weak and
// entitles its holder to request a redeal.
const weakThreshold = 9

// PileRecord captures one resolved turn for the pile history.
type PileRecord struct {
	TurnNumber int
	Winner     int
	Size       int
	Plays      map[int]piece.Play
}

// Round tracks the state of one round from deal to scoring.
type Round struct {
	Number     int
	Multiplier int
	Starter    int
	TurnNumber int

	hands         [NumSeats][]piece.Piece
	declarations  [NumSeats]int
	declared      [NumSeats]bool
	currentLeader int
	requiredCount int
	currentPlays  map[int]piece.Play
	turnOrder     []int
	pileCounts    [NumSeats]int
	pileHistory   []PileRecord
	captured      [NumSeats][]piece.Piece

	table piece.PointTable
	seed  int64
}

// New deals a fresh round. The deal is deterministic from the seed.
func New(number, starter int, table piece.PointTable, seed int64) *Round {
	r := &Round{
		Number:     number,
		Multiplier: 1,
		Starter:    starter,
		table:      table,
		seed:       seed,
	}
	r.deal(seed)
	return r
}

func (r *Round) deal(seed int64) {
	deck := piece.NewDeck(r.table)
	rng := randutil.New(seed)
	rng.Shuffle(len(deck), func(i, j int) {
		deck[i], deck[j] = deck[j], deck[i]
	})

	for pos := 0; pos < NumSeats; pos++ {
		hand := make([]piece.Piece, HandSize)
		copy(hand, deck[pos*HandSize:(pos+1)*HandSize])
		r.hands[pos] = hand
	}

	r.declarations = [NumSeats]int{}
	r.declared = [NumSeats]bool{}
	r.currentLeader = r.Starter
	r.requiredCount = rules.NoRequiredCount
	r.currentPlays = make(map[int]piece.Play)
	r.turnOrder = r.activeOrderFrom(r.Starter)
	r.TurnNumber = 1
}

// Redeal reshuffles with a derived seed and doubles the multiplier. Used
// when a weak-hand seat accepts a redeal.
func (r *Round) Redeal() {
	r.seed++
	r.Multiplier *= 2
	r.deal(r.seed)
	r.pileCounts = [NumSeats]int{}
	r.pileHistory = nil
	r.captured = [NumSeats][]piece.Piece{}
}

// Hand returns a copy of a seat's private hand.
func (r *Round) Hand(pos int) []piece.Piece {
	hand := make([]piece.Piece, len(r.hands[pos]))
	copy(hand, r.hands[pos])
	return hand
}

// HandSizes returns the piece count per seat, public information.
func (r *Round) HandSizes() [NumSeats]int {
	var sizes [NumSeats]int
	for pos := range r.hands {
		sizes[pos] = len(r.hands[pos])
	}
	return sizes
}

// WeakHands returns the positions holding a weak hand: no piece worth more
// than the weak threshold.
func (r *Round) WeakHands() []int {
	var weak []int
	for pos := 0; pos < NumSeats; pos++ {
		isWeak := true
		for _, pc := range r.hands[pos] {
			if pc.Point > weakThreshold {
				isWeak = false
				break
			}
		}
		if isWeak {
			weak = append(weak, pos)
		}
	}
	return weak
}

// DeclarationOrder returns the seat order for declarations: seat order
// starting at the round starter.
func (r *Round) DeclarationOrder() []int {
	return orderFrom(r.Starter)
}

// NextDeclarer returns the position expected to declare next, or -1 when
// all declarations are in.
func (r *Round) NextDeclarer() int {
	for _, pos := range r.DeclarationOrder() {
		if !r.declared[pos] {
			return pos
		}
	}
	return -1
}

// IsLastDeclarer reports whether pos is the final seat in declaration order.
func (r *Round) IsLastDeclarer(pos int) bool {
	order := r.DeclarationOrder()
	return order[len(order)-1] == pos
}

// DeclarationSum returns the sum of declarations recorded so far.
func (r *Round) DeclarationSum() int {
	sum := 0
	for pos := 0; pos < NumSeats; pos++ {
		if r.declared[pos] {
			sum += r.declarations[pos]
		}
	}
	return sum
}

// RecordDeclaration stores a declaration for pos. The caller is
// responsible for order and range validation; the sum-equals-8 rule for
// the last declarer is enforced here as a final guard.
func (r *Round) RecordDeclaration(pos, value int) error {
	if r.declared[pos] {
		return fmt.Errorf("position %d already declared", pos)
	}
	if r.IsLastDeclarer(pos) && r.DeclarationSum()+value == piece.DeckSize/NumSeats {
		return fmt.Errorf("declarations must not sum to %d", piece.DeckSize/NumSeats)
	}
	r.declarations[pos] = value
	r.declared[pos] = true
	return nil
}

// AllDeclared reports whether every seat has declared.
func (r *Round) AllDeclared() bool {
	for pos := 0; pos < NumSeats; pos++ {
		if !r.declared[pos] {
			return false
		}
	}
	return true
}

// Declarations returns the recorded declarations keyed by position.
func (r *Round) Declarations() map[int]int {
	decls := make(map[int]int, NumSeats)
	for pos := 0; pos < NumSeats; pos++ {
		if r.declared[pos] {
			decls[pos] = r.declarations[pos]
		}
	}
	return decls
}

// CurrentLeader returns the position leading the current turn.
func (r *Round) CurrentLeader() int {
	return r.currentLeader
}

// RequiredCount returns the piece count set by the leader's first play of
// the turn, or rules.NoRequiredCount before it.
func (r *Round) RequiredCount() int {
	return r.requiredCount
}

// TurnOrder returns the play order of the current turn.
func (r *Round) TurnOrder() []int {
	order := make([]int, len(r.turnOrder))
	copy(order, r.turnOrder)
	return order
}

// CurrentTurn returns the position expected to play next, or -1 when the
// turn is complete.
func (r *Round) CurrentTurn() int {
	for _, pos := range r.turnOrder {
		if _, played := r.currentPlays[pos]; !played {
			return pos
		}
	}
	return -1
}

// HasPlayed reports whether pos has already acted this turn.
func (r *Round) HasPlayed(pos int) bool {
	_, ok := r.currentPlays[pos]
	return ok
}

// CurrentPlays returns the plays made so far this turn.
func (r *Round) CurrentPlays() map[int]piece.Play {
	plays := make(map[int]piece.Play, len(r.currentPlays))
	for pos, play := range r.currentPlays {
		plays[pos] = play
	}
	return plays
}

// PiecesInHand resolves piece IDs against a seat's hand. Every ID must be
// present; duplicates are rejected.
func (r *Round) PiecesInHand(pos int, ids []string) ([]piece.Piece, error) {
	byID := make(map[string]piece.Piece, len(r.hands[pos]))
	for _, pc := range r.hands[pos] {
		byID[pc.ID] = pc
	}

	pieces := make([]piece.Piece, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		pc, ok := byID[id]
		if !ok || seen[id] {
			return nil, fmt.Errorf("piece %s not in hand", id)
		}
		seen[id] = true
		pieces = append(pieces, pc)
	}
	return pieces, nil
}

// SubmitPlay records a validated play for pos and removes its pieces from
// the hand. The leader's first non-pass play of a turn fixes the required
// piece count.
func (r *Round) SubmitPlay(pos int, play piece.Play) error {
	if r.HasPlayed(pos) {
		return fmt.Errorf("position %d already played this turn", pos)
	}
	if pos == r.currentLeader && r.requiredCount == rules.NoRequiredCount {
		if play.IsPass() {
			return fmt.Errorf("leader cannot pass")
		}
		r.requiredCount = play.Count()
	}

	if !play.IsPass() {
		r.removeFromHand(pos, play.Pieces)
	}
	r.currentPlays[pos] = play
	return nil
}

func (r *Round) removeFromHand(pos int, pieces []piece.Piece) {
	remove := make(map[string]bool, len(pieces))
	for _, pc := range pieces {
		remove[pc.ID] = true
	}
	kept := r.hands[pos][:0]
	for _, pc := range r.hands[pos] {
		if !remove[pc.ID] {
			kept = append(kept, pc)
		}
	}
	r.hands[pos] = kept
}

// TurnComplete reports whether every seat has acted this turn.
func (r *Round) TurnComplete() bool {
	return len(r.currentPlays) == len(r.turnOrder)
}

// ResolveTurn determines the turn winner, moves the played pieces to the
// winner's pile and prepares the next turn with the winner leading.
func (r *Round) ResolveTurn() (PileRecord, error) {
	if !r.TurnComplete() {
		return PileRecord{}, fmt.Errorf("turn %d not complete", r.TurnNumber)
	}

	winner, pileSize := rules.ResolveTurn(r.currentPlays, r.turnOrder)
	record := PileRecord{
		TurnNumber: r.TurnNumber,
		Winner:     winner,
		Size:       pileSize,
		Plays:      r.currentPlays,
	}
	r.pileHistory = append(r.pileHistory, record)
	r.pileCounts[winner]++
	for _, play := range r.currentPlays {
		r.captured[winner] = append(r.captured[winner], play.Pieces...)
	}

	// The winner leads the next turn. A winner whose hand emptied this
	// turn cannot lead; leadership moves clockwise to the next seat that
	// still holds pieces. Seats with empty hands sit out the turn order.
	r.TurnNumber++
	r.currentLeader = r.nextWithPieces(winner)
	r.requiredCount = rules.NoRequiredCount
	r.currentPlays = make(map[int]piece.Play)
	r.turnOrder = r.activeOrderFrom(r.currentLeader)
	return record, nil
}

// nextWithPieces returns start if it still holds pieces, otherwise the
// first seat clockwise from it that does. Falls back to start when every
// hand is empty.
func (r *Round) nextWithPieces(start int) int {
	for i := 0; i < NumSeats; i++ {
		pos := (start + i) % NumSeats
		if len(r.hands[pos]) > 0 {
			return pos
		}
	}
	return start
}

// activeOrderFrom returns the clockwise seat order from start, skipping
// seats with empty hands.
func (r *Round) activeOrderFrom(start int) []int {
	var order []int
	for i := 0; i < NumSeats; i++ {
		pos := (start + i) % NumSeats
		if len(r.hands[pos]) > 0 {
			order = append(order, pos)
		}
	}
	return order
}

// HandsEmpty reports whether every hand has been played out.
func (r *Round) HandsEmpty() bool {
	for pos := 0; pos < NumSeats; pos++ {
		if len(r.hands[pos]) > 0 {
			return false
		}
	}
	return true
}

// PileCounts returns captured pile counts keyed by position.
func (r *Round) PileCounts() map[int]int {
	counts := make(map[int]int, NumSeats)
	for pos := 0; pos < NumSeats; pos++ {
		counts[pos] = r.pileCounts[pos]
	}
	return counts
}

// PileHistory returns the resolved turns so far.
func (r *Round) PileHistory() []PileRecord {
	history := make([]PileRecord, len(r.pileHistory))
	copy(history, r.pileHistory)
	return history
}

// Score computes the score deltas for the finished round.
func (r *Round) Score() map[int]int {
	return rules.ScoreRound(r.Declarations(), r.PileCounts(), r.Multiplier)
}

// AllPieces returns every piece currently tracked by the round: hands,
// in-flight plays and captured piles. Used by deck conservation checks.
func (r *Round) AllPieces() []piece.Piece {
	var all []piece.Piece
	for pos := 0; pos < NumSeats; pos++ {
		all = append(all, r.hands[pos]...)
		all = append(all, r.captured[pos]...)
	}
	for _, play := range r.currentPlays {
		all = append(all, play.Pieces...)
	}
	return all
}

func orderFrom(start int) []int {
	order := make([]int, NumSeats)
	for i := range order {
		order[i] = (start + i) % NumSeats
	}
	return order
}
