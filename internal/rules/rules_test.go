package rules

import (
	"errors"
	"testing"

	"github.com/liaptui/liaptui/internal/piece"
)

func mk(r piece.Rank, c piece.Color, id string) piece.Piece {
	return piece.Piece{ID: id, Rank: r, Color: c, Point: piece.DefaultPointTable().Point(r, c)}
}

func mustClassify(t *testing.T, pieces ...piece.Piece) piece.Play {
	t.Helper()
	play, err := piece.Classify(pieces)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	return play
}

func TestValidatePlayLeader(t *testing.T) {
	t.Parallel()

	// Leader cannot pass
	_, err := ValidatePlay(nil, NoRequiredCount)
	if !errors.Is(err, ErrEmptyPlay) {
		t.Errorf("Expected ErrEmptyPlay, got %v", err)
	}

	// Leader chooses any count
	play, err := ValidatePlay([]piece.Piece{mk(piece.General, piece.Red, "g")}, NoRequiredCount)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if play.Type != piece.Single {
		t.Errorf("Expected SINGLE, got %s", play.Type)
	}
}

func TestValidatePlayFollower(t *testing.T) {
	t.Parallel()

	// Follower may pass
	play, err := ValidatePlay(nil, 2)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !play.IsPass() {
		t.Error("Expected pass")
	}

	// Count mismatch rejected
	_, err = ValidatePlay([]piece.Piece{mk(piece.Horse, piece.Red, "h")}, 2)
	if !errors.Is(err, ErrPieceCountMismatch) {
		t.Errorf("Expected ErrPieceCountMismatch, got %v", err)
	}

	// Invalid composition rejected even at the right count
	_, err = ValidatePlay([]piece.Piece{
		mk(piece.General, piece.Red, "g"), mk(piece.Horse, piece.Black, "h"),
	}, 2)
	if !errors.Is(err, ErrInvalidComposition) {
		t.Errorf("Expected ErrInvalidComposition, got %v", err)
	}
}

func TestCompare(t *testing.T) {
	t.Parallel()

	redPair := mustClassify(t, mk(piece.Advisor, piece.Red, "a1"), mk(piece.Advisor, piece.Red, "a2"))
	blackPair := mustClassify(t, mk(piece.Advisor, piece.Black, "b1"), mk(piece.Advisor, piece.Black, "b2"))
	mixedPair := mustClassify(t, mk(piece.Advisor, piece.Red, "m1"), mk(piece.Advisor, piece.Black, "m2"))
	horsePair := mustClassify(t, mk(piece.Horse, piece.Red, "h1"), mk(piece.Horse, piece.Red, "h2"))
	single := mustClassify(t, mk(piece.General, piece.Red, "g"))
	pass := piece.NewPass()

	cases := []struct {
		name string
		a, b piece.Play
		want CompareResult
	}{
		{"pass vs pass", pass, pass, Tie},
		{"pass loses", pass, single, BWins},
		{"non-pass beats pass", single, pass, AWins},
		{"count mismatch holds incumbent", redPair, single, AWins},
		{"higher pair wins", blackPair, redPair, BWins},
		{"incumbent holds on equal strength", redPair, redPair, Tie},
		{"mixed loses to pure same count", mixedPair, blackPair, BWins},
		{"pure holds against mixed", blackPair, mixedPair, AWins},
		{"stronger rank pair wins", horsePair, blackPair, BWins},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Compare(tc.a, tc.b); got != tc.want {
				t.Errorf("Compare = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestResolveTurn(t *testing.T) {
	t.Parallel()

	leaderPlay := mustClassify(t, mk(piece.Horse, piece.Black, "h1"), mk(piece.Horse, piece.Black, "h2"))
	better := mustClassify(t, mk(piece.Chariot, piece.Red, "c1"), mk(piece.Chariot, piece.Red, "c2"))

	plays := map[int]piece.Play{
		0: leaderPlay,
		1: piece.NewPass(),
		2: better,
		3: piece.NewPass(),
	}
	winner, pileSize := ResolveTurn(plays, []int{0, 1, 2, 3})
	if winner != 2 {
		t.Errorf("Expected winner 2, got %d", winner)
	}
	if pileSize != 4 {
		t.Errorf("Expected pile of 4, got %d", pileSize)
	}
}

func TestResolveTurnAllPass(t *testing.T) {
	t.Parallel()

	leaderPlay := mustClassify(t, mk(piece.Soldier, piece.Black, "s1"))
	plays := map[int]piece.Play{
		1: leaderPlay,
		2: piece.NewPass(),
		3: piece.NewPass(),
		0: piece.NewPass(),
	}
	winner, pileSize := ResolveTurn(plays, []int{1, 2, 3, 0})
	if winner != 1 {
		t.Errorf("Leader should win uncontested, got %d", winner)
	}
	if pileSize != 1 {
		t.Errorf("Expected pile of 1, got %d", pileSize)
	}
}

func TestResolveTurnEarliestTieHolds(t *testing.T) {
	t.Parallel()

	// Two mixed advisor pairs with identical strength: earliest holds.
	first := mustClassify(t, mk(piece.Advisor, piece.Red, "a1"), mk(piece.Advisor, piece.Black, "a2"))
	second := mustClassify(t, mk(piece.Advisor, piece.Red, "a3"), mk(piece.Advisor, piece.Black, "a4"))

	plays := map[int]piece.Play{
		2: first,
		3: second,
		0: piece.NewPass(),
		1: piece.NewPass(),
	}
	winner, _ := ResolveTurn(plays, []int{2, 3, 0, 1})
	if winner != 2 {
		t.Errorf("Earliest of tied plays should win, got %d", winner)
	}
}

func TestResolveTurnTypeMismatchIsPass(t *testing.T) {
	t.Parallel()

	leaderPlay := mustClassify(t, mk(piece.Cannon, piece.Red, "c1"), mk(piece.Cannon, piece.Red, "c2"))
	mixed := mustClassify(t, mk(piece.Chariot, piece.Red, "r1"), mk(piece.Chariot, piece.Black, "r2"))

	// Mixed pair does not contend against a pure pair, but its pieces
	// still join the pile.
	plays := map[int]piece.Play{
		0: leaderPlay,
		1: mixed,
		2: piece.NewPass(),
		3: piece.NewPass(),
	}
	winner, pileSize := ResolveTurn(plays, []int{0, 1, 2, 3})
	if winner != 0 {
		t.Errorf("Leader should hold, got %d", winner)
	}
	if pileSize != 4 {
		t.Errorf("Expected pile of 4, got %d", pileSize)
	}
}

func TestScoreRound(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		declared   map[int]int
		captured   map[int]int
		multiplier int
		want       map[int]int
	}{
		{
			name:       "exact match",
			declared:   map[int]int{0: 3},
			captured:   map[int]int{0: 3},
			multiplier: 1,
			want:       map[int]int{0: 8},
		},
		{
			name:       "zero declaration held",
			declared:   map[int]int{0: 0},
			captured:   map[int]int{0: 0},
			multiplier: 1,
			want:       map[int]int{0: 3},
		},
		{
			name:       "miss costs the difference",
			declared:   map[int]int{0: 4, 1: 1},
			captured:   map[int]int{0: 1, 1: 3},
			multiplier: 1,
			want:       map[int]int{0: -3, 1: -2},
		},
		{
			name:       "multiplier applies",
			declared:   map[int]int{0: 2, 1: 0},
			captured:   map[int]int{0: 2, 1: 1},
			multiplier: 2,
			want:       map[int]int{0: 14, 1: -2},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ScoreRound(tc.declared, tc.captured, tc.multiplier)
			for pos, want := range tc.want {
				if got[pos] != want {
					t.Errorf("Position %d: expected %d, got %d", pos, want, got[pos])
				}
			}
		})
	}
}
