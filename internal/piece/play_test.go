package piece

import (
	"testing"
)

func mk(r Rank, c Color, id string) Piece {
	return Piece{ID: id, Rank: r, Color: c, Point: DefaultPointTable().Point(r, c)}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		pieces  []Piece
		want    PlayType
		wantErr bool
	}{
		{
			name:   "empty is pass",
			pieces: nil,
			want:   Pass,
		},
		{
			name:   "single",
			pieces: []Piece{mk(General, Red, "g")},
			want:   Single,
		},
		{
			name:   "pair same color",
			pieces: []Piece{mk(Advisor, Red, "a1"), mk(Advisor, Red, "a2")},
			want:   Pair,
		},
		{
			name:   "pair mixed color is mixed",
			pieces: []Piece{mk(Advisor, Red, "a1"), mk(Advisor, Black, "a2")},
			want:   Mixed,
		},
		{
			name: "triple soldiers",
			pieces: []Piece{
				mk(Soldier, Black, "s1"), mk(Soldier, Black, "s2"), mk(Soldier, Black, "s3"),
			},
			want: Triple,
		},
		{
			name: "quad",
			pieces: []Piece{
				mk(Soldier, Red, "s1"), mk(Soldier, Red, "s2"),
				mk(Soldier, Red, "s3"), mk(Soldier, Red, "s4"),
			},
			want: Quad,
		},
		{
			name: "five of a kind",
			pieces: []Piece{
				mk(Soldier, Red, "s1"), mk(Soldier, Red, "s2"), mk(Soldier, Red, "s3"),
				mk(Soldier, Red, "s4"), mk(Soldier, Red, "s5"),
			},
			want: FiveOfAKind,
		},
		{
			name: "mixed five",
			pieces: []Piece{
				mk(Soldier, Red, "s1"), mk(Soldier, Red, "s2"), mk(Soldier, Black, "s3"),
				mk(Soldier, Black, "s4"), mk(Soldier, Black, "s5"),
			},
			want: Mixed,
		},
		{
			name: "straight same color",
			pieces: []Piece{
				mk(Chariot, Red, "c"), mk(Horse, Red, "h"), mk(Cannon, Red, "p"),
			},
			want: Straight,
		},
		{
			name: "straight with gap invalid",
			pieces: []Piece{
				mk(Chariot, Red, "c"), mk(Cannon, Red, "p"), mk(Soldier, Red, "s"),
			},
			wantErr: true,
		},
		{
			name: "mixed color straight invalid",
			pieces: []Piece{
				mk(Chariot, Red, "c"), mk(Horse, Black, "h"), mk(Cannon, Red, "p"),
			},
			wantErr: true,
		},
		{
			name:    "unrelated pieces invalid",
			pieces:  []Piece{mk(General, Red, "g"), mk(Horse, Black, "h")},
			wantErr: true,
		},
		{
			name: "too many pieces",
			pieces: []Piece{
				mk(General, Red, "1"), mk(Advisor, Red, "2"), mk(Elephant, Red, "3"),
				mk(Chariot, Red, "4"), mk(Horse, Red, "5"), mk(Cannon, Red, "6"),
				mk(Soldier, Red, "7"),
			},
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			play, err := Classify(tc.pieces)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("Expected error, got %s", play.Type)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if play.Type != tc.want {
				t.Errorf("Expected %s, got %s", tc.want, play.Type)
			}
		})
	}
}

func TestClassifyOrderIndependent(t *testing.T) {
	t.Parallel()
	a := []Piece{mk(Chariot, Red, "c"), mk(Horse, Red, "h"), mk(Cannon, Red, "p")}
	b := []Piece{mk(Cannon, Red, "p"), mk(Chariot, Red, "c"), mk(Horse, Red, "h")}

	pa, err := Classify(a)
	if err != nil {
		t.Fatal(err)
	}
	pb, err := Classify(b)
	if err != nil {
		t.Fatal(err)
	}
	if pa.Type != pb.Type || !pa.Strength.Equal(pb.Strength) {
		t.Errorf("Classification not order independent: %v vs %v", pa, pb)
	}
}

func TestStrengthOrdering(t *testing.T) {
	t.Parallel()

	redAdvisors, _ := Classify([]Piece{mk(Advisor, Red, "a1"), mk(Advisor, Red, "a2")})
	blackAdvisors, _ := Classify([]Piece{mk(Advisor, Black, "a1"), mk(Advisor, Black, "a2")})
	if !blackAdvisors.Strength.Less(redAdvisors.Strength) {
		t.Error("Red pair should beat black pair of the same rank")
	}

	// Mixed of a stronger rank beats mixed of a weaker rank
	mixedAdvisors, _ := Classify([]Piece{mk(Advisor, Red, "a"), mk(Advisor, Black, "b")})
	mixedHorses, _ := Classify([]Piece{mk(Horse, Red, "a"), mk(Horse, Black, "b")})
	if !mixedHorses.Strength.Less(mixedAdvisors.Strength) {
		t.Error("Mixed advisors should beat mixed horses")
	}

	single14, _ := Classify([]Piece{mk(General, Red, "g")})
	single13, _ := Classify([]Piece{mk(General, Black, "g")})
	if !single13.Strength.Less(single14.Strength) {
		t.Error("Red general should beat black general")
	}
}
