package piece

import "fmt"

// Rank represents a Chinese-chess piece rank
type Rank int

const (
	General Rank = iota
	Advisor
	Elephant
	Chariot
	Horse
	Cannon
	Soldier
)

// String returns the string representation of a rank
func (r Rank) String() string {
	switch r {
	case General:
		return "GENERAL"
	case Advisor:
		return "ADVISOR"
	case Elephant:
		return "ELEPHANT"
	case Chariot:
		return "CHARIOT"
	case Horse:
		return "HORSE"
	case Cannon:
		return "CANNON"
	case Soldier:
		return "SOLDIER"
	default:
		return "?"
	}
}

// Ranks lists all ranks from strongest to weakest.
var Ranks = []Rank{General, Advisor, Elephant, Chariot, Horse, Cannon, Soldier}

// Color represents a piece color
type Color int

const (
	Red Color = iota
	Black
)

// String returns the string representation of a color
func (c Color) String() string {
	switch c {
	case Red:
		return "RED"
	case Black:
		return "BLACK"
	default:
		return "?"
	}
}

// Piece is a single physical piece. ID is unique within a deck.
type Piece struct {
	ID    string `json:"id"`
	Rank  Rank   `json:"-"`
	Color Color  `json:"-"`
	Point int    `json:"point"`
}

// String returns a short human-readable form like "GENERAL(RED)"
func (p Piece) String() string {
	return fmt.Sprintf("%s(%s)", p.Rank, p.Color)
}

// PointTable maps (rank, color) to a point value. Point values are
// configuration: the canonical table can be overridden from the server
// config file.
type PointTable map[Rank][2]int

// DefaultPointTable returns the canonical point table. Red of a rank is
// always worth one more than black of the same rank, descending from
// GENERAL(RED)=14 to SOLDIER(BLACK)=1.
func DefaultPointTable() PointTable {
	return PointTable{
		General:  {14, 13},
		Advisor:  {12, 11},
		Elephant: {10, 9},
		Chariot:  {8, 7},
		Horse:    {6, 5},
		Cannon:   {4, 3},
		Soldier:  {2, 1},
	}
}

// Point returns the point value for a rank/color pair.
func (t PointTable) Point(r Rank, c Color) int {
	return t[r][int(c)]
}

// Validate checks the table covers every rank with positive values.
func (t PointTable) Validate() error {
	for _, r := range Ranks {
		pts, ok := t[r]
		if !ok {
			return fmt.Errorf("point table missing rank %s", r)
		}
		if pts[0] <= 0 || pts[1] <= 0 {
			return fmt.Errorf("point table rank %s: points must be positive", r)
		}
	}
	return nil
}

// multiplicities per color for the 32-piece deck
var multiplicities = map[Rank]int{
	General:  1,
	Advisor:  2,
	Elephant: 2,
	Chariot:  2,
	Horse:    2,
	Cannon:   2,
	Soldier:  5,
}

// DeckSize is the number of pieces in a full deck.
const DeckSize = 32

// NewDeck builds the canonical 32-piece deck in a deterministic order.
// IDs are stable across deals: "general_red", "advisor_black_2",
// "soldier_red_5", etc.
func NewDeck(table PointTable) []Piece {
	deck := make([]Piece, 0, DeckSize)
	for _, r := range Ranks {
		for _, c := range []Color{Red, Black} {
			n := multiplicities[r]
			for i := 1; i <= n; i++ {
				id := fmt.Sprintf("%s_%s", lower(r.String()), lower(c.String()))
				if n > 1 {
					id = fmt.Sprintf("%s_%d", id, i)
				}
				deck = append(deck, Piece{
					ID:    id,
					Rank:  r,
					Color: c,
					Point: table.Point(r, c),
				})
			}
		}
	}
	return deck
}

func lower(s string) string {
	b := []byte(s)
	for i := range b {
		if b[i] >= 'A' && b[i] <= 'Z' {
			b[i] += 'a' - 'A'
		}
	}
	return string(b)
}
