package game

// Phase is a named state of the session state machine. The phase governs
// which actions are accepted and from whom.
type Phase int

const (
	Waiting Phase = iota
	Preparation
	Declaration
	Turn
	TurnResults
	Scoring
	GameOver
)

// String returns the string representation of a phase
func (p Phase) String() string {
	switch p {
	case Waiting:
		return "WAITING"
	case Preparation:
		return "PREPARATION"
	case Declaration:
		return "DECLARATION"
	case Turn:
		return "TURN"
	case TurnResults:
		return "TURN_RESULTS"
	case Scoring:
		return "SCORING"
	case GameOver:
		return "GAME_OVER"
	default:
		return "?"
	}
}

// legalEdges enumerates every permitted phase transition. transitionTo
// refuses anything not listed here.
var legalEdges = map[Phase][]Phase{
	Waiting:     {Preparation},
	Preparation: {Preparation, Declaration},
	Declaration: {Turn},
	Turn:        {TurnResults},
	TurnResults: {Turn, Scoring},
	Scoring:     {Preparation, GameOver},
	GameOver:    {},
}

// LegalTransition reports whether from -> to is a permitted edge.
func LegalTransition(from, to Phase) bool {
	for _, next := range legalEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}
