package game

import "fmt"

// ActionKind identifies a game action submitted through the action bus.
type ActionKind string

const (
	ActionStartGame     ActionKind = "start_game"
	ActionDeclare       ActionKind = "declare"
	ActionPlay          ActionKind = "play"
	ActionAcceptRedeal  ActionKind = "accept_redeal"
	ActionDeclineRedeal ActionKind = "decline_redeal"
)

// Action is a single game action attributed to a seat. Synthetic actions
// are injected by the bot driver or phase timeouts rather than a client.
type Action struct {
	Kind      ActionKind
	Position  int
	Value     int      // declaration value for ActionDeclare
	PieceIDs  []string // piece selection for ActionPlay
	Synthetic bool
}

// DedupeKey identifies a decision point. Two submissions with the same key
// are duplicates: the bus returns the cached result for the second one.
type DedupeKey struct {
	Position   int
	Phase      Phase
	TurnNumber int
	Kind       ActionKind
}

// String renders the key for logging.
func (k DedupeKey) String() string {
	return fmt.Sprintf("%d/%s/%d/%s", k.Position, k.Phase, k.TurnNumber, k.Kind)
}

// ActionResult is the outcome of applying an action. Err is nil on
// success; Seq is the room sequence number after the action's broadcasts.
type ActionResult struct {
	Err *Error
	Seq uint64
}

// OK reports whether the action succeeded.
func (r ActionResult) OK() bool {
	return r.Err == nil
}
