package protocol

// ErrorCode is a stable machine-readable error identifier
type ErrorCode string

// Connection errors
const (
	CodeConnectionFailed ErrorCode = "CONNECTION_FAILED"
	CodeAuthFailed       ErrorCode = "AUTH_FAILED"
	CodeRoomNotFound     ErrorCode = "ROOM_NOT_FOUND"
	CodeRoomFull         ErrorCode = "ROOM_FULL"
	CodeAlreadyInRoom    ErrorCode = "ALREADY_IN_ROOM"
)

// Game errors
const (
	CodeGameNotStarted     ErrorCode = "GAME_NOT_STARTED"
	CodeOutOfPhase         ErrorCode = "OUT_OF_PHASE"
	CodeNotYourTurn        ErrorCode = "NOT_YOUR_TURN"
	CodeInvalidPlay        ErrorCode = "INVALID_PLAY"
	CodeInvalidDeclaration ErrorCode = "INVALID_DECLARATION"
	CodeAlreadyDeclared    ErrorCode = "ALREADY_DECLARED"
	CodePiecesNotInHand    ErrorCode = "PIECES_NOT_IN_HAND"
	CodePieceCountMismatch ErrorCode = "PIECE_COUNT_MISMATCH"
	CodeNotHost            ErrorCode = "NOT_HOST"
)

// Validation errors
const (
	CodeInvalidMessageFormat ErrorCode = "INVALID_MESSAGE_FORMAT"
	CodeMissingRequiredField ErrorCode = "MISSING_REQUIRED_FIELD"
	CodeInvalidFieldType     ErrorCode = "INVALID_FIELD_TYPE"
	CodeOutOfRange           ErrorCode = "OUT_OF_RANGE"
)

// System errors
const (
	CodeRateLimited     ErrorCode = "RATE_LIMITED"
	CodeServerError     ErrorCode = "SERVER_ERROR"
	CodeVersionMismatch ErrorCode = "VERSION_MISMATCH"
)

// ErrorData is the payload of an error frame. Recoverable advises the
// client whether retrying the action can succeed.
type ErrorData struct {
	Code        ErrorCode   `json:"code"`
	Message     string      `json:"message"`
	Details     interface{} `json:"details,omitempty"`
	Recoverable bool        `json:"recoverable"`
}
