package game

import (
	"github.com/liaptui/liaptui/internal/protocol"
)

// Error is a structured game error delivered to the offending connection
// as an error frame. Game and validation errors never mutate state and are
// never broadcast.
type Error struct {
	Code        protocol.ErrorCode
	Message     string
	Details     interface{}
	Recoverable bool
}

// Error implements the error interface
func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

// WireData converts the error to its wire payload.
func (e *Error) WireData() protocol.ErrorData {
	return protocol.ErrorData{
		Code:        e.Code,
		Message:     e.Message,
		Details:     e.Details,
		Recoverable: e.Recoverable,
	}
}

// NewError builds a recoverable game error.
func NewError(code protocol.ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message, Recoverable: true}
}

// NewFatalError builds a non-recoverable error; the client should not
// retry the action.
func NewFatalError(code protocol.ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message, Recoverable: false}
}

func errOutOfPhase(phase Phase, kind ActionKind) *Error {
	return NewError(protocol.CodeOutOfPhase,
		"action "+string(kind)+" not accepted in phase "+phase.String())
}

func errNotYourTurn(message string) *Error {
	return NewError(protocol.CodeNotYourTurn, message)
}
