// Package protocol defines the JSON wire protocol between the server and
// its clients: the frame envelope, the event vocabulary, the payload
// shapes and the error taxonomy.
package protocol

import (
	"encoding/json"
	"time"
)

// Frame is the envelope for every message in either direction. Data holds
// the event-specific payload. SequenceNumber is stamped on room broadcasts
// so clients can detect gaps after reconnecting.
type Frame struct {
	Event          string          `json:"event"`
	Data           json.RawMessage `json:"data"`
	SequenceNumber uint64          `json:"sequenceNumber,omitempty"`
	ServerTime     int64           `json:"serverTime,omitempty"`
}

// NewFrame builds a frame with the payload marshalled and the server time
// stamped in unix milliseconds.
func NewFrame(event string, data interface{}) (*Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Frame{
		Event:      event,
		Data:       raw,
		ServerTime: time.Now().UnixMilli(),
	}, nil
}

// WithSequence stamps the room broadcast sequence number on the frame.
func (f *Frame) WithSequence(seq uint64) *Frame {
	f.SequenceNumber = seq
	return f
}
