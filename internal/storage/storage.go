// Package storage persists room snapshots and event history so games can
// survive a process restart. The core treats persistence as
// fire-and-forget; only restart recovery reads it back.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when no snapshot exists for a room.
var ErrNotFound = errors.New("storage: not found")

// Snapshot is a point-in-time capture of a room's public state.
type Snapshot struct {
	RoomID   string
	Sequence uint64
	Phase    string
	State    json.RawMessage
	SavedAt  time.Time
}

// Event is one appended room event, usually a broadcast frame.
type Event struct {
	RoomID   string
	Sequence uint64
	Kind     string
	Payload  json.RawMessage
	At       time.Time
}

// Repository stores snapshots and events per room.
type Repository interface {
	// SaveSnapshot stores or replaces the room's snapshot.
	SaveSnapshot(ctx context.Context, snap Snapshot) error
	// LoadSnapshot returns the room's snapshot, or ErrNotFound.
	LoadSnapshot(ctx context.Context, roomID string) (Snapshot, error)
	// AppendEvent appends an event to the room's history.
	AppendEvent(ctx context.Context, ev Event) error
	// Events returns the room's events with sequence numbers greater than
	// after, oldest first.
	Events(ctx context.Context, roomID string, after uint64) ([]Event, error)
	// DeleteRoom removes the room's snapshot and history.
	DeleteRoom(ctx context.Context, roomID string) error
	// Close releases underlying resources.
	Close() error
}
