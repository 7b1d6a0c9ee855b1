package storage

import (
	"context"
	"sync"
)

// Memory is an in-process Repository. It is the default when no snapshot
// path is configured; state does not survive a restart.
type Memory struct {
	mu        sync.RWMutex
	snapshots map[string]Snapshot
	events    map[string][]Event
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *Memory {
	return &Memory{
		snapshots: make(map[string]Snapshot),
		events:    make(map[string][]Event),
	}
}

func (m *Memory) SaveSnapshot(_ context.Context, snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[snap.RoomID] = snap
	return nil
}

func (m *Memory) LoadSnapshot(_ context.Context, roomID string) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.snapshots[roomID]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return snap, nil
}

func (m *Memory) AppendEvent(_ context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[ev.RoomID] = append(m.events[ev.RoomID], ev)
	return nil
}

func (m *Memory) Events(_ context.Context, roomID string, after uint64) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Event
	for _, ev := range m.events[roomID] {
		if ev.Sequence > after {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *Memory) DeleteRoom(_ context.Context, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snapshots, roomID)
	delete(m.events, roomID)
	return nil
}

func (m *Memory) Close() error { return nil }
