package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite is a Repository backed by a single-file SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the database at dbPath and ensures
// the schema.
func NewSQLite(dbPath string) (*SQLite, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, fmt.Errorf("empty sqlite database path")
	}
	if dbPath != ":memory:" {
		parent := filepath.Dir(dbPath)
		if parent != "" && parent != "." {
			if err := os.MkdirAll(parent, 0o755); err != nil {
				return nil, err
			}
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, pragma := range []string{
		`PRAGMA busy_timeout = 5000;`,
		`PRAGMA journal_mode = WAL;`,
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := ensureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLite{db: db}, nil
}

func ensureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS room_snapshots (
    room_id     TEXT PRIMARY KEY,
    sequence    INTEGER NOT NULL,
    phase       TEXT NOT NULL,
    state       TEXT NOT NULL,
    saved_at_ms INTEGER NOT NULL
)`)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS room_events (
    id       INTEGER PRIMARY KEY AUTOINCREMENT,
    room_id  TEXT NOT NULL,
    sequence INTEGER NOT NULL,
    kind     TEXT NOT NULL,
    payload  TEXT NOT NULL,
    at_ms    INTEGER NOT NULL
)`)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
CREATE INDEX IF NOT EXISTS idx_room_events_room_seq
ON room_events (room_id, sequence)`)
	return err
}

func (s *SQLite) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
INSERT INTO room_snapshots (room_id, sequence, phase, state, saved_at_ms)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(room_id) DO UPDATE SET
    sequence    = excluded.sequence,
    phase       = excluded.phase,
    state       = excluded.state,
    saved_at_ms = excluded.saved_at_ms
`, snap.RoomID, snap.Sequence, snap.Phase, string(snap.State), snap.SavedAt.UnixMilli())
	return err
}

func (s *SQLite) LoadSnapshot(ctx context.Context, roomID string) (Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `
SELECT sequence, phase, state, saved_at_ms
FROM room_snapshots
WHERE room_id = ?
`, roomID)

	snap := Snapshot{RoomID: roomID}
	var state string
	var savedAtMs int64
	err := row.Scan(&snap.Sequence, &snap.Phase, &state, &savedAtMs)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, err
	}
	snap.State = []byte(state)
	snap.SavedAt = time.UnixMilli(savedAtMs).UTC()
	return snap, nil
}

func (s *SQLite) AppendEvent(ctx context.Context, ev Event) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
INSERT INTO room_events (room_id, sequence, kind, payload, at_ms)
VALUES (?, ?, ?, ?, ?)
`, ev.RoomID, ev.Sequence, ev.Kind, string(ev.Payload), ev.At.UnixMilli())
	return err
}

func (s *SQLite) Events(ctx context.Context, roomID string, after uint64) ([]Event, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
SELECT sequence, kind, payload, at_ms
FROM room_events
WHERE room_id = ? AND sequence > ?
ORDER BY sequence ASC, id ASC
`, roomID, after)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		ev := Event{RoomID: roomID}
		var payload string
		var atMs int64
		if err := rows.Scan(&ev.Sequence, &ev.Kind, &payload, &atMs); err != nil {
			return nil, err
		}
		ev.Payload = []byte(payload)
		ev.At = time.UnixMilli(atMs).UTC()
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (s *SQLite) DeleteRoom(ctx context.Context, roomID string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM room_snapshots WHERE room_id = ?`, roomID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM room_events WHERE room_id = ?`, roomID)
	return err
}

func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
