package game

import (
	"encoding/json"
	"time"

	"github.com/liaptui/liaptui/internal/protocol"
)

// ChangeRecord is one entry in a session's bounded change log: the delta
// that was applied, why, a digest of the state before it, and the exact
// frame that was broadcast. Records are what reconnecting clients replay.
type ChangeRecord struct {
	Seq         uint64
	Reason      string
	Delta       json.RawMessage
	PriorDigest string
	Frame       *protocol.Frame
	At          time.Time
}

// changeLog is a bounded, ordered history of change records. Old records
// are dropped once the limit is exceeded; a reconnect asking for dropped
// history gets a full state sync instead.
type changeLog struct {
	limit   int
	records []ChangeRecord
}

func newChangeLog(limit int) *changeLog {
	return &changeLog{limit: limit}
}

func (cl *changeLog) append(rec ChangeRecord) {
	cl.records = append(cl.records, rec)
	if len(cl.records) > cl.limit {
		cl.records = cl.records[len(cl.records)-cl.limit:]
	}
}

// since returns records with Seq > after, in order. ok is false when the
// requested history has been truncated away.
func (cl *changeLog) since(after uint64) (recs []ChangeRecord, ok bool) {
	if len(cl.records) == 0 {
		return nil, true
	}
	oldest := cl.records[0].Seq
	if after < oldest-1 {
		return nil, false
	}
	for _, rec := range cl.records {
		if rec.Seq > after {
			recs = append(recs, rec)
		}
	}
	return recs, true
}

func (cl *changeLog) len() int {
	return len(cl.records)
}

func (cl *changeLog) last() (ChangeRecord, bool) {
	if len(cl.records) == 0 {
		return ChangeRecord{}, false
	}
	return cl.records[len(cl.records)-1], true
}
