package psql

import (
	"database/sql"
	"time"

	"github.com/Driving-Capstone/DrivingCoach-BE/proto"
)

type Record struct {
	RecordID     string          `db:"record_id"`
	UserID       sql.NullInt64   `db:"user_id"`
	LoginID      string          `db:"login_id"`
	SessionID    string          `db:"session_id"`
	Started      time.Time       `db:"started"`
	Ended        time.Time       `db:"ended"`
	TotalSeconds int             `db:"total_seconds"`
	Chunks       int             `db:"chunks"`
	Score        sql.NullFloat64 `db:"score"`
}

func (r *Record) Bind() proto.Record {
	record := proto.Record{
		RecordID:     r.RecordID,
		LoginID:      r.LoginID,
		SessionID:    r.SessionID,
		Started:      r.Started,
		Ended:        r.Ended,
		TotalSeconds: r.TotalSeconds,
		Chunks:       r.Chunks,
	}
	if r.UserID.Valid {
		uid := r.UserID.Int64
		record.UserID = &uid
	}
	if r.Score.Valid {
		score := r.Score.Float64
		record.Score = &score
	}
	return record
}

type Chunk struct {
	RecordID   string `db:"record_id"`
	ChunkIndex int    `db:"chunk_index"`
	BlobKey    string `db:"blob_key"`
}

func (c *Chunk) Bind() proto.Chunk {
	return proto.Chunk{Index: c.ChunkIndex, Key: c.BlobKey}
}

type Event struct {
	ID        int64     `db:"event_id"`
	RecordID  string    `db:"record_id"`
	EventType string    `db:"event_type"`
	EventTime time.Time `db:"event_time"`
	Severity  string    `db:"severity"`
	Note      string    `db:"note"`
}

func (e *Event) Bind() proto.Event {
	return proto.Event{
		ID:       e.ID,
		RecordID: e.RecordID,
		Type:     e.EventType,
		Time:     e.EventTime,
		Severity: e.Severity,
		Note:     e.Note,
	}
}
