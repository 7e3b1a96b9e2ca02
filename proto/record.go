package proto

import (
	"context"
	"time"
)

// A RecordSummary describes a finished recording. It is produced when a
// client ends a recording and handed to a RecordStore for bookkeeping.
type RecordSummary struct {
	RecordID  string
	SessionID string
	Identity  Identity
	Started   time.Time
	Ended     time.Time
	Chunks    int
	Keys      []string

	// Score is the client's driving score for the recording, if it sent
	// one with END.
	Score *float64
}

// A Record is the stored form of a finished recording.
type Record struct {
	RecordID     string    `json:"recordId"`
	UserID       *int64    `json:"userId,omitempty"`
	LoginID      string    `json:"loginId"`
	SessionID    string    `json:"sessionId"`
	Started      time.Time `json:"startTime"`
	Ended        time.Time `json:"endTime"`
	TotalSeconds int       `json:"totalSeconds"`
	Chunks       int       `json:"chunks"`
	Score        *float64  `json:"score"`
}

// A Chunk locates one stored chunk of a record.
type Chunk struct {
	Index int    `json:"index"`
	Key   string `json:"key"`
	URL   string `json:"url,omitempty"`
}

// DefaultSeverity is given to events recorded without a severity.
const DefaultSeverity = "low"

// An Event is a notable moment of a record, such as hard braking or a lane
// departure, reported by the analysis side of the client.
type Event struct {
	ID       int64     `json:"id"`
	RecordID string    `json:"recordId"`
	Type     string    `json:"type"`
	Time     time.Time `json:"eventTime"`
	Severity string    `json:"severity"`
	Note     string    `json:"note,omitempty"`
}

// A Period bounds record start times. A zero From or To leaves that side
// open. From is inclusive, To exclusive.
type Period struct {
	From time.Time
	To   time.Time
}

func (p Period) Contains(t time.Time) bool {
	if !p.From.IsZero() && t.Before(p.From) {
		return false
	}
	if !p.To.IsZero() && !t.Before(p.To) {
		return false
	}
	return true
}

// Stats aggregates a user's records over a period.
type Stats struct {
	Records      int   `json:"records"`
	TotalSeconds int64 `json:"totalSeconds"`
	Chunks       int64 `json:"chunks"`

	// AverageScore is nil when no record in the period was scored.
	AverageScore *float64 `json:"averageScore"`
}

// A RecordStore keeps the bookkeeping of finished recordings.
type RecordStore interface {
	// FinishRecording stores a finished recording and its chunk keys.
	// It returns ErrRecordExists if the record id is already taken.
	FinishRecording(ctx context.Context, summary *RecordSummary) error

	// ListRecords returns a page of the user's records, newest first.
	ListRecords(ctx context.Context, userID int64, period Period, page, size int) ([]Record, error)

	// GetRecord returns one of the user's records with its chunks in
	// index order, or ErrRecordNotFound.
	GetRecord(ctx context.Context, userID int64, recordID string) (*Record, []Chunk, error)

	// DeleteRecord removes one of the user's records and returns the
	// chunks it referenced, or ErrRecordNotFound.
	DeleteRecord(ctx context.Context, userID int64, recordID string) ([]Chunk, error)

	// Stats aggregates the user's records started within period.
	Stats(ctx context.Context, userID int64, period Period) (*Stats, error)

	// AddEvent attaches event to one of the user's records and sets its
	// ID. It returns ErrRecordNotFound if the record is not the user's.
	AddEvent(ctx context.Context, userID int64, event *Event) error

	// ListEvents returns all events of one of the user's records, oldest
	// first.
	ListEvents(ctx context.Context, userID int64, recordID string) ([]Event, error)

	// PageEvents returns a page of the events of one of the user's
	// records, newest first.
	PageEvents(ctx context.Context, userID int64, recordID string, page, size int) ([]Event, error)

	Close() error
}

// TotalSeconds is the whole-second duration of a recording.
func (s *RecordSummary) TotalSeconds() int {
	if s.Ended.Before(s.Started) {
		return 0
	}
	return int(s.Ended.Sub(s.Started) / time.Second)
}
