package backend

import (
	"fmt"
	"sync"
	"time"

	"github.com/Driving-Capstone/DrivingCoach-BE/proto"
)

// RestartPolicy decides what a START does while a recording is active.
type RestartPolicy string

const (
	// RestartOverwrite silently replaces the active recording. The
	// replaced recording gets no ENDED and is not written to the record
	// store.
	RestartOverwrite = RestartPolicy("overwrite")

	// RestartReject refuses the START until the client sends END.
	RestartReject = RestartPolicy("reject")
)

func (p RestartPolicy) Valid() bool { return p == RestartOverwrite || p == RestartReject }

func (p *RestartPolicy) Set(s string) error {
	if !RestartPolicy(s).Valid() {
		return fmt.Errorf("invalid restart policy %q (want overwrite or reject)", s)
	}
	*p = RestartPolicy(s)
	return nil
}

func (p RestartPolicy) String() string { return string(p) }
func (p RestartPolicy) Type() string   { return "policy" }

type State int

const (
	Idle State = iota
	Recording
)

func (s State) String() string {
	if s == Recording {
		return "recording"
	}
	return "idle"
}

type recording struct {
	id      string
	chunks  int
	started time.Time
	keys    []string
}

// A Session is the state of one live connection. It is mutated only by the
// goroutine serving that connection; the mutex keeps reads from other
// goroutines (registry snapshots) consistent.
type Session struct {
	id          string
	identity    proto.Identity
	connectedAt time.Time

	m   sync.RWMutex
	rec *recording
}

func NewSession(id string, identity proto.Identity, connectedAt time.Time) *Session {
	return &Session{id: id, identity: identity, connectedAt: connectedAt}
}

func (s *Session) ID() string               { return s.id }
func (s *Session) Identity() proto.Identity { return s.identity }
func (s *Session) ConnectedAt() time.Time   { return s.connectedAt }

func (s *Session) State() State {
	s.m.RLock()
	defer s.m.RUnlock()
	if s.rec == nil {
		return Idle
	}
	return Recording
}

// Recording returns the active record id and its chunk count.
func (s *Session) Recording() (recordID string, chunks int, ok bool) {
	s.m.RLock()
	defer s.m.RUnlock()
	if s.rec == nil {
		return "", 0, false
	}
	return s.rec.id, s.rec.chunks, true
}

// Start begins a recording under requested, or under newID() if requested
// is empty, and resets the chunk count. If a recording was already active
// and policy allows the restart, the replaced recording is returned as
// abandoned.
func (s *Session) Start(requested string, policy RestartPolicy, newID func() string, now time.Time) (
	recordID string, abandoned *proto.RecordSummary, err error) {

	s.m.Lock()
	defer s.m.Unlock()

	if s.rec != nil {
		if policy == RestartReject {
			return "", nil, proto.ErrRecordActive
		}
		abandoned = s.summaryLocked(now)
	}

	recordID = requested
	if recordID == "" {
		recordID = newID()
	}
	s.rec = &recording{id: recordID, started: now}
	return recordID, abandoned, nil
}

// ChunkStored counts a chunk that was durably stored under key and returns
// its 1-based index.
func (s *Session) ChunkStored(key string) (int, error) {
	s.m.Lock()
	defer s.m.Unlock()

	if s.rec == nil {
		return 0, proto.ErrNotStarted
	}
	s.rec.chunks++
	s.rec.keys = append(s.rec.keys, key)
	return s.rec.chunks, nil
}

// End finishes the active recording and returns to idle.
func (s *Session) End(now time.Time) (*proto.RecordSummary, error) {
	s.m.Lock()
	defer s.m.Unlock()

	if s.rec == nil {
		return nil, proto.ErrNoActiveRecord
	}
	summary := s.summaryLocked(now)
	s.rec = nil
	return summary, nil
}

func (s *Session) summaryLocked(now time.Time) *proto.RecordSummary {
	keys := make([]string, len(s.rec.keys))
	copy(keys, s.rec.keys)
	return &proto.RecordSummary{
		RecordID:  s.rec.id,
		SessionID: s.id,
		Identity:  s.identity,
		Started:   s.rec.started,
		Ended:     now,
		Chunks:    s.rec.chunks,
		Keys:      keys,
	}
}

// SessionView is a point-in-time description of a live session.
type SessionView struct {
	SessionID   string         `json:"sessionId"`
	Identity    proto.Identity `json:"identity"`
	State       string         `json:"state"`
	RecordID    string         `json:"recordId,omitempty"`
	Chunks      int            `json:"chunks"`
	ConnectedAt time.Time      `json:"connectedAt"`
}

func (s *Session) View() SessionView {
	view := SessionView{
		SessionID:   s.id,
		Identity:    s.identity,
		State:       Idle.String(),
		ConnectedAt: s.connectedAt,
	}
	if recordID, chunks, ok := s.Recording(); ok {
		view.State = Recording.String()
		view.RecordID = recordID
		view.Chunks = chunks
	}
	return view
}
