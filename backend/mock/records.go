package mock

import (
	"context"
	"sort"
	"sync"

	"github.com/Driving-Capstone/DrivingCoach-BE/proto"
)

type memRecord struct {
	record proto.Record
	chunks []proto.Chunk
	events []proto.Event
}

// RecordStore keeps finished recordings in memory.
type RecordStore struct {
	sync.Mutex
	records     map[string]*memRecord
	lastEventID int64
}

var _ proto.RecordStore = (*RecordStore)(nil)

func NewRecordStore() *RecordStore {
	return &RecordStore{records: map[string]*memRecord{}}
}

func (s *RecordStore) FinishRecording(ctx context.Context, summary *proto.RecordSummary) error {
	s.Lock()
	defer s.Unlock()

	if s.records == nil {
		s.records = map[string]*memRecord{}
	}
	if _, ok := s.records[summary.RecordID]; ok {
		return proto.ErrRecordExists
	}

	rec := &memRecord{
		record: proto.Record{
			RecordID:     summary.RecordID,
			LoginID:      summary.Identity.LoginID,
			SessionID:    summary.SessionID,
			Started:      summary.Started,
			Ended:        summary.Ended,
			TotalSeconds: summary.TotalSeconds(),
			Chunks:       summary.Chunks,
		},
	}
	if summary.Score != nil {
		score := *summary.Score
		rec.record.Score = &score
	}
	if uid, ok := summary.Identity.UID(); ok {
		rec.record.UserID = &uid
	}
	for i, key := range summary.Keys {
		rec.chunks = append(rec.chunks, proto.Chunk{Index: i + 1, Key: key})
	}
	s.records[summary.RecordID] = rec
	return nil
}

func (s *RecordStore) owned(userID int64, recordID string) (*memRecord, bool) {
	rec, ok := s.records[recordID]
	if !ok || rec.record.UserID == nil || *rec.record.UserID != userID {
		return nil, false
	}
	return rec, true
}

func (s *RecordStore) matching(userID int64, period proto.Period) []*memRecord {
	var recs []*memRecord
	for _, rec := range s.records {
		if rec.record.UserID != nil && *rec.record.UserID == userID && period.Contains(rec.record.Started) {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i].record, recs[j].record
		if a.Started.Equal(b.Started) {
			return a.RecordID > b.RecordID
		}
		return a.Started.After(b.Started)
	})
	return recs
}

func (s *RecordStore) ListRecords(
	ctx context.Context, userID int64, period proto.Period, page, size int) ([]proto.Record, error) {

	s.Lock()
	defer s.Unlock()

	recs := s.matching(userID, period)
	start := page * size
	if start >= len(recs) {
		return []proto.Record{}, nil
	}
	end := start + size
	if end > len(recs) {
		end = len(recs)
	}

	records := make([]proto.Record, 0, end-start)
	for _, rec := range recs[start:end] {
		records = append(records, rec.record)
	}
	return records, nil
}

func (s *RecordStore) GetRecord(ctx context.Context, userID int64, recordID string) (
	*proto.Record, []proto.Chunk, error) {

	s.Lock()
	defer s.Unlock()

	rec, ok := s.owned(userID, recordID)
	if !ok {
		return nil, nil, proto.ErrRecordNotFound
	}
	record := rec.record
	chunks := make([]proto.Chunk, len(rec.chunks))
	copy(chunks, rec.chunks)
	return &record, chunks, nil
}

func (s *RecordStore) DeleteRecord(ctx context.Context, userID int64, recordID string) ([]proto.Chunk, error) {
	s.Lock()
	defer s.Unlock()

	rec, ok := s.owned(userID, recordID)
	if !ok {
		return nil, proto.ErrRecordNotFound
	}
	delete(s.records, recordID)
	return rec.chunks, nil
}

func (s *RecordStore) Stats(ctx context.Context, userID int64, period proto.Period) (*proto.Stats, error) {
	s.Lock()
	defer s.Unlock()

	stats := &proto.Stats{}
	var scored int
	var scoreSum float64
	for _, rec := range s.matching(userID, period) {
		stats.Records++
		stats.TotalSeconds += int64(rec.record.TotalSeconds)
		stats.Chunks += int64(rec.record.Chunks)
		if rec.record.Score != nil {
			scored++
			scoreSum += *rec.record.Score
		}
	}
	if scored > 0 {
		avg := scoreSum / float64(scored)
		stats.AverageScore = &avg
	}
	return stats, nil
}

func (s *RecordStore) AddEvent(ctx context.Context, userID int64, event *proto.Event) error {
	s.Lock()
	defer s.Unlock()

	rec, ok := s.owned(userID, event.RecordID)
	if !ok {
		return proto.ErrRecordNotFound
	}
	s.lastEventID++
	event.ID = s.lastEventID
	rec.events = append(rec.events, *event)
	return nil
}

// sortedEvents returns a copy of the record's events ordered by time, then
// id.
func (s *RecordStore) sortedEvents(userID int64, recordID string) ([]proto.Event, error) {
	rec, ok := s.owned(userID, recordID)
	if !ok {
		return nil, proto.ErrRecordNotFound
	}
	events := make([]proto.Event, len(rec.events))
	copy(events, rec.events)
	sort.Slice(events, func(i, j int) bool {
		if events[i].Time.Equal(events[j].Time) {
			return events[i].ID < events[j].ID
		}
		return events[i].Time.Before(events[j].Time)
	})
	return events, nil
}

func (s *RecordStore) ListEvents(ctx context.Context, userID int64, recordID string) ([]proto.Event, error) {
	s.Lock()
	defer s.Unlock()
	return s.sortedEvents(userID, recordID)
}

func (s *RecordStore) PageEvents(
	ctx context.Context, userID int64, recordID string, page, size int) ([]proto.Event, error) {

	s.Lock()
	defer s.Unlock()

	events, err := s.sortedEvents(userID, recordID)
	if err != nil {
		return nil, err
	}
	start := page * size
	if start >= len(events) {
		return []proto.Event{}, nil
	}
	end := start + size
	if end > len(events) {
		end = len(events)
	}

	paged := make([]proto.Event, 0, end-start)
	for i := len(events) - 1 - start; i >= len(events)-end; i-- {
		paged = append(paged, events[i])
	}
	return paged, nil
}

func (s *RecordStore) Close() error { return nil }

// Len counts stored records, including anonymous ones.
func (s *RecordStore) Len() int {
	s.Lock()
	defer s.Unlock()
	return len(s.records)
}
