package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/gorilla/mux"

	"github.com/Driving-Capstone/DrivingCoach-BE/proto"
	"github.com/Driving-Capstone/DrivingCoach-BE/proto/logging"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100

	// MaxSummaryDays bounds the period of a weekly summary.
	MaxSummaryDays = 92

	maxEventBytes = 64 << 10
)

type recordPage struct {
	Records []proto.Record `json:"records"`
	Page    int            `json:"page"`
	Size    int            `json:"size"`
}

type recordDetail struct {
	proto.Record
	ChunkList []proto.Chunk `json:"chunkList"`
	Events    []proto.Event `json:"events,omitempty"`
}

type eventList struct {
	RecordID string        `json:"recordId"`
	Events   []proto.Event `json:"events"`
}

type eventPage struct {
	Events []proto.Event `json:"events"`
	Page   int           `json:"page"`
	Size   int           `json:"size"`
}

// eventInput is the body of an event submission. Time and severity are
// optional.
type eventInput struct {
	Type     string     `json:"type"`
	Time     *time.Time `json:"eventTime"`
	Severity string     `json:"severity"`
	Note     string     `json:"note"`
}

type dayBucket struct {
	Date    string `json:"date"`
	Seconds int64  `json:"seconds"`
}

type lastDriving struct {
	RecordID     string    `json:"recordId"`
	Started      time.Time `json:"startTime"`
	Ended        time.Time `json:"endTime"`
	TotalSeconds int       `json:"totalSeconds"`
	Score        *float64  `json:"score"`
}

type weeklySummary struct {
	From         time.Time    `json:"from"`
	To           time.Time    `json:"to"`
	Records      int          `json:"records"`
	TotalSeconds int64        `json:"totalSeconds"`
	AverageScore *float64     `json:"averageScore"`
	DailySeconds []dayBucket  `json:"dailySeconds"`
	LastDriving  *lastDriving `json:"lastDriving"`
}

func (s *Server) recordStore(w http.ResponseWriter) (proto.RecordStore, bool) {
	if s.records == nil {
		writeError(w, http.StatusServiceUnavailable, "records unavailable")
		return nil, false
	}
	return s.records, true
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.authorize(w, r)
	if !ok {
		return
	}
	store, ok := s.recordStore(w)
	if !ok {
		return
	}

	query := r.URL.Query()
	period, err := parsePeriod(query)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, size, err := pageParams(query)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := store.ListRecords(r.Context(), uid, period, page, size)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if records == nil {
		records = []proto.Record{}
	}
	writeJSON(w, http.StatusOK, recordPage{Records: records, Page: page, Size: size})
}

func (s *Server) handleRecordStats(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.authorize(w, r)
	if !ok {
		return
	}
	store, ok := s.recordStore(w)
	if !ok {
		return
	}

	period, err := parsePeriod(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	stats, err := store.Stats(r.Context(), uid, period)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.authorize(w, r)
	if !ok {
		return
	}
	store, ok := s.recordStore(w)
	if !ok {
		return
	}

	withEvents, err := boolParam(r.URL.Query(), "events")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid events")
		return
	}

	recordID := mux.Vars(r)["id"]
	record, chunks, err := store.GetRecord(r.Context(), uid, recordID)
	if err != nil {
		s.recordError(w, r, err)
		return
	}
	detail := recordDetail{Record: *record}
	if withEvents {
		if detail.Events, err = store.ListEvents(r.Context(), uid, recordID); err != nil {
			s.recordError(w, r, err)
			return
		}
		if detail.Events == nil {
			detail.Events = []proto.Event{}
		}
	}

	for i := range chunks {
		u, err := s.blobs.PublicURL(chunks[i].Key)
		if err != nil {
			logging.Logger(r.Context()).Warn().Err(err).Str("key", chunks[i].Key).Msg("no public url")
			continue
		}
		chunks[i].URL = u.String()
	}
	if chunks == nil {
		chunks = []proto.Chunk{}
	}
	detail.ChunkList = chunks
	writeJSON(w, http.StatusOK, detail)
}

// handleDeleteRecord removes a record's blobs, then the record. Blob
// deletion failures are logged and do not stop the record from being
// removed.
func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.authorize(w, r)
	if !ok {
		return
	}
	store, ok := s.recordStore(w)
	if !ok {
		return
	}

	ctx := r.Context()
	logger := logging.Logger(ctx)
	recordID := mux.Vars(r)["id"]

	_, chunks, err := store.GetRecord(ctx, uid, recordID)
	if err != nil {
		s.recordError(w, r, err)
		return
	}

	for _, chunk := range chunks {
		if err := s.blobs.Delete(ctx, chunk.Key); err != nil {
			logger.Warn().Err(err).Str("key", chunk.Key).Msg("blob delete failed")
		}
	}

	if _, err := store.DeleteRecord(ctx, uid, recordID); err != nil {
		s.recordError(w, r, err)
		return
	}
	logger.Info().Str("record", recordID).Int("chunks", len(chunks)).Msg("record deleted")
	w.WriteHeader(http.StatusNoContent)
}

// handleAddEvent attaches an event to one of the caller's records.
func (s *Server) handleAddEvent(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.authorize(w, r)
	if !ok {
		return
	}
	store, ok := s.recordStore(w)
	if !ok {
		return
	}

	var input eventInput
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxEventBytes))
	if err := decoder.Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid event")
		return
	}
	input.Type = strings.TrimSpace(input.Type)
	if input.Type == "" {
		writeError(w, http.StatusBadRequest, "event type is required")
		return
	}

	event := &proto.Event{
		RecordID: mux.Vars(r)["id"],
		Type:     input.Type,
		Time:     s.now(),
		Severity: strings.TrimSpace(input.Severity),
		Note:     input.Note,
	}
	if input.Time != nil {
		event.Time = *input.Time
	}
	if event.Severity == "" {
		event.Severity = proto.DefaultSeverity
	}

	if err := store.AddEvent(r.Context(), uid, event); err != nil {
		s.recordError(w, r, err)
		return
	}
	logging.Logger(r.Context()).Info().
		Str("record", event.RecordID).
		Str("event", event.Type).
		Int64("id", event.ID).
		Msg("event added")
	writeJSON(w, http.StatusCreated, event)
}

// handleListEvents returns every event of a record, oldest first.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.authorize(w, r)
	if !ok {
		return
	}
	store, ok := s.recordStore(w)
	if !ok {
		return
	}

	recordID := mux.Vars(r)["id"]
	events, err := store.ListEvents(r.Context(), uid, recordID)
	if err != nil {
		s.recordError(w, r, err)
		return
	}
	if events == nil {
		events = []proto.Event{}
	}
	writeJSON(w, http.StatusOK, eventList{RecordID: recordID, Events: events})
}

// handlePageEvents returns a page of a record's events, newest first.
func (s *Server) handlePageEvents(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.authorize(w, r)
	if !ok {
		return
	}
	store, ok := s.recordStore(w)
	if !ok {
		return
	}

	page, size, err := pageParams(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	events, err := store.PageEvents(r.Context(), uid, mux.Vars(r)["id"], page, size)
	if err != nil {
		s.recordError(w, r, err)
		return
	}
	if events == nil {
		events = []proto.Event{}
	}
	writeJSON(w, http.StatusOK, eventPage{Events: events, Page: page, Size: size})
}

// handleWeekly summarizes the caller's driving over a period of whole days,
// by default the seven days ending with today. Days are cut at midnight in
// the zone named by tz, UTC unless given.
func (s *Server) handleWeekly(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.authorize(w, r)
	if !ok {
		return
	}
	store, ok := s.recordStore(w)
	if !ok {
		return
	}

	period, loc, err := s.summaryPeriod(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	stats, err := store.Stats(ctx, uid, period)
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	summary := weeklySummary{
		From:         period.From,
		To:           period.To,
		Records:      stats.Records,
		TotalSeconds: stats.TotalSeconds,
		AverageScore: stats.AverageScore,
	}

	daily := map[string]int64{}
	for page := 0; ; page++ {
		records, err := store.ListRecords(ctx, uid, period, page, MaxPageSize)
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		for _, record := range records {
			daily[record.Started.In(loc).Format(dateLayout)] += int64(record.TotalSeconds)
		}
		if len(records) < MaxPageSize {
			break
		}
	}
	for day := startOfDay(period.From, loc); day.Before(period.To); day = day.AddDate(0, 0, 1) {
		date := day.Format(dateLayout)
		summary.DailySeconds = append(summary.DailySeconds, dayBucket{Date: date, Seconds: daily[date]})
	}

	latest, err := store.ListRecords(ctx, uid, proto.Period{}, 0, 1)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if len(latest) > 0 {
		summary.LastDriving = &lastDriving{
			RecordID:     latest[0].RecordID,
			Started:      latest[0].Started,
			Ended:        latest[0].Ended,
			TotalSeconds: latest[0].TotalSeconds,
			Score:        latest[0].Score,
		}
	}
	writeJSON(w, http.StatusOK, summary)
}

const dateLayout = "2006-01-02"

// summaryPeriod resolves the from, to and tz parameters of a summary. A
// missing bound is placed seven days from the other; with neither, the
// period ends at the next midnight.
func (s *Server) summaryPeriod(query url.Values) (proto.Period, *time.Location, error) {
	loc := time.UTC
	if name := query.Get("tz"); name != "" {
		var err error
		if loc, err = time.LoadLocation(name); err != nil {
			return proto.Period{}, nil, fmt.Errorf("invalid tz")
		}
	}

	period, err := parsePeriod(query)
	if err != nil {
		return period, nil, err
	}
	switch {
	case period.From.IsZero() && period.To.IsZero():
		period.To = startOfDay(s.now(), loc).AddDate(0, 0, 1)
		period.From = period.To.AddDate(0, 0, -7)
	case period.From.IsZero():
		period.From = period.To.AddDate(0, 0, -7)
	case period.To.IsZero():
		period.To = period.From.AddDate(0, 0, 7)
	}
	if !period.From.Before(period.To) {
		return period, nil, fmt.Errorf("empty period")
	}
	if period.To.Sub(period.From) > MaxSummaryDays*24*time.Hour {
		return period, nil, fmt.Errorf("period longer than %d days", MaxSummaryDays)
	}
	return period, loc, nil
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	year, month, day := t.In(loc).Date()
	return time.Date(year, month, day, 0, 0, 0, 0, loc)
}

// recordError maps ErrRecordNotFound to a 404 and anything else to a 500.
func (s *Server) recordError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, proto.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}
	s.internalError(w, r, err)
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	logging.Logger(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	writeError(w, http.StatusInternalServerError, "internal error")
}

func parsePeriod(query url.Values) (proto.Period, error) {
	var period proto.Period
	var err error
	if period.From, err = timeParam(query, "from"); err != nil {
		return period, err
	}
	if period.To, err = timeParam(query, "to"); err != nil {
		return period, err
	}
	if !period.From.IsZero() && !period.To.IsZero() && period.To.Before(period.From) {
		return period, fmt.Errorf("to precedes from")
	}
	return period, nil
}

func timeParam(query url.Values, name string) (time.Time, error) {
	v := query.Get(name)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s: want RFC3339 time", name)
	}
	return t, nil
}

// pageParams reads page and size. Sizes above MaxPageSize are clamped.
func pageParams(query url.Values) (page, size int, err error) {
	page, err = intParam(query, "page", 0)
	if err != nil || page < 0 {
		return 0, 0, fmt.Errorf("invalid page")
	}
	size, err = intParam(query, "size", DefaultPageSize)
	if err != nil || size <= 0 {
		return 0, 0, fmt.Errorf("invalid size")
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size, nil
}

func boolParam(query url.Values, name string) (bool, error) {
	v := query.Get(name)
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}

func intParam(query url.Values, name string, def int) (int, error) {
	v := query.Get(name)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
