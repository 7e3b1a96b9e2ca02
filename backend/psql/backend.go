package psql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"

	"github.com/go-gorp/gorp/v3"
	"github.com/lib/pq"

	"github.com/Driving-Capstone/DrivingCoach-BE/proto"
	"github.com/Driving-Capstone/DrivingCoach-BE/proto/logging"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

var schema = []struct {
	Name       string
	Table      interface{}
	AutoIncr   bool
	PrimaryKey []string
}{
	{"driving_record", Record{}, false, []string{"RecordID"}},
	{"driving_chunk", Chunk{}, false, []string{"RecordID", "ChunkIndex"}},
	{"driving_event", Event{}, true, []string{"ID"}},
}

// Tables lists the tables of the record store, dependents first.
func Tables() []string {
	names := make([]string, len(schema))
	for i, item := range schema {
		names[len(schema)-1-i] = item.Name
	}
	return names
}

// Store is a RecordStore on PostgreSQL.
type Store struct {
	*sql.DB
	*gorp.DbMap
}

var _ proto.RecordStore = (*Store)(nil)

// RedactDSN returns dsn with any password masked.
func RedactDSN(dsn string) string {
	parsed, err := url.Parse(dsn)
	if err != nil {
		return "<unparseable dsn>"
	}
	if parsed.User != nil {
		parsed.User = url.UserPassword(parsed.User.Username(), "xxxxxx")
	}
	return parsed.String()
}

func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("psql: ping %s: %w", RedactDSN(dsn), err)
	}
	logging.Logger(ctx).Info().Str("dsn", RedactDSN(dsn)).Msg("psql record store")
	return NewStore(db), nil
}

func NewStore(db *sql.DB) *Store {
	s := &Store{DB: db, DbMap: &gorp.DbMap{Db: db, Dialect: gorp.PostgresDialect{}}}
	for _, item := range schema {
		s.DbMap.AddTableWithName(item.Table, item.Name).SetKeys(item.AutoIncr, item.PrimaryKey...)
	}
	return s
}

func (s *Store) Close() error { return s.DB.Close() }

// nullTime maps the zero time to NULL so open period bounds match
// everything.
func nullTime(p proto.Period) (interface{}, interface{}) {
	var from, to interface{}
	if !p.From.IsZero() {
		from = p.From
	}
	if !p.To.IsZero() {
		to = p.To
	}
	return from, to
}

func (s *Store) FinishRecording(ctx context.Context, summary *proto.RecordSummary) (err error) {
	row := &Record{
		RecordID:     summary.RecordID,
		LoginID:      summary.Identity.LoginID,
		SessionID:    summary.SessionID,
		Started:      summary.Started,
		Ended:        summary.Ended,
		TotalSeconds: summary.TotalSeconds(),
		Chunks:       summary.Chunks,
	}
	if uid, ok := summary.Identity.UID(); ok {
		row.UserID = sql.NullInt64{Int64: uid, Valid: true}
	}
	if summary.Score != nil {
		row.Score = sql.NullFloat64{Float64: *summary.Score, Valid: true}
	}

	t, err := s.DbMap.WithContext(ctx).(*gorp.DbMap).Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rerr := t.Rollback(); rerr != nil {
				logging.Logger(ctx).Warn().Err(rerr).Msg("rollback failed")
			}
		}
	}()

	if err = t.Insert(row); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return proto.ErrRecordExists
		}
		return fmt.Errorf("insert record: %w", err)
	}
	for i, key := range summary.Keys {
		chunk := &Chunk{RecordID: summary.RecordID, ChunkIndex: i + 1, BlobKey: key}
		if err = t.Insert(chunk); err != nil {
			return fmt.Errorf("insert chunk: %w", err)
		}
	}
	return t.Commit()
}

func (s *Store) ListRecords(
	ctx context.Context, userID int64, period proto.Period, page, size int) ([]proto.Record, error) {

	from, to := nullTime(period)
	var rows []Record
	_, err := s.DbMap.WithContext(ctx).Select(
		&rows,
		"SELECT * FROM driving_record WHERE user_id = $1"+
			" AND ($2::timestamptz IS NULL OR started >= $2)"+
			" AND ($3::timestamptz IS NULL OR started < $3)"+
			" ORDER BY started DESC, record_id DESC LIMIT $4 OFFSET $5",
		userID, from, to, size, page*size)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	records := make([]proto.Record, len(rows))
	for i := range rows {
		records[i] = rows[i].Bind()
	}
	return records, nil
}

func (s *Store) GetRecord(ctx context.Context, userID int64, recordID string) (
	*proto.Record, []proto.Chunk, error) {

	db := s.DbMap.WithContext(ctx)

	var row Record
	err := db.SelectOne(
		&row, "SELECT * FROM driving_record WHERE record_id = $1 AND user_id = $2", recordID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, proto.ErrRecordNotFound
		}
		return nil, nil, fmt.Errorf("get record: %w", err)
	}

	chunks, err := selectChunks(db, recordID)
	if err != nil {
		return nil, nil, err
	}
	record := row.Bind()
	return &record, chunks, nil
}

func selectChunks(db gorp.SqlExecutor, recordID string) ([]proto.Chunk, error) {
	var rows []Chunk
	_, err := db.Select(
		&rows, "SELECT * FROM driving_chunk WHERE record_id = $1 ORDER BY chunk_index", recordID)
	if err != nil {
		return nil, fmt.Errorf("select chunks: %w", err)
	}
	chunks := make([]proto.Chunk, len(rows))
	for i := range rows {
		chunks[i] = rows[i].Bind()
	}
	return chunks, nil
}

func (s *Store) DeleteRecord(ctx context.Context, userID int64, recordID string) (chunks []proto.Chunk, err error) {
	t, err := s.DbMap.WithContext(ctx).(*gorp.DbMap).Begin()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			if rerr := t.Rollback(); rerr != nil {
				logging.Logger(ctx).Warn().Err(rerr).Msg("rollback failed")
			}
		}
	}()

	chunks, err = selectChunks(t, recordID)
	if err != nil {
		return nil, err
	}

	result, err := t.Exec("DELETE FROM driving_record WHERE record_id = $1 AND user_id = $2", recordID, userID)
	if err != nil {
		return nil, fmt.Errorf("delete record: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("delete record: %w", err)
	}
	if n == 0 {
		err = proto.ErrRecordNotFound
		return nil, err
	}
	if err = t.Commit(); err != nil {
		return nil, err
	}
	return chunks, nil
}

func (s *Store) Stats(ctx context.Context, userID int64, period proto.Period) (*proto.Stats, error) {
	from, to := nullTime(period)
	stats := &proto.Stats{}
	var avg sql.NullFloat64
	err := s.DB.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(total_seconds), 0), COALESCE(SUM(chunks), 0), AVG(score)"+
			" FROM driving_record WHERE user_id = $1"+
			" AND ($2::timestamptz IS NULL OR started >= $2)"+
			" AND ($3::timestamptz IS NULL OR started < $3)",
		userID, from, to).Scan(&stats.Records, &stats.TotalSeconds, &stats.Chunks, &avg)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	if avg.Valid {
		stats.AverageScore = &avg.Float64
	}
	return stats, nil
}

// owns returns ErrRecordNotFound unless recordID belongs to userID.
func owns(db gorp.SqlExecutor, userID int64, recordID string) error {
	n, err := db.SelectInt(
		"SELECT COUNT(*) FROM driving_record WHERE record_id = $1 AND user_id = $2", recordID, userID)
	if err != nil {
		return fmt.Errorf("record owner: %w", err)
	}
	if n == 0 {
		return proto.ErrRecordNotFound
	}
	return nil
}

func (s *Store) AddEvent(ctx context.Context, userID int64, event *proto.Event) error {
	db := s.DbMap.WithContext(ctx)
	if err := owns(db, userID, event.RecordID); err != nil {
		return err
	}

	row := &Event{
		RecordID:  event.RecordID,
		EventType: event.Type,
		EventTime: event.Time,
		Severity:  event.Severity,
		Note:      event.Note,
	}
	if err := db.Insert(row); err != nil {
		// The record was deleted after the ownership check.
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation {
			return proto.ErrRecordNotFound
		}
		return fmt.Errorf("insert event: %w", err)
	}
	event.ID = row.ID
	return nil
}

func (s *Store) ListEvents(ctx context.Context, userID int64, recordID string) ([]proto.Event, error) {
	return s.selectEvents(ctx, userID, recordID,
		"SELECT * FROM driving_event WHERE record_id = $1 ORDER BY event_time, event_id")
}

func (s *Store) PageEvents(
	ctx context.Context, userID int64, recordID string, page, size int) ([]proto.Event, error) {

	return s.selectEvents(ctx, userID, recordID,
		"SELECT * FROM driving_event WHERE record_id = $1"+
			" ORDER BY event_time DESC, event_id DESC LIMIT $2 OFFSET $3",
		size, page*size)
}

func (s *Store) selectEvents(
	ctx context.Context, userID int64, recordID, query string, args ...interface{}) ([]proto.Event, error) {

	db := s.DbMap.WithContext(ctx)
	if err := owns(db, userID, recordID); err != nil {
		return nil, err
	}

	var rows []Event
	if _, err := db.Select(&rows, query, append([]interface{}{recordID}, args...)...); err != nil {
		return nil, fmt.Errorf("select events: %w", err)
	}
	events := make([]proto.Event, len(rows))
	for i := range rows {
		events[i] = rows[i].Bind()
	}
	return events, nil
}
