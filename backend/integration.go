package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Driving-Capstone/DrivingCoach-BE/backend/mock"
	"github.com/Driving-Capstone/DrivingCoach-BE/proto"
	"github.com/Driving-Capstone/DrivingCoach-BE/proto/security"

	. "github.com/smartystreets/goconvey/convey"
)

// A RecordStoreFactory returns an empty RecordStore.
type RecordStoreFactory func() (proto.RecordStore, error)

type testSuite func(*serverUnderTest)

type serverUnderTest struct {
	app     *Server
	server  *httptest.Server
	blobs   *mock.BlobStore
	records proto.RecordStore
	tokens  *security.JWT
}

func (s *serverUnderTest) Close() {
	s.app.Shutdown(context.Background())
	s.server.Close()
}

func (s *serverUnderTest) Token(userID int64, loginID string) string {
	token, err := s.tokens.Issue(userID, loginID, "USER")
	So(err, ShouldBeNil)
	return token
}

// Connect opens a streaming connection presenting token, which may be
// empty, and consumes the CONNECTED frame.
func (s *serverUnderTest) Connect(token string) *testConn {
	u := "ws" + strings.TrimPrefix(s.server.URL, "http") + "/driving"
	if token != "" {
		u += "?token=" + url.QueryEscape("Bearer "+token)
	}
	conn, resp, err := websocket.DefaultDialer.Dial(u, nil)
	So(err, ShouldBeNil)
	So(resp.StatusCode, ShouldEqual, http.StatusSwitchingProtocols)

	tc := &testConn{Conn: conn}
	tc.sessionID = tc.expect(proto.ConnectedType)["sessionId"].(string)
	So(tc.sessionID, ShouldNotBeBlank)
	return tc
}

func (s *serverUnderTest) Request(method, path, token string) (int, []byte) {
	return s.RequestJSON(method, path, token, "")
}

// RequestJSON is Request with a JSON body, which may be empty.
func (s *serverUnderTest) RequestJSON(method, path, token, body string) (int, []byte) {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, s.server.URL+path, reader)
	So(err, ShouldBeNil)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	So(err, ShouldBeNil)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	So(err, ShouldBeNil)
	return resp.StatusCode, data
}

// WaitForRecord polls the records API until recordID is listed. Records
// are written after ENDED is sent, so a client can observe ENDED first.
func (s *serverUnderTest) WaitForRecord(token, recordID string) map[string]interface{} {
	deadline := time.Now().Add(5 * time.Second)
	for {
		status, body := s.Request("GET", "/records/"+recordID, token)
		if status == http.StatusOK {
			var record map[string]interface{}
			So(json.Unmarshal(body, &record), ShouldBeNil)
			return record
		}
		So(status, ShouldEqual, http.StatusNotFound)
		if time.Now().After(deadline) {
			So(fmt.Sprintf("record %s never appeared", recordID), ShouldBeEmpty)
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
}

type testConn struct {
	*websocket.Conn
	sessionID string
}

func (tc *testConn) send(text string) {
	So(tc.WriteMessage(websocket.TextMessage, []byte(text)), ShouldBeNil)
}

func (tc *testConn) sendBinary(data []byte) {
	So(tc.WriteMessage(websocket.BinaryMessage, data), ShouldBeNil)
}

func (tc *testConn) expect(t proto.PacketType) map[string]interface{} {
	So(tc.SetReadDeadline(time.Now().Add(5*time.Second)), ShouldBeNil)
	messageType, data, err := tc.ReadMessage()
	So(err, ShouldBeNil)
	So(messageType, ShouldEqual, websocket.TextMessage)

	var reply map[string]interface{}
	So(json.Unmarshal(data, &reply), ShouldBeNil)
	So(reply["type"], ShouldEqual, string(t))
	return reply
}

func (tc *testConn) expectError(message string) {
	So(tc.expect(proto.ErrorType)["message"], ShouldEqual, message)
}

// IntegrationTest runs the record store contract and the streaming and
// records API end-to-end tests against stores produced by factory.
func IntegrationTest(t *testing.T, factory RecordStoreFactory) {
	runTest := func(name string, test testSuite) {
		records, err := factory()
		if err != nil {
			t.Fatal(err)
		}
		defer records.Close()

		tokens, err := security.NewJWTFromKey(bytes.Repeat([]byte("k"), security.MinSecretSize), "test", time.Hour)
		if err != nil {
			t.Fatal(err)
		}

		blobs := mock.NewBlobStore("http://blobs.test/")
		cfg := DefaultConfig()
		app, err := NewServer(context.Background(), ServerOptions{
			Validator: tokens,
			Blobs:     blobs,
			Records:   records,
			Session:   cfg.Session,
			HTTP:      cfg.HTTP,
		})
		if err != nil {
			t.Fatal(err)
		}

		server := httptest.NewServer(app)
		s := &serverUnderTest{app: app, server: server, blobs: blobs, records: records, tokens: tokens}
		defer s.Close()

		Convey(name, t, func() { test(s) })
	}

	runFactoryTest := func(name string, test func(RecordStoreFactory)) {
		Convey(name, t, func() { test(factory) })
	}

	// Low-level API tests
	runFactoryTest("Record store", testRecordStore)

	// Websocket tests
	runTest("Streaming", testStreaming)
	runTest("Anonymous streaming", testAnonymousStreaming)
	runTest("Bookkeeping", testBookkeeping)

	// HTTP tests
	runTest("Records API", testRecordsAPI)
	runTest("Events API", testEventsAPI)
	runTest("Weekly summary", testWeeklySummary)
}

func testRecordStore(factory RecordStoreFactory) {
	ctx := context.Background()
	t0 := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	store, err := factory()
	So(err, ShouldBeNil)
	defer store.Close()

	summary := func(id string, identity proto.Identity, started time.Time, keys ...string) *proto.RecordSummary {
		return &proto.RecordSummary{
			RecordID:  id,
			SessionID: "s1",
			Identity:  identity,
			Started:   started,
			Ended:     started.Add(90 * time.Second),
			Chunks:    len(keys),
			Keys:      keys,
		}
	}

	alice := proto.NewIdentity(1, "alice")
	bob := proto.NewIdentity(2, "bob")

	scored := summary("r2", alice, t0.Add(time.Hour), "k3")
	score := 80.0
	scored.Score = &score

	So(store.FinishRecording(ctx, summary("r1", alice, t0, "k1", "k2")), ShouldBeNil)
	So(store.FinishRecording(ctx, scored), ShouldBeNil)
	So(store.FinishRecording(ctx, summary("r3", bob, t0)), ShouldBeNil)
	So(store.FinishRecording(ctx, summary("r4", proto.Anonymous(), t0)), ShouldBeNil)

	// Record ids are unique.
	So(store.FinishRecording(ctx, summary("r1", bob, t0)), ShouldEqual, proto.ErrRecordExists)

	// Listing is per user, newest first.
	records, err := store.ListRecords(ctx, 1, proto.Period{}, 0, 10)
	So(err, ShouldBeNil)
	So(len(records), ShouldEqual, 2)
	So(records[0].RecordID, ShouldEqual, "r2")
	So(*records[0].Score, ShouldEqual, 80.0)
	So(records[1].RecordID, ShouldEqual, "r1")
	So(records[1].Score, ShouldBeNil)
	So(records[1].LoginID, ShouldEqual, "alice")
	So(*records[1].UserID, ShouldEqual, int64(1))
	So(records[1].TotalSeconds, ShouldEqual, 90)
	So(records[1].Chunks, ShouldEqual, 2)
	So(records[1].Started.Equal(t0), ShouldBeTrue)

	// Pages and periods narrow the listing.
	records, err = store.ListRecords(ctx, 1, proto.Period{}, 1, 1)
	So(err, ShouldBeNil)
	So(len(records), ShouldEqual, 1)
	So(records[0].RecordID, ShouldEqual, "r1")

	records, err = store.ListRecords(ctx, 1, proto.Period{From: t0.Add(time.Minute)}, 0, 10)
	So(err, ShouldBeNil)
	So(len(records), ShouldEqual, 1)
	So(records[0].RecordID, ShouldEqual, "r2")

	records, err = store.ListRecords(ctx, 1, proto.Period{To: t0.Add(time.Minute)}, 0, 10)
	So(err, ShouldBeNil)
	So(len(records), ShouldEqual, 1)
	So(records[0].RecordID, ShouldEqual, "r1")

	records, err = store.ListRecords(ctx, 1, proto.Period{}, 5, 10)
	So(err, ShouldBeNil)
	So(records, ShouldBeEmpty)

	// Stats aggregate the period.
	stats, err := store.Stats(ctx, 1, proto.Period{})
	So(err, ShouldBeNil)
	So(stats.Records, ShouldEqual, 2)
	So(stats.TotalSeconds, ShouldEqual, int64(180))
	So(stats.Chunks, ShouldEqual, int64(3))
	So(*stats.AverageScore, ShouldEqual, 80.0)

	stats, err = store.Stats(ctx, 1, proto.Period{To: t0.Add(time.Minute)})
	So(err, ShouldBeNil)
	So(stats.Records, ShouldEqual, 1)
	So(stats.AverageScore, ShouldBeNil)

	stats, err = store.Stats(ctx, 3, proto.Period{})
	So(err, ShouldBeNil)
	So(*stats, ShouldResemble, proto.Stats{})

	// Records are only visible to their owner.
	_, _, err = store.GetRecord(ctx, 2, "r1")
	So(err, ShouldEqual, proto.ErrRecordNotFound)

	record, chunks, err := store.GetRecord(ctx, 1, "r1")
	So(err, ShouldBeNil)
	So(record.RecordID, ShouldEqual, "r1")
	So(record.SessionID, ShouldEqual, "s1")
	So(chunks, ShouldResemble, []proto.Chunk{{Index: 1, Key: "k1"}, {Index: 2, Key: "k2"}})

	// Events are kept per record and only for its owner.
	event := func(recordID, kind string, at time.Time) *proto.Event {
		return &proto.Event{RecordID: recordID, Type: kind, Time: at, Severity: proto.DefaultSeverity}
	}
	late := event("r2", "hard_brake", t0.Add(70*time.Minute))
	early := event("r2", "lane_departure", t0.Add(65*time.Minute))
	tied := event("r2", "speeding", t0.Add(65*time.Minute))
	tied.Severity = "high"
	tied.Note = "92 in a 60 zone"
	for _, e := range []*proto.Event{late, early, tied} {
		So(store.AddEvent(ctx, 1, e), ShouldBeNil)
		So(e.ID, ShouldBeGreaterThan, 0)
	}
	So(tied.ID, ShouldBeGreaterThan, early.ID)

	So(store.AddEvent(ctx, 2, event("r2", "hard_brake", t0)), ShouldEqual, proto.ErrRecordNotFound)
	So(store.AddEvent(ctx, 1, event("nope", "hard_brake", t0)), ShouldEqual, proto.ErrRecordNotFound)

	events, err := store.ListEvents(ctx, 1, "r2")
	So(err, ShouldBeNil)
	So(len(events), ShouldEqual, 3)
	So(events[0].ID, ShouldEqual, early.ID)
	So(events[1].ID, ShouldEqual, tied.ID)
	So(events[2].ID, ShouldEqual, late.ID)
	So(events[1].Type, ShouldEqual, "speeding")
	So(events[1].Severity, ShouldEqual, "high")
	So(events[1].Note, ShouldEqual, "92 in a 60 zone")
	So(events[1].RecordID, ShouldEqual, "r2")
	So(events[1].Time.Equal(tied.Time), ShouldBeTrue)

	events, err = store.PageEvents(ctx, 1, "r2", 0, 2)
	So(err, ShouldBeNil)
	So(len(events), ShouldEqual, 2)
	So(events[0].ID, ShouldEqual, late.ID)
	So(events[1].ID, ShouldEqual, tied.ID)
	events, err = store.PageEvents(ctx, 1, "r2", 1, 2)
	So(err, ShouldBeNil)
	So(len(events), ShouldEqual, 1)
	So(events[0].ID, ShouldEqual, early.ID)
	events, err = store.PageEvents(ctx, 1, "r2", 4, 2)
	So(err, ShouldBeNil)
	So(events, ShouldBeEmpty)

	events, err = store.ListEvents(ctx, 1, "r1")
	So(err, ShouldBeNil)
	So(events, ShouldBeEmpty)
	_, err = store.ListEvents(ctx, 2, "r2")
	So(err, ShouldEqual, proto.ErrRecordNotFound)
	_, err = store.PageEvents(ctx, 2, "r2", 0, 10)
	So(err, ShouldEqual, proto.ErrRecordNotFound)

	// Deleting returns the chunks.
	_, err = store.DeleteRecord(ctx, 2, "r1")
	So(err, ShouldEqual, proto.ErrRecordNotFound)
	chunks, err = store.DeleteRecord(ctx, 1, "r1")
	So(err, ShouldBeNil)
	So(len(chunks), ShouldEqual, 2)
	_, _, err = store.GetRecord(ctx, 1, "r1")
	So(err, ShouldEqual, proto.ErrRecordNotFound)

	// Events go with their record.
	_, err = store.DeleteRecord(ctx, 1, "r2")
	So(err, ShouldBeNil)
	_, err = store.ListEvents(ctx, 1, "r2")
	So(err, ShouldEqual, proto.ErrRecordNotFound)
}

func testStreaming(s *serverUnderTest) {
	tc := s.Connect(s.Token(7, "driver7"))
	defer tc.Close()

	tc.send(`{"type":"PING"}`)
	tc.expect(proto.PongType)

	// No chunk is accepted before START.
	tc.sendBinary([]byte("early"))
	tc.expectError("Session not started. Send START first.")
	So(s.blobs.Keys(), ShouldBeEmpty)

	tc.send(`{"type":"start","recordId":"trip-1"}`)
	So(tc.expect(proto.StartedType)["recordId"], ShouldEqual, "trip-1")

	for i := 1; i <= 3; i++ {
		tc.sendBinary([]byte(fmt.Sprintf("chunk-%d", i)))
		reply := tc.expect(proto.ChunkStoredType)
		So(reply["chunkIndex"], ShouldEqual, float64(i))
		So(reply["size"], ShouldEqual, float64(7))
		key := reply["key"].(string)
		So(key, ShouldStartWith, "driving/trip-1/")
		So(key, ShouldEndWith, fmt.Sprintf("-%d.bin", i))

		data, contentType, ok := s.blobs.Get(key)
		So(ok, ShouldBeTrue)
		So(string(data), ShouldEqual, fmt.Sprintf("chunk-%d", i))
		So(contentType, ShouldEqual, proto.OctetStream)
	}

	tc.send(`{"type":"END"}`)
	ended := tc.expect(proto.EndedType)
	So(ended["recordId"], ShouldEqual, "trip-1")
	So(ended["chunks"], ShouldEqual, float64(3))

	tc.send(`{"type":"END"}`)
	tc.expectError("No active record")

	tc.send(`{"type":"JUMP"}`)
	tc.expectError("Unknown type: JUMP")

	tc.send(`not json`)
	tc.expectError("Invalid JSON payload")

	// The connection survives every rejected frame.
	tc.send(`{"type":"PING"}`)
	tc.expect(proto.PongType)
}

func testAnonymousStreaming(s *serverUnderTest) {
	for _, token := range []string{"", "garbage"} {
		tc := s.Connect(token)

		tc.send(`{"type":"START"}`)
		recordID := tc.expect(proto.StartedType)["recordId"].(string)
		So(recordID, ShouldNotBeBlank)

		tc.sendBinary([]byte("x"))
		So(tc.expect(proto.ChunkStoredType)["chunkIndex"], ShouldEqual, float64(1))

		tc.send(`{"type":"END"}`)
		So(tc.expect(proto.EndedType)["chunks"], ShouldEqual, float64(1))
		tc.Close()
	}
}

func testBookkeeping(s *serverUnderTest) {
	token := s.Token(11, "driver11")
	tc := s.Connect(token)
	defer tc.Close()

	tc.send(`{"type":"START","recordId":"commute"}`)
	tc.expect(proto.StartedType)
	tc.sendBinary([]byte("a"))
	tc.expect(proto.ChunkStoredType)
	tc.sendBinary([]byte("b"))
	tc.expect(proto.ChunkStoredType)
	tc.send(`{"type":"END"}`)
	tc.expect(proto.EndedType)

	record := s.WaitForRecord(token, "commute")
	So(record["recordId"], ShouldEqual, "commute")
	So(record["loginId"], ShouldEqual, "driver11")
	So(record["sessionId"], ShouldEqual, tc.sessionID)
	So(record["chunks"], ShouldEqual, float64(2))

	chunks := record["chunkList"].([]interface{})
	So(len(chunks), ShouldEqual, 2)
	first := chunks[0].(map[string]interface{})
	So(first["index"], ShouldEqual, float64(1))
	So(first["url"], ShouldEqual, "http://blobs.test/"+first["key"].(string))

	// A recording abandoned by disconnect is not written.
	tc2 := s.Connect(token)
	tc2.send(`{"type":"START","recordId":"abandoned"}`)
	tc2.expect(proto.StartedType)
	tc2.Close()

	status, _ := s.Request("GET", "/records/abandoned", token)
	So(status, ShouldEqual, http.StatusNotFound)
}

func testRecordsAPI(s *serverUnderTest) {
	token := s.Token(21, "driver21")
	other := s.Token(22, "driver22")

	status, _ := s.Request("GET", "/records", "")
	So(status, ShouldEqual, http.StatusUnauthorized)
	status, _ = s.Request("GET", "/records", "not-a-token")
	So(status, ShouldEqual, http.StatusUnauthorized)

	tc := s.Connect(token)
	for _, id := range []string{"morning", "evening"} {
		tc.send(`{"type":"START","recordId":"` + id + `"}`)
		tc.expect(proto.StartedType)
		tc.sendBinary([]byte(id))
		tc.expect(proto.ChunkStoredType)
		tc.send(`{"type":"END"}`)
		tc.expect(proto.EndedType)
		s.WaitForRecord(token, id)
	}
	tc.Close()

	status, body := s.Request("GET", "/records?page=0&size=10", token)
	So(status, ShouldEqual, http.StatusOK)
	var page struct {
		Records []proto.Record `json:"records"`
		Page    int            `json:"page"`
		Size    int            `json:"size"`
	}
	So(json.Unmarshal(body, &page), ShouldBeNil)
	So(len(page.Records), ShouldEqual, 2)
	So(page.Size, ShouldEqual, 10)

	status, _ = s.Request("GET", "/records?from=yesterday", token)
	So(status, ShouldEqual, http.StatusBadRequest)

	status, body = s.Request("GET", "/records/stats", token)
	So(status, ShouldEqual, http.StatusOK)
	var stats proto.Stats
	So(json.Unmarshal(body, &stats), ShouldBeNil)
	So(stats.Records, ShouldEqual, 2)
	So(stats.Chunks, ShouldEqual, int64(2))

	// Another user sees nothing and cannot delete.
	status, body = s.Request("GET", "/records", other)
	So(status, ShouldEqual, http.StatusOK)
	So(json.Unmarshal(body, &page), ShouldBeNil)
	So(page.Records, ShouldBeEmpty)
	status, _ = s.Request("DELETE", "/records/morning", other)
	So(status, ShouldEqual, http.StatusNotFound)

	So(len(s.blobs.Keys()), ShouldEqual, 2)
	status, _ = s.Request("DELETE", "/records/morning", token)
	So(status, ShouldEqual, http.StatusNoContent)
	So(len(s.blobs.Keys()), ShouldEqual, 1)

	status, _ = s.Request("GET", "/records/morning", token)
	So(status, ShouldEqual, http.StatusNotFound)
}

// drive streams one scored recording for token and waits for its record.
func (s *serverUnderTest) drive(token, recordID, score string) {
	tc := s.Connect(token)
	defer tc.Close()

	tc.send(`{"type":"START","recordId":"` + recordID + `"}`)
	tc.expect(proto.StartedType)
	tc.sendBinary([]byte(recordID))
	tc.expect(proto.ChunkStoredType)
	if score == "" {
		tc.send(`{"type":"END"}`)
	} else {
		tc.send(`{"type":"END","score":` + score + `}`)
	}
	tc.expect(proto.EndedType)
	s.WaitForRecord(token, recordID)
}

func testEventsAPI(s *serverUnderTest) {
	token := s.Token(31, "driver31")
	other := s.Token(32, "driver32")
	s.drive(token, "highway", "72.5")

	status, _ := s.RequestJSON("POST", "/records/highway/events", "", `{"type":"hard_brake"}`)
	So(status, ShouldEqual, http.StatusUnauthorized)

	status, body := s.RequestJSON("POST", "/records/highway/events", token,
		`{"type":"hard_brake","eventTime":"2025-03-01T09:10:00Z","note":"pedestrian"}`)
	So(status, ShouldEqual, http.StatusCreated)
	var added proto.Event
	So(json.Unmarshal(body, &added), ShouldBeNil)
	So(added.ID, ShouldBeGreaterThan, 0)
	So(added.RecordID, ShouldEqual, "highway")
	So(added.Severity, ShouldEqual, proto.DefaultSeverity)
	So(added.Time.Equal(time.Date(2025, 3, 1, 9, 10, 0, 0, time.UTC)), ShouldBeTrue)

	// Without a time the event is stamped on arrival.
	status, body = s.RequestJSON("POST", "/records/highway/events", token,
		`{"type":"lane_departure","severity":"high"}`)
	So(status, ShouldEqual, http.StatusCreated)
	var stamped proto.Event
	So(json.Unmarshal(body, &stamped), ShouldBeNil)
	So(stamped.Severity, ShouldEqual, "high")
	So(stamped.Time, ShouldHappenWithin, time.Minute, time.Now())

	for _, bad := range []string{`{}`, `{"type":"  "}`, `not json`, `{"type":"x","eventTime":"soon"}`} {
		status, _ = s.RequestJSON("POST", "/records/highway/events", token, bad)
		So(status, ShouldEqual, http.StatusBadRequest)
	}
	status, _ = s.RequestJSON("POST", "/records/highway/events", other, `{"type":"hard_brake"}`)
	So(status, ShouldEqual, http.StatusNotFound)
	status, _ = s.RequestJSON("POST", "/records/missing/events", token, `{"type":"hard_brake"}`)
	So(status, ShouldEqual, http.StatusNotFound)

	status, body = s.Request("GET", "/records/highway/events", token)
	So(status, ShouldEqual, http.StatusOK)
	var list struct {
		RecordID string        `json:"recordId"`
		Events   []proto.Event `json:"events"`
	}
	So(json.Unmarshal(body, &list), ShouldBeNil)
	So(list.RecordID, ShouldEqual, "highway")
	So(len(list.Events), ShouldEqual, 2)
	So(list.Events[0].ID, ShouldEqual, added.ID)
	So(list.Events[1].ID, ShouldEqual, stamped.ID)

	status, body = s.Request("GET", "/records/highway/events/page?size=1", token)
	So(status, ShouldEqual, http.StatusOK)
	var page struct {
		Events []proto.Event `json:"events"`
		Page   int           `json:"page"`
		Size   int           `json:"size"`
	}
	So(json.Unmarshal(body, &page), ShouldBeNil)
	So(page.Size, ShouldEqual, 1)
	So(len(page.Events), ShouldEqual, 1)
	So(page.Events[0].ID, ShouldEqual, stamped.ID)

	status, _ = s.Request("GET", "/records/highway/events/page?page=-1", token)
	So(status, ShouldEqual, http.StatusBadRequest)
	status, _ = s.Request("GET", "/records/highway/events", other)
	So(status, ShouldEqual, http.StatusNotFound)

	// The detail view includes events on request.
	status, body = s.Request("GET", "/records/highway?events=true", token)
	So(status, ShouldEqual, http.StatusOK)
	var detail map[string]interface{}
	So(json.Unmarshal(body, &detail), ShouldBeNil)
	So(detail["score"], ShouldEqual, 72.5)
	So(len(detail["events"].([]interface{})), ShouldEqual, 2)

	record := s.WaitForRecord(token, "highway")
	_, ok := record["events"]
	So(ok, ShouldBeFalse)

	status, _ = s.Request("GET", "/records/highway?events=maybe", token)
	So(status, ShouldEqual, http.StatusBadRequest)

	// Deleting the record takes its events with it.
	status, _ = s.Request("DELETE", "/records/highway", token)
	So(status, ShouldEqual, http.StatusNoContent)
	status, _ = s.Request("GET", "/records/highway/events", token)
	So(status, ShouldEqual, http.StatusNotFound)
}

func testWeeklySummary(s *serverUnderTest) {
	token := s.Token(41, "driver41")

	status, body := s.Request("GET", "/records/weekly", token)
	So(status, ShouldEqual, http.StatusOK)
	var empty map[string]interface{}
	So(json.Unmarshal(body, &empty), ShouldBeNil)
	So(empty["records"], ShouldEqual, float64(0))
	So(empty["averageScore"], ShouldBeNil)
	So(empty["lastDriving"], ShouldBeNil)
	So(len(empty["dailySeconds"].([]interface{})), ShouldEqual, 7)

	s.drive(token, "school-run", "60")
	s.drive(token, "groceries", "90")
	s.drive(token, "unscored", "")

	status, body = s.Request("GET", "/records/weekly", token)
	So(status, ShouldEqual, http.StatusOK)
	var summary struct {
		From         time.Time `json:"from"`
		To           time.Time `json:"to"`
		Records      int       `json:"records"`
		TotalSeconds int64     `json:"totalSeconds"`
		AverageScore *float64  `json:"averageScore"`
		DailySeconds []struct {
			Date    string `json:"date"`
			Seconds int64  `json:"seconds"`
		} `json:"dailySeconds"`
		LastDriving *struct {
			RecordID string   `json:"recordId"`
			Score    *float64 `json:"score"`
		} `json:"lastDriving"`
	}
	So(json.Unmarshal(body, &summary), ShouldBeNil)
	So(summary.Records, ShouldEqual, 3)
	So(*summary.AverageScore, ShouldEqual, 75.0)
	So(summary.To.Sub(summary.From), ShouldEqual, 7*24*time.Hour)
	So(len(summary.DailySeconds), ShouldEqual, 7)
	So(summary.DailySeconds[6].Date, ShouldEqual, time.Now().UTC().Format("2006-01-02"))
	var bucketed int64
	for _, bucket := range summary.DailySeconds {
		bucketed += bucket.Seconds
	}
	So(bucketed, ShouldEqual, summary.TotalSeconds)
	So(summary.LastDriving, ShouldNotBeNil)
	So(summary.LastDriving.RecordID, ShouldEqual, "unscored")
	So(summary.LastDriving.Score, ShouldBeNil)

	// An explicit period is cut into the days it covers.
	status, body = s.Request("GET", "/records/weekly?from=2025-03-01T00:00:00Z&to=2025-03-04T00:00:00Z", token)
	So(status, ShouldEqual, http.StatusOK)
	So(json.Unmarshal(body, &summary), ShouldBeNil)
	So(summary.Records, ShouldEqual, 0)
	So(len(summary.DailySeconds), ShouldEqual, 3)
	So(summary.DailySeconds[0].Date, ShouldEqual, "2025-03-01")
	So(summary.LastDriving.RecordID, ShouldEqual, "unscored")

	for _, query := range []string{
		"?tz=Mars/Olympus",
		"?from=2025-03-01T00:00:00Z&to=2025-03-01T00:00:00Z",
		"?from=2025-01-01T00:00:00Z&to=2025-12-31T00:00:00Z",
		"?to=later",
	} {
		status, _ = s.Request("GET", "/records/weekly"+query, token)
		So(status, ShouldEqual, http.StatusBadRequest)
	}

	status, _ = s.Request("GET", "/records/weekly", "")
	So(status, ShouldEqual, http.StatusUnauthorized)
}
