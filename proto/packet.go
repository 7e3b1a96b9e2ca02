package proto

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

type PacketType string

// Inbound control frames.
const (
	PingType  = PacketType("PING")
	StartType = PacketType("START")
	EndType   = PacketType("END")
)

// Outbound frames.
const (
	ConnectedType   = PacketType("CONNECTED")
	PongType        = PacketType("PONG")
	StartedType     = PacketType("STARTED")
	ChunkStoredType = PacketType("CHUNK_STORED")
	EndedType       = PacketType("ENDED")
	ErrorType       = PacketType("ERROR")
)

// Driving scores range over [MinScore, MaxScore].
const (
	MinScore = 0
	MaxScore = 100
)

// A Command is a decoded inbound control frame. Type is upper-cased; it may
// name a type this server does not recognize, which the caller reports with
// UnknownTypeError.
type Command struct {
	Type     PacketType
	RecordID string
	Score    *float64
}

// ParseCommand decodes a textual frame. The frame must be a JSON object;
// anything else yields ErrInvalidPayload.
func ParseCommand(data []byte) (*Command, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return nil, ErrInvalidPayload
	}

	cmd := &Command{Type: PacketType(strings.ToUpper(textField(fields, "type")))}
	switch cmd.Type {
	case StartType:
		cmd.RecordID = textField(fields, "recordId")
	case EndType:
		cmd.Score = scoreField(fields, "score")
	}
	return cmd, nil
}

// scoreField reads an optional driving score. Anything but a number
// between MinScore and MaxScore reads as no score, so a bad score never
// keeps a recording from ending.
func scoreField(fields map[string]json.RawMessage, name string) *float64 {
	text := textField(fields, name)
	if text == "" {
		return nil
	}
	score, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(score) || score < MinScore || score > MaxScore {
		return nil
	}
	return &score
}

// textField returns the textual form of a scalar field. Missing fields,
// nulls and containers read as the empty string.
func textField(fields map[string]json.RawMessage, name string) string {
	raw, ok := fields[name]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	text := strings.TrimSpace(string(raw))
	if text == "null" || strings.HasPrefix(text, "{") || strings.HasPrefix(text, "[") {
		return ""
	}
	return text
}

// A Reply is an encoded outbound frame. Replies are only built through the
// constructors below, so the wire vocabulary is closed.
type Reply struct {
	Type PacketType
	data []byte
}

func (r Reply) Encode() []byte { return r.data }
func (r Reply) String() string { return string(r.data) }

func Connected(sessionID string) Reply {
	return newEnvelope(ConnectedType).str("sessionId", sessionID).reply()
}

func Pong() Reply { return newEnvelope(PongType).reply() }

func Started(recordID string) Reply {
	return newEnvelope(StartedType).str("recordId", recordID).reply()
}

func ChunkStored(key string, size int, chunkIndex int) Reply {
	return newEnvelope(ChunkStoredType).
		str("key", key).
		num("size", int64(size)).
		num("chunkIndex", int64(chunkIndex)).
		reply()
}

func Ended(recordID string, chunks int) Reply {
	return newEnvelope(EndedType).str("recordId", recordID).num("chunks", int64(chunks)).reply()
}

func ErrorReply(message string) Reply {
	return newEnvelope(ErrorType).str("message", message).reply()
}

type envelope struct {
	t   PacketType
	buf bytes.Buffer
}

func newEnvelope(t PacketType) *envelope {
	e := &envelope{t: t}
	e.buf.WriteString(`{"type":`)
	e.quote(string(t))
	return e
}

func (e *envelope) str(name, value string) *envelope {
	e.field(name)
	e.quote(value)
	return e
}

func (e *envelope) num(name string, value int64) *envelope {
	e.field(name)
	e.buf.WriteString(strconv.FormatInt(value, 10))
	return e
}

func (e *envelope) field(name string) {
	e.buf.WriteString(`,"`)
	e.buf.WriteString(name)
	e.buf.WriteString(`":`)
}

func (e *envelope) quote(s string) {
	// Marshalling a string cannot fail.
	b, _ := json.Marshal(s)
	e.buf.Write(b)
}

func (e *envelope) reply() Reply {
	e.buf.WriteByte('}')
	return Reply{Type: e.t, data: e.buf.Bytes()}
}
