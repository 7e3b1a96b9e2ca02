package backend

import (
	"fmt"
	"io"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Driving-Capstone/DrivingCoach-BE/proto"
)

// ErrConnectionGone marks a transport failure after which nothing more can
// be written to the connection.
var ErrConnectionGone = fmt.Errorf("%w: connection gone", proto.ErrTransport)

const writeTimeout = 10 * time.Second

type FrameType int

const (
	TextFrame FrameType = iota + 1
	BinaryFrame
)

func (t FrameType) String() string {
	switch t {
	case TextFrame:
		return "text"
	case BinaryFrame:
		return "binary"
	default:
		return fmt.Sprintf("frame(%d)", int(t))
	}
}

type Frame struct {
	Type FrameType
	Data []byte
}

// A Transport carries frames for a single connection. ReadFrame is called
// from one goroutine; every other method is called only from the serve
// loop.
type Transport interface {
	ReadFrame() (Frame, error)
	WriteFrame(Frame) error
	Ping() error
	SetPongHandler(func())
	Close() error
}

type wsTransport struct {
	conn *websocket.Conn
}

// WebsocketTransport adapts a gorilla websocket connection.
func WebsocketTransport(conn *websocket.Conn) Transport {
	return &wsTransport{conn: conn}
}

func (t *wsTransport) ReadFrame() (Frame, error) {
	messageType, data, err := t.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err,
			websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
			return Frame{}, io.EOF
		}
		return Frame{}, err
	}
	if messageType == websocket.BinaryMessage {
		return Frame{Type: BinaryFrame, Data: data}, nil
	}
	return Frame{Type: TextFrame, Data: data}, nil
}

// WriteFrame writes f. A websocket connection is unusable after any write
// error, so every failure is reported as ErrConnectionGone.
func (t *wsTransport) WriteFrame(f Frame) error {
	messageType := websocket.TextMessage
	if f.Type == BinaryFrame {
		messageType = websocket.BinaryMessage
	}
	if err := t.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("%w: %s", ErrConnectionGone, err)
	}
	if err := t.conn.WriteMessage(messageType, f.Data); err != nil {
		return fmt.Errorf("%w: %s", ErrConnectionGone, err)
	}
	return nil
}

func (t *wsTransport) Ping() error {
	if err := t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("%w: %s", ErrConnectionGone, err)
	}
	return nil
}

func (t *wsTransport) SetPongHandler(f func()) {
	t.conn.SetPongHandler(func(string) error {
		f()
		return nil
	})
}

func (t *wsTransport) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return t.conn.Close()
}
