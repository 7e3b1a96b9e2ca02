package backend

import (
	"encoding/json"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Driving-Capstone/DrivingCoach-BE/proto"

	. "github.com/smartystreets/goconvey/convey"
)

type read struct {
	f   Frame
	err error
}

// fakeTransport is a Transport driven through channels. Frames queued with
// text/binary are read by the server in order; replies land in out.
type fakeTransport struct {
	in  chan read
	out chan Frame

	closeOnce sync.Once
	closed    chan struct{}

	m        sync.Mutex
	writeErr func(Frame) error
	pong     func()

	pings int32
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		in:     make(chan read, 64),
		out:    make(chan Frame, 64),
		closed: make(chan struct{}),
	}
}

func (ft *fakeTransport) ReadFrame() (Frame, error) {
	select {
	case r, ok := <-ft.in:
		if !ok {
			return Frame{}, io.EOF
		}
		return r.f, r.err
	case <-ft.closed:
		return Frame{}, io.EOF
	}
}

func (ft *fakeTransport) WriteFrame(f Frame) error {
	ft.m.Lock()
	writeErr := ft.writeErr
	ft.m.Unlock()
	if writeErr != nil {
		if err := writeErr(f); err != nil {
			return err
		}
	}
	select {
	case ft.out <- f:
		return nil
	case <-ft.closed:
		return ErrConnectionGone
	}
}

func (ft *fakeTransport) Ping() error {
	atomic.AddInt32(&ft.pings, 1)
	return nil
}

func (ft *fakeTransport) SetPongHandler(f func()) {
	ft.m.Lock()
	ft.pong = f
	ft.m.Unlock()
}

func (ft *fakeTransport) Close() error {
	ft.closeOnce.Do(func() { close(ft.closed) })
	return nil
}

func (ft *fakeTransport) setWriteErr(f func(Frame) error) {
	ft.m.Lock()
	ft.writeErr = f
	ft.m.Unlock()
}

func (ft *fakeTransport) isClosed() bool {
	select {
	case <-ft.closed:
		return true
	default:
		return false
	}
}

func (ft *fakeTransport) text(s string)      { ft.in <- read{f: Frame{Type: TextFrame, Data: []byte(s)}} }
func (ft *fakeTransport) binary(data []byte) { ft.in <- read{f: Frame{Type: BinaryFrame, Data: data}} }
func (ft *fakeTransport) fail(err error)     { ft.in <- read{err: err} }

// next returns the next reply as raw text.
func (ft *fakeTransport) next() string {
	select {
	case f := <-ft.out:
		So(f.Type, ShouldEqual, TextFrame)
		return string(f.Data)
	case <-time.After(5 * time.Second):
		So("timed out waiting for reply", ShouldBeEmpty)
		return ""
	}
}

// expect returns the next reply, which must be of type t, decoded.
func (ft *fakeTransport) expect(t proto.PacketType) map[string]interface{} {
	var reply map[string]interface{}
	So(json.Unmarshal([]byte(ft.next()), &reply), ShouldBeNil)
	So(reply["type"], ShouldEqual, string(t))
	return reply
}

func (ft *fakeTransport) expectError(message string) {
	So(ft.expect(proto.ErrorType)["message"], ShouldEqual, message)
}
