package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Driving-Capstone/DrivingCoach-BE/proto"
	"github.com/Driving-Capstone/DrivingCoach-BE/proto/logging"
)

var ErrUnresponsive = errors.New("connection unresponsive")

type temporary interface {
	Temporary() bool
}

// A conn serves the frames of one connection. The reader goroutine hands
// frames to the serve loop one at a time; the serve loop is the only
// goroutine that writes to the transport.
type conn struct {
	ctx     context.Context
	cancel  context.CancelFunc
	server  *Server
	session *Session
	t       Transport

	incoming chan Frame

	m        sync.Mutex
	closeErr error

	outstandingPings uint32
}

func newConn(ctx context.Context, server *Server, session *Session, t Transport) *conn {
	cancellableCtx, cancel := context.WithCancel(ctx)
	c := &conn{
		ctx:      cancellableCtx,
		cancel:   cancel,
		server:   server,
		session:  session,
		t:        t,
		incoming: make(chan Frame),
	}
	t.SetPongHandler(c.handlePong)
	return c
}

func (c *conn) handlePong() { atomic.StoreUint32(&c.outstandingPings, 0) }

func (c *conn) close(err error) {
	c.m.Lock()
	if c.closeErr == nil {
		c.closeErr = err
	}
	c.m.Unlock()
	c.cancel()
}

func (c *conn) err() error {
	c.m.Lock()
	defer c.m.Unlock()
	if c.closeErr != nil {
		return c.closeErr
	}
	return c.ctx.Err()
}

type keepalive struct {
	timer    *time.Timer
	interval time.Duration
	misses   uint32
}

func newKeepalive(cfg SessionConfig) *keepalive {
	if cfg.KeepAlive <= 0 || cfg.KeepAliveMisses <= 0 {
		return &keepalive{}
	}
	return &keepalive{
		timer:    time.NewTimer(cfg.KeepAlive),
		interval: cfg.KeepAlive,
		misses:   uint32(cfg.KeepAliveMisses),
	}
}

// C never fires when keepalive pings are disabled.
func (k *keepalive) C() <-chan time.Time {
	if k.timer == nil {
		return nil
	}
	return k.timer.C
}

func (k *keepalive) reset() {
	if k.timer == nil {
		return
	}
	if !k.timer.Stop() {
		select {
		case <-k.timer.C:
		default:
		}
	}
	k.timer.Reset(k.interval)
}

func (k *keepalive) stop() {
	if k.timer != nil {
		k.timer.Stop()
	}
}

func (c *conn) serve() error {
	go c.readFrames()

	logger := logging.Logger(c.ctx)
	ka := newKeepalive(c.server.session)
	defer ka.stop()

	for {
		select {
		case <-c.ctx.Done():
			return c.err()

		case <-ka.C():
			if pings := atomic.AddUint32(&c.outstandingPings, 1); pings > ka.misses {
				logger.Warn().Uint32("pings", pings-1).Msg("connection timed out")
				return ErrUnresponsive
			}
			if err := c.t.Ping(); err != nil {
				logger.Warn().Err(err).Msg("keepalive ping failed")
				if errors.Is(err, ErrConnectionGone) {
					return err
				}
			}
			ka.reset()

		case f := <-c.incoming:
			reply, after, fatal := c.handleFrame(f)
			if err := c.send(reply); err != nil {
				return err
			}
			if after != nil {
				if err := c.safely("after reply", after); err != nil {
					return err
				}
			}
			if fatal != nil {
				return fatal
			}
			ka.reset()
		}
	}
}

func (c *conn) readFrames() {
	logger := logging.Logger(c.ctx)

	for c.ctx.Err() == nil {
		f, err := c.t.ReadFrame()
		if err != nil {
			var tmp temporary
			if errors.As(err, &tmp) && tmp.Temporary() {
				logger.Warn().Err(err).Msg("transient read error")
				continue
			}
			if errors.Is(err, io.EOF) {
				logger.Debug().Msg("client disconnected")
			} else if c.ctx.Err() == nil {
				logger.Warn().Err(err).Msg("read failed")
			}
			c.close(err)
			return
		}

		select {
		case c.incoming <- f:
		case <-c.ctx.Done():
			return
		}
	}
}

// send writes reply to the transport. Failures are logged and swallowed
// unless the connection is gone.
func (c *conn) send(reply proto.Reply) error {
	err := c.t.WriteFrame(Frame{Type: TextFrame, Data: reply.Encode()})
	if err == nil {
		return nil
	}
	logging.Logger(c.ctx).Warn().Err(err).Str("reply", string(reply.Type)).Msg("send failed")
	if errors.Is(err, ErrConnectionGone) {
		return err
	}
	return nil
}

// handleFrame produces the single reply to f. The returned func, if any,
// runs after the reply has been sent. A non-nil error ends the connection.
func (c *conn) handleFrame(f Frame) (reply proto.Reply, after func(), fatal error) {
	defer func() {
		if r := recover(); r != nil {
			reply, after, fatal = proto.ErrInternalFrame.Reply(), nil, c.panicked("frame handler", r)
		}
	}()

	switch f.Type {
	case BinaryFrame:
		return c.handleBinary(f.Data), nil, nil
	case TextFrame:
		reply, after = c.handleText(f.Data)
		return reply, after, nil
	default:
		countFrame(f.Type.String(), proto.ErrInvalidPayload)
		return proto.ErrInvalidPayload.Reply(), nil, nil
	}
}

// safely runs f, turning a panic into an error that ends the connection.
func (c *conn) safely(where string, f func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = c.panicked(where, r)
		}
	}()
	f()
	return nil
}

func (c *conn) panicked(where string, r interface{}) error {
	logging.Logger(c.ctx).Error().
		Interface("panic", r).
		Str("in", where).
		Str("stack", string(debug.Stack())).
		Msg("panic recovered")
	countFrame("panic", proto.ErrInternal)
	return fmt.Errorf("%w: panic: %v", proto.ErrInternal, r)
}

func (c *conn) handleText(data []byte) (proto.Reply, func()) {
	cmd, err := proto.ParseCommand(data)
	if err != nil {
		countFrame("invalid", err)
		return c.reject("invalid", err), nil
	}

	switch cmd.Type {
	case proto.PingType:
		countFrame("ping", nil)
		return proto.Pong(), nil
	case proto.StartType:
		reply, err := c.start(cmd.RecordID)
		countFrame("start", err)
		return reply, nil
	case proto.EndType:
		reply, after, err := c.end(cmd.Score)
		countFrame("end", err)
		return reply, after
	default:
		err := proto.UnknownTypeError(cmd.Type)
		countFrame("unknown", err)
		return c.reject("unknown", err), nil
	}
}

func (c *conn) start(requested string) (proto.Reply, error) {
	logger := logging.Logger(c.ctx)
	now := c.server.now()

	recordID, abandoned, err := c.session.Start(requested, c.server.session.RestartPolicy, c.server.newRecordID, now)
	if err != nil {
		return c.reject("start", err), err
	}

	if abandoned != nil {
		logger.Warn().
			Str("record", abandoned.RecordID).
			Int("chunks", abandoned.Chunks).
			Str("replaced_by", recordID).
			Msg("recording abandoned by restart")
	} else {
		sessionsRecording.Inc()
	}
	logger.Info().Str("record", recordID).Msg("recording started")
	return proto.Started(recordID), nil
}

func (c *conn) end(score *float64) (proto.Reply, func(), error) {
	summary, err := c.session.End(c.server.now())
	if err != nil {
		return c.reject("end", err), nil, err
	}
	sessionsRecording.Dec()
	summary.Score = score

	logger := logging.Logger(c.ctx)
	entry := logger.Info().Str("record", summary.RecordID).Int("chunks", summary.Chunks)
	if score != nil {
		entry = entry.Float64("score", *score)
	}
	entry.Msg("recording ended")
	return proto.Ended(summary.RecordID, summary.Chunks), func() { c.finish(summary) }, nil
}

// finish hands a completed recording to the record store. The client has
// already been told the recording ended, so failures are only logged.
func (c *conn) finish(summary *proto.RecordSummary) {
	if c.server.records == nil {
		return
	}
	logger := logging.Logger(c.ctx)
	if err := c.server.records.FinishRecording(context.WithoutCancel(c.ctx), summary); err != nil {
		logger.Error().Err(err).Str("record", summary.RecordID).Msg("record bookkeeping failed")
		return
	}
	logger.Debug().Str("record", summary.RecordID).Msg("record saved")
}

func (c *conn) handleBinary(data []byte) proto.Reply {
	session, ok := c.server.registry.Lookup(c.session.ID())
	if !ok {
		countFrame("binary", proto.ErrNotStarted)
		return c.reject("binary", proto.ErrNotStarted)
	}
	recordID, chunks, ok := session.Recording()
	if !ok {
		countFrame("binary", proto.ErrNotStarted)
		return c.reject("binary", proto.ErrNotStarted)
	}

	logger := logging.Logger(c.ctx)
	key := c.server.chunkKey(recordID, chunks+1)

	// Uploads outlive the connection: a close must not cancel a put in
	// flight.
	started := time.Now()
	err := c.server.blobs.Put(context.WithoutCancel(c.ctx), key, data, proto.OctetStream)
	uploadDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		uploadFailures.Inc()
		countFrame("binary", err)
		logger.Error().Err(err).Str("key", key).Int("size", len(data)).Msg("chunk upload failed")
		return proto.ErrUploadFailed.Reply()
	}

	index, err := session.ChunkStored(key)
	if err != nil {
		countFrame("binary", err)
		logger.Warn().Str("key", key).Msg("chunk stored without an active recording")
		return c.reject("binary", err)
	}

	chunksStored.Inc()
	chunkBytes.Add(float64(len(data)))
	countFrame("binary", nil)
	logger.Debug().Str("key", key).Int("size", len(data)).Int("chunk", index).Msg("chunk stored")
	return proto.ChunkStored(key, len(data), index)
}

// reject turns err into an ERROR reply. Errors that are not FrameErrors are
// reported as internal errors.
func (c *conn) reject(kind string, err error) proto.Reply {
	var frameErr *proto.FrameError
	if errors.As(err, &frameErr) {
		logging.Logger(c.ctx).Debug().Str("frame", kind).Str("error", frameErr.Message).Msg("frame rejected")
		return frameErr.Reply()
	}
	logging.Logger(c.ctx).Error().Err(err).Str("frame", kind).Msg("frame failed")
	return proto.ErrInternalFrame.Reply()
}
