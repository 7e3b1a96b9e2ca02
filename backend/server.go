package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/Driving-Capstone/DrivingCoach-BE/proto"
	"github.com/Driving-Capstone/DrivingCoach-BE/proto/logging"
	"github.com/Driving-Capstone/DrivingCoach-BE/proto/snowflake"
)

var ErrServerClosed = errors.New("server closed")

type ServerOptions struct {
	// Registry tracks live sessions. A fresh one is created if nil.
	Registry *Registry

	// Validator checks handshake and API credentials. With no validator
	// every connection is anonymous.
	Validator proto.TokenValidator

	// Blobs stores chunks. Required.
	Blobs proto.BlobStore

	// Records receives finished recordings and backs the records API.
	Records proto.RecordStore

	Session SessionConfig
	HTTP    HTTPConfig

	// BlobHandler, if set, serves stored blobs under /blobs/.
	BlobHandler http.Handler
}

type Server struct {
	ctx      context.Context
	cancel   context.CancelFunc
	r        *mux.Router
	upgrader websocket.Upgrader

	registry *Registry
	auth     *Authenticator
	blobs    proto.BlobStore
	records  proto.RecordStore
	session  SessionConfig
	http     HTTPConfig
	blobH    http.Handler

	newRecordID func() string
	now         func() time.Time

	m      sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewServer(ctx context.Context, opts ServerOptions) (*Server, error) {
	if opts.Blobs == nil {
		return nil, fmt.Errorf("server: blob store required")
	}
	if !opts.Session.RestartPolicy.Valid() {
		return nil, fmt.Errorf("server: invalid restart policy %q", opts.Session.RestartPolicy)
	}
	if opts.Session.KeyPrefix == "" {
		opts.Session.KeyPrefix = DefaultConfig().Session.KeyPrefix
	}
	if opts.HTTP.Path == "" {
		opts.HTTP.Path = DefaultConfig().HTTP.Path
	}
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}

	serverCtx, cancel := context.WithCancel(ctx)
	s := &Server{
		ctx:    serverCtx,
		cancel: cancel,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  opts.HTTP.ReadBuffer,
			WriteBufferSize: opts.HTTP.WriteBuffer,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		registry:    opts.Registry,
		auth:        NewAuthenticator(opts.Validator),
		blobs:       opts.Blobs,
		records:     opts.Records,
		session:     opts.Session,
		http:        opts.HTTP,
		blobH:       opts.BlobHandler,
		newRecordID: uuid.NewString,
		now:         time.Now,
	}
	s.route()
	return s, nil
}

func (s *Server) Registry() *Registry { return s.registry }

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.r.ServeHTTP(w, r)
}

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already replied to the client.
		logging.Logger(s.ctx).Debug().Err(err).Str("remote", r.RemoteAddr).Msg("upgrade failed")
		return
	}
	if s.http.MaxMessageBytes > 0 {
		conn.SetReadLimit(s.http.MaxMessageBytes)
	}
	s.ServeConn(WebsocketTransport(conn), r.URL.RawQuery)
}

// ServeConn serves a single connection until it closes. rawQuery is the
// query string of the handshake request. The transport is closed when
// ServeConn returns.
func (s *Server) ServeConn(t Transport, rawQuery string) error {
	s.m.Lock()
	if s.closed {
		s.m.Unlock()
		t.Close()
		return ErrServerClosed
	}
	s.wg.Add(1)
	s.m.Unlock()
	defer s.wg.Done()

	sid, err := snowflake.New()
	if err != nil {
		t.Close()
		return fmt.Errorf("%w: session id: %s", proto.ErrInternal, err)
	}
	id := sid.String()

	ctx := logging.WithFields(s.ctx, map[string]interface{}{"sid": id})
	identity := s.auth.Identify(ctx, rawQuery)
	fields := map[string]interface{}{"login": identity.LoginID}
	if uid, ok := identity.UID(); ok {
		fields["uid"] = uid
	}
	ctx = logging.WithFields(ctx, fields)
	logger := logging.Logger(ctx)

	session := NewSession(id, identity, s.now())
	if err := s.registry.Register(session); err != nil {
		t.Close()
		return err
	}

	c := newConn(ctx, s, session, t)
	defer func() {
		c.cancel()
		t.Close()
		s.registry.Remove(id)

		recordID, chunks, recording := session.Recording()
		if recording {
			sessionsRecording.Dec()
			logger.Warn().Str("record", recordID).Int("chunks", chunks).Msg("recording abandoned by disconnect")
		}
		logger.Info().
			Str("record", recordID).
			Int("chunks", chunks).
			Dur("duration", s.now().Sub(session.ConnectedAt())).
			Msg("connection closed")
	}()

	logger.Info().Msg("client connected")
	if err := c.send(proto.Connected(id)); err != nil {
		return err
	}

	err = c.serve()
	switch {
	case err == nil, errors.Is(err, io.EOF), errors.Is(err, context.Canceled):
		return nil
	default:
		return err
	}
}

// Shutdown stops accepting connections, closes the live ones and waits for
// their serve loops to finish or for ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.m.Lock()
	s.closed = true
	s.m.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// chunkKey names the blob of the index'th chunk of a recording. The index
// keeps keys unique when two chunks arrive in the same millisecond.
func (s *Server) chunkKey(recordID string, index int) string {
	return s.session.KeyPrefix + "/" + recordID + "/" +
		strconv.FormatInt(s.now().UnixMilli(), 10) + "-" + strconv.Itoa(index) + ".bin"
}
