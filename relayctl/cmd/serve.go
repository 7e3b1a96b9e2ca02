package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/pflag"

	"github.com/Driving-Capstone/DrivingCoach-BE/backend"
	"github.com/Driving-Capstone/DrivingCoach-BE/proto/logging"
	"github.com/Driving-Capstone/DrivingCoach-BE/proto/snowflake"
)

const shutdownTimeout = 10 * time.Second

func init() {
	register("serve", &serveCmd{})
}

type serveCmd struct{}

func (serveCmd) desc() string { return "start up a driving telemetry relay" }

func (serveCmd) usage() string {
	return "serve [--http=<interface:port>] [--blob=file|s3|memory] [--psql=<dsn>]"
}

func (serveCmd) longdesc() string {
	return `
	Start a relay server. The server accepts websocket connections at the
	path given by --path and listens for HTTP requests at the address given
	by --http (defaults to port 8080 on any interface). It runs until it
	receives SIGINT or SIGTERM, then waits up to ten seconds for open
	connections to drain.

	Settings are read from the file given by the global --config flag;
	flags given here take precedence over the file.
`[1:]
}

func (cmd *serveCmd) flags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	backend.Config.RegisterFlags(flags)
	return flags
}

func (cmd *serveCmd) run(ctx context.Context, args []string) error {
	if err := backend.Config.Validate(); err != nil {
		return err
	}
	if err := configureNode(backend.Config.Session); err != nil {
		return err
	}
	logger := logging.Logger(ctx)

	blobs, blobH, err := getBlobStore(ctx)
	if err != nil {
		return err
	}

	records, err := getRecordStore(ctx)
	if err != nil {
		return fmt.Errorf("record store error: %s", err)
	}
	defer records.Close()

	opts := backend.ServerOptions{
		Blobs:       blobs,
		Records:     records,
		Session:     backend.Config.Session,
		HTTP:        backend.Config.HTTP,
		BlobHandler: blobH,
	}
	validator, err := getValidator(ctx)
	if err != nil {
		return err
	}
	if validator != nil {
		opts.Validator = validator
	}

	server, err := backend.NewServer(ctx, opts)
	if err != nil {
		return fmt.Errorf("server error: %s", err)
	}

	httpServer := &http.Server{
		Addr:              backend.Config.HTTP.Listen,
		Handler:           newVersioningHandler(server),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- httpServer.ListenAndServe() }()
	logger.Info().
		Str("version", Version).
		Str("addr", backend.Config.HTTP.Listen).
		Str("path", backend.Config.HTTP.Path).
		Str("blob", backend.Config.Blob.Driver).
		Str("restart-policy", backend.Config.Session.RestartPolicy.String()).
		Msg("serving")

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logger.Info().Int("sessions", server.Registry().Len()).Msg("waiting for graceful shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Hijacked websocket connections are not tracked by http.Server, so
	// the relay drains its own sessions first.
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("sessions did not drain")
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %s", err)
	}
	if err := <-serveErr; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info().Msg("ok")
	return nil
}

// configureNode pins the snowflake node of session ids when one is
// configured. Relays sharing a record store need distinct nodes.
func configureNode(cfg backend.SessionConfig) error {
	if cfg.NodeID < 0 {
		return nil
	}
	return snowflake.Configure(cfg.NodeID)
}

type versioningHandler struct {
	version string
	handler http.Handler
}

func newVersioningHandler(handler http.Handler) http.Handler {
	return &versioningHandler{
		version: Version,
		handler: handler,
	}
}

func (vh *versioningHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if vh.version != "" {
		w.Header().Set("X-Relay-Version", vh.version)
	}
	vh.handler.ServeHTTP(w, r)
}
