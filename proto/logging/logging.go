package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type logCtxKey int

const logCtx logCtxKey = 0

var root = zerolog.New(os.Stdout).With().Timestamp().Logger()

// Init replaces the default logger. Level names are zerolog's ("debug",
// "info", ...); an unknown or empty level means info. With console set,
// output is human readable instead of JSON.
func Init(w io.Writer, level string, console bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	root = zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	return root
}

// Logger returns the logger carried by ctx, or the default logger.
func Logger(ctx context.Context) *zerolog.Logger {
	if logger, ok := ctx.Value(logCtx).(*zerolog.Logger); ok {
		return logger
	}
	logger := root
	return &logger
}

// WithFields returns a context whose logger adds fields to every entry.
func WithFields(ctx context.Context, fields map[string]interface{}) context.Context {
	logger := Logger(ctx).With().Fields(fields).Logger()
	return context.WithValue(ctx, logCtx, &logger)
}
