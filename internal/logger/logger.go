// Package logger builds the process zerolog logger and carries per-request
// fields through the context.
package logger

import (
	"context"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Config struct {
	Level   string
	Console bool
	// SampleN keeps one in N events; 0 or 1 keeps all.
	SampleN   int
	Service   string
	Version   string
	Component string
}

type ctxKey string

// Context fields, in the order they are written.
const (
	ctxReqIDKey ctxKey = "request_id"
	ctxRoute    ctxKey = "route"
	ctxSource   ctxKey = "source"
)

var ctxFields = []ctxKey{ctxReqIDKey, ctxRoute, ctxSource}

func with(ctx context.Context, k ctxKey, v string) context.Context {
	if v == "" {
		return ctx
	}
	return context.WithValue(ctx, k, v)
}

// WithRequestID stores reqID, generating one when empty.
func WithRequestID(ctx context.Context, reqID string) context.Context {
	if reqID == "" {
		reqID = NewID()
	}
	return with(ctx, ctxReqIDKey, reqID)
}

// WithSource tags where a response came from: cache, upstream or backup.
func WithSource(ctx context.Context, source string) context.Context {
	return with(ctx, ctxSource, source)
}

func WithRoute(ctx context.Context, route string) context.Context {
	return with(ctx, ctxRoute, route)
}

func NewID() string { return uuid.NewString() }

// RequestID returns the id stored by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	s, _ := ctx.Value(ctxReqIDKey).(string)
	return s
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func sampleN(n int) uint32 {
	switch {
	case n <= 1:
		return 0
	case n > math.MaxUint32:
		return math.MaxUint32
	default:
		return uint32(n)
	}
}

// Build configures the global zerolog field names and level and returns the
// root logger. Console output is for local runs only.
func Build(cfg Config, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.TimestampFieldName = "timestamp"
	zerolog.LevelFieldName = "level"
	zerolog.MessageFieldName = "msg"
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	if cfg.Console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	zl := zerolog.New(out)
	if n := sampleN(cfg.SampleN); n > 0 {
		zl = zl.Sample(&zerolog.BasicSampler{N: n})
	}

	zc := zl.With().Timestamp()
	for _, f := range []struct{ k, v string }{
		{"service", cfg.Service},
		{"version", cfg.Version},
		{"component", cfg.Component},
	} {
		if f.v != "" {
			zc = zc.Str(f.k, f.v)
		}
	}
	return zc.Logger()
}

// FromContext returns a child of parent carrying the context fields. A nil
// parent discards.
func FromContext(ctx context.Context, parent *zerolog.Logger) *zerolog.Logger {
	base := zerolog.Nop()
	if parent != nil {
		base = *parent
	}
	zc := base.With()
	for _, k := range ctxFields {
		if s, ok := ctx.Value(k).(string); ok && s != "" {
			zc = zc.Str(string(k), s)
		}
	}
	l := zc.Logger()
	return &l
}
