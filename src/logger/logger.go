// src/logger/logger.go
package logger

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// L is the process-wide logger. InitLogger must run before anything logs.
var L *slog.Logger

type ctxKey struct{}

// InitLogger configures L with a JSON handler writing to stdout. level
// accepts the slog level names case-insensitively (debug, info, warn,
// error); anything unparseable falls back to info.
func InitLogger(level string) {
	var lv slog.Level
	parseErr := lv.UnmarshalText([]byte(level))
	if parseErr != nil {
		lv = slog.LevelInfo
	}

	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:       lv,
		ReplaceAttr: rfc3339Time,
	})
	L = slog.New(h)
	slog.SetDefault(L)

	if parseErr != nil {
		L.Warn("unrecognized log level, using info", "given", level)
	}
	L.Info("logger ready", "level", lv.String())
}

// rfc3339Time rewrites the time attribute so timestamps are stable
// RFC3339 UTC strings regardless of the host timezone.
func rfc3339Time(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey {
		if t, ok := a.Value.Any().(time.Time); ok {
			a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
		}
	}
	return a
}

// ToContext stores a request-scoped logger in ctx.
func ToContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger stored by ToContext, or L when none is.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}
	return L
}
