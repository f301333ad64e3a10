// Package logger provides the structured logging interface used across the service.
package logger

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"
)

// Level is the minimum severity a Logger emits.
type Level string

const (
	LogLevelDebug Level = "debug"
	LogLevelInfo  Level = "info"
	LogLevelWarn  Level = "warn"
	LogLevelError Level = "error"
)

// ParseLevel maps a config string to a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch Level(strings.ToLower(strings.TrimSpace(s))) {
	case LogLevelDebug:
		return LogLevelDebug
	case LogLevelWarn, "warning":
		return LogLevelWarn
	case LogLevelError:
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

func (l Level) slogLevel() slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger is the logging contract every component receives by injection.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
}

// Options tune the slog-backed logger.
type Options struct {
	// Format is "json" (default) or "text".
	Format string
}

// SlogLogger implements Logger on top of log/slog.
type SlogLogger struct {
	l *slog.Logger
}

// NewSlogLogger creates a JSON logger writing to w. Timestamps are rendered in
// loc when it is non-nil, UTC otherwise.
func NewSlogLogger(w io.Writer, level Level, loc *time.Location) *SlogLogger {
	return NewSlogLoggerWithOptions(w, level, loc, Options{})
}

// NewSlogLoggerWithOptions is NewSlogLogger with an explicit output format.
func NewSlogLoggerWithOptions(w io.Writer, level Level, loc *time.Location, opts Options) *SlogLogger {
	if loc == nil {
		loc = time.UTC
	}
	handlerOpts := &slog.HandlerOptions{
		Level: level.slogLevel(),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && a.Key == slog.TimeKey {
				a.Value = slog.TimeValue(a.Value.Time().In(loc))
			}
			return a
		},
	}

	var h slog.Handler
	if opts.Format == "text" {
		h = slog.NewTextHandler(w, handlerOpts)
	} else {
		h = slog.NewJSONHandler(w, handlerOpts)
	}
	return &SlogLogger{l: slog.New(h)}
}

func (s *SlogLogger) log(level slog.Level, msg string, fields []Field) {
	if !s.l.Enabled(context.Background(), level) {
		return
	}
	attrs := make([]slog.Attr, 0, len(fields))
	for _, f := range fields {
		attrs = append(attrs, f.attr())
	}
	s.l.LogAttrs(context.Background(), level, msg, attrs...)
}

func (s *SlogLogger) Debug(msg string, fields ...Field) { s.log(slog.LevelDebug, msg, fields) }
func (s *SlogLogger) Info(msg string, fields ...Field) { s.log(slog.LevelInfo, msg, fields) }
func (s *SlogLogger) Warn(msg string, fields ...Field) { s.log(slog.LevelWarn, msg, fields) }
func (s *SlogLogger) Error(msg string, fields ...Field) { s.log(slog.LevelError, msg, fields) }

// With returns a child logger that always carries fields.
func (s *SlogLogger) With(fields ...Field) Logger {
	args := make([]any, 0, len(fields))
	for _, f := range fields {
		args = append(args, f.attr())
	}
	return &SlogLogger{l: s.l.With(args...)}
}

// Slog exposes the underlying slog.Logger for libraries that want one.
func (s *SlogLogger) Slog() *slog.Logger {
	return s.l
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() Logger {
	return NewSlogLogger(io.Discard, LogLevelError, nil)
}
