// Package logger builds the structured loggers used across the engine and
// the API server.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New creates a logger for env. Development gets human readable text at
// debug level, everything else JSON at info level.
func New(env string) *slog.Logger {
	return NewWithWriter(env, os.Stdout)
}

// NewWithWriter is New writing to w.
func NewWithWriter(env string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}

	var handler slog.Handler
	if strings.EqualFold(env, "development") {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Discard()
	}
	return l
}

// WithCard tags l with a card id.
func WithCard(l *slog.Logger, cardID string) *slog.Logger {
	return l.With(slog.String("card_id", cardID))
}

// WithRecord tags l with an engagement record id.
func WithRecord(l *slog.Logger, recordID string) *slog.Logger {
	return l.With(slog.String("record_id", recordID))
}
