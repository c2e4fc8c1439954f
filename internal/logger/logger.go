package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ContextKey is the type for context keys used by the logger
type ContextKey string

const (
	// LoggerKey is the context key for the logger instance
	LoggerKey ContextKey = "logger"
)

type options struct {
	out   io.Writer
	level zerolog.Level
	json  bool
}

// Option configures New.
type Option func(*options)

// WithWriter sends output to w instead of stdout.
func WithWriter(w io.Writer) Option {
	return func(o *options) { o.out = w }
}

// WithLevel sets the minimum level, e.g. "debug" or "warn".
func WithLevel(level string) Option {
	return func(o *options) { o.level = ParseLevel(level) }
}

// WithJSON switches from the console format to one JSON object per line.
func WithJSON(enabled bool) Option {
	return func(o *options) { o.json = enabled }
}

// New creates a structured logger. The default writes human-readable
// console output to stdout at info level.
func New(opts ...Option) zerolog.Logger {
	o := options{out: os.Stdout, level: zerolog.InfoLevel}
	for _, opt := range opts {
		opt(&o)
	}

	out := o.out
	if !o.json {
		out = zerolog.ConsoleWriter{Out: o.out, TimeFormat: time.RFC3339, NoColor: o.out != os.Stdout}
	}
	return zerolog.New(out).Level(o.level).With().Timestamp().Caller().Logger()
}

// NewWithWriter creates a JSON logger writing to w.
func NewWithWriter(w io.Writer) zerolog.Logger {
	return New(WithWriter(w), WithJSON(true))
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || l == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return l
}

// WithContext adds the logger to the context
func WithContext(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// FromContext retrieves the logger from the context or returns a default logger
func FromContext(ctx context.Context) zerolog.Logger {
	if logger, ok := ctx.Value(LoggerKey).(zerolog.Logger); ok {
		return logger
	}
	return New()
}

// WithConversation tags every entry with the conversation id.
func WithConversation(logger zerolog.Logger, conversationID string) zerolog.Logger {
	return logger.With().Str("conversation_id", conversationID).Logger()
}

// WithFields adds structured fields to a logger
func WithFields(logger zerolog.Logger, fields map[string]any) zerolog.Logger {
	ctx := logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return ctx.Logger()
}
