// Package logger wraps log/slog behind a small interface so the rest of
// the engine depends on a collaborator, not a global. Console and file
// sinks are fanned out via slog-multi so a single call reaches both.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// Logger is the logging collaborator injected into the driver, the
// evaluator and the task graph builder.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
	// With returns a Logger that prepends the given key/value pairs to
	// every subsequent call.
	With(kv ...any) Logger
}

type slogLogger struct {
	l *slog.Logger
}

// Option configures a Logger constructed by NewLogger.
type Option func(*options)

type options struct {
	debug   bool
	quiet   bool
	format  string
	logFile io.Writer
}

// WithDebug raises the log level to debug.
func WithDebug() Option {
	return func(o *options) { o.debug = true }
}

// WithFormat selects "text" (default) or "json" console output.
func WithFormat(format string) Option {
	return func(o *options) { o.format = format }
}

// WithQuiet suppresses the console sink; only the file sink (if any)
// receives records.
func WithQuiet() Option {
	return func(o *options) { o.quiet = true }
}

// WithLogFile adds a JSON file sink in addition to the console sink.
func WithLogFile(f io.Writer) Option {
	return func(o *options) { o.logFile = f }
}

// NewLogger constructs a Logger from functional options.
func NewLogger(opts ...Option) Logger {
	o := &options{format: "text"}
	for _, opt := range opts {
		opt(o)
	}

	level := slog.LevelInfo
	if o.debug {
		level = slog.LevelDebug
	}

	var handlers []slog.Handler
	if !o.quiet {
		handlerOpts := &slog.HandlerOptions{Level: level}
		if o.format == "json" {
			handlers = append(handlers, slog.NewJSONHandler(os.Stdout, handlerOpts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(os.Stdout, handlerOpts))
		}
	}
	if o.logFile != nil {
		handlers = append(handlers, slog.NewJSONHandler(o.logFile, &slog.HandlerOptions{Level: level}))
	}

	var handler slog.Handler
	switch len(handlers) {
	case 0:
		handler = slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: level})
	case 1:
		handler = handlers[0]
	default:
		handler = slogmulti.Fanout(handlers...)
	}

	return &slogLogger{l: slog.New(handler)}
}

func (s *slogLogger) Debug(msg string, kv ...any) { s.l.Log(context.Background(), slog.LevelDebug, msg, kv...) }
func (s *slogLogger) Info(msg string, kv ...any)  { s.l.Log(context.Background(), slog.LevelInfo, msg, kv...) }
func (s *slogLogger) Warn(msg string, kv ...any)  { s.l.Log(context.Background(), slog.LevelWarn, msg, kv...) }
func (s *slogLogger) Error(msg string, kv ...any) { s.l.Log(context.Background(), slog.LevelError, msg, kv...) }

func (s *slogLogger) With(kv ...any) Logger {
	return &slogLogger{l: s.l.With(kv...)}
}

// Noop returns a Logger that discards everything; useful in tests.
func Noop() Logger {
	return &slogLogger{l: slog.New(slog.NewTextHandler(io.Discard, nil))}
}
