// Package logger builds the process-wide slog logger: a colored console
// handler and, optionally, a size-rotated JSON log file.
package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"
)

type options struct {
	console   io.Writer
	noColor   bool
	logToFile bool
	logFile   string
	maxSizeMB int
}

type Option func(*options)

func WithLogToFile(enabled bool) Option {
	return func(o *options) { o.logToFile = enabled }
}

func WithLogFile(path string) Option {
	return func(o *options) { o.logFile = path }
}

// WithConsole replaces stderr as the console destination.
func WithConsole(w io.Writer) Option {
	return func(o *options) { o.console = w }
}

func WithNoColor(noColor bool) Option {
	return func(o *options) { o.noColor = noColor }
}

func WithMaxSize(megabytes int) Option {
	return func(o *options) { o.maxSizeMB = megabytes }
}

// New returns a logger writing records at or above level. The returned
// closer releases the log file and is never nil.
func New(level slog.Level, opts ...Option) (*slog.Logger, io.Closer) {
	o := options{
		console:   os.Stderr,
		logFile:   "logs/pkpd.log",
		maxSizeMB: 10,
	}
	for _, opt := range opts {
		opt(&o)
	}

	console := tint.NewHandler(o.console, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
		NoColor:    o.noColor,
	})

	if !o.logToFile {
		return slog.New(console), nopCloser{}
	}

	file := &lumberjack.Logger{
		Filename:   o.logFile,
		MaxSize:    o.maxSizeMB,
		MaxBackups: 3,
		MaxAge:     28,
	}
	jsonHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level})

	return slog.New(fanout{console, jsonHandler}), file
}

// ParseLevel accepts debug, info, warn and error in any case.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("logger: unknown level %q", s)
	}
	return level, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// fanout sends every record to each handler that accepts its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
