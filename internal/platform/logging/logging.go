// Package logging builds the service's zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	Level string
	// Console switches stdout to zerolog's human-readable writer.
	Console bool
	// File, when set, receives a JSON copy of every entry, rotated by
	// lumberjack.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New returns a logger writing to stdout and, optionally, a rotating file.
// The returned closer flushes and closes the file; it is a no-op without one.
func New(opts Options) (zerolog.Logger, io.Closer) {
	return newWithStdout(os.Stdout, opts)
}

func newWithStdout(stdout io.Writer, opts Options) (zerolog.Logger, io.Closer) {
	var out io.Writer = stdout
	if opts.Console {
		out = zerolog.ConsoleWriter{Out: stdout, TimeFormat: "15:04:05"}
	}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		}
		out = zerolog.MultiLevelWriter(out, rotator)
		closer = rotator
	}

	logger := zerolog.New(out).
		Level(ParseLevel(opts.Level)).
		With().Timestamp().Str("service", "carecenter").
		Logger()
	return logger, closer
}

// ParseLevel maps a level name to zerolog, defaulting to info for empty or
// unknown names.
func ParseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
