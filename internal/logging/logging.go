// Package logging builds the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	Level slog.Level

	// File, when set, receives a copy of every line through a size-rotated
	// writer.
	File string

	RunID string
}

// New returns the logger and a closer for the rotating file, if any.
func New(stderr io.Writer, opts Options) (*slog.Logger, io.Closer) {
	if stderr == nil {
		stderr = os.Stderr
	}
	var out io.Writer = stderr
	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		lj := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10, // MB
			MaxBackups: 3,
			MaxAge:     7, // days
		}
		out = io.MultiWriter(stderr, lj)
		closer = lj
	}

	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: opts.Level}))
	if opts.RunID != "" {
		logger = logger.With("run_id", opts.RunID)
	}
	return logger, closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
