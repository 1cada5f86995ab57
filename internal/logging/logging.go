// Package logging builds the *logrus.Logger the rest of the module uses
// (call sites take it as a logrus.FieldLogger), plus optional
// file-rotation via lumberjack when the log.file_path config key is set.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the root logger.
type Options struct {
	Level      string // trace|debug|info|warn|error
	JSON       bool
	FilePath   string // empty = stderr only
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// DefaultOptions mirrors sensible daemon defaults.
func DefaultOptions() Options {
	return Options{
		Level:      "info",
		MaxSizeMB:  50,
		MaxBackups: 5,
		MaxAgeDays: 14,
	}
}

// New builds a *logrus.Logger per opts. When FilePath is set, output is
// duplicated to stderr and to a lumberjack-rotated file, matching the
// teacher's daemon which always keeps console output for `daemon
// --foreground` while also persisting to disk.
func New(opts Options) (*logrus.Logger, error) {
	log := logrus.New()

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	log.SetLevel(level)

	if opts.JSON {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	var out io.Writer = os.Stderr
	if opts.FilePath != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
		}
		out = io.MultiWriter(os.Stderr, rotator)
	}
	log.SetOutput(out)

	return log, nil
}
