// Package logging builds the logrus logger shared by the CLI commands.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Options configures New.
type Options struct {
	Level  string // logrus level name, default "info"
	Format string // "text" or "json", default "text"
	Output io.Writer
}

// New returns a configured logger. Diagnostics go to stderr by default so
// that command results on stdout stay clean.
func New(opt Options) (*logrus.Logger, error) {
	lvl := opt.Level
	if lvl == "" {
		lvl = "info"
	}
	level, err := logrus.ParseLevel(lvl)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	log := logrus.New()
	log.SetLevel(level)
	if opt.Output != nil {
		log.SetOutput(opt.Output)
	} else {
		log.SetOutput(os.Stderr)
	}
	switch strings.ToLower(opt.Format) {
	case "", "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("invalid log format %q (use text or json)", opt.Format)
	}
	return log, nil
}

// Discard returns a logger that drops everything.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
