// Package logging builds the structured loggers shared by reel's components.
//
// Loggers are constructed once in the composition root and injected; no
// package reaches for a global logger.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

const defaultLevel = log.InfoLevel

// New creates a [log.Logger] writing to w at the given level name. The writer
// defaults to [os.Stderr] and unknown level names fall back to info.
func New(w io.Writer, level string) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := log.Options{
		ReportTimestamp: true,
		Level:           ParseLevel(level),
	}
	return log.NewWithOptions(w, opts)
}

// Discard returns a logger that drops everything. Handy for tests and for
// components constructed without a logger.
func Discard() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.FatalLevel})
}

// Component returns a child logger tagged with the component name.
func Component(l *log.Logger, name string) *log.Logger {
	if l == nil {
		l = Discard()
	}
	return l.WithPrefix(name)
}

// ParseLevel converts a level name into a [log.Level].
func ParseLevel(level string) log.Level {
	trimmed := strings.ToLower(strings.TrimSpace(level))
	if trimmed == "warning" {
		trimmed = "warn"
	}
	parsed, err := log.ParseLevel(trimmed)
	if err != nil {
		return defaultLevel
	}
	return parsed
}
