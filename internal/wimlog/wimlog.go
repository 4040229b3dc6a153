// Package wimlog is the ambient logging shim used across the engine
// packages. It wraps the standard library's log.Logger the way
// distr1-distri's internal/trace wraps a single stdlib concern behind a
// tiny named-logger API, instead of pulling in a structured-logging
// dependency nothing else in the pack reaches for in this class of tool.
package wimlog

import (
	"log"
	"os"
)

// Logger is a named logger. The zero value is not usable; use New.
type Logger struct {
	name string
	l    *log.Logger
}

// New returns a Logger that prefixes every line with name.
func New(name string) *Logger {
	return &Logger{
		name: name,
		l:    log.New(os.Stderr, "", log.LstdFlags),
	}
}

// Warnf logs a non-fatal anomaly (§7 "Local / recovered" errors).
func (lg *Logger) Warnf(format string, args ...interface{}) {
	lg.l.Printf("warn: "+lg.name+": "+format, args...)
}

// Printf logs an informational line.
func (lg *Logger) Printf(format string, args ...interface{}) {
	lg.l.Printf(lg.name+": "+format, args...)
}

// Discard is a Logger that drops everything, useful in tests that want to
// assert on returned errors instead of log output.
var Discard = &Logger{name: "discard", l: log.New(discardWriter{}, "", 0)}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
