// Package gsalog is a thin wrapper around the standard library "log"
// package, matching the teacher project's choice of stdlib logging over
// any structured logging dependency. It exists so call sites never reach
// for the global "log" package directly, and so debug-level output can be
// gated per component.
package gsalog

import (
	"log"
	"os"
)

// Logger writes leveled messages to an underlying *log.Logger. Debug is
// only emitted when enabled, matching §4.2's "verbose connection logging
// iff debug."
type Logger struct {
	std   *log.Logger
	debug bool
}

// New creates a Logger writing to os.Stderr.
func New(debug bool) *Logger {
	return &Logger{std: log.New(os.Stderr, "", log.LstdFlags), debug: debug}
}

var defaultLogger = New(false)

// Default returns the package-wide logger used by components that don't
// take one explicitly.
func Default() *Logger { return defaultLogger }

// SetDefault replaces the package-wide logger, typically once at startup
// after parsing the --debug flag.
func SetDefault(l *Logger) { defaultLogger = l }

// Debugf logs only when the logger was created with debug enabled.
func (l *Logger) Debugf(format string, args ...any) {
	if l == nil || !l.debug {
		return
	}
	l.std.Printf("[debug] "+format, args...)
}

// Infof logs unconditionally.
func (l *Logger) Infof(format string, args ...any) {
	if l == nil {
		return
	}
	l.std.Printf(format, args...)
}

// Warnf logs unconditionally, prefixed to stand out from Infof output.
func (l *Logger) Warnf(format string, args ...any) {
	if l == nil {
		return
	}
	l.std.Printf("[warn] "+format, args...)
}
