// Package telemetry holds logging, metrics, tracing and Server-Timing helpers.
package telemetry

import (
	"io"
	"os"

	"github.com/phuslu/log"
)

// NewLogger returns a leveled console logger. Output goes to w (stderr when
// nil) so stdout stays clean for MCP stdio and CLI JSON.
func NewLogger(level string, w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	lvl := log.ParseLevel(level)
	if level == "" {
		lvl = log.InfoLevel
	}
	return &log.Logger{
		Level:  lvl,
		Caller: 0,
		Writer: &log.ConsoleWriter{Writer: w, ColorOutput: false},
	}
}

// NopLogger discards everything. Used by tests and as a nil fallback.
func NopLogger() *log.Logger {
	return &log.Logger{
		Level:  log.PanicLevel,
		Writer: &log.IOWriter{Writer: io.Discard},
	}
}

// OrNop returns l, or a discarding logger when l is nil.
func OrNop(l *log.Logger) *log.Logger {
	if l == nil {
		return NopLogger()
	}
	return l
}
