// Package logger wraps zerolog with the level-configurable New
// constructor the rest of the worker depends on.
package logger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New builds the process-wide logger at the given level, writing
// human-readable output to stderr when pretty is true (development) or
// compact JSON otherwise (production/container logs).
func New(level string, pretty bool) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	var l zerolog.Level
	switch strings.ToLower(level) {
	case "error":
		l = zerolog.ErrorLevel
	case "warn":
		l = zerolog.WarnLevel
	case "info":
		l = zerolog.InfoLevel
	case "debug":
		l = zerolog.DebugLevel
	default:
		l = zerolog.InfoLevel
	}

	var out zerolog.ConsoleWriter
	if pretty {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
		return zerolog.New(out).Level(l).With().Timestamp().Str("service", "sfu-worker").Logger()
	}

	return zerolog.New(os.Stderr).Level(l).With().Timestamp().Str("service", "sfu-worker").Logger()
}
