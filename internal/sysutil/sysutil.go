// Package sysutil holds process-level setup shared by the socialcart commands.
package sysutil

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ParseLogLevel maps a LOG_LEVEL value to a zerolog level. Matching is
// case-insensitive; empty or unknown values mean info.
func ParseLogLevel(lvl string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	default:
		return zerolog.InfoLevel
	}
}

// SetLogLevel configures the global zerolog level.
func SetLogLevel(lvl string) {
	zerolog.SetGlobalLevel(ParseLogLevel(lvl))
}

// ConfigureLogger sets the global level and points the global logger at out,
// as JSON lines or, when pretty, as a human-readable console stream. The
// service name is attached to every line.
func ConfigureLogger(out io.Writer, lvl string, pretty bool, service string) {
	SetLogLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	ctx := zerolog.New(out).With().Timestamp()
	if service != "" {
		ctx = ctx.Str("service", service)
	}
	log.Logger = ctx.Logger()
}
