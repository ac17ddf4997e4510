// Package monitoring holds the diagnostic logger shared by the simulation,
// radar, prediction and replay packages, and its zerolog backend.
package monitoring

import (
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logf receives recoverable numerical and replay events. It defaults to
// log.Printf; the CLI routes it through zerolog and tests mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces Logf. nil installs a no-op.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// ParseLevel maps a level name to a zerolog level. Unknown names are info.
func ParseLevel(name string) zerolog.Level {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "WARN":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewConsoleLogger returns a human-readable logger writing to w.
func NewConsoleLogger(w io.Writer, level zerolog.Level, noColor bool) zerolog.Logger {
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: noColor}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// ZerologLogf adapts l for SetLogger. A leading "component: " prefix, as
// used by every package here, becomes the component field.
func ZerologLogf(l zerolog.Logger) func(format string, v ...interface{}) {
	return func(format string, v ...interface{}) {
		msg := fmt.Sprintf(format, v...)
		ev := l.Info()
		if comp, rest, ok := strings.Cut(msg, ": "); ok && comp != "" && !strings.ContainsAny(comp, " \t") {
			ev = ev.Str("component", comp)
			msg = rest
		}
		ev.Msg(msg)
	}
}
