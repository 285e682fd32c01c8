// Package obslog is the ambient logging and metrics seam every component
// (A-M) logs and records through, so call sites never import zerolog or
// OpenTelemetry directly.
package obslog

import (
	"os"

	"github.com/rs/zerolog"
)

// Logger is a minimal logging interface, implemented here by ZeroLogger and
// NopLogger.
type Logger interface {
	Info(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
	Debug(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
}

// ZeroLogger backs Logger with zerolog, writing structured JSON to stdout.
type ZeroLogger struct {
	log zerolog.Logger
}

// New constructs a ZeroLogger at the given level ("debug", "info", "warn",
// "error"; unrecognized values fall back to "info").
func New(level string) *ZeroLogger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return &ZeroLogger{log: zerolog.New(os.Stdout).Level(lvl).With().Timestamp().Logger()}
}

func (z *ZeroLogger) event(e *zerolog.Event, msg string, fields map[string]any) {
	for k, v := range fields {
		e = e.Interface(k, v)
	}
	e.Msg(msg)
}

func (z *ZeroLogger) Info(msg string, fields map[string]any)  { z.event(z.log.Info(), msg, fields) }
func (z *ZeroLogger) Error(msg string, fields map[string]any) { z.event(z.log.Error(), msg, fields) }
func (z *ZeroLogger) Debug(msg string, fields map[string]any) { z.event(z.log.Debug(), msg, fields) }
func (z *ZeroLogger) Warn(msg string, fields map[string]any)  { z.event(z.log.Warn(), msg, fields) }

// NopLogger drops every log line; used as the zero-value default so
// constructors never need a nil check.
type NopLogger struct{}

func (NopLogger) Info(string, map[string]any)  {}
func (NopLogger) Error(string, map[string]any) {}
func (NopLogger) Debug(string, map[string]any) {}
func (NopLogger) Warn(string, map[string]any)  {}
