// Package logging provides the structured logger used across the engine.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Config selects the logger's level and wire format.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, text
	Output io.Writer
}

// Logger wraps a zerolog.Logger with the handful of helpers the engine
// actually needs.
type Logger struct {
	z zerolog.Logger
}

// New builds a Logger from cfg, defaulting to stdout/JSON/info.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}

	var out io.Writer = cfg.Output
	if cfg.Format == "text" {
		out = zerolog.ConsoleWriter{Out: cfg.Output, TimeFormat: time.RFC3339}
	}

	z := zerolog.New(out).With().Timestamp().Logger()
	switch cfg.Level {
	case "debug":
		z = z.Level(zerolog.DebugLevel)
	case "warn":
		z = z.Level(zerolog.WarnLevel)
	case "error":
		z = z.Level(zerolog.ErrorLevel)
	default:
		z = z.Level(zerolog.InfoLevel)
	}
	return &Logger{z: z}
}

// Info logs msg at info level with the given key/value pairs.
func (l *Logger) Info(msg string, kv ...interface{}) { l.event(l.z.Info(), msg, kv) }

// Warn logs msg at warn level. Used for recoverable failures — a stale
// intel refresh, a dropped background-sink write — that must never fail
// the caller's response.
func (l *Logger) Warn(msg string, kv ...interface{}) { l.event(l.z.Warn(), msg, kv) }

// Error logs msg at error level.
func (l *Logger) Error(msg string, kv ...interface{}) { l.event(l.z.Error(), msg, kv) }

// Fatal logs msg at fatal level and exits the process. Reserved for
// startup failures (e.g. a student-model file that fails to parse).
func (l *Logger) Fatal(msg string, kv ...interface{}) { l.event(l.z.Fatal(), msg, kv) }

func (l *Logger) event(e *zerolog.Event, msg string, kv []interface{}) {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		e = e.Interface(key, kv[i+1])
	}
	e.Msg(msg)
}

// With returns a child Logger carrying one extra field on every entry.
func (l *Logger) With(key string, value interface{}) *Logger {
	return &Logger{z: l.z.With().Interface(key, value).Logger()}
}
