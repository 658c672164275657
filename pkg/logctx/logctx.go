// Package logctx builds the structured logger shared by every component.
//
// Components never reach for a global logger; main wires one
// zerolog.Logger and passes it down through constructors, the same
// capability-injection shape the core uses for Clock/Exchange/Notifier.
package logctx

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Config controls the level and rendering of the process logger.
type Config struct {
	Level  string // debug, info, warn, error
	Pretty bool   // human-readable console writer instead of JSON
}

// New builds a zerolog.Logger per cfg. Unknown levels fall back to info.
func New(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var output io.Writer = os.Stdout
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
	}

	return zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// Component returns a child logger tagged with the owning component name.
// No constructor in internal/* calls it; those that tag their logger set
// the same "component" field inline.
func Component(base zerolog.Logger, name string) zerolog.Logger {
	return base.With().Str("component", name).Logger()
}

// init keeps the default zerolog time format consistent even for loggers
// built before New() runs (e.g. package-level fallbacks in tests).
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
