// Package logging configures the zerolog loggers shared by the client and the
// reference backend.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pageza/pantrycam/config"
)

// New returns a logger tagged with app. Production writes JSON to stderr,
// every other environment gets the human readable console writer.
func New(app string, cfg *config.Config) zerolog.Logger {
	var out io.Writer = os.Stderr
	if !cfg.Environment.JSONLogs() {
		out = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		}
	}

	logger := zerolog.New(out).
		Level(ParseLevel(cfg.LogLevel)).
		With().
		Timestamp().
		Str("app", app).
		Logger()
	log.Logger = logger
	return logger
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(name string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(name)
	if err != nil || name == "" {
		return zerolog.InfoLevel
	}
	return lvl
}
