// Package logger builds sentryscan's structured zerolog logger from a small
// config struct, following the same shape the rest of the module expects:
// construct once at startup, then scope with .With().Str("component", ...).
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Config controls the root logger's verbosity and output format.
type Config struct {
	Level  string // debug, info, warn(ing), error, critical
	Pretty bool   // human-readable console output instead of JSON lines
}

// New builds the root zerolog.Logger for the process.
func New(cfg Config) zerolog.Logger {
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug", "DEBUG":
		level = zerolog.DebugLevel
	case "info", "INFO":
		level = zerolog.InfoLevel
	case "warn", "warning", "WARNING":
		level = zerolog.WarnLevel
	case "error", "ERROR":
		level = zerolog.ErrorLevel
	case "critical", "CRITICAL":
		level = zerolog.FatalLevel
	}

	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var output io.Writer = os.Stdout
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		}
	}

	return zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Logger()
}
