package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger constructs a zerolog.Logger writing to stdout. Development mode and
// verbose both lower the level to debug; development also switches to the
// console writer.
func NewLogger(appEnv string, verbose bool) zerolog.Logger {
	return newLogger(os.Stdout, appEnv, verbose)
}

func newLogger(out io.Writer, appEnv string, verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose || appEnv == "development" {
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Logger()

	if appEnv == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	}
	return logger
}

// Logger aliases zerolog.Logger so other packages can accept a logger
// without importing zerolog themselves.
type Logger = zerolog.Logger

// Nop returns a logger that discards everything.
func Nop() Logger {
	return zerolog.Nop()
}
