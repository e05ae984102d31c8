package log

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New builds the process logger. Production writes JSON lines; other
// environments get the console writer. An explicit level overrides the
// environment default.
func New(environment, level string) zerolog.Logger {
	return newLogger(os.Stdout, environment, level)
}

func newLogger(out io.Writer, environment, level string) zerolog.Logger {
	production := environment == "production"

	writer := out
	if !production {
		writer = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
	}

	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(resolveLevel(production, level))

	return zerolog.New(writer).With().
		Timestamp().
		Str("env", environment).
		Logger()
}

func resolveLevel(production bool, level string) zerolog.Level {
	if parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level))); err == nil && level != "" {
		return parsed
	}
	if production {
		return zerolog.InfoLevel
	}
	return zerolog.DebugLevel
}
