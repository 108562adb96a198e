package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Environment variables read by Init.
const (
	EnvLevel  = "CATALOG_LOG_LEVEL"
	EnvFormat = "CATALOG_LOG_FORMAT"
)

// Init initializes the global logger with configuration from environment variables.
// CATALOG_LOG_LEVEL controls the log level: trace, debug, info, warn, error (default: info).
// CATALOG_LOG_FORMAT=json writes plain JSON lines instead of the console format.
func Init() {
	InitWith(os.Stderr)
}

// InitWith is Init with an explicit output.
func InitWith(out io.Writer) {
	zerolog.SetGlobalLevel(ParseLevel(os.Getenv(EnvLevel)))

	if os.Getenv(EnvFormat) == "json" {
		log.Logger = zerolog.New(out).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: out})
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch level {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
