// Package logtrace initializes structured logging for the Workdeck
// services and carries request identifiers for tracing.
package logtrace

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger configures the global zerolog logger to write to stderr
// with Unix timestamps. Call once at process startup before any other
// package logs.
func InitLogger() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}
