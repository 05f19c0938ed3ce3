// Package logging wires the process-wide zerolog logger.
package logging

import (
	"io"
	stdlog "log"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures the global zerolog logger from a level string
// ("debug", "info", "warn", "error" — default "info") and redirects the
// standard library logger to it so third-party packages using log.Printf
// still end up in the structured stream.
func Init(level string) {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var w io.Writer = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	log.Logger = log.Output(w).With().Timestamp().Logger()

	lvl, err := zerolog.ParseLevel(normaliseLevel(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	stdlog.SetFlags(0)
	stdlog.SetOutput(log.Logger)
}

func normaliseLevel(level string) string {
	l := strings.ToLower(strings.TrimSpace(level))
	if l == "warning" {
		return "warn"
	}
	if l == "" {
		return "info"
	}
	return l
}
