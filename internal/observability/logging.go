package observability

import (
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// NewLogger creates a structured logger for one component.
// Output is JSON on stdout by default; set TICKBOOK_LOG_FORMAT=console
// for human-readable output during interactive runs. Level comes from
// TICKBOOK_LOG_LEVEL (default info).
func NewLogger(component string) zerolog.Logger {
	return zerolog.New(logSink()).
		Level(parseLogLevel(os.Getenv("TICKBOOK_LOG_LEVEL"))).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}

// WithRun stamps the run identifier on every line the returned logger
// emits, so lines from one batch run can be grepped out of interleaved
// output.
func WithRun(logger zerolog.Logger, runID uuid.UUID) zerolog.Logger {
	return logger.With().Str("run_id", runID.String()).Logger()
}

func logSink() io.Writer {
	if os.Getenv("TICKBOOK_LOG_FORMAT") == "console" {
		return zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.StampMicro}
	}
	return os.Stdout
}

func parseLogLevel(s string) zerolog.Level {
	switch s {
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func init() {
	// Timestamps in RFC3339 with nanosecond precision
	zerolog.TimeFieldFormat = time.RFC3339Nano
}
