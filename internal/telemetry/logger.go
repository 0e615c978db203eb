package telemetry

import (
	"fmt"
	"log/slog"
	"os"
)

// NewLogger creates a structured logger for exactly the levels and formats
// internal/config.Config's struct tags accept
// (`validate:"omitempty,oneof=debug info warn error"` for level,
// `validate:"omitempty,oneof=json text"` for format). Because Config.Load
// already rejects anything else before this is ever called, NewLogger does
// not re-implement that validation with a lenient default case — an
// unrecognized value here means validation was bypassed somewhere, which
// is a bug worth surfacing as an error rather than silently logging at the
// wrong level.
func NewLogger(format, level string) (*slog.Logger, error) {
	var lvl slog.Level
	switch level {
	case "", "info":
		lvl = slog.LevelInfo
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("unrecognized log level %q", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	switch format {
	case "", "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		return nil, fmt.Errorf("unrecognized log format %q", format)
	}

	return slog.New(handler), nil
}
