package logging

import (
	"log/slog"
	"os"
	"strings"
)

// NewJSONLogger builds the process-wide logger. Every record carries
// the service name so api, worker and watch logs can be told apart in
// one aggregated stream; debug level additionally records the call
// site for pipeline troubleshooting.
func NewJSONLogger(service, level string) *slog.Logger {
	parsed := parseLevel(level)
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     parsed,
		AddSource: parsed == slog.LevelDebug,
	})
	return slog.New(handler).With("service", service)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
