package logging

import (
	"log/slog"
	"os"
	"strings"
)

// NewLogger creates a structured logger appropriate for the
// environment: JSON in production, human-readable text otherwise.
// An empty level defaults to info in production and debug elsewhere.
func NewLogger(env, level string) *slog.Logger {
	production := env == "production"

	opts := &slog.HandlerOptions{
		Level: resolveLevel(level, production),
	}

	var handler slog.Handler
	if production {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func resolveLevel(level string, production bool) slog.Level {
	if level == "" {
		if production {
			return slog.LevelInfo
		}

		return slog.LevelDebug
	}

	return ParseLevel(level)
}

// ParseLevel maps a config string to a slog level. Unknown values
// fall back to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
