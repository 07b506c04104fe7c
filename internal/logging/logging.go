// Package logging configures the process-wide slog default logger.
package logging

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Init installs the default slog logger writing to stderr in the given
// format ("text" or "json") at the given level.
func Init(level, format string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "", "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("logging: unknown log format %q", format)
	}

	slog.SetDefault(slog.New(handler))
	return nil
}

// ParseLevel converts a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("logging: unknown log level %q", s)
	}
}
