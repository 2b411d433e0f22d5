// Package obs builds the process logger and the Prometheus metrics shared
// by every component.
package obs

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"corrade/internal/config"
)

// NewLogger builds a slog logger from the logging section. The returned
// closer releases the log file, if any.
func NewLogger(cfg config.Config) (*slog.Logger, io.Closer, error) {
	var (
		out    io.Writer = os.Stderr
		closer io.Closer = io.NopCloser(nil)
	)
	if cfg.Logging.File != "" {
		f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out, closer = f, f
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Logging.Level)}
	var h slog.Handler
	if strings.EqualFold(cfg.Logging.Format, "text") {
		h = slog.NewTextHandler(out, opts)
	} else {
		h = slog.NewJSONHandler(out, opts)
	}
	return slog.New(h).With("service", "corrade"), closer, nil
}

// ParseLevel maps a config level name to a slog level. Unknown names fall
// back to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
