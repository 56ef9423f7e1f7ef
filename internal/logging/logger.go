// Package logging configures the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// Config holds logger configuration
type Config struct {
	Debug      bool // Debug lowers the level from info to debug
	JSONFormat bool // Use JSON format (default: text)
}

// Initialize builds a logger from config, installs it as the slog default,
// and returns it. Components derive their own loggers from the default
// with slog's With.
func Initialize(cfg Config) *slog.Logger {
	return InitializeWriter(cfg, os.Stderr)
}

// InitializeWriter is Initialize with an explicit output.
func InitializeWriter(cfg Config, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.Debug,
	}

	var handler slog.Handler
	if cfg.JSONFormat {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
