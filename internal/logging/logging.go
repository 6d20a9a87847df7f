// Package logging installs the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"

	"github.com/ibeckermayer/trendteller/internal/config"
)

// Setup builds a tint handler from cfg, installs it as the slog default and
// returns the logger.
func Setup(cfg config.LogConfig) *slog.Logger {
	return SetupWriter(os.Stderr, cfg)
}

// SetupWriter is Setup with an explicit destination
func SetupWriter(w io.Writer, cfg config.LogConfig) *slog.Logger {
	logger := slog.New(tint.NewHandler(w, &tint.Options{
		Level:      ParseLevel(cfg.Level),
		TimeFormat: time.Kitchen,
		NoColor:    cfg.NoColor,
	}))
	slog.SetDefault(logger)
	return logger
}

// ParseLevel maps a config level name to a slog level. Unknown names mean info.
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
