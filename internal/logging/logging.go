// Package logging builds the process logger: the log/slog API backed by a
// charmbracelet/log handler.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	charmlog "github.com/charmbracelet/log"
)

// Config selects the logger's level and output format.
type Config struct {
	// Level is one of debug, info, warn or error. Empty means info.
	Level string
	// JSON switches from human-readable text to one JSON object per line.
	JSON   bool
	Output io.Writer
}

// ParseLevel maps a level name onto a charmbracelet level.
func ParseLevel(level string) (charmlog.Level, error) {
	if strings.TrimSpace(level) == "" {
		return charmlog.InfoLevel, nil
	}
	lvl, err := charmlog.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return 0, fmt.Errorf("logging: %w", err)
	}
	return lvl, nil
}

// New returns a slog.Logger writing through charmbracelet/log.
func New(cfg Config) (*slog.Logger, error) {
	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	handler := charmlog.NewWithOptions(out, charmlog.Options{
		Level:           lvl,
		ReportTimestamp: true,
		TimeFormat:      "15:04:05",
	})
	if cfg.JSON {
		handler.SetFormatter(charmlog.JSONFormatter)
	}
	return slog.New(handler), nil
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
