// Package logging builds the service's slog logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	slogmulti "github.com/samber/slog-multi"
)

// Config selects level, format and an optional log file.
type Config struct {
	ServiceName string
	Environment string
	Level       string // debug, info, warn, error
	Format      string // json or text
	// File, when set, receives a copy of every record.
	File string
	// Writer overrides stderr as the console destination.
	Writer io.Writer
}

// NewLogger returns the logger and a closer for the log file, if any.
func NewLogger(cfg Config) (*slog.Logger, io.Closer, error) {
	level := new(slog.LevelVar)
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level.Set(slog.LevelDebug)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		level.Set(slog.LevelInfo)
	}
	opts := &slog.HandlerOptions{Level: level}

	console := cfg.Writer
	if console == nil {
		console = os.Stderr
	}
	handlers := []slog.Handler{newHandler(console, cfg.Format, opts)}

	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0750); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		// The file always gets JSON so it stays machine readable.
		handlers = append(handlers, slog.NewJSONHandler(f, opts))
		closer = f
	}

	logger := slog.New(slogmulti.Fanout(handlers...)).With(
		slog.String("service", cfg.ServiceName),
		slog.String("env", cfg.Environment),
	)
	return logger, closer, nil
}

func newHandler(w io.Writer, format string, opts *slog.HandlerOptions) slog.Handler {
	if strings.EqualFold(format, "text") {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
