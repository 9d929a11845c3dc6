package main

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/c360/protosignal/config"
)

// setupLogger builds the process logger. Logs go to stderr; stdout carries
// the signal stream.
func setupLogger(w io.Writer, level, format string) *slog.Logger {
	logLevel, err := config.ParseLevel(level)
	if err != nil {
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: logLevel == slog.LevelDebug,
	}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler).With(
		"service", appName,
		"version", Version,
		"pid", os.Getpid(),
	)
}
