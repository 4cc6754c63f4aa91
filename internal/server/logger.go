// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// newLogger builds a slog logger. Unknown levels fall back to info, any
// format other than json gets the colored tint handler.
func newLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}

	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      lvl,
		TimeFormat: time.TimeOnly,
	}))
}

// setupLogger configures the global slog logger.
func setupLogger(level, format string) {
	slog.SetDefault(newLogger(os.Stdout, level, format))
}
