package main

import (
	"io"
	"log/slog"
	"strings"

	"github.com/lmittmann/tint"
)

// newLogger builds the tint console logger. Unknown levels fall back to info.
func newLogger(w io.Writer, level string, noColor bool) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(
		tint.NewHandler(w, &tint.Options{
			Level:      lvl,
			TimeFormat: "15:04:05",
			NoColor:    noColor,
		}),
	)
}
