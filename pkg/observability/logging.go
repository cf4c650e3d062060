package observability

import (
	"log/slog"
	"os"
)

// NewLogger builds the process logger. level accepts the slog level names
// (DEBUG, INFO, WARN, ERROR, case-insensitive); anything unparsable falls
// back to INFO.
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
