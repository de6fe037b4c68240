package runtime

import (
	"io"
	"log/slog"
	"os"
)

func DefaultLogger() *slog.Logger {
	return NewLogger(os.Stderr, slog.LevelInfo)
}

// NewLogger returns the text logger used for warnings and diagnostics.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
