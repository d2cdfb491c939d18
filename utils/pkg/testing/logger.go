package relaytesting

import (
	"log/slog"
	"os"

	"github.com/malbeclabs/orerelay/utils/pkg/logger"
)

// NewLogger returns a stderr test logger that only prints errors unless DEBUG
// is 1 (info) or 2 (debug). DEBUG_FORMAT=json switches to JSON lines.
func NewLogger() *slog.Logger {
	level := slog.LevelError
	switch os.Getenv("DEBUG") {
	case "2":
		level = slog.LevelDebug
	case "1":
		level = slog.LevelInfo
	}
	format, err := logger.ParseFormat(os.Getenv("DEBUG_FORMAT"))
	if err != nil {
		format = logger.FormatText
	}
	return logger.NewWithOptions(logger.Options{Level: &level, Format: format, Writer: os.Stderr})
}
