package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is the application logger. It writes structured key/value records.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a Logger writing text records at info level to stderr.
// Stdout is left alone because the stdio transport owns it.
func NewLogger() *Logger {
	return New(os.Stderr, "text", "info")
}

// New creates a Logger for the given writer, format ("text" or "json") and
// level name.
func New(w io.Writer, format, level string) *Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return &Logger{
		Logger: slog.New(handler).With(slog.String("service", "flowkit")),
	}
}

// NewNop returns a Logger that discards everything.
func NewNop() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// ParseLevel maps a level name onto a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// With returns a Logger that adds the given attributes to every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}
