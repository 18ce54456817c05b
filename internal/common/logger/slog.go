package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// SetupLogger returns a text slog.Logger on stderr.
// Valid levels are DEBUG, INFO, WARN and ERROR; verboseMode forces DEBUG.
func SetupLogger(verboseMode bool, logLevel string) *slog.Logger {
	return NewLogger(os.Stderr, verboseMode, logLevel)
}

// NewLogger is SetupLogger with an explicit destination.
func NewLogger(w io.Writer, verboseMode bool, logLevel string) *slog.Logger {
	level := ParseLogLevel(logLevel)
	if verboseMode {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// ParseLogLevel converts a level name to slog.Level, defaulting to INFO.
func ParseLogLevel(levelStr string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogDebug logs at debug level; a nil logger is ignored.
func LogDebug(logger *slog.Logger, msg string, args ...any) {
	if logger != nil {
		logger.Debug(msg, args...)
	}
}

// LogInfo logs at info level; a nil logger is ignored.
func LogInfo(logger *slog.Logger, msg string, args ...any) {
	if logger != nil {
		logger.Info(msg, args...)
	}
}

// LogWarn logs at warn level; a nil logger is ignored.
func LogWarn(logger *slog.Logger, msg string, args ...any) {
	if logger != nil {
		logger.Warn(msg, args...)
	}
}

// LogError logs at error level; a nil logger is ignored.
func LogError(logger *slog.Logger, msg string, args ...any) {
	if logger != nil {
		logger.Error(msg, args...)
	}
}
