package app

import (
	"errors"
	"io"
	"log/slog"
)

// logLevels is the closed set of accepted --log-level values.
var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// ValidateLogging rejects log level and format values outside the accepted
// sets, so callers can surface a usage error before a logger is built.
func ValidateLogging(levelStr, formatStr string) error {
	if formatStr != "text" && formatStr != "json" {
		return errors.New("invalid log-format: must be 'text' or 'json'")
	}
	if _, ok := logLevels[levelStr]; !ok {
		return errors.New("invalid log-level: must be 'debug', 'info', 'warn', or 'error'")
	}
	return nil
}

// newLogger builds an isolated slog.Logger writing to outW; the global
// logger is never touched. Values that slipped past validation degrade to
// info-level text output.
func newLogger(levelStr, formatStr string, outW io.Writer) *slog.Logger {
	level, ok := logLevels[levelStr]
	if !ok {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if formatStr == "json" {
		return slog.New(slog.NewJSONHandler(outW, opts))
	}
	return slog.New(slog.NewTextHandler(outW, opts))
}
