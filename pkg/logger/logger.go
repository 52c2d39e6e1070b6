// Package logger builds the structured slog logger shared by the commands.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options selects the minimum level and output format
type Options struct {
	Level  string // DEBUG, INFO, WARN or ERROR
	Format string // json or text
	Output io.Writer
}

var programLevel = new(slog.LevelVar)

// New creates a logger and installs it as the slog default
func New(opts Options) *slog.Logger {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	programLevel.Set(level)

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	handlerOpts := &slog.HandlerOptions{Level: programLevel}
	var handler slog.Handler
	if strings.EqualFold(opts.Format, "text") {
		handler = slog.NewTextHandler(out, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(out, handlerOpts)
	}

	l := slog.New(handler)
	slog.SetDefault(l)
	return l
}

// SetLevel sets the minimum log level for loggers created by New
func SetLevel(level slog.Level) {
	programLevel.Set(level)
}

// ParseLevel converts a string level name to slog.Level
func ParseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "", "INFO":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %s (defaulting to INFO)", levelStr)
	}
}

// Discard returns a logger that drops every record
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
