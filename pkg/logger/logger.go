package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

var defaultLogger *slog.Logger

// Options mirrors the observability.logging config section.
type Options struct {
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Init keeps the env-based defaults: JSON at info in production, text at
// debug elsewhere.
func Init(env string) {
	if env == "production" {
		Setup(Options{Level: "info", Format: "json"})
		return
	}
	Setup(Options{Level: "debug", Format: "text"})
}

// Setup installs the default logger. A non-empty File writes to a rotating
// file instead of stdout.
func Setup(opts Options) *slog.Logger {
	defaultLogger = New(opts)
	slog.SetDefault(defaultLogger)
	return defaultLogger
}

func New(opts Options) *slog.Logger {
	var w io.Writer = os.Stdout
	if strings.TrimSpace(opts.File) != "" {
		w = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		}
	}

	handlerOpts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}
	if strings.EqualFold(opts.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func LoggerWrapper() *slog.Logger {
	if defaultLogger == nil {
		// lazy initialize a development logger to avoid nil pointer panics
		Init("development")
	}
	return defaultLogger
}
