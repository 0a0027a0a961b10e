package logger

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ManskeLab/slicer-hand-nnUNet/internal/env"
)

// Options configures logger construction.
type Options struct {
	logToFile bool
	logFile   string
	level     slog.Level
}

// Option mutates logger Options.
type Option func(*Options)

// WithLogToFile enables or disables mirroring logs to a rotated file.
func WithLogToFile(enabled bool) Option {
	return func(o *Options) { o.logToFile = enabled }
}

// WithLogFile sets the log file path used when file logging is enabled.
func WithLogFile(path string) Option {
	return func(o *Options) { o.logFile = path }
}

// WithLevel sets the minimum log level.
func WithLevel(level slog.Level) Option {
	return func(o *Options) { o.level = level }
}

// New builds a slog.Logger for the given environment.
// Development uses a colorized tint handler on stderr; Production uses JSON.
// When file logging is enabled, output is duplicated into a size-rotated file.
func New(environment env.Environment, opts ...Option) *slog.Logger {
	options := Options{
		logFile: "logs/handcbct.log",
		level:   slog.LevelInfo,
	}
	for _, opt := range opts {
		opt(&options)
	}

	var w io.Writer = os.Stderr
	if options.logToFile {
		w = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   options.logFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		})
	}

	var handler slog.Handler
	switch environment {
	case env.Production:
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: options.level})
	default:
		handler = tint.NewHandler(w, &tint.Options{
			Level:      options.level,
			TimeFormat: time.Kitchen,
		})
	}

	return slog.New(handler)
}
