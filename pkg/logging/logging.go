// Package logging builds the zap loggers used by the polargraph tools.
package logging

import (
	"io"
	"os"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures New.
type Options struct {
	Level zapcore.Level
	// Console receives human readable output. Defaults to stderr; use
	// io.Discard to log to the file only.
	Console io.Writer
	Color   bool

	// File enables a rotated log file when set.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// DefaultOptions logs at info level to stderr with colors.
func DefaultOptions() Options {
	return Options{
		Level:      zapcore.InfoLevel,
		Color:      true,
		MaxSizeMB:  10,
		MaxBackups: 3,
		MaxAgeDays: 28,
	}
}

func newEncoder(color bool) zapcore.Encoder {
	level := zapcore.CapitalLevelEncoder
	if color {
		level = zapcore.CapitalColorLevelEncoder
	}
	return zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		MessageKey:       "message",
		LevelKey:         "level",
		TimeKey:          "time",
		NameKey:          "logger",
		CallerKey:        "caller",
		EncodeLevel:      level,
		EncodeTime:       zapcore.ISO8601TimeEncoder,
		EncodeDuration:   zapcore.StringDurationEncoder,
		EncodeCaller:     zapcore.ShortCallerEncoder,
		EncodeName:       zapcore.FullNameEncoder,
		ConsoleSeparator: " ",
	})
}

func newFileCore(level zapcore.Level, opts Options) zapcore.Core {
	logFile := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		LocalTime:  true,
	}
	// no escape codes in files
	return zapcore.NewCore(newEncoder(false), zapcore.AddSync(logFile), level)
}

// New returns a logger writing to the console and, if configured, a file.
// Extra options such as zap.Hooks are applied last.
func New(opts Options, extra ...zap.Option) *zap.Logger {
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	cores := []zapcore.Core{
		zapcore.NewCore(newEncoder(opts.Color), zapcore.Lock(zapcore.AddSync(console)), opts.Level),
	}
	if opts.File != "" {
		cores = append(cores, newFileCore(opts.Level, opts))
	}

	zopts := append([]zap.Option{zap.AddCaller()}, extra...)
	return zap.New(zapcore.NewTee(cores...), zopts...)
}
