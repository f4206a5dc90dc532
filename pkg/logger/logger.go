// Package logger is the process-wide diagnostic log. Until Init is called
// everything is discarded, so stdout stays reserved for command output.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	globalLogger = zerolog.Nop()
	logFile      *lumberjack.Logger
	writer       io.Writer = io.Discard
	level              = zerolog.InfoLevel
	mu           sync.Mutex
)

// Options configures the diagnostic log.
type Options struct {
	// File is the log file path. Empty disables file output.
	File string
	// Console receives a human-readable copy (e.g. os.Stderr for --verbose).
	Console io.Writer
	// Level is one of debug, info, warn, error (default: info).
	Level string

	// Rotation (MB, count, days)
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Init initializes the global logger with the specified log file path.
func Init(logPath string) error {
	return InitWithOptions(Options{File: logPath, Level: level.String()})
}

// InitWithOptions initializes the global logger.
func InitWithOptions(opts Options) error {
	mu.Lock()
	defer mu.Unlock()

	// Close previous log file if exists
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}

	var writers []io.Writer
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		// Fail early on unwritable paths; lumberjack would only report it on first write.
		f, err := os.OpenFile(opts.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("failed to create log file: %w", err)
		}
		f.Close()

		logFile = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    orDefault(opts.MaxSizeMB, 10),
			MaxBackups: orDefault(opts.MaxBackups, 5),
			MaxAge:     orDefault(opts.MaxAgeDays, 7),
			Compress:   true,
		}
		writers = append(writers, logFile)
	}
	if opts.Console != nil {
		writers = append(writers, zerolog.ConsoleWriter{Out: opts.Console, TimeFormat: "15:04:05"})
	}

	switch len(writers) {
	case 0:
		writer = io.Discard
	case 1:
		writer = writers[0]
	default:
		writer = zerolog.MultiLevelWriter(writers...)
	}

	if opts.Level != "" {
		if lvl, err := zerolog.ParseLevel(opts.Level); err == nil && lvl != zerolog.NoLevel {
			level = lvl
		}
	}

	globalLogger = zerolog.New(writer).Level(level).With().Timestamp().Logger()
	return nil
}

// SetLevel changes the minimum level. Unknown names are ignored.
func SetLevel(name string) {
	mu.Lock()
	defer mu.Unlock()

	lvl, err := zerolog.ParseLevel(name)
	if err != nil || lvl == zerolog.NoLevel {
		return
	}
	level = lvl
	globalLogger = globalLogger.Level(level)
}

// Close closes the log file.
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	writer = io.Discard
	globalLogger = zerolog.Nop()
}

// Component returns a child logger tagged with a module name.
func Component(name string) zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return globalLogger.With().Str("module", name).Logger()
}

// Info logs an info message.
func Info(format string, v ...interface{}) {
	logf(zerolog.InfoLevel, format, v...)
}

// Debug logs a debug message.
func Debug(format string, v ...interface{}) {
	logf(zerolog.DebugLevel, format, v...)
}

// Error logs an error message.
func Error(format string, v ...interface{}) {
	logf(zerolog.ErrorLevel, format, v...)
}

// Warn logs a warning message.
func Warn(format string, v ...interface{}) {
	logf(zerolog.WarnLevel, format, v...)
}

func logf(lvl zerolog.Level, format string, v ...interface{}) {
	mu.Lock()
	l := globalLogger
	mu.Unlock()

	l.WithLevel(lvl).Msgf(format, v...)
}

// GetWriter returns the underlying writer, io.Discard when uninitialized.
func GetWriter() io.Writer {
	mu.Lock()
	defer mu.Unlock()
	return writer
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

