package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/lmittmann/tint"
)

// LogLevel represents the log level
type LogLevel int

const (
	// DEBUG level
	DEBUG LogLevel = iota
	// INFO level
	INFO
	// WARN level
	WARN
	// ERROR level
	ERROR
)

var slogLevels = map[LogLevel]slog.Level{
	DEBUG: slog.LevelDebug,
	INFO:  slog.LevelInfo,
	WARN:  slog.LevelWarn,
	ERROR: slog.LevelError,
}

// Logger writes leveled messages to the console and a rotated JSON file
type Logger struct {
	level   *slog.LevelVar
	handler slog.Handler
	file    io.Closer
}

// LoggerConfig represents the configuration for the logger
type LoggerConfig struct {
	Level LogLevel
	// FilePath of the JSON log file; empty disables file output
	FilePath string
	// MaxSize of the log file in megabytes before it is rotated
	MaxSize    int
	MaxBackups int
	Console    bool
	// ConsoleWriter overrides os.Stdout, mostly for tests
	ConsoleWriter io.Writer
}

// DefaultConfig returns default logger configuration
func DefaultConfig() LoggerConfig {
	return LoggerConfig{
		Level:   INFO,
		Console: true,
	}
}

// New creates a new logger
func New(config LoggerConfig) (*Logger, error) {
	level := new(slog.LevelVar)
	level.Set(slogLevels[config.Level])

	var (
		handlers []slog.Handler
		file     *rotatingFile
	)

	if config.Console {
		w := config.ConsoleWriter
		if w == nil {
			w = os.Stdout
		}
		handlers = append(handlers, tint.NewHandler(w, &tint.Options{
			Level:      level,
			AddSource:  true,
			TimeFormat: "2006-01-02 15:04:05.000",
		}))
	}

	if config.FilePath != "" {
		var err error
		file, err = newRotatingFile(config.FilePath, int64(config.MaxSize)*1024*1024, config.MaxBackups)
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, slog.NewJSONHandler(file, &slog.HandlerOptions{
			Level:     level,
			AddSource: true,
		}))
	}

	l := &Logger{
		level:   level,
		handler: fanout(handlers),
	}
	if file != nil {
		l.file = file
	}
	return l, nil
}

// Slog exposes the logger as a *slog.Logger for libraries that take one
func (l *Logger) Slog() *slog.Logger {
	return slog.New(l.handler)
}

// SetLevel sets the log level
func (l *Logger) SetLevel(level LogLevel) {
	l.level.Set(slogLevels[level])
}

// log must be called directly from the exported Debug/Info/Warn/Error
// functions so the caller frame stays at a fixed depth
func (l *Logger) log(level LogLevel, format string, args ...interface{}) {
	ctx := context.Background()
	lvl := slogLevels[level]
	if !l.handler.Enabled(ctx, lvl) {
		return
	}

	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])

	r := slog.NewRecord(time.Now(), lvl, fmt.Sprintf(format, args...), pcs[0])
	if err := l.handler.Handle(ctx, r); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write log: %v\n", err)
	}
}

// Debug logs debug level messages
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(DEBUG, format, args...)
}

// Info logs info level messages
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(INFO, format, args...)
}

// Warn logs warning level messages
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(WARN, format, args...)
}

// Error logs error level messages
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(ERROR, format, args...)
}

// Close closes the log file, if any
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// multiHandler sends every record to all handlers that accept its level
type multiHandler []slog.Handler

func fanout(handlers []slog.Handler) slog.Handler {
	if len(handlers) == 1 {
		return handlers[0]
	}
	return multiHandler(handlers)
}

func (m multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range m {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(multiHandler, len(m))
	for i, h := range m {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (m multiHandler) WithGroup(name string) slog.Handler {
	out := make(multiHandler, len(m))
	for i, h := range m {
		out[i] = h.WithGroup(name)
	}
	return out
}
