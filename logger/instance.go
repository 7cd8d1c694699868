package logger

import (
	"fmt"
	"strings"
)

// Global logger instance, console only until InitFromConfig runs
var defaultLogger *Logger

func init() {
	defaultLogger, _ = New(DefaultConfig())
}

// InitFromConfig initializes the logger from configuration
func InitFromConfig(level, filePath string, maxSize, maxBackups int, console bool) error {
	logLevel, err := ParseLogLevel(level)
	if err != nil {
		return err
	}

	logger, err := New(LoggerConfig{
		Level:      logLevel,
		FilePath:   filePath,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		Console:    console,
	})
	if err != nil {
		return err
	}

	SetDefault(logger)
	return nil
}

// SetDefault replaces the package logger and closes the previous one
func SetDefault(logger *Logger) {
	old := defaultLogger
	defaultLogger = logger
	if old != nil {
		old.Close()
	}
}

// Default returns the package logger
func Default() *Logger {
	return defaultLogger
}

// ParseLogLevel parses log level string
func ParseLogLevel(level string) (LogLevel, error) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return DEBUG, nil
	case "INFO":
		return INFO, nil
	case "WARN", "WARNING":
		return WARN, nil
	case "ERROR":
		return ERROR, nil
	default:
		return INFO, fmt.Errorf("unknown log level: %s", level)
	}
}

// Debug logs debug level messages
func Debug(format string, args ...interface{}) {
	defaultLogger.log(DEBUG, format, args...)
}

// Info logs info level messages
func Info(format string, args ...interface{}) {
	defaultLogger.log(INFO, format, args...)
}

// Warn logs warning level messages
func Warn(format string, args ...interface{}) {
	defaultLogger.log(WARN, format, args...)
}

// Error logs error level messages
func Error(format string, args ...interface{}) {
	defaultLogger.log(ERROR, format, args...)
}

// Close closes the logger
func Close() error {
	if defaultLogger != nil {
		return defaultLogger.Close()
	}
	return nil
}
