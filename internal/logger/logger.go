package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// OutputFormat determines how logs are formatted
type OutputFormat int

const (
	FormatText OutputFormat = iota
	FormatJSON
)

// ParseOutputFormat converts a string to an OutputFormat
func ParseOutputFormat(format string) OutputFormat {
	switch strings.ToLower(format) {
	case "json":
		return FormatJSON
	default:
		return FormatText
	}
}

// ParseLevel converts a standard severity name to a log level.
// Both the Go-style (warn, fatal) and the classic (WARNING, CRITICAL) names are accepted.
func ParseLevel(name string) (logrus.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "TRACE":
		return logrus.TraceLevel, nil
	case "DEBUG":
		return logrus.DebugLevel, nil
	case "INFO":
		return logrus.InfoLevel, nil
	case "WARN", "WARNING":
		return logrus.WarnLevel, nil
	case "ERROR":
		return logrus.ErrorLevel, nil
	case "FATAL", "CRITICAL":
		return logrus.FatalLevel, nil
	default:
		return logrus.InfoLevel, fmt.Errorf("unknown log level %q", name)
	}
}

// Config holds logger configuration
type Config struct {
	Level  string
	Format OutputFormat
	Output io.Writer
	// FileDir, when set, mirrors every entry into FileDir/bot_YYYYMMDD.log
	FileDir string
}

// Logger provides leveled, structured logging
type Logger struct {
	entry *logrus.Entry
	file  *os.File
}

// New creates a text logger on stdout, at debug level when debug is set
func New(debug bool) *Logger {
	level := "INFO"
	if debug {
		level = "DEBUG"
	}
	l, err := NewWithConfig(Config{Level: level})
	if err != nil {
		// Only the file sink can fail and none was requested.
		panic(err)
	}
	return l
}

// NewWithConfig creates a logger with detailed configuration
func NewWithConfig(cfg Config) (*Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	var file *os.File
	if cfg.FileDir != "" {
		if err := os.MkdirAll(cfg.FileDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		file, err = os.OpenFile(DailyFilePath(cfg.FileDir, time.Now()), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out = io.MultiWriter(out, file)
	}

	base := logrus.New()
	base.SetOutput(out)
	base.SetLevel(level)
	switch cfg.Format {
	case FormatJSON:
		base.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	default:
		base.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
			DisableColors:   true,
		})
	}

	return &Logger{entry: logrus.NewEntry(base), file: file}, nil
}

// DailyFilePath returns the per-day log file inside dir
func DailyFilePath(dir string, now time.Time) string {
	return filepath.Join(dir, "bot_"+now.Format("20060102")+".log")
}

// Close releases the file sink, if any
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// WithFields returns a new logger with additional fields
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{entry: l.entry.WithFields(fields), file: l.file}
}

// Info logs an info message
func (l *Logger) Info(format string, args ...interface{}) {
	l.entry.Infof(format, args...)
}

// InfoWithFields logs an info message with structured fields
func (l *Logger) InfoWithFields(message string, fields map[string]interface{}) {
	l.entry.WithFields(fields).Info(message)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
}

// ErrorWithFields logs an error message with structured fields
func (l *Logger) ErrorWithFields(message string, fields map[string]interface{}) {
	l.entry.WithFields(fields).Error(message)
}

// Debug logs a debug message (only if debug level is enabled)
func (l *Logger) Debug(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}

// DebugWithFields logs a debug message with structured fields
func (l *Logger) DebugWithFields(message string, fields map[string]interface{}) {
	l.entry.WithFields(fields).Debug(message)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.entry.Warnf(format, args...)
}

// WarnWithFields logs a warning message with structured fields
func (l *Logger) WarnWithFields(message string, fields map[string]interface{}) {
	l.entry.WithFields(fields).Warn(message)
}

// Fatal logs a fatal error and exits
func (l *Logger) Fatal(format string, args ...interface{}) {
	l.entry.Fatalf(format, args...)
}

// With returns a contextual logger with a component name
func (l *Logger) With(component string) *ContextLogger {
	return &ContextLogger{entry: l.entry.WithField("component", component)}
}

// ContextLogger wraps Logger with a component name for contextual logging
type ContextLogger struct {
	entry *logrus.Entry
}

// WithFields returns a new context logger with additional fields
func (c *ContextLogger) WithFields(fields map[string]interface{}) *ContextLogger {
	return &ContextLogger{entry: c.entry.WithFields(fields)}
}

func (c *ContextLogger) Info(format string, args ...interface{}) {
	c.entry.Infof(format, args...)
}

func (c *ContextLogger) InfoWithFields(message string, fields map[string]interface{}) {
	c.entry.WithFields(fields).Info(message)
}

func (c *ContextLogger) Error(format string, args ...interface{}) {
	c.entry.Errorf(format, args...)
}

func (c *ContextLogger) ErrorWithFields(message string, fields map[string]interface{}) {
	c.entry.WithFields(fields).Error(message)
}

func (c *ContextLogger) Debug(format string, args ...interface{}) {
	c.entry.Debugf(format, args...)
}

func (c *ContextLogger) DebugWithFields(message string, fields map[string]interface{}) {
	c.entry.WithFields(fields).Debug(message)
}

func (c *ContextLogger) Warn(format string, args ...interface{}) {
	c.entry.Warnf(format, args...)
}

func (c *ContextLogger) WarnWithFields(message string, fields map[string]interface{}) {
	c.entry.WithFields(fields).Warn(message)
}

func (c *ContextLogger) Fatal(format string, args ...interface{}) {
	c.entry.Fatalf(format, args...)
}

// Discard returns a logger that drops everything, for tests
func Discard() *Logger {
	l, _ := NewWithConfig(Config{Level: "INFO", Output: io.Discard})
	return l
}
