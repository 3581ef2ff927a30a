package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"igdownloader/pkg/config"
)

// Logger defines the interface for logging operations.
type Logger interface {
	Debug(msg string)
	Info(msg string)
	Warn(msg string)
	Error(msg string)
	Fatal(msg string)

	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	DebugWithFields(msg string, fields map[string]interface{})
	InfoWithFields(msg string, fields map[string]interface{})
	WarnWithFields(msg string, fields map[string]interface{})
	ErrorWithFields(msg string, fields map[string]interface{})

	// GetZerolog returns the underlying zerolog instance for advanced usage.
	GetZerolog() *zerolog.Logger
}

// zerologLogger implements Logger on top of zerolog.
type zerologLogger struct {
	logger *zerolog.Logger
	fields map[string]interface{}
}

// New creates a Logger from the logging configuration.
func New(cfg *config.LoggingConfig) (Logger, error) {
	level, err := parseLogLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var output io.Writer
	if cfg.File == "" {
		output = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "15:04:05",
		}
	} else {
		output, err = setupFileOutput(cfg.File)
		if err != nil {
			return nil, fmt.Errorf("failed to setup file output: %w", err)
		}
	}

	zlog := zerolog.New(output).With().
		Timestamp().
		Str("app", "igdownloader").
		Logger()

	return &zerologLogger{
		logger: &zlog,
		fields: make(map[string]interface{}),
	}, nil
}

// setupFileOutput opens the configured log file, creating its directory.
func setupFileOutput(path string) (io.Writer, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return file, nil
}

func parseLogLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "", "info":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	case "disabled":
		return zerolog.Disabled, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("unknown log level: %s", level)
	}
}

func (l *zerologLogger) Debug(msg string) { l.addFields(l.logger.Debug()).Msg(msg) }
func (l *zerologLogger) Info(msg string)  { l.addFields(l.logger.Info()).Msg(msg) }
func (l *zerologLogger) Warn(msg string)  { l.addFields(l.logger.Warn()).Msg(msg) }
func (l *zerologLogger) Error(msg string) { l.addFields(l.logger.Error()).Msg(msg) }
func (l *zerologLogger) Fatal(msg string) { l.addFields(l.logger.Fatal()).Msg(msg) }

// WithField returns a child logger carrying an extra field.
func (l *zerologLogger) WithField(key string, value interface{}) Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

// WithFields returns a child logger carrying extra fields.
func (l *zerologLogger) WithFields(fields map[string]interface{}) Logger {
	child := &zerologLogger{
		logger: l.logger,
		fields: make(map[string]interface{}, len(l.fields)+len(fields)),
	}
	for k, v := range l.fields {
		child.fields[k] = v
	}
	for k, v := range fields {
		child.fields[k] = v
	}
	return child
}

// WithError returns a child logger carrying an error field.
func (l *zerologLogger) WithError(err error) Logger {
	if err == nil {
		return l
	}
	return l.WithField("error", err.Error())
}

func (l *zerologLogger) DebugWithFields(msg string, fields map[string]interface{}) {
	l.addFieldsFromMap(l.logger.Debug(), fields).Msg(msg)
}

func (l *zerologLogger) InfoWithFields(msg string, fields map[string]interface{}) {
	l.addFieldsFromMap(l.logger.Info(), fields).Msg(msg)
}

func (l *zerologLogger) WarnWithFields(msg string, fields map[string]interface{}) {
	l.addFieldsFromMap(l.logger.Warn(), fields).Msg(msg)
}

func (l *zerologLogger) ErrorWithFields(msg string, fields map[string]interface{}) {
	l.addFieldsFromMap(l.logger.Error(), fields).Msg(msg)
}

func (l *zerologLogger) GetZerolog() *zerolog.Logger {
	return l.logger
}

func (l *zerologLogger) addFields(event *zerolog.Event) *zerolog.Event {
	for key, value := range l.fields {
		event = addFieldToEvent(event, key, value)
	}
	return event
}

func (l *zerologLogger) addFieldsFromMap(event *zerolog.Event, fields map[string]interface{}) *zerolog.Event {
	event = l.addFields(event)
	for key, value := range fields {
		event = addFieldToEvent(event, key, value)
	}
	return event
}

func addFieldToEvent(event *zerolog.Event, key string, value interface{}) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return event.Str(key, v)
	case int:
		return event.Int(key, v)
	case int64:
		return event.Int64(key, v)
	case float64:
		return event.Float64(key, v)
	case bool:
		return event.Bool(key, v)
	case time.Duration:
		return event.Dur(key, v)
	case error:
		return event.Err(v)
	default:
		return event.Interface(key, v)
	}
}

// Global logger instance.
var globalLogger Logger

// Initialize sets up the global logger.
func Initialize(cfg *config.LoggingConfig) error {
	l, err := New(cfg)
	if err != nil {
		return err
	}
	globalLogger = l
	log.Logger = *l.GetZerolog()
	return nil
}

// GetLogger returns the global logger, creating a default one if needed.
func GetLogger() Logger {
	if globalLogger == nil {
		globalLogger, _ = New(&config.LoggingConfig{Level: "info"})
	}
	return globalLogger
}

// Convenience functions for the global logger.

func Info(msg string)  { GetLogger().Info(msg) }
func Warn(msg string)  { GetLogger().Warn(msg) }
func Error(msg string) { GetLogger().Error(msg) }

// WithField adds a field to the global logger.
func WithField(key string, value interface{}) Logger {
	return GetLogger().WithField(key, value)
}

// WithError adds an error to the global logger.
func WithError(err error) Logger {
	return GetLogger().WithError(err)
}
