// Package logging provides structured logging for the streaming runtime.
// It is a thin facade over logrus so that callers deal in Fields maps
// instead of a concrete backend.
package logging

import (
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

// Fields holds structured log context
type Fields map[string]any

// Logger is the interface used throughout the stream packages
type Logger interface {
	Debug(msg string, fields ...Fields)
	Info(msg string, fields ...Fields)
	Warn(msg string, fields ...Fields)
	Error(err error, msg string, fields ...Fields)
	WithFields(fields Fields) Logger
}

var (
	mu   sync.RWMutex
	root = newRoot()
)

func newRoot() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l
}

// SetLevel sets the global log level ("debug", "info", "warn", "error")
func SetLevel(level string) {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return
	}
	mu.Lock()
	root.SetLevel(parsed)
	mu.Unlock()
}

// SetOutput redirects all log output
func SetOutput(w io.Writer) {
	mu.Lock()
	root.SetOutput(w)
	mu.Unlock()
}

type entryLogger struct {
	entry *logrus.Entry
}

// WithFields returns a logger with the given fields attached to every record
func WithFields(fields Fields) Logger {
	mu.RLock()
	defer mu.RUnlock()
	return &entryLogger{entry: root.WithFields(logrus.Fields(fields))}
}

func (l *entryLogger) WithFields(fields Fields) Logger {
	return &entryLogger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

func (l *entryLogger) Debug(msg string, fields ...Fields) {
	l.merge(fields).Debug(msg)
}

func (l *entryLogger) Info(msg string, fields ...Fields) {
	l.merge(fields).Info(msg)
}

func (l *entryLogger) Warn(msg string, fields ...Fields) {
	l.merge(fields).Warn(msg)
}

func (l *entryLogger) Error(err error, msg string, fields ...Fields) {
	entry := l.merge(fields)
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Error(msg)
}

func (l *entryLogger) merge(fields []Fields) *logrus.Entry {
	entry := l.entry
	for _, f := range fields {
		entry = entry.WithFields(logrus.Fields(f))
	}
	return entry
}

// Debug logs at debug level on the global logger
func Debug(msg string, fields ...Fields) {
	WithFields(nil).Debug(msg, fields...)
}

// Info logs at info level on the global logger
func Info(msg string, fields ...Fields) {
	WithFields(nil).Info(msg, fields...)
}

// Warn logs at warn level on the global logger
func Warn(msg string, fields ...Fields) {
	WithFields(nil).Warn(msg, fields...)
}

// Error logs an error on the global logger
func Error(err error, msg string, fields ...Fields) {
	WithFields(nil).Error(err, msg, fields...)
}
