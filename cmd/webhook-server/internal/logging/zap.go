// Package logging adapts zap to the webhooks.Logger interface.
package logging

import (
	"go.uber.org/zap"
)

// ZapLogger wraps a zap.SugaredLogger to satisfy webhooks.Logger.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// New creates a ZapLogger. With debug enabled it uses zap's development
// configuration (console encoding, debug level), otherwise the production
// configuration (JSON encoding, info level).
func New(debug bool) (*ZapLogger, error) {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}

	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}

	return &ZapLogger{sugar: logger.Sugar()}, nil
}

// Debugf logs a debug message with formatting.
func (l *ZapLogger) Debugf(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

// Infof logs an info message with formatting.
func (l *ZapLogger) Infof(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

// Warnf logs a warning message with formatting.
func (l *ZapLogger) Warnf(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

// Errorf logs an error message with formatting.
func (l *ZapLogger) Errorf(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// Info logs an info message.
func (l *ZapLogger) Info(message string) {
	l.sugar.Info(message)
}

// Sync flushes any buffered log entries.
func (l *ZapLogger) Sync() error {
	return l.sugar.Sync()
}
