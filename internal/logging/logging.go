// Package logging provides structured logging for atlas.
//
// This package wraps go.uber.org/zap to provide consistent logging across
// all components. It supports console and JSON output, configurable log
// levels, and component-based loggers.
//
// Usage:
//
//	// Initialize at startup
//	logging.Init("info", false) // console format
//	logging.Init("debug", true) // JSON format
//
//	// Get a component logger
//	log := logging.Component("collection")
//	log.Info("build complete", zap.Int("instruments", 12))
package logging

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	logger = zap.NewNop()
)

// Init initializes the global logger with the specified level and format.
// If jsonFormat is true, logs are output as JSON; otherwise console text.
func Init(level string, jsonFormat bool) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}

	cfg := zap.NewProductionConfig()
	if !jsonFormat {
		cfg.Encoding = "console"
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.TimeKey = "time"
	cfg.DisableCaller = lvl > zapcore.DebugLevel

	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}

	set(l)
	return nil
}

// InitWithCore initializes the global logger with a custom core.
// This is useful for testing or custom output destinations.
func InitWithCore(core zapcore.Core) {
	set(zap.New(core))
}

func set(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
	zap.ReplaceGlobals(l)
}

// L returns the global logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// With returns a new logger with additional fields.
func With(fields ...zap.Field) *zap.Logger {
	return L().With(fields...)
}

// Component returns a logger for a specific component.
// The component name is added as a field to all log entries.
func Component(name string) *zap.Logger {
	return L().With(zap.String("component", name))
}

// Sync flushes any buffered log entries.
func Sync() error {
	return L().Sync()
}
