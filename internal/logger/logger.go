// Package logger provides the process-wide structured logger.
package logger

import "go.uber.org/zap"

var log *zap.Logger

// Init initializes the global logger. Safe to call once at process startup.
func Init() error {
	l, err := zap.NewProduction()
	if err != nil {
		return err
	}
	log = l
	return nil
}

// Get returns the global logger, lazily falling back to a production
// logger if Init was never called (e.g. in tests).
func Get() *zap.Logger {
	if log == nil {
		l, err := zap.NewProduction()
		if err != nil {
			log = zap.NewNop()
		} else {
			log = l
		}
	}
	return log
}

// Sync flushes buffered log entries. Call on shutdown.
func Sync() {
	if log != nil {
		_ = log.Sync()
	}
}
