// Package zaplog adapts a zap logger to the gocbbridge Logger interface.
package zaplog

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/couchbaselabs/gocbbridge"
)

// Logger writes bridge and gocbcore log messages to a zap logger.
type Logger struct {
	logger *zap.Logger
}

// New returns a Logger writing to logger. A nil logger uses zap's global logger.
func New(logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.L()
	}
	return &Logger{
		logger: logger.Named("gocbbridge"),
	}
}

// Log implements gocbbridge.Logger.
func (l *Logger) Log(level gocbbridge.LogLevel, offset int, format string, v ...interface{}) error {
	msg := fmt.Sprintf(format, v...)
	logger := l.logger.WithOptions(zap.AddCallerSkip(offset + 1))

	switch level {
	case gocbbridge.LogError:
		logger.Error(msg)
	case gocbbridge.LogWarn:
		logger.Warn(msg)
	case gocbbridge.LogInfo:
		logger.Info(msg)
	case gocbbridge.LogDebug:
		logger.Debug(msg)
	case gocbbridge.LogTrace, gocbbridge.LogSched:
		// zap has nothing below debug, so the finer levels are tagged instead.
		logger.Debug(msg, zap.String("verbosity", levelName(level)))
	default:
		return fmt.Errorf("unrecognized log level %d", level)
	}
	return nil
}

func levelName(level gocbbridge.LogLevel) string {
	if level == gocbbridge.LogTrace {
		return "trace"
	}
	return "sched"
}
