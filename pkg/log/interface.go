// Package log provides structured logging for raster processing and
// classification operations.
//
// The Logger interface is slog-compatible and keeps the call sites
// free of any concrete backend. Attribute keys for the recurring
// concepts of this library (sample counts, raster files, blocks,
// metrics) live in attributes.go so log output stays greppable.
//
// Example:
//
//	logger := log.GetLoggerWithName("classification.trainer").With(
//	    log.ModelNameKey, "GBTreeClassifier",
//	)
//	logger.Info("Training started",
//	    log.OperationKey, log.OperationFit,
//	    log.SamplesKey, 1000,
//	    log.FeaturesKey, 10,
//	)
package log

import (
	"context"
)

// Logger is a structured logging interface compatible with log/slog.
// Fields are alternating key/value pairs; With binds fields that every
// later record carries.
type Logger interface {
	// Debug logs detailed diagnostic information.
	Debug(msg string, fields ...any)

	// Info logs general operational information.
	Info(msg string, fields ...any)

	// Warn logs conditions that do not stop the operation.
	Warn(msg string, fields ...any)

	// Error logs failures. An error value passed under ErrAttrKey gets
	// its stack trace extracted by the handler.
	Error(msg string, fields ...any)

	// With returns a Logger that carries the given fields on every
	// record.
	With(fields ...any) Logger

	// Enabled reports whether a record at the given level would be
	// emitted, so callers can skip building expensive attributes.
	Enabled(ctx context.Context, level Level) bool
}

// Level is a logging level with slog-compatible values.
type Level int

const (
	LevelDebug Level = -4
	LevelInfo  Level = 0
	LevelWarn  Level = 4
	LevelError Level = 8
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// LoggerProvider creates and configures loggers, so tests and embedders
// can swap the backend.
type LoggerProvider interface {
	// GetLogger returns the default logger.
	GetLogger() Logger

	// GetLoggerWithName returns a logger tagged with a component name.
	GetLoggerWithName(name string) Logger

	// SetLevel sets the minimum level for loggers from this provider.
	SetLevel(level Level)
}
