package log

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// SetupLogger installs the default process-wide slog handler.
// Output is JSON with a stacktrace attribute extracted from wrapped errors.
func SetupLogger(loglevel string) error {
	level, err := ToLogLevel(loglevel)
	if err != nil {
		return err
	}
	ops := slog.HandlerOptions{
		AddSource: true,
		Level:     level,
	}
	handler := slog.NewJSONHandler(os.Stdout, &ops)
	errFmtHandler := WrapByErrFmtHandler(handler)
	slog.SetDefault(slog.New(errFmtHandler))
	return nil
}

// ToLogLevel parses a level name. Level strings come from flags and
// config files, so an unrecognised name is an error, not a panic.
func ToLogLevel(level string) (slog.Level, error) {
	switch level {
	case "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (expected debug, info, warn or error)", level)
	}
}

const (
	ErrAttrKey        = "error"
	StacktraceAttrKey = "stacktrace"
)

// ErrAttr is a wrapper to pass err to slog.
func ErrAttr(err error) slog.Attr {
	return slog.Any(ErrAttrKey, err)
}

// ===========================================================================
//
//	Default logger provider
//
// ===========================================================================

var (
	providerMu sync.RWMutex
	provider   LoggerProvider = newSlogProvider()
)

// SetProvider replaces the process-wide logger provider. Intended for tests
// and for applications that bring their own logging backend.
func SetProvider(p LoggerProvider) {
	providerMu.Lock()
	defer providerMu.Unlock()
	provider = p
}

// GetLogger returns the default logger.
func GetLogger() Logger {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return provider.GetLogger()
}

// GetLoggerWithName returns a logger tagged with a component name,
// e.g. GetLoggerWithName("classification.trainer").
func GetLoggerWithName(name string) Logger {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return provider.GetLoggerWithName(name)
}

// SetLevel sets the minimum level on the default provider.
func SetLevel(level Level) {
	providerMu.RLock()
	defer providerMu.RUnlock()
	provider.SetLevel(level)
}

// slogProvider is the default LoggerProvider backed by log/slog.
type slogProvider struct {
	level *slog.LevelVar
	root  *slog.Logger
}

func newSlogProvider() *slogProvider {
	level := &slog.LevelVar{}
	level.Set(slog.LevelInfo)
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return &slogProvider{
		level: level,
		root:  slog.New(WrapByErrFmtHandler(handler)),
	}
}

func (p *slogProvider) GetLogger() Logger {
	return &slogLogger{logger: p.root, level: p.level}
}

func (p *slogProvider) GetLoggerWithName(name string) Logger {
	return &slogLogger{logger: p.root.With(ComponentKey, name), level: p.level}
}

func (p *slogProvider) SetLevel(level Level) {
	p.level.Set(slog.Level(level))
}

// slogLogger adapts *slog.Logger to the Logger interface.
type slogLogger struct {
	logger *slog.Logger
	level  *slog.LevelVar
}

func (l *slogLogger) Debug(msg string, fields ...any) { l.logger.Debug(msg, fields...) }
func (l *slogLogger) Info(msg string, fields ...any)  { l.logger.Info(msg, fields...) }
func (l *slogLogger) Warn(msg string, fields ...any)  { l.logger.Warn(msg, fields...) }

func (l *slogLogger) Error(msg string, fields ...any) {
	// An error passed as the first field is lifted into the standard error
	// attribute so the stacktrace handler can pick it up.
	if len(fields) > 0 {
		if err, ok := fields[0].(error); ok {
			rest := fields[1:]
			args := make([]any, 0, len(rest)+1)
			args = append(args, ErrAttr(err))
			args = append(args, rest...)
			l.logger.Error(msg, args...)
			return
		}
	}
	l.logger.Error(msg, fields...)
}

func (l *slogLogger) With(fields ...any) Logger {
	return &slogLogger{logger: l.logger.With(fields...), level: l.level}
}

func (l *slogLogger) Enabled(ctx context.Context, level Level) bool {
	return l.logger.Enabled(ctx, slog.Level(level))
}
