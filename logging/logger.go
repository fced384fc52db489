package logging

import (
	"io"
	"log/slog"
	"os"
	"time"
)

// LogLevel is a thin enum for level configuration decoupled from slog.
type LogLevel int

const (
	// LogLevelDebug is the debug logging level.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo is the informational logging level.
	LogLevelInfo
	// LogLevelWarn is the warning logging level.
	LogLevelWarn
	// LogLevelError is the error logging level.
	LogLevelError
)

func (l LogLevel) slog() slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger is the logging boundary used by the loop, the dispatcher, the
// retrier and the attachment resolver. Args are slog style key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// StructuredLogger is a slog backed Logger that can be scoped to a run and a
// component, and emits typed records for model calls, tool calls and runs.
type StructuredLogger struct {
	logger *slog.Logger
}

var _ Logger = (*StructuredLogger)(nil)

// Options configures NewLogger.
type Options struct {
	Level LogLevel
	// Format is "json" (default) or "text".
	Format    string
	Output    io.Writer
	AddSource bool
}

// NewLogger builds a StructuredLogger writing to stdout as JSON at info level
// unless overridden.
func NewLogger(optFns ...func(o *Options)) *StructuredLogger {
	opts := Options{Level: LogLevelInfo, Format: "json", Output: os.Stdout}
	for _, fn := range optFns {
		fn(&opts)
	}

	hopts := &slog.HandlerOptions{Level: opts.Level.slog(), AddSource: opts.AddSource}
	var handler slog.Handler
	if opts.Format == "text" {
		handler = slog.NewTextHandler(opts.Output, hopts)
	} else {
		handler = slog.NewJSONHandler(opts.Output, hopts)
	}
	return &StructuredLogger{logger: slog.New(handler)}
}

// NewSlogLogger is shorthand for NewLogger with level, format and source flag.
func NewSlogLogger(level LogLevel, format string, addSource bool) *StructuredLogger {
	return NewLogger(func(o *Options) {
		o.Level = level
		if format != "" {
			o.Format = format
		}
		o.AddSource = addSource
	})
}

// ForRun tags every record with the memory key and run id.
func (l *StructuredLogger) ForRun(memoryKey, runID string) *StructuredLogger {
	args := []any{slog.String("run_id", runID)}
	if memoryKey != "" {
		args = append(args, slog.String("memory_key", memoryKey))
	}
	return &StructuredLogger{logger: l.logger.With(args...)}
}

// WithComponent tags every record with the emitting component.
func (l *StructuredLogger) WithComponent(c string) *StructuredLogger {
	return &StructuredLogger{logger: l.logger.With(slog.String("component", c))}
}

// Debug implements Logger.
func (l *StructuredLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }

// Info implements Logger.
func (l *StructuredLogger) Info(msg string, args ...any) { l.logger.Info(msg, args...) }

// Warn implements Logger.
func (l *StructuredLogger) Warn(msg string, args ...any) { l.logger.Warn(msg, args...) }

// Error implements Logger.
func (l *StructuredLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

// LogToolCall records one settled tool call. Failures log at warn.
func (l *StructuredLogger) LogToolCall(tool string, dur time.Duration, err error) {
	if err != nil {
		l.logger.Warn("tool.call.failed", "tool_name", tool, "duration", dur, "error", err.Error())
		return
	}
	l.logger.Info("tool.call.completed", "tool_name", tool, "duration", dur)
}

// LogModelCall records provider latency and token usage. Failures log at error.
func (l *StructuredLogger) LogModelCall(model string, tokens int, dur time.Duration, err error) {
	if err != nil {
		l.logger.Error("model.call.failed", "model", model, "duration", dur, "error", err.Error())
		return
	}
	l.logger.Info("model.call.completed", "model", model, "token_count", tokens, "duration", dur)
}

// LogRun records the terminal outcome of a run. Runs ending with an error
// (timeout, aborted, failed) log at warn.
func (l *StructuredLogger) LogRun(outcome string, iterations, toolCalls int, dur time.Duration, err error) {
	args := []any{"outcome", outcome, "iterations", iterations, "tool_calls", toolCalls, "duration", dur}
	if err != nil {
		l.logger.Warn("flow.run.failed", append(args, "error", err.Error())...)
		return
	}
	l.logger.Info("flow.run.completed", args...)
}

// Scoped returns l tagged with component when l is a StructuredLogger, and l
// unchanged otherwise.
func Scoped(l Logger, component string) Logger {
	if sl, ok := l.(*StructuredLogger); ok {
		return sl.WithComponent(component)
	}
	return l
}

// NoOpLogger discards all log messages.
type NoOpLogger struct{}

// Debug logs a debug message.
func (NoOpLogger) Debug(string, ...any) {}

// Info logs an informational message.
func (NoOpLogger) Info(string, ...any) {}

// Warn logs a warning message.
func (NoOpLogger) Warn(string, ...any) {}

// Error logs an error message.
func (NoOpLogger) Error(string, ...any) {}
