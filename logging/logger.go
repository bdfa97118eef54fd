package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// LogLevel is a thin enum for user friendly level configuration decoupled from slog.
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

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLogLevel maps a case-insensitive level name to a LogLevel.
func ParseLogLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug, nil
	case "", "info":
		return LogLevelInfo, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "error":
		return LogLevelError, nil
	default:
		return LogLevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Logger is the minimal structured logging interface used across the module.
// Args are slog style key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SlogAdapter wraps *slog.Logger to implement the Logger interface.
type SlogAdapter struct {
	*slog.Logger
}

// Debug logs a debug message.
func (s *SlogAdapter) Debug(msg string, args ...any) { s.Logger.Debug(msg, args...) }

// Info logs an informational message.
func (s *SlogAdapter) Info(msg string, args ...any) { s.Logger.Info(msg, args...) }

// Warn logs a warning message.
func (s *SlogAdapter) Warn(msg string, args ...any) { s.Logger.Warn(msg, args...) }

// Error logs an error message.
func (s *SlogAdapter) Error(msg string, args ...any) { s.Logger.Error(msg, args...) }

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &SlogAdapter{Logger: logger}
}

// EngineLogger wraps slog.Logger with fixed component and engine attributes
// plus domain helpers for tool calls, agent runs and model calls.
type EngineLogger struct {
	logger    *slog.Logger
	level     LogLevel
	component string
	attrs     []slog.Attr
}

// LoggerConfig configures construction of an EngineLogger.
type LoggerConfig struct {
	Level     LogLevel
	Format    string // json or text
	Output    io.Writer
	AddSource bool
	Component string
}

// DefaultLoggerConfig returns a baseline JSON info level configuration.
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{Level: LogLevelInfo, Format: "json", Output: os.Stderr}
}

// NewLogger builds an EngineLogger from a config (or defaults if nil).
func NewLogger(cfg *LoggerConfig) *EngineLogger {
	if cfg == nil {
		cfg = DefaultLoggerConfig()
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: slogLevel(cfg.Level), AddSource: cfg.AddSource}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	return &EngineLogger{logger: slog.New(handler), level: cfg.Level, component: cfg.Component}
}

// NewSlogLogger creates an EngineLogger writing to stderr.
func NewSlogLogger(level LogLevel, format string, addSource bool) *EngineLogger {
	cfg := DefaultLoggerConfig()
	cfg.Level = level
	if format != "" {
		cfg.Format = format
	}
	cfg.AddSource = addSource
	return NewLogger(cfg)
}

func slogLevel(l LogLevel) slog.Level {
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

// Slog exposes the underlying *slog.Logger, e.g. for slog.SetDefault.
func (l *EngineLogger) Slog() *slog.Logger { return l.logger }

// With returns a copy carrying additional attributes on every entry.
func (l *EngineLogger) With(key string, value any) *EngineLogger {
	nl := *l
	nl.attrs = append(append([]slog.Attr(nil), l.attrs...), slog.Any(key, value))
	return &nl
}

// WithArgs returns a copy carrying slog style key/value pairs on every entry.
func (l *EngineLogger) WithArgs(args ...any) *EngineLogger {
	var r slog.Record
	r.Add(args...)

	nl := *l
	nl.attrs = append(make([]slog.Attr, 0, len(l.attrs)+r.NumAttrs()), l.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		nl.attrs = append(nl.attrs, a)
		return true
	})
	return &nl
}

// WithComponent sets the logical component (engine, server, mcp, ...).
func (l *EngineLogger) WithComponent(c string) *EngineLogger {
	nl := *l
	nl.component = c
	return &nl
}

func (l *EngineLogger) log(level slog.Level, msg string, args ...any) {
	attrs := make([]slog.Attr, 0, len(l.attrs)+1)
	if l.component != "" {
		attrs = append(attrs, slog.String("component", l.component))
	}
	attrs = append(attrs, l.attrs...)

	r := slog.NewRecord(time.Now(), level, msg, 0)
	r.AddAttrs(attrs...)
	r.Add(args...)

	ctx := context.Background()
	if !l.logger.Enabled(ctx, level) {
		return
	}
	_ = l.logger.Handler().Handle(ctx, r)
}

// Debug logs at debug level.
func (l *EngineLogger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args...) }

// Info logs at info level.
func (l *EngineLogger) Info(msg string, args ...any) { l.log(slog.LevelInfo, msg, args...) }

// Warn logs at warn level.
func (l *EngineLogger) Warn(msg string, args ...any) { l.log(slog.LevelWarn, msg, args...) }

// Error logs at error level.
func (l *EngineLogger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args...) }

// LogToolCall records execution details for a tool invocation.
func (l *EngineLogger) LogToolCall(tool string, dur time.Duration, err error) {
	logOutcome(l, "tool.call", err, "tool", tool, "duration", dur)
}

// LogAgentRun records execution details for an agent run.
func (l *EngineLogger) LogAgentRun(agent string, dur time.Duration, err error) {
	logOutcome(l, "agent.run", err, "agent", agent, "duration", dur)
}

// LogModelCall records model call latency and token usage.
func (l *EngineLogger) LogModelCall(model string, inputTokens, outputTokens int64, dur time.Duration, err error) {
	logOutcome(l, "model.call", err,
		"model", model,
		"input_tokens", inputTokens,
		"output_tokens", outputTokens,
		"duration", dur,
	)
}

// CallLogger is implemented by loggers with dedicated helpers for tool calls,
// agent runs and model calls.
type CallLogger interface {
	LogToolCall(tool string, dur time.Duration, err error)
	LogAgentRun(agent string, dur time.Duration, err error)
	LogModelCall(model string, inputTokens, outputTokens int64, dur time.Duration, err error)
}

// RecordToolCall logs a finished tool call through l, using its CallLogger
// helper when available.
func RecordToolCall(l Logger, tool string, dur time.Duration, err error) {
	if cl, ok := l.(CallLogger); ok {
		cl.LogToolCall(tool, dur, err)
		return
	}
	logOutcome(l, "tool.call", err, "tool", tool, "duration", dur)
}

// RecordAgentRun logs a finished agent run through l.
func RecordAgentRun(l Logger, agent string, dur time.Duration, err error) {
	if cl, ok := l.(CallLogger); ok {
		cl.LogAgentRun(agent, dur, err)
		return
	}
	logOutcome(l, "agent.run", err, "agent", agent, "duration", dur)
}

// RecordModelCall logs a finished model completion through l.
func RecordModelCall(l Logger, model string, inputTokens, outputTokens int64, dur time.Duration, err error) {
	if cl, ok := l.(CallLogger); ok {
		cl.LogModelCall(model, inputTokens, outputTokens, dur, err)
		return
	}
	logOutcome(l, "model.call", err,
		"model", model,
		"input_tokens", inputTokens,
		"output_tokens", outputTokens,
		"duration", dur,
	)
}

var _ CallLogger = (*EngineLogger)(nil)

func logOutcome(l Logger, op string, err error, args ...any) {
	if err != nil {
		l.Error(op+".error", append(args, "error", err)...)
		return
	}
	l.Info(op+".success", args...)
}

// NoOpLogger discards all log messages. Useful for testing or when logging is disabled.
type NoOpLogger struct{}

// Debug discards the message.
func (NoOpLogger) Debug(string, ...any) {}

// Info discards the message.
func (NoOpLogger) Info(string, ...any) {}

// Warn discards the message.
func (NoOpLogger) Warn(string, ...any) {}

// Error discards the message.
func (NoOpLogger) Error(string, ...any) {}

// With wraps l so that every entry carries the given key/value pairs.
func With(l Logger, args ...any) Logger {
	if l == nil {
		return NoOpLogger{}
	}
	switch v := l.(type) {
	case NoOpLogger:
		return l
	case *EngineLogger:
		return v.WithArgs(args...)
	}
	return &withLogger{base: l, args: args}
}

type withLogger struct {
	base Logger
	args []any
}

func (w *withLogger) Debug(msg string, args ...any) { w.base.Debug(msg, w.merge(args)...) }
func (w *withLogger) Info(msg string, args ...any)  { w.base.Info(msg, w.merge(args)...) }
func (w *withLogger) Warn(msg string, args ...any)  { w.base.Warn(msg, w.merge(args)...) }
func (w *withLogger) Error(msg string, args ...any) { w.base.Error(msg, w.merge(args)...) }

func (w *withLogger) merge(args []any) []any {
	out := make([]any, 0, len(w.args)+len(args))
	out = append(out, w.args...)
	return append(out, args...)
}
