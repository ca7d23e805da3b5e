// Package logging provides a tiny abstraction over slog so downstream code can
// depend on a minimal interface (Logger) while allowing users to plug any
// structured logger. BrokerLogger adds contextual cloning (component, session,
// account) and dedicated request and event records, which the package level
// helpers use when the injected Logger provides them.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
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

// ParseLevel maps a case-insensitive level name to a LogLevel. Unknown names
// map to LogLevelInfo and ok=false.
func ParseLevel(s string) (LogLevel, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug, true
	case "info", "":
		return LogLevelInfo, true
	case "warn", "warning":
		return LogLevelWarn, true
	case "error":
		return LogLevelError, true
	default:
		return LogLevelInfo, false
	}
}

// Logger defines the minimal logging interface for vxbroker.
// Args are alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// RequestLogger is implemented by loggers with a dedicated record for
// request outcomes, such as *BrokerLogger.
type RequestLogger interface {
	LogRequest(requestType, requestID string, dur time.Duration, err error)
}

// EventDropLogger is implemented by loggers with a dedicated record for
// events that reached no entity.
type EventDropLogger interface {
	LogEventDrop(eventType, routeKey, reason string)
}

// StackLogger is implemented by loggers that can attach a stack trace.
type StackLogger interface {
	ErrorWithStack(err error, msg string, args ...any)
}

// LogRequest reports the outcome of one engine request on l. A nil err
// means success.
func LogRequest(l Logger, requestType, requestID string, dur time.Duration, err error) {
	if rl, ok := l.(RequestLogger); ok {
		rl.LogRequest(requestType, requestID, dur, err)
		return
	}
	if err != nil {
		l.Warn("request failed", "request_type", requestType, "request_id", requestID, "duration", dur, "error", err)
		return
	}
	l.Debug("request completed", "request_type", requestType, "request_id", requestID, "duration", dur)
}

// LogEventDrop reports an event that was not delivered.
func LogEventDrop(l Logger, eventType, routeKey, reason string) {
	if el, ok := l.(EventDropLogger); ok {
		el.LogEventDrop(eventType, routeKey, reason)
		return
	}
	l.Debug("event dropped", "event_type", eventType, "route_key", routeKey, "reason", reason)
}

// ErrorWithStack logs err, with the current stack when l supports it.
func ErrorWithStack(l Logger, err error, msg string, args ...any) {
	if sl, ok := l.(StackLogger); ok {
		sl.ErrorWithStack(err, msg, args...)
		return
	}
	l.Error(msg, append(args, "error", err)...)
}

// StartTimer returns a closure that logs the elapsed duration of op when invoked.
func StartTimer(l Logger, op string) func() {
	start := time.Now()
	return func() { l.Info("Operation completed", "operation", op, "duration", time.Since(start)) }
}

// BrokerLogger wraps slog.Logger adding contextual cloning helpers and
// broker specific convenience methods. It is cheap to copy via With* methods.
type BrokerLogger struct {
	logger    *slog.Logger
	level     LogLevel
	context   map[string]any
	component string
	session   string
	account   string
}

// LoggerConfig configures construction of a BrokerLogger.
type LoggerConfig struct {
	Level       LogLevel
	Format      string // json or text
	Output      io.Writer
	AddSource   bool
	Component   string
	CustomAttrs map[string]any
}

// DefaultLoggerConfig returns a baseline JSON info level configuration.
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{Level: LogLevelInfo, Format: "json", Output: os.Stdout, AddSource: true, CustomAttrs: map[string]any{}}
}

// NewLogger builds a BrokerLogger from a config (or defaults if nil).
func NewLogger(cfg *LoggerConfig) *BrokerLogger {
	if cfg == nil {
		cfg = DefaultLoggerConfig()
	}
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: slogLevel(cfg.Level), AddSource: cfg.AddSource}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(cfg.Output, opts)
	} else {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	}
	ctx := make(map[string]any, len(cfg.CustomAttrs))
	for k, v := range cfg.CustomAttrs {
		ctx[k] = v
	}
	return &BrokerLogger{logger: slog.New(handler), level: cfg.Level, context: ctx, component: cfg.Component}
}

func slogLevel(l LogLevel) slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelInfo:
		return slog.LevelInfo
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *BrokerLogger) clone() *BrokerLogger {
	nl := *l
	nl.context = make(map[string]any, len(l.context))
	for k, v := range l.context {
		nl.context[k] = v
	}
	return &nl
}

// WithContext adds a key/value attribute that will be attached to every log entry.
func (l *BrokerLogger) WithContext(key string, value any) *BrokerLogger {
	nl := l.clone()
	nl.context[key] = value
	return nl
}

// WithComponent sets the logical component (dispatcher, router, session, etc.).
func (l *BrokerLogger) WithComponent(c string) *BrokerLogger {
	nl := l.clone()
	nl.component = c
	return nl
}

// WithSession attaches the session handle and the owning account handle.
func (l *BrokerLogger) WithSession(session, account string) *BrokerLogger {
	nl := l.clone()
	nl.session = session
	nl.account = account
	return nl
}

func (l *BrokerLogger) buildAttrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, len(l.context)+3)
	if l.component != "" {
		attrs = append(attrs, slog.String("component", l.component))
	}
	if l.session != "" {
		attrs = append(attrs, slog.String("session_handle", l.session))
	}
	if l.account != "" {
		attrs = append(attrs, slog.String("account_handle", l.account))
	}
	for k, v := range l.context {
		attrs = append(attrs, slog.Any(k, v))
	}
	return attrs
}

func (l *BrokerLogger) log(level slog.Level, allowed bool, msg string, args ...any) {
	if !allowed {
		return
	}
	attrs := l.buildAttrs()
	r := slog.NewRecord(time.Now(), level, msg, 0)
	r.AddAttrs(attrs...)
	r.Add(args...)
	_ = l.logger.Handler().Handle(context.Background(), r)
}

// Debug logs at debug level.
func (l *BrokerLogger) Debug(msg string, args ...any) {
	l.log(slog.LevelDebug, l.level <= LogLevelDebug, msg, args...)
}

// Info logs at info level.
func (l *BrokerLogger) Info(msg string, args ...any) {
	l.log(slog.LevelInfo, l.level <= LogLevelInfo, msg, args...)
}

// Warn logs at warn level.
func (l *BrokerLogger) Warn(msg string, args ...any) {
	l.log(slog.LevelWarn, l.level <= LogLevelWarn, msg, args...)
}

// Error logs at error level.
func (l *BrokerLogger) Error(msg string, args ...any) {
	l.log(slog.LevelError, l.level <= LogLevelError, msg, args...)
}

// ErrorWithStack logs an error plus a runtime stack snapshot.
func (l *BrokerLogger) ErrorWithStack(err error, msg string, args ...any) {
	if l.level > LogLevelError {
		return
	}
	stack := make([]byte, 4096)
	n := runtime.Stack(stack, false)
	args = append(args, "error", err.Error(), "error_type", fmt.Sprintf("%T", err), "stack_trace", string(stack[:n]))
	l.log(slog.LevelError, true, msg, args...)
}

// LogRequest records the outcome and latency of one engine request.
func (l *BrokerLogger) LogRequest(requestType, requestID string, dur time.Duration, err error) {
	args := []any{"request_type", requestType, "request_id", requestID, "duration", dur, "success", err == nil}
	if err != nil {
		args = append(args, "error", err.Error())
		l.log(slog.LevelWarn, l.level <= LogLevelWarn, "Engine request failed", args...)
		return
	}
	l.log(slog.LevelDebug, l.level <= LogLevelDebug, "Engine request completed", args...)
}

// LogEventDrop records an event that no entity was interested in.
func (l *BrokerLogger) LogEventDrop(eventType, routeKey, reason string) {
	l.log(slog.LevelDebug, l.level <= LogLevelDebug, "Event dropped", "event_type", eventType, "route_key", routeKey, "reason", reason)
}

// NoOpLogger discards all log messages. Useful for testing or when logging is disabled.
type NoOpLogger struct{}

// Debug logs a debug message.
func (NoOpLogger) Debug(string, ...any) {}

// Info logs an informational message.
func (NoOpLogger) Info(string, ...any) {}

// Warn logs a warning message.
func (NoOpLogger) Warn(string, ...any) {}

// Error logs an error message.
func (NoOpLogger) Error(string, ...any) {}

// NewSlogLogger creates a new BrokerLogger with the specified configuration.
func NewSlogLogger(level LogLevel, format string, addSource bool) *BrokerLogger {
	cfg := DefaultLoggerConfig()
	cfg.Level = level
	if format != "" {
		cfg.Format = format
	}
	cfg.AddSource = addSource
	return NewLogger(cfg)
}
