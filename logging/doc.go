// Package logging provides a minimal logging interface and adapters for vxbroker.
//
// The Logger interface defines the leveled methods (Debug, Info, Warn, Error)
// the dispatcher, router and session entities use for observability. Arguments
// after the message are alternating key/value pairs, as with log/slog. This
// package includes:
//
//   - Logger interface for dependency injection
//   - ZerologAdapter wrapping a zerolog.Logger
//   - BrokerLogger, a slog based logger with component/session context
//   - LogRequest, LogEventDrop and ErrorWithStack, which use BrokerLogger's
//     dedicated records and fall back to plain leveled calls otherwise
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	broker := vxbroker.New(engine, func(o *vxbroker.Options) { o.Logger = logger })
//
// The interface is kept minimal so any structured logger can be plugged in.
package logging
