package logging

import (
	"fmt"

	"github.com/rs/zerolog"
)

// ZerologAdapter wraps a zerolog.Logger to implement the Logger interface.
// Key/value args become typed zerolog fields; a trailing odd argument is
// logged under "!BADKEY" like slog does.
type ZerologAdapter struct {
	logger zerolog.Logger
}

// NewZerologAdapter creates a Logger from a zerolog.Logger.
func NewZerologAdapter(l zerolog.Logger) Logger {
	return &ZerologAdapter{logger: l}
}

// Debug logs a debug message.
func (z *ZerologAdapter) Debug(msg string, args ...any) { withFields(z.logger.Debug(), args).Msg(msg) }

// Info logs an informational message.
func (z *ZerologAdapter) Info(msg string, args ...any) { withFields(z.logger.Info(), args).Msg(msg) }

// Warn logs a warning message.
func (z *ZerologAdapter) Warn(msg string, args ...any) { withFields(z.logger.Warn(), args).Msg(msg) }

// Error logs an error message.
func (z *ZerologAdapter) Error(msg string, args ...any) { withFields(z.logger.Error(), args).Msg(msg) }

func withFields(ev *zerolog.Event, args []any) *zerolog.Event {
	if ev == nil {
		// level disabled
		return ev
	}
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			ev = ev.Interface("!BADKEY", args[i])
			break
		}
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		switch v := args[i+1].(type) {
		case error:
			ev = ev.AnErr(key, v)
		case string:
			ev = ev.Str(key, v)
		case fmt.Stringer:
			ev = ev.Stringer(key, v)
		default:
			ev = ev.Interface(key, v)
		}
	}
	return ev
}
