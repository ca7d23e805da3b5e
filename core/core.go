package core

import (
	"fmt"

	"github.com/hupe1980/vxbroker/logging"
)

// loggerAdapter wraps a logging.Logger and guarantees a non-nil logger by
// substituting a NoOpLogger when constructed with nil.
type loggerAdapter struct {
	logger logging.Logger
}

func newLoggerAdapter(l logging.Logger) *loggerAdapter {
	if l == nil {
		l = logging.NoOpLogger{}
	}
	return &loggerAdapter{logger: l}
}

// recoverCallback converts a panic raised by user code into a logged error,
// unless debug rethrow mode is on.
func (l *loggerAdapter) recoverCallback(where string, r any) {
	if r == nil {
		return
	}
	if DebugRethrow() {
		panic(r)
	}
	logging.ErrorWithStack(l.logger, fmt.Errorf("panic: %v", r), "callback panicked", "where", where)
}
