package core

import (
	"errors"
	"fmt"
	"sync/atomic"
)

var (
	// ErrArgument is matched by every *ArgumentError.
	ErrArgument = errors.New("invalid argument")
	// ErrInvalidState is matched by every *InvalidStateError.
	ErrInvalidState = errors.New("invalid state")
	// ErrEngineUnavailable is matched by every *EngineUnavailableError.
	ErrEngineUnavailable = errors.New("engine unavailable")
	// ErrOperationFailed is matched by every *OperationFailedError.
	ErrOperationFailed = errors.New("operation failed")
	// ErrAlreadyCompleted is returned when an operation is completed twice.
	ErrAlreadyCompleted = errors.New("operation already completed")
	// ErrOperationPending is returned by CheckForError before completion.
	ErrOperationPending = errors.New("operation still pending")
	// ErrNotFound is returned when a keyed entity does not exist.
	ErrNotFound = errors.New("not found")
)

// ArgumentError reports invalid caller supplied parameters. It is raised
// synchronously before any request is issued.
type ArgumentError struct {
	Param  string
	Reason string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid argument %q: %s", e.Param, e.Reason)
}

// Is makes errors.Is(err, ErrArgument) true.
func (e *ArgumentError) Is(target error) bool { return target == ErrArgument }

// NewArgumentError builds an *ArgumentError.
func NewArgumentError(param, reason string) error {
	return &ArgumentError{Param: param, Reason: reason}
}

// InvalidStateError reports an operation attempted from a disallowed state.
type InvalidStateError struct {
	Op    string
	State string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s not allowed in state %s", e.Op, e.State)
}

// Is makes errors.Is(err, ErrInvalidState) true.
func (e *InvalidStateError) Is(target error) bool { return target == ErrInvalidState }

// NewInvalidStateError builds an *InvalidStateError from any Stringer state.
func NewInvalidStateError(op string, state fmt.Stringer) error {
	return &InvalidStateError{Op: op, State: state.String()}
}

// EngineUnavailableError reports a missing or uninitialized engine handle.
type EngineUnavailableError struct {
	Reason string
}

func (e *EngineUnavailableError) Error() string {
	return "engine unavailable: " + e.Reason
}

// Is makes errors.Is(err, ErrEngineUnavailable) true.
func (e *EngineUnavailableError) Is(target error) bool { return target == ErrEngineUnavailable }

// OperationFailedError wraps an asynchronous failure captured by an Operation.
// It is surfaced by Operation.CheckForError.
type OperationFailedError struct {
	Op  string
	Err error
}

func (e *OperationFailedError) Error() string {
	if e.Op == "" {
		return "operation failed: " + e.Err.Error()
	}
	return fmt.Sprintf("operation %s failed: %v", e.Op, e.Err)
}

// Unwrap exposes the original failure.
func (e *OperationFailedError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrOperationFailed) true.
func (e *OperationFailedError) Is(target error) bool { return target == ErrOperationFailed }

// EngineError is a failure reported by the engine in a response or event.
//
//	var engErr *EngineError
//	if errors.As(err, &engErr) {
//	    if engErr.StatusCode == StatusAccessDenied { ... }
//	}
type EngineError struct {
	ReturnCode int
	StatusCode int
	StatusText string
}

func (e *EngineError) Error() string {
	if e.StatusText == "" {
		return fmt.Sprintf("engine: return code %d, status %d", e.ReturnCode, e.StatusCode)
	}
	return fmt.Sprintf("engine: return code %d, status %d: %s", e.ReturnCode, e.StatusCode, e.StatusText)
}

// Engine status codes the broker interprets itself.
const (
	StatusOK              = 0
	StatusAccessDenied    = 20121
	StatusNotLoggedIn     = 20200
	StatusChannelNotFound = 20105
	StatusTimeout         = 10006
)

// IsArgumentError reports whether err is (or wraps) an *ArgumentError.
func IsArgumentError(err error) bool { return errors.Is(err, ErrArgument) }

// IsInvalidState reports whether err is (or wraps) an *InvalidStateError.
func IsInvalidState(err error) bool { return errors.Is(err, ErrInvalidState) }

// IsEngineUnavailable reports whether err is (or wraps) an *EngineUnavailableError.
func IsEngineUnavailable(err error) bool { return errors.Is(err, ErrEngineUnavailable) }

// IsOperationFailed reports whether err is (or wraps) an *OperationFailedError.
func IsOperationFailed(err error) bool { return errors.Is(err, ErrOperationFailed) }

// IsEngineStatus reports whether err carries an *EngineError with the given status code.
func IsEngineStatus(err error, status int) bool {
	var engErr *EngineError
	if errors.As(err, &engErr) {
		return engErr.StatusCode == status
	}
	return false
}

var debugRethrow atomic.Bool

// SetDebugRethrow toggles re-raising of panics from completion callbacks and
// event handlers. Debug and test use only: it breaks the containment of
// asynchronous failures on the engine-callback goroutine.
func SetDebugRethrow(on bool) { debugRethrow.Store(on) }

// DebugRethrow reports whether debug rethrow mode is on.
func DebugRethrow() bool { return debugRethrow.Load() }
