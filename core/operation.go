package core

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/vxbroker/logging"
)

// Callback is invoked exactly once when an Operation completes. It runs
// synchronously on whichever goroutine completes the operation, normally the
// engine-callback goroutine.
type Callback func(op *Operation)

// OperationOptions configures a new Operation.
type OperationOptions struct {
	// Name labels the operation in errors and logs (e.g. the request type).
	Name string
	// Logger receives callback panics and double-completion warnings.
	Logger logging.Logger
}

// Operation is a completion-observable handle representing one in-flight
// request. It moves from pending to completed exactly once.
//
// Contract:
//   - Complete / CompleteWithResult / CompleteSynchronously succeed once; later
//     calls return ErrAlreadyCompleted and leave the first outcome untouched
//   - the callback runs after the outcome is visible to accessors
//   - CheckForError wraps a failure in *OperationFailedError
//
// There is no cancellation: once issued, a caller can only ignore the outcome.
type Operation struct {
	token    string
	name     string
	callback Callback
	log      *loggerAdapter
	created  time.Time

	mu            sync.Mutex
	completed     bool
	synchronously bool
	err           error
	result        any
	done          chan struct{}
}

// NewOperation allocates a pending operation. It never blocks.
func NewOperation(cb Callback, optFns ...func(o *OperationOptions)) *Operation {
	opts := OperationOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Operation{
		token:    uuid.NewString(),
		name:     opts.Name,
		callback: cb,
		log:      newLoggerAdapter(opts.Logger),
		created:  time.Now(),
		done:     make(chan struct{}),
	}
}

// Token returns the opaque correlation token of the operation.
func (o *Operation) Token() string { return o.token }

// Name returns the label given at construction.
func (o *Operation) Name() string { return o.name }

// Age returns the time elapsed since the operation was created.
func (o *Operation) Age() time.Duration { return time.Since(o.created) }

// Complete transitions the operation to completed with err (nil for success).
func (o *Operation) Complete(err error) error {
	return o.complete(nil, err, false)
}

// CompleteWithResult completes the operation carrying a result value.
func (o *Operation) CompleteWithResult(result any, err error) error {
	return o.complete(result, err, false)
}

// CompleteSynchronously completes the operation before it is handed back to
// the caller. Used for no-op fast paths such as "already connected".
func (o *Operation) CompleteSynchronously(result any, err error) error {
	return o.complete(result, err, true)
}

func (o *Operation) complete(result any, err error, sync bool) error {
	o.mu.Lock()
	if o.completed {
		o.mu.Unlock()
		o.log.logger.Warn("operation completed twice", "operation", o.name, "token", o.token)
		return ErrAlreadyCompleted
	}
	o.completed = true
	o.synchronously = sync
	o.err = err
	o.result = result
	close(o.done)
	cb := o.callback
	o.mu.Unlock()

	if cb != nil {
		o.invoke(cb)
	}
	return nil
}

func (o *Operation) invoke(cb Callback) {
	defer func() { o.log.recoverCallback("operation "+o.name, recover()) }()
	cb(o)
}

// IsCompleted reports whether the operation reached its terminal state.
func (o *Operation) IsCompleted() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.completed
}

// CompletedSynchronously reports whether the operation completed before it
// was returned to the caller.
func (o *Operation) CompletedSynchronously() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.synchronously
}

// Err returns the raw completion error (nil while pending or on success).
func (o *Operation) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

// Result returns the value attached at completion, if any.
func (o *Operation) Result() any {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.result
}

// Done returns a channel closed once the operation completes. It lets callers
// build their own synchronization; the broker itself never waits on it.
func (o *Operation) Done() <-chan struct{} { return o.done }

// CheckForError returns an *OperationFailedError wrapping the completion error,
// nil on success, or ErrOperationPending when called before completion.
func (o *Operation) CheckForError() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.completed {
		return ErrOperationPending
	}
	if o.err == nil {
		return nil
	}
	return &OperationFailedError{Op: o.name, Err: o.err}
}
