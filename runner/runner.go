package runner

import (
	"context"
	"errors"
	"sync"

	"github.com/hupe1980/vxbroker/core"
	"github.com/hupe1980/vxbroker/logging"
	"github.com/hupe1980/vxbroker/metrics"
)

var (
	// ErrClosed is returned by Post and Run once the runner was closed.
	ErrClosed = errors.New("runner: closed")
	// ErrAlreadyRunning is returned by Run when another Run loop is active.
	ErrAlreadyRunning = errors.New("runner: already running")
)

// DispatchFunc consumes one event. It is always called from the Run goroutine.
type DispatchFunc func(ev core.Event)

// Options holds configuration overrides passed to New().
type Options struct {
	// EventBufferSize sets the queue capacity between producers and Run.
	EventBufferSize int
	// Logger receives lifecycle and drop logs.
	Logger logging.Logger
}

// Runner pumps engine events into a dispatch function on a single goroutine.
// Public methods are safe for concurrent use.
type Runner struct {
	dispatch DispatchFunc
	logger   logging.Logger

	events    chan core.Event
	closed    chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	running bool
}

// New constructs a Runner with optional overrides.
func New(dispatch DispatchFunc, optFns ...func(o *Options)) *Runner {
	opts := Options{
		EventBufferSize: 256,
		Logger:          logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.EventBufferSize < 0 {
		opts.EventBufferSize = 0
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Runner{
		dispatch: dispatch,
		logger:   opts.Logger,
		events:   make(chan core.Event, opts.EventBufferSize),
		closed:   make(chan struct{}),
	}
}

// Post enqueues ev, blocking while the queue is full. It returns ctx.Err()
// if ctx ends first and ErrClosed after Close.
func (r *Runner) Post(ctx context.Context, ev core.Event) error {
	select {
	case <-r.closed:
		return ErrClosed
	default:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.closed:
		return ErrClosed
	case r.events <- ev:
		return nil
	}
}

// Handler adapts the runner to core.EventHandler so it can be installed with
// Engine.OnEvent. Events arriving after Close are dropped and counted.
func (r *Runner) Handler() core.EventHandler {
	return func(ev core.Event) {
		if err := r.Post(context.Background(), ev); err != nil {
			metrics.IncEventDropped(string(ev.EventType()), metrics.ReasonQueueClosed)
			r.logger.Debug("runner dropped event", "event_type", ev.EventType(), "error", err)
		}
	}
}

// Run dispatches queued events until ctx is cancelled (returning ctx.Err())
// or Close is called (returning nil after draining the queue).
func (r *Runner) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return ErrAlreadyRunning
	}
	select {
	case <-r.closed:
		r.mu.Unlock()
		return ErrClosed
	default:
	}
	r.running = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	r.logger.Debug("runner started")

	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("runner stopped", "reason", ctx.Err())
			return ctx.Err()
		case <-r.closed:
			n := r.drain()
			r.logger.Debug("runner closed", "drained", n)
			return nil
		case ev := <-r.events:
			r.dispatch(ev)
		}
	}
}

// Close stops the runner. It is safe to call more than once.
func (r *Runner) Close() error {
	r.closeOnce.Do(func() { close(r.closed) })
	return nil
}

// Len returns the number of queued events.
func (r *Runner) Len() int { return len(r.events) }

func (r *Runner) drain() int {
	n := 0
	for {
		select {
		case ev := <-r.events:
			r.dispatch(ev)
			n++
		default:
			return n
		}
	}
}
