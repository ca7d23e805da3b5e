// Package vxbroker provides a high-level façade over the request dispatcher,
// the event router and the session entities of an asynchronous voice engine.
// Most applications interact with this package by:
//  1. Creating a Broker via New() around a core.Engine (engine.Simulator for
//     tests and demos, engine.Stream for an out-of-process engine)
//  2. Running the event pump with Run when events are buffered
//  3. Obtaining entities (LoginSession, ChannelSession, AudioDevices) and
//     calling their Begin* operations
//
// Every Begin* call returns a *core.Operation immediately. Its callback fires
// exactly once, after the entity state reflects the outcome.
package vxbroker

import (
	"context"
	"errors"
	"sync"

	"github.com/hupe1980/vxbroker/config"
	"github.com/hupe1980/vxbroker/core"
	"github.com/hupe1980/vxbroker/dispatch"
	"github.com/hupe1980/vxbroker/logging"
	"github.com/hupe1980/vxbroker/router"
	"github.com/hupe1980/vxbroker/runner"
	"github.com/hupe1980/vxbroker/session"
)

// ErrClosed completes operations still pending when the Broker closes.
var ErrClosed = errors.New("broker closed")

// Options configures the Broker instance.
type Options struct {
	// EventBufferSize > 0 queues engine callbacks and delivers them on the
	// goroutine calling Run. Zero delivers on the engine's own callback
	// goroutine.
	EventBufferSize int

	// DisplayName is sent with every login request.
	DisplayName string

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// WithConfig applies the engine settings of cfg.
func WithConfig(cfg config.Config) func(o *Options) {
	return func(o *Options) {
		o.EventBufferSize = cfg.Engine.EventBufferSize
	}
}

// Broker is the high-level façade aggregating dispatcher, router and sessions.
type Broker struct {
	opts       Options
	engine     core.Engine
	dispatcher *dispatch.Dispatcher
	router     *router.Router
	runner     *runner.Runner
	sessions   *session.Registry

	mu      sync.Mutex
	devices map[core.DeviceDirection]*session.AudioDevices
	closed  bool
}

// New creates a Broker bound to engine and installs its event handler. A nil
// engine is allowed; every operation then fails with EngineUnavailableError.
func New(engine core.Engine, optFns ...func(o *Options)) *Broker {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	d := dispatch.New(engine, func(o *dispatch.Options) { o.Logger = opts.Logger })
	r := router.New(d, func(o *router.Options) { o.Logger = opts.Logger })

	b := &Broker{
		opts:       opts,
		engine:     engine,
		dispatcher: d,
		router:     r,
		devices:    make(map[core.DeviceDirection]*session.AudioDevices),
	}
	b.sessions = session.NewRegistry(d, r, b.sessionOptions)

	handler := core.EventHandler(r.Dispatch)
	if opts.EventBufferSize > 0 {
		b.runner = runner.New(r.Dispatch, func(o *runner.Options) {
			o.EventBufferSize = opts.EventBufferSize
			o.Logger = opts.Logger
		})
		handler = b.runner.Handler()
	}
	if engine != nil {
		engine.OnEvent(handler)
	}
	return b
}

func (b *Broker) sessionOptions(o *session.Options) {
	o.Logger = b.opts.Logger
	o.DisplayName = b.opts.DisplayName
}

// Run pumps buffered engine events until ctx is done or the Broker closes.
// Without an event buffer it only blocks until ctx is done.
func (b *Broker) Run(ctx context.Context) error {
	if b.runner == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	return b.runner.Run(ctx)
}

// Ready reports whether requests can be issued.
func (b *Broker) Ready() bool { return b.dispatcher.Ready() }

// LoginSession returns the session of account, creating it on first use.
func (b *Broker) LoginSession(account core.AccountHandle) (*session.LoginSession, error) {
	if b.isClosed() {
		return nil, ErrClosed
	}
	return b.sessions.Get(account)
}

// LoginSessions returns every login session ordered by account.
func (b *Broker) LoginSessions() []*session.LoginSession { return b.sessions.List() }

// DeleteLoginSession tears down the session of account, logging out if needed.
func (b *Broker) DeleteLoginSession(account core.AccountHandle) error {
	return b.sessions.Delete(account)
}

// AudioInputDevices returns the capture device list.
func (b *Broker) AudioInputDevices() *session.AudioDevices {
	return b.audioDevices(core.DeviceInput)
}

// AudioOutputDevices returns the render device list.
func (b *Broker) AudioOutputDevices() *session.AudioDevices {
	return b.audioDevices(core.DeviceOutput)
}

func (b *Broker) audioDevices(dir core.DeviceDirection) *session.AudioDevices {
	b.mu.Lock()
	defer b.mu.Unlock()
	if d, ok := b.devices[dir]; ok {
		return d
	}
	d := session.NewAudioDevices(dir, b.dispatcher, b.router, b.sessionOptions)
	b.devices[dir] = d
	return d
}

// Dispatcher exposes the request dispatcher.
func (b *Broker) Dispatcher() *dispatch.Dispatcher { return b.dispatcher }

// Router exposes the event router.
func (b *Broker) Router() *router.Router { return b.router }

// Close deletes every entity, completes pending operations with ErrClosed and
// stops the event pump. It is idempotent.
func (b *Broker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	devices := b.devices
	b.devices = make(map[core.DeviceDirection]*session.AudioDevices)
	b.mu.Unlock()

	b.sessions.Close()
	for _, d := range devices {
		d.Delete()
	}
	if n := b.dispatcher.Abandon(ErrClosed); n > 0 {
		b.opts.Logger.Debug("abandoned pending requests", "count", n)
	}
	if b.runner != nil {
		return b.runner.Close()
	}
	return nil
}

func (b *Broker) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
