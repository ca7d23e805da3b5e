// Package router demultiplexes the inbound engine stream to the entities
// that own each event.
//
// Every event carries a typed correlation key (core.RouteKey). Entities
// register a Handler for their key when they are created and unregister when
// they are deleted. Dispatch forwards each event to exactly one handler or
// drops it silently: an entity may legitimately be torn down between a
// request and its late events. Responses are not routed by key; they go to
// the dispatcher, which correlates them by request cookie.
//
// Dispatch processes events one at a time in delivery order. State
// transitions such as Connecting→Connected are order sensitive, so handlers
// must never observe two events concurrently.
package router

import (
	"fmt"
	"sync"

	"github.com/hupe1980/vxbroker/core"
	"github.com/hupe1980/vxbroker/logging"
	"github.com/hupe1980/vxbroker/metrics"
)

// Handler consumes the events routed to one entity.
type Handler func(ev core.Event)

// ResponseSink resolves responses by request cookie (implemented by
// *dispatch.Dispatcher).
type ResponseSink interface {
	Resolve(resp *core.Response) bool
}

// Options configures a Router.
type Options struct {
	// Logger receives drop and panic logs. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Router routes events by correlation key.
type Router struct {
	responses ResponseSink
	logger    logging.Logger

	mu       sync.RWMutex
	handlers map[core.RouteKey]*registration

	dispatchMu sync.Mutex // one event at a time
}

type registration struct {
	h Handler
}

// New creates a Router forwarding responses to sink (may be nil when the
// host resolves responses elsewhere).
func New(sink ResponseSink, optFns ...func(o *Options)) *Router {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Router{
		responses: sink,
		logger:    opts.Logger,
		handlers:  make(map[core.RouteKey]*registration),
	}
}

// Register installs h for key, replacing any previous handler, and returns a
// function that removes exactly this registration.
func (r *Router) Register(key core.RouteKey, h Handler) (unregister func()) {
	reg := &registration{h: h}
	r.mu.Lock()
	r.handlers[key] = reg
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.handlers[key] == reg {
			delete(r.handlers, key)
		}
	}
}

// Unregister removes whatever handler is installed for key.
func (r *Router) Unregister(key core.RouteKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, key)
}

// Registered reports whether a handler is installed for key.
func (r *Router) Registered(key core.RouteKey) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[key]
	return ok
}

// Len returns the number of registered entities.
func (r *Router) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// Dispatch delivers ev to its owner. It is safe to call from several
// goroutines but serializes delivery; handlers may register or unregister
// entities and issue requests.
func (r *Router) Dispatch(ev core.Event) {
	if ev == nil {
		return
	}

	r.dispatchMu.Lock()
	defer r.dispatchMu.Unlock()

	switch e := ev.(type) {
	case *core.Response:
		if r.responses == nil {
			r.drop(e, metrics.ReasonNoSink)
			return
		}
		if r.responses.Resolve(e) {
			metrics.IncEventDispatched(string(e.EventType()))
		}
	case *core.LoginStateChangedEvent,
		*core.SessionAddedEvent,
		*core.SessionRemovedEvent,
		*core.MediaStreamUpdatedEvent,
		*core.TextStreamUpdatedEvent,
		*core.ParticipantAddedEvent,
		*core.ParticipantUpdatedEvent,
		*core.ParticipantRemovedEvent,
		*core.MessageReceivedEvent,
		*core.AccountArchiveMessageEvent,
		*core.AccountArchiveQueryEndEvent,
		*core.SessionArchiveMessageEvent,
		*core.SessionArchiveQueryEndEvent,
		*core.PresenceUpdatedEvent,
		*core.DevicesChangedEvent:
		r.route(ev)
	default:
		r.logger.Debug("unsupported event type", "go_type", fmt.Sprintf("%T", ev))
		r.drop(ev, metrics.ReasonUnsupported)
	}
}

func (r *Router) route(ev core.Event) {
	key := ev.RouteKey()

	r.mu.RLock()
	reg, ok := r.handlers[key]
	r.mu.RUnlock()

	if !ok {
		r.drop(ev, metrics.ReasonNoRoute)
		return
	}

	r.deliver(reg.h, ev)
	metrics.IncEventDispatched(string(ev.EventType()))
}

func (r *Router) deliver(h Handler, ev core.Event) {
	defer func() {
		if rec := recover(); rec != nil {
			if core.DebugRethrow() {
				panic(rec)
			}
			logging.ErrorWithStack(r.logger, fmt.Errorf("panic: %v", rec), "event handler panicked", "event_type", ev.EventType(), "route_key", ev.RouteKey().String())
		}
	}()
	h(ev)
}

// drop counts and logs an undelivered event; reason is a metrics.Reason* label.
func (r *Router) drop(ev core.Event, reason string) {
	metrics.IncEventDropped(string(ev.EventType()), reason)
	logging.LogEventDrop(r.logger, string(ev.EventType()), ev.RouteKey().String(), reason)
}
