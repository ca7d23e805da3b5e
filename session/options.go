package session

import (
	"github.com/hupe1980/vxbroker/core"
	"github.com/hupe1980/vxbroker/dispatch"
	"github.com/hupe1980/vxbroker/logging"
	"github.com/hupe1980/vxbroker/router"
)

// Issuer sends requests and correlates their responses. Implemented by
// *dispatch.Dispatcher.
type Issuer interface {
	Ready() bool
	Issue(req core.Request, handler dispatch.ResponseHandler, cb core.Callback) (*core.Operation, error)
}

// Registrar installs event handlers by correlation key. Implemented by
// *router.Router.
type Registrar interface {
	Register(key core.RouteKey, h router.Handler) (unregister func())
}

// Options configures session entities.
type Options struct {
	// Logger receives entity logs. Defaults to NoOpLogger.
	Logger logging.Logger
	// DisplayName is sent with login requests.
	DisplayName string
}

func applyOptions(optFns []func(o *Options)) Options {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return opts
}

// lifecycle names entity states that are not part of a state machine.
type lifecycle string

func (l lifecycle) String() string { return string(l) }

const deleted lifecycle = "Deleted"

// checkReady must run before any speculative state is written.
func checkReady(issuer Issuer) error {
	if !issuer.Ready() {
		return &core.EngineUnavailableError{Reason: "engine not initialized"}
	}
	return nil
}

// issue hands req to the dispatcher. revert undoes speculative state; it runs
// before cb whenever the operation fails, and immediately when the request
// could not be issued at all.
func issue(issuer Issuer, req core.Request, handler dispatch.ResponseHandler, revert func(), cb core.Callback) (*core.Operation, error) {
	op, err := issuer.Issue(req, handler, func(op *core.Operation) {
		if op.Err() != nil && revert != nil {
			revert()
		}
		if cb != nil {
			cb(op)
		}
	})
	if err != nil {
		if revert != nil {
			revert()
		}
		return nil, err
	}
	return op, nil
}

// completed returns an operation finished before reaching the caller, used
// when the requested state already holds.
func completed(name string, logger logging.Logger, cb core.Callback) *core.Operation {
	op := core.NewOperation(cb, func(o *core.OperationOptions) {
		o.Name = name
		o.Logger = logger
	})
	_ = op.CompleteSynchronously(nil, nil)
	return op
}

// changes collects fields touched under a lock so they can be announced
// after it is released.
type changes []core.Field

func (c *changes) add(f core.Field) { *c = append(*c, f) }

func (c changes) notify(n *core.Notifier, entity string) {
	for _, f := range c {
		n.Notify(entity, f)
	}
}
