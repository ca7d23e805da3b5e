package dispatch

import (
	"fmt"
	"sync"

	"github.com/hupe1980/vxbroker/core"
	"github.com/hupe1980/vxbroker/logging"
	"github.com/hupe1980/vxbroker/metrics"
)

// ResponseHandler lets the issuing entity react to the engine's answer (update
// speculative state, capture payloads). It returns the error the operation
// completes with; returning resp.Err() keeps the engine's verdict.
type ResponseHandler func(resp *core.Response) error

// Options configures a Dispatcher.
type Options struct {
	// Logger receives request lifecycle logs. Defaults to NoOpLogger.
	Logger logging.Logger
}

type pending struct {
	op      *core.Operation
	reqType core.RequestType
	handler ResponseHandler
}

// Dispatcher serializes outbound requests to one engine and correlates each
// with its Operation until the matching response arrives.
type Dispatcher struct {
	engine core.Engine
	logger logging.Logger

	sendMu sync.Mutex // serializes engine.Send

	mu      sync.Mutex
	pending map[core.RequestID]*pending
}

// New creates a Dispatcher bound to engine. A nil engine is allowed; every
// Issue then fails with *core.EngineUnavailableError.
func New(engine core.Engine, optFns ...func(o *Options)) *Dispatcher {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Dispatcher{
		engine:  engine,
		logger:  opts.Logger,
		pending: make(map[core.RequestID]*pending),
	}
}

// Ready reports whether requests can currently be issued.
func (d *Dispatcher) Ready() bool {
	return d.engine != nil && d.engine.Ready()
}

// Issue sends req and returns the operation tracking it. Exactly one message
// reaches the engine unless the engine is unavailable.
func (d *Dispatcher) Issue(req core.Request, handler ResponseHandler, cb core.Callback) (*core.Operation, error) {
	if d.engine == nil {
		return nil, &core.EngineUnavailableError{Reason: "no engine configured"}
	}
	if !d.engine.Ready() {
		return nil, &core.EngineUnavailableError{Reason: "engine not initialized"}
	}

	reqType := req.RequestType()
	op := core.NewOperation(cb, func(o *core.OperationOptions) {
		o.Name = string(reqType)
		o.Logger = d.logger
	})

	id := core.NewRequestID()
	req.SetRequestID(id)

	// Register before sending: the response may arrive on the engine
	// goroutine before Send returns.
	d.mu.Lock()
	d.pending[id] = &pending{op: op, reqType: reqType, handler: handler}
	d.mu.Unlock()

	d.sendMu.Lock()
	err := d.engine.Send(req)
	d.sendMu.Unlock()

	d.mu.Lock()
	if err != nil {
		delete(d.pending, id)
	}
	n := len(d.pending)
	d.mu.Unlock()
	metrics.SetPending(n)

	if err != nil {
		metrics.IncRequestFailure(string(reqType), metrics.ReasonSendFailed)
		d.logger.Warn("engine rejected request", "request_type", reqType, "request_id", id, "correlation", req.Correlation().String(), "error", err)
		_ = op.Complete(fmt.Errorf("send %s: %w", reqType, err))
		return op, nil
	}

	metrics.IncRequestIssued(string(reqType))
	d.logger.Debug("request issued", "request_type", reqType, "request_id", id, "correlation", req.Correlation().String())
	return op, nil
}

// Resolve completes the operation matching resp.RequestID. It returns false
// when no request with that cookie is pending (late or duplicate response).
func (d *Dispatcher) Resolve(resp *core.Response) bool {
	d.mu.Lock()
	p, ok := d.pending[resp.RequestID]
	if ok {
		delete(d.pending, resp.RequestID)
	}
	n := len(d.pending)
	d.mu.Unlock()

	if !ok {
		metrics.IncEventDropped(string(core.EvtResponse), metrics.ReasonUnknownReq)
		d.logger.Debug("response for unknown request dropped", "request_id", resp.RequestID, "request_type", resp.RequestType)
		return false
	}
	metrics.SetPending(n)

	err := resp.Err()
	if p.handler != nil {
		err = d.runHandler(p, resp)
	}

	dur := p.op.Age()
	metrics.ObserveOperation(string(p.reqType), dur)
	if err != nil {
		reason := metrics.ReasonEngineError
		if !resp.Failed() {
			reason = metrics.ReasonHandlerError
		}
		metrics.IncRequestFailure(string(p.reqType), reason)
	}
	logging.LogRequest(d.logger, string(p.reqType), string(resp.RequestID), dur, err)

	_ = p.op.CompleteWithResult(resultOf(resp), err)
	return true
}

func (d *Dispatcher) runHandler(p *pending, resp *core.Response) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if core.DebugRethrow() {
				panic(r)
			}
			err = fmt.Errorf("response handler for %s panicked: %v", p.reqType, r)
			logging.ErrorWithStack(d.logger, err, "response handler panicked", "request_type", p.reqType)
		}
	}()
	return p.handler(resp)
}

// resultOf extracts the payload worth handing to callers.
func resultOf(resp *core.Response) any {
	switch {
	case resp.MessageID != "":
		return resp.MessageID
	case resp.Devices != nil:
		return resp.Devices
	default:
		return nil
	}
}

// Pending returns the number of requests awaiting a response.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Abandon drops all pending requests, completing their operations with err.
// Used when the engine shuts down and no responses will follow.
func (d *Dispatcher) Abandon(err error) int {
	d.mu.Lock()
	all := d.pending
	d.pending = make(map[core.RequestID]*pending)
	d.mu.Unlock()
	metrics.SetPending(0)

	for id, p := range all {
		d.logger.Debug("request abandoned", "request_type", p.reqType, "request_id", id)
		_ = p.op.Complete(err)
	}
	return len(all)
}
