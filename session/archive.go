package session

import (
	"errors"
	"sync"

	"github.com/hupe1980/vxbroker/core"
)

// ArchiveQueryTracker follows the single tracked archive query of one entity
// and collects the archived messages delivered for it.
//
// Starting a query replaces whatever was tracked before, even a query that is
// still running. End events are only accepted for the tracked query while it
// runs, so end events of superseded queries are ignored.
type ArchiveQueryTracker struct {
	mu       sync.Mutex
	result   *core.ArchiveQueryResult
	messages []core.ArchiveMessage
}

// NewArchiveQueryTracker returns an empty tracker.
func NewArchiveQueryTracker() *ArchiveQueryTracker {
	return &ArchiveQueryTracker{}
}

// Begin tracks id as the running query and returns the previously tracked
// result (nil if none) so a caller can restore it when issuing fails.
func (t *ArchiveQueryTracker) Begin(id core.QueryID) *core.ArchiveQueryResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev := t.result
	t.result = &core.ArchiveQueryResult{QueryID: id, Running: true}
	return prev
}

// Restore puts prev back if id is still the tracked query.
func (t *ArchiveQueryTracker) Restore(id core.QueryID, prev *core.ArchiveQueryResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.result != nil && t.result.QueryID == id {
		t.result = prev
	}
}

// Fail stops the tracked query id after the engine rejected it. It reports
// whether the tracked result changed.
func (t *ArchiveQueryTracker) Fail(id core.QueryID, err error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.result == nil || t.result.QueryID != id || !t.result.Running {
		return false
	}
	t.result.Running = false
	t.result.ReturnCode = 1
	var engineErr *core.EngineError
	if errors.As(err, &engineErr) {
		t.result.ReturnCode = engineErr.ReturnCode
		t.result.StatusCode = engineErr.StatusCode
	}
	return true
}

// End applies a query-end summary. It reports whether the summary was
// accepted, which only happens for the tracked query while it is running.
func (t *ArchiveQueryTracker) End(end core.ArchiveQueryEnd) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.result == nil || t.result.QueryID != end.QueryID || !t.result.Running {
		return false
	}
	*t.result = core.ArchiveQueryResult{
		QueryID:    end.QueryID,
		ReturnCode: end.ReturnCode,
		StatusCode: end.StatusCode,
		FirstID:    end.FirstID,
		LastID:     end.LastID,
		FirstIndex: end.FirstIndex,
		TotalCount: end.TotalCount,
		Running:    false,
	}
	return true
}

// Append adds one archived message to the log regardless of tracking state.
func (t *ArchiveQueryTracker) Append(m core.ArchiveMessage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages, m)
}

// Result returns a copy of the tracked result and whether one exists.
func (t *ArchiveQueryTracker) Result() (core.ArchiveQueryResult, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.result == nil {
		return core.ArchiveQueryResult{}, false
	}
	return *t.result, true
}

// Running reports whether the tracked query is still running.
func (t *ArchiveQueryTracker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result != nil && t.result.Running
}

// Messages returns a copy of the message log in delivery order.
func (t *ArchiveQueryTracker) Messages() []core.ArchiveMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]core.ArchiveMessage, len(t.messages))
	copy(out, t.messages)
	return out
}

// Reset forgets the tracked result and the message log.
func (t *ArchiveQueryTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.result = nil
	t.messages = nil
}

// beginArchiveQuery validates params and issues the request built by newReq
// for a fresh query id, tracking it on t. Nothing is tracked when issuing fails.
func beginArchiveQuery(
	t *ArchiveQueryTracker,
	issuer Issuer,
	params core.ArchiveQueryParams,
	newReq func(id core.QueryID) core.Request,
	notify func(),
	cb core.Callback,
) (*core.Operation, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	if err := checkReady(issuer); err != nil {
		return nil, err
	}

	id := core.NewQueryID()
	prev := t.Begin(id)

	op, err := issuer.Issue(newReq(id), func(resp *core.Response) error {
		return resp.Err()
	}, func(op *core.Operation) {
		if op.Err() != nil && t.Fail(id, op.Err()) {
			notify()
		}
		if cb != nil {
			cb(op)
		}
	})
	if err != nil {
		t.Restore(id, prev)
		return nil, err
	}
	notify()
	return op, nil
}
