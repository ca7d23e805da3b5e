package testutil

import (
	"sync"

	"github.com/hupe1980/vxbroker/core"
)

// ChangeRecorder collects change notifications for assertions.
type ChangeRecorder struct {
	mu      sync.Mutex
	changes []core.Change
}

// Record is a core.ChangeFunc.
func (r *ChangeRecorder) Record(c core.Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

// Changes returns every recorded change in order.
func (r *ChangeRecorder) Changes() []core.Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.Change(nil), r.changes...)
}

// Fields returns the recorded field tags in order.
func (r *ChangeRecorder) Fields() []core.Field {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]core.Field, len(r.changes))
	for i, c := range r.changes {
		out[i] = c.Field
	}
	return out
}

// Count returns how many times field was recorded.
func (r *ChangeRecorder) Count(field core.Field) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.changes {
		if c.Field == field {
			n++
		}
	}
	return n
}

// Reset forgets recorded changes.
func (r *ChangeRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = nil
}
