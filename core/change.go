package core

import (
	"sync"

	"github.com/hupe1980/vxbroker/logging"
)

// Field tags the attribute of an entity that changed.
type Field string

const (
	FieldLoginState      Field = "login_state"
	FieldAudioState      Field = "audio_state"
	FieldTextState       Field = "text_state"
	FieldChannelState    Field = "channel_state"
	FieldParticipants    Field = "participants"
	FieldMessages        Field = "messages"
	FieldArchiveResult   Field = "archive_result"
	FieldArchiveMessages Field = "archive_messages"
	FieldPresence        Field = "presence"
	FieldDevices         Field = "devices"
	FieldActiveDevice    Field = "active_device"
	FieldSessionDeleted  Field = "session_deleted"
	FieldTransmitting    Field = "transmitting"
)

// Change is one property change record of an entity. Entity is the string
// form of the owning key (account, session or device route).
type Change struct {
	Entity string
	Field  Field
}

// ChangeFunc observes change records.
type ChangeFunc func(c Change)

// Notifier fans change records out to subscribers in subscription order.
// It is safe for concurrent use; observers run synchronously on the
// goroutine that mutated the entity.
type Notifier struct {
	mu    sync.RWMutex
	next  int
	subs  map[int]ChangeFunc
	order []int
	log   *loggerAdapter
}

// NewNotifier creates an empty notifier. A nil logger is replaced by a NoOpLogger.
func NewNotifier(l logging.Logger) *Notifier {
	return &Notifier{subs: make(map[int]ChangeFunc), log: newLoggerAdapter(l)}
}

// Subscribe registers fn and returns a function that removes it.
func (n *Notifier) Subscribe(fn ChangeFunc) (cancel func()) {
	n.mu.Lock()
	id := n.next
	n.next++
	n.subs[id] = fn
	n.order = append(n.order, id)
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			delete(n.subs, id)
			for i, v := range n.order {
				if v == id {
					n.order = append(n.order[:i], n.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Notify delivers a change to every current subscriber.
func (n *Notifier) Notify(entity string, field Field) {
	n.mu.RLock()
	fns := make([]ChangeFunc, 0, len(n.order))
	for _, id := range n.order {
		fns = append(fns, n.subs[id])
	}
	n.mu.RUnlock()

	c := Change{Entity: entity, Field: field}
	for _, fn := range fns {
		n.deliver(fn, c)
	}
}

func (n *Notifier) deliver(fn ChangeFunc, c Change) {
	defer func() { n.log.recoverCallback("change observer", recover()) }()
	fn(c)
}
