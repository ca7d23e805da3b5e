package testutil

import (
	"fmt"
	"time"

	"github.com/hupe1980/vxbroker/core"
)

// ArchiveBuilder provides a fluent helper for canned archive history.
// Example:
//
//	msgs := NewArchiveBuilder().From("sip:alice").Text("hi", "bye").Build()
//
// Messages get sequential ids ("m1", "m2", ...) and timestamps one minute apart.
type ArchiveBuilder struct {
	sender core.ParticipantURI
	start  time.Time
	msgs   []core.ArchiveMessage
}

// NewArchiveBuilder creates a builder starting at 2024-01-01T00:00:00Z.
func NewArchiveBuilder() *ArchiveBuilder {
	return &ArchiveBuilder{sender: "sip:peer", start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// From sets the sender of following messages (chainable).
func (b *ArchiveBuilder) From(uri core.ParticipantURI) *ArchiveBuilder { b.sender = uri; return b }

// Text appends one message per body (chainable).
func (b *ArchiveBuilder) Text(bodies ...string) *ArchiveBuilder {
	for _, body := range bodies {
		n := len(b.msgs) + 1
		b.msgs = append(b.msgs, core.ArchiveMessage{
			MessageID: fmt.Sprintf("m%d", n),
			Sender:    b.sender,
			Body:      body,
			Inbound:   true,
			Timestamp: b.start.Add(time.Duration(n-1) * time.Minute),
		})
	}
	return b
}

// Build returns a copy of the accumulated messages.
func (b *ArchiveBuilder) Build() []core.ArchiveMessage {
	return append([]core.ArchiveMessage(nil), b.msgs...)
}
