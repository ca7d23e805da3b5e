package core

import (
	"fmt"

	"github.com/google/uuid"
)

// SessionHandle identifies one channel session to the engine. It is created
// when the session object is constructed and never changes afterwards.
type SessionHandle string

// AccountHandle identifies one login session (account) to the engine.
type AccountHandle string

// ChannelID identifies a channel (room) on the voice service, e.g.
// "sip:confctl-g-demo.lobby@example.vivox.com".
type ChannelID string

// ParticipantURI identifies a participant inside a channel.
type ParticipantURI string

// QueryID identifies one paged archive query.
type QueryID string

// RequestID is the per-request cookie echoed back by the engine in its response.
type RequestID string

// NewSessionHandle returns a process-unique session handle.
func NewSessionHandle() SessionHandle { return SessionHandle("sh-" + uuid.NewString()) }

// NewQueryID returns a new archive query identifier.
func NewQueryID() QueryID { return QueryID(uuid.NewString()) }

// NewRequestID returns a new request cookie.
func NewRequestID() RequestID { return RequestID(uuid.NewString()) }

// ChannelKey is the composite identity of a channel session within its login
// session. It replaces ad-hoc "account_channel" string concatenation.
type ChannelKey struct {
	Account AccountHandle
	Channel ChannelID
}

// String renders the key for logs only; never parse it back.
func (k ChannelKey) String() string { return fmt.Sprintf("%s/%s", k.Account, k.Channel) }

// PresenceKey identifies a presence subscription owned by an account.
type PresenceKey struct {
	Account      AccountHandle
	Subscription string
}

// String renders the key for logs.
func (k PresenceKey) String() string { return fmt.Sprintf("%s/%s", k.Account, k.Subscription) }

// RouteKind discriminates the namespace of a RouteKey.
type RouteKind uint8

const (
	// RouteNone marks events that carry no routable correlation.
	RouteNone RouteKind = iota
	// RouteAccount routes by AccountHandle.
	RouteAccount
	// RouteSession routes by SessionHandle.
	RouteSession
	// RouteDevice routes audio device events by device direction.
	RouteDevice
)

// String returns the human readable kind.
func (k RouteKind) String() string {
	switch k {
	case RouteAccount:
		return "account"
	case RouteSession:
		return "session"
	case RouteDevice:
		return "device"
	default:
		return "none"
	}
}

// RouteKey is the strongly typed correlation key used by the event router.
// Account and session handles live in separate namespaces so equal strings
// never collide.
type RouteKey struct {
	Kind RouteKind
	ID   string
}

// String renders the key for logs and metrics.
func (k RouteKey) String() string { return k.Kind.String() + ":" + k.ID }

// IsZero reports whether the key carries no correlation.
func (k RouteKey) IsZero() bool { return k.Kind == RouteNone }

// AccountRoute builds the route key for an account handle.
func AccountRoute(a AccountHandle) RouteKey { return RouteKey{Kind: RouteAccount, ID: string(a)} }

// SessionRoute builds the route key for a session handle.
func SessionRoute(s SessionHandle) RouteKey { return RouteKey{Kind: RouteSession, ID: string(s)} }

// DeviceRoute builds the route key for an audio device direction.
func DeviceRoute(d DeviceDirection) RouteKey { return RouteKey{Kind: RouteDevice, ID: d.String()} }
