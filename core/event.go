package core

// EventType discriminates the closed set of inbound engine messages.
type EventType string

const (
	EvtResponse               EventType = "resp"
	EvtLoginStateChanged      EventType = "evt_account_login_state_change"
	EvtSessionAdded           EventType = "evt_session_added"
	EvtSessionRemoved         EventType = "evt_session_removed"
	EvtMediaStreamUpdated     EventType = "evt_media_stream_updated"
	EvtTextStreamUpdated      EventType = "evt_text_stream_updated"
	EvtParticipantAdded       EventType = "evt_participant_added"
	EvtParticipantUpdated     EventType = "evt_participant_updated"
	EvtParticipantRemoved     EventType = "evt_participant_removed"
	EvtMessageReceived        EventType = "evt_message"
	EvtAccountArchiveMessage  EventType = "evt_account_archive_message"
	EvtAccountArchiveQueryEnd EventType = "evt_account_archive_query_end"
	EvtSessionArchiveMessage  EventType = "evt_session_archive_message"
	EvtSessionArchiveQueryEnd EventType = "evt_session_archive_query_end"
	EvtPresenceUpdated        EventType = "evt_buddy_presence"
	EvtDevicesChanged         EventType = "evt_audio_device_hot_swap"
)

// Event is an inbound message from the engine. The set of implementations is
// closed so the router can match it exhaustively with a type switch.
type Event interface {
	// EventType returns the discriminant.
	EventType() EventType
	// RouteKey returns the correlation key of the owning entity. Responses
	// return the zero key; they are correlated by RequestID instead.
	RouteKey() RouteKey

	isEvent()
}

// Response answers exactly one request, matched by RequestID.
type Response struct {
	RequestID   RequestID   `cbor:"request_id"`
	RequestType RequestType `cbor:"request_type"`
	ReturnCode  int         `cbor:"return_code"`
	StatusCode  int         `cbor:"status_code"`
	StatusText  string      `cbor:"status_string,omitempty"`

	// Optional payloads, filled depending on RequestType.
	MessageID    string        `cbor:"message_id,omitempty"`
	Devices      []AudioDevice `cbor:"devices,omitempty"`
	ActiveDevice string        `cbor:"active_device,omitempty"`
}

// Failed reports whether the engine rejected the request.
func (r *Response) Failed() bool { return r.ReturnCode != 0 }

// Err returns an *EngineError for a failed response, nil otherwise.
func (r *Response) Err() error {
	if !r.Failed() {
		return nil
	}
	return &EngineError{ReturnCode: r.ReturnCode, StatusCode: r.StatusCode, StatusText: r.StatusText}
}

// LoginStateChangedEvent reports an authoritative login state of an account.
type LoginStateChangedEvent struct {
	Account    AccountHandle `cbor:"account_handle"`
	State      LoginState    `cbor:"state"`
	StatusCode int           `cbor:"status_code,omitempty"`
}

// SessionAddedEvent reports that the engine created a channel session.
type SessionAddedEvent struct {
	Account AccountHandle `cbor:"account_handle"`
	Session SessionHandle `cbor:"session_handle"`
	Channel ChannelID     `cbor:"channel"`
}

// SessionRemovedEvent reports that a channel session is gone; both transports
// are Disconnected afterwards.
type SessionRemovedEvent struct {
	Session    SessionHandle `cbor:"session_handle"`
	StatusCode int           `cbor:"status_code,omitempty"`
}

// MediaStreamUpdatedEvent reports the audio transport state of a session.
type MediaStreamUpdatedEvent struct {
	Session    SessionHandle   `cbor:"session_handle"`
	State      ConnectionState `cbor:"state"`
	StatusCode int             `cbor:"status_code,omitempty"`
}

// TextStreamUpdatedEvent reports the text transport state of a session.
type TextStreamUpdatedEvent struct {
	Session    SessionHandle   `cbor:"session_handle"`
	State      ConnectionState `cbor:"state"`
	StatusCode int             `cbor:"status_code,omitempty"`
}

// ParticipantAddedEvent reports a participant joining a session.
type ParticipantAddedEvent struct {
	Session     SessionHandle `cbor:"session_handle"`
	Participant Participant   `cbor:"participant"`
}

// ParticipantUpdatedEvent reports a change of a participant's media state.
type ParticipantUpdatedEvent struct {
	Session     SessionHandle `cbor:"session_handle"`
	Participant Participant   `cbor:"participant"`
}

// ParticipantRemovedEvent reports a participant leaving a session.
type ParticipantRemovedEvent struct {
	Session SessionHandle  `cbor:"session_handle"`
	URI     ParticipantURI `cbor:"participant_uri"`
	Reason  string         `cbor:"reason,omitempty"`
}

// MessageReceivedEvent carries a channel text message.
type MessageReceivedEvent struct {
	Session SessionHandle  `cbor:"session_handle"`
	Message ChannelMessage `cbor:"message"`
}

// ArchiveQueryEnd is the summary shared by both query-end events.
type ArchiveQueryEnd struct {
	QueryID    QueryID `cbor:"query_id"`
	ReturnCode int     `cbor:"return_code"`
	StatusCode int     `cbor:"status_code"`
	FirstID    string  `cbor:"first_id,omitempty"`
	LastID     string  `cbor:"last_id,omitempty"`
	FirstIndex int     `cbor:"first_index"`
	TotalCount int     `cbor:"total_count"`
}

// AccountArchiveMessageEvent is one record of an account archive query.
type AccountArchiveMessageEvent struct {
	Account AccountHandle  `cbor:"account_handle"`
	Message ArchiveMessage `cbor:"message"`
}

// AccountArchiveQueryEndEvent closes an account archive query.
type AccountArchiveQueryEndEvent struct {
	Account AccountHandle `cbor:"account_handle"`
	ArchiveQueryEnd
}

// SessionArchiveMessageEvent is one record of a channel archive query.
type SessionArchiveMessageEvent struct {
	Session SessionHandle  `cbor:"session_handle"`
	Message ArchiveMessage `cbor:"message"`
}

// SessionArchiveQueryEndEvent closes a channel archive query.
type SessionArchiveQueryEndEvent struct {
	Session SessionHandle `cbor:"session_handle"`
	ArchiveQueryEnd
}

// PresenceUpdatedEvent reports a presence change of one location of a contact.
type PresenceUpdatedEvent struct {
	Account  AccountHandle    `cbor:"account_handle"`
	Buddy    string           `cbor:"buddy_uri"`
	Location PresenceLocation `cbor:"location"`
	// Removed is set when the location went away entirely.
	Removed bool `cbor:"removed,omitempty"`
}

// DevicesChangedEvent reports a hot swap of capture or render devices.
type DevicesChangedEvent struct {
	Direction    DeviceDirection `cbor:"direction"`
	Devices      []AudioDevice   `cbor:"devices"`
	ActiveDevice string          `cbor:"active_device,omitempty"`
}

func (*Response) EventType() EventType                    { return EvtResponse }
func (*LoginStateChangedEvent) EventType() EventType      { return EvtLoginStateChanged }
func (*SessionAddedEvent) EventType() EventType           { return EvtSessionAdded }
func (*SessionRemovedEvent) EventType() EventType         { return EvtSessionRemoved }
func (*MediaStreamUpdatedEvent) EventType() EventType     { return EvtMediaStreamUpdated }
func (*TextStreamUpdatedEvent) EventType() EventType      { return EvtTextStreamUpdated }
func (*ParticipantAddedEvent) EventType() EventType       { return EvtParticipantAdded }
func (*ParticipantUpdatedEvent) EventType() EventType     { return EvtParticipantUpdated }
func (*ParticipantRemovedEvent) EventType() EventType     { return EvtParticipantRemoved }
func (*MessageReceivedEvent) EventType() EventType        { return EvtMessageReceived }
func (*AccountArchiveMessageEvent) EventType() EventType  { return EvtAccountArchiveMessage }
func (*AccountArchiveQueryEndEvent) EventType() EventType { return EvtAccountArchiveQueryEnd }
func (*SessionArchiveMessageEvent) EventType() EventType  { return EvtSessionArchiveMessage }
func (*SessionArchiveQueryEndEvent) EventType() EventType { return EvtSessionArchiveQueryEnd }
func (*PresenceUpdatedEvent) EventType() EventType        { return EvtPresenceUpdated }
func (*DevicesChangedEvent) EventType() EventType         { return EvtDevicesChanged }

func (*Response) RouteKey() RouteKey                      { return RouteKey{} }
func (e *LoginStateChangedEvent) RouteKey() RouteKey      { return AccountRoute(e.Account) }
func (e *SessionAddedEvent) RouteKey() RouteKey           { return SessionRoute(e.Session) }
func (e *SessionRemovedEvent) RouteKey() RouteKey         { return SessionRoute(e.Session) }
func (e *MediaStreamUpdatedEvent) RouteKey() RouteKey     { return SessionRoute(e.Session) }
func (e *TextStreamUpdatedEvent) RouteKey() RouteKey      { return SessionRoute(e.Session) }
func (e *ParticipantAddedEvent) RouteKey() RouteKey       { return SessionRoute(e.Session) }
func (e *ParticipantUpdatedEvent) RouteKey() RouteKey     { return SessionRoute(e.Session) }
func (e *ParticipantRemovedEvent) RouteKey() RouteKey     { return SessionRoute(e.Session) }
func (e *MessageReceivedEvent) RouteKey() RouteKey        { return SessionRoute(e.Session) }
func (e *AccountArchiveMessageEvent) RouteKey() RouteKey  { return AccountRoute(e.Account) }
func (e *AccountArchiveQueryEndEvent) RouteKey() RouteKey { return AccountRoute(e.Account) }
func (e *SessionArchiveMessageEvent) RouteKey() RouteKey  { return SessionRoute(e.Session) }
func (e *SessionArchiveQueryEndEvent) RouteKey() RouteKey { return SessionRoute(e.Session) }
func (e *PresenceUpdatedEvent) RouteKey() RouteKey        { return AccountRoute(e.Account) }
func (e *DevicesChangedEvent) RouteKey() RouteKey         { return DeviceRoute(e.Direction) }

func (*Response) isEvent()                    {}
func (*LoginStateChangedEvent) isEvent()      {}
func (*SessionAddedEvent) isEvent()           {}
func (*SessionRemovedEvent) isEvent()         {}
func (*MediaStreamUpdatedEvent) isEvent()     {}
func (*TextStreamUpdatedEvent) isEvent()      {}
func (*ParticipantAddedEvent) isEvent()       {}
func (*ParticipantUpdatedEvent) isEvent()     {}
func (*ParticipantRemovedEvent) isEvent()     {}
func (*MessageReceivedEvent) isEvent()        {}
func (*AccountArchiveMessageEvent) isEvent()  {}
func (*AccountArchiveQueryEndEvent) isEvent() {}
func (*SessionArchiveMessageEvent) isEvent()  {}
func (*SessionArchiveQueryEndEvent) isEvent() {}
func (*PresenceUpdatedEvent) isEvent()        {}
func (*DevicesChangedEvent) isEvent()         {}
