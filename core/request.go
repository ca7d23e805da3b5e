package core

// RequestType discriminates the closed set of requests understood by the engine.
type RequestType string

const (
	ReqLogin                RequestType = "req_account_login"
	ReqLogout               RequestType = "req_account_logout"
	ReqSessionAdd           RequestType = "req_sessiongroup_add_session"
	ReqSessionTerminate     RequestType = "req_session_terminate"
	ReqMediaConnect         RequestType = "req_session_media_connect"
	ReqMediaDisconnect      RequestType = "req_session_media_disconnect"
	ReqTextConnect          RequestType = "req_session_text_connect"
	ReqTextDisconnect       RequestType = "req_session_text_disconnect"
	ReqSendMessage          RequestType = "req_session_send_message"
	ReqSetParticipantMute   RequestType = "req_session_set_participant_mute_for_me"
	ReqSetParticipantVolume RequestType = "req_session_set_participant_volume_for_me"
	ReqAccountArchiveQuery  RequestType = "req_account_archive_query"
	ReqSessionArchiveQuery  RequestType = "req_session_archive_query"
	ReqPresenceSubscribe    RequestType = "req_account_buddy_set"
	ReqPresenceUnsubscribe  RequestType = "req_account_buddy_delete"
	ReqSetPresence          RequestType = "req_account_set_presence"
	ReqGetDevices           RequestType = "req_aux_get_devices"
	ReqSetActiveDevice      RequestType = "req_aux_set_device"
)

// Request is an outbound message for the engine. The set of implementations
// is closed; callers construct the concrete structs below.
type Request interface {
	// RequestType returns the discriminant.
	RequestType() RequestType
	// Correlation returns the entity the request belongs to.
	Correlation() RouteKey
	// RequestID returns the cookie assigned by the dispatcher.
	RequestID() RequestID
	// SetRequestID is called once by the dispatcher before sending.
	SetRequestID(id RequestID)

	isRequest()
}

// Header carries the fields every request shares.
type Header struct {
	ID RequestID `cbor:"request_id" json:"request_id"`
}

// RequestID returns the cookie assigned by the dispatcher.
func (h *Header) RequestID() RequestID { return h.ID }

// SetRequestID assigns the cookie.
func (h *Header) SetRequestID(id RequestID) { h.ID = id }

// LoginRequest logs an account into a server.
type LoginRequest struct {
	Header
	Account     AccountHandle `cbor:"account_handle"`
	Server      string        `cbor:"server"`
	Token       string        `cbor:"token"`
	DisplayName string        `cbor:"display_name,omitempty"`
}

// LogoutRequest logs an account out.
type LogoutRequest struct {
	Header
	Account AccountHandle `cbor:"account_handle"`
}

// SessionAddRequest joins a channel, creating a session on the engine.
type SessionAddRequest struct {
	Header
	Account            AccountHandle `cbor:"account_handle"`
	Session            SessionHandle `cbor:"session_handle"`
	Channel            ChannelID     `cbor:"channel"`
	Token              string        `cbor:"token"`
	ConnectAudio       bool          `cbor:"connect_audio"`
	ConnectText        bool          `cbor:"connect_text"`
	SwitchTransmission bool          `cbor:"switch_transmission"`
}

// SessionTerminateRequest leaves a channel.
type SessionTerminateRequest struct {
	Header
	Session SessionHandle `cbor:"session_handle"`
}

// MediaConnectRequest adds audio to an existing session.
type MediaConnectRequest struct {
	Header
	Session SessionHandle `cbor:"session_handle"`
}

// MediaDisconnectRequest removes audio from a session.
type MediaDisconnectRequest struct {
	Header
	Session SessionHandle `cbor:"session_handle"`
}

// TextConnectRequest adds text to an existing session.
type TextConnectRequest struct {
	Header
	Session SessionHandle `cbor:"session_handle"`
}

// TextDisconnectRequest removes text from a session.
type TextDisconnectRequest struct {
	Header
	Session SessionHandle `cbor:"session_handle"`
}

// SendMessageRequest posts a text message to a channel.
type SendMessageRequest struct {
	Header
	Session  SessionHandle `cbor:"session_handle"`
	Body     string        `cbor:"body"`
	Language string        `cbor:"language,omitempty"`
}

// SetParticipantMuteRequest mutes a participant for the local user only.
type SetParticipantMuteRequest struct {
	Header
	Session     SessionHandle  `cbor:"session_handle"`
	Participant ParticipantURI `cbor:"participant_uri"`
	Muted       bool           `cbor:"muted"`
}

// SetParticipantVolumeRequest adjusts a participant's volume for the local user only.
type SetParticipantVolumeRequest struct {
	Header
	Session     SessionHandle  `cbor:"session_handle"`
	Participant ParticipantURI `cbor:"participant_uri"`
	Volume      int            `cbor:"volume"`
}

// AccountArchiveQueryRequest starts a paged query over an account's message history.
type AccountArchiveQueryRequest struct {
	Header
	Account AccountHandle      `cbor:"account_handle"`
	QueryID QueryID            `cbor:"query_id"`
	Params  ArchiveQueryParams `cbor:"params"`
}

// SessionArchiveQueryRequest starts a paged query over a channel's message history.
type SessionArchiveQueryRequest struct {
	Header
	Session SessionHandle      `cbor:"session_handle"`
	QueryID QueryID            `cbor:"query_id"`
	Params  ArchiveQueryParams `cbor:"params"`
}

// PresenceSubscribeRequest subscribes an account to a contact's presence.
type PresenceSubscribeRequest struct {
	Header
	Account AccountHandle `cbor:"account_handle"`
	Buddy   string        `cbor:"buddy_uri"`
}

// PresenceUnsubscribeRequest drops a presence subscription.
type PresenceUnsubscribeRequest struct {
	Header
	Account AccountHandle `cbor:"account_handle"`
	Buddy   string        `cbor:"buddy_uri"`
}

// SetPresenceRequest publishes the account's own presence.
type SetPresenceRequest struct {
	Header
	Account AccountHandle  `cbor:"account_handle"`
	Status  PresenceStatus `cbor:"status"`
	Message string         `cbor:"message,omitempty"`
}

// GetDevicesRequest lists capture or render devices.
type GetDevicesRequest struct {
	Header
	Direction DeviceDirection `cbor:"direction"`
}

// SetActiveDeviceRequest selects the device used for capture or render.
type SetActiveDeviceRequest struct {
	Header
	Direction DeviceDirection `cbor:"direction"`
	DeviceID  string          `cbor:"device_id"`
}

func (*LoginRequest) RequestType() RequestType                { return ReqLogin }
func (*LogoutRequest) RequestType() RequestType               { return ReqLogout }
func (*SessionAddRequest) RequestType() RequestType           { return ReqSessionAdd }
func (*SessionTerminateRequest) RequestType() RequestType     { return ReqSessionTerminate }
func (*MediaConnectRequest) RequestType() RequestType         { return ReqMediaConnect }
func (*MediaDisconnectRequest) RequestType() RequestType      { return ReqMediaDisconnect }
func (*TextConnectRequest) RequestType() RequestType          { return ReqTextConnect }
func (*TextDisconnectRequest) RequestType() RequestType       { return ReqTextDisconnect }
func (*SendMessageRequest) RequestType() RequestType          { return ReqSendMessage }
func (*SetParticipantMuteRequest) RequestType() RequestType   { return ReqSetParticipantMute }
func (*SetParticipantVolumeRequest) RequestType() RequestType { return ReqSetParticipantVolume }
func (*AccountArchiveQueryRequest) RequestType() RequestType  { return ReqAccountArchiveQuery }
func (*SessionArchiveQueryRequest) RequestType() RequestType  { return ReqSessionArchiveQuery }
func (*PresenceSubscribeRequest) RequestType() RequestType    { return ReqPresenceSubscribe }
func (*PresenceUnsubscribeRequest) RequestType() RequestType  { return ReqPresenceUnsubscribe }
func (*SetPresenceRequest) RequestType() RequestType          { return ReqSetPresence }
func (*GetDevicesRequest) RequestType() RequestType           { return ReqGetDevices }
func (*SetActiveDeviceRequest) RequestType() RequestType      { return ReqSetActiveDevice }

func (r *LoginRequest) Correlation() RouteKey                { return AccountRoute(r.Account) }
func (r *LogoutRequest) Correlation() RouteKey               { return AccountRoute(r.Account) }
func (r *SessionAddRequest) Correlation() RouteKey           { return SessionRoute(r.Session) }
func (r *SessionTerminateRequest) Correlation() RouteKey     { return SessionRoute(r.Session) }
func (r *MediaConnectRequest) Correlation() RouteKey         { return SessionRoute(r.Session) }
func (r *MediaDisconnectRequest) Correlation() RouteKey      { return SessionRoute(r.Session) }
func (r *TextConnectRequest) Correlation() RouteKey          { return SessionRoute(r.Session) }
func (r *TextDisconnectRequest) Correlation() RouteKey       { return SessionRoute(r.Session) }
func (r *SendMessageRequest) Correlation() RouteKey          { return SessionRoute(r.Session) }
func (r *SetParticipantMuteRequest) Correlation() RouteKey   { return SessionRoute(r.Session) }
func (r *SetParticipantVolumeRequest) Correlation() RouteKey { return SessionRoute(r.Session) }
func (r *AccountArchiveQueryRequest) Correlation() RouteKey  { return AccountRoute(r.Account) }
func (r *SessionArchiveQueryRequest) Correlation() RouteKey  { return SessionRoute(r.Session) }
func (r *PresenceSubscribeRequest) Correlation() RouteKey    { return AccountRoute(r.Account) }
func (r *PresenceUnsubscribeRequest) Correlation() RouteKey  { return AccountRoute(r.Account) }
func (r *SetPresenceRequest) Correlation() RouteKey          { return AccountRoute(r.Account) }
func (r *GetDevicesRequest) Correlation() RouteKey           { return DeviceRoute(r.Direction) }
func (r *SetActiveDeviceRequest) Correlation() RouteKey      { return DeviceRoute(r.Direction) }

func (*LoginRequest) isRequest()                {}
func (*LogoutRequest) isRequest()               {}
func (*SessionAddRequest) isRequest()           {}
func (*SessionTerminateRequest) isRequest()     {}
func (*MediaConnectRequest) isRequest()         {}
func (*MediaDisconnectRequest) isRequest()      {}
func (*TextConnectRequest) isRequest()          {}
func (*TextDisconnectRequest) isRequest()       {}
func (*SendMessageRequest) isRequest()          {}
func (*SetParticipantMuteRequest) isRequest()   {}
func (*SetParticipantVolumeRequest) isRequest() {}
func (*AccountArchiveQueryRequest) isRequest()  {}
func (*SessionArchiveQueryRequest) isRequest()  {}
func (*PresenceSubscribeRequest) isRequest()    {}
func (*PresenceUnsubscribeRequest) isRequest()  {}
func (*SetPresenceRequest) isRequest()          {}
func (*GetDevicesRequest) isRequest()           {}
func (*SetActiveDeviceRequest) isRequest()      {}
