package engine

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/hupe1980/vxbroker/core"
)

// encMode is the CBOR encoder configured with Core Deterministic Encoding
// (RFC 8949 §4.2). Timestamps are RFC 3339 strings with nanoseconds so
// archive ordering survives the round trip.
var encMode cbor.EncMode

// decMode accepts standard CBOR. Unknown fields are ignored so newer engines
// can add payload fields without breaking older brokers.
var decMode cbor.DecMode

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("engine: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("engine: CBOR decoder initialization failed: " + err.Error())
	}
}

// EnvelopeKind tells requests from inbound messages on the wire.
type EnvelopeKind uint8

const (
	// KindRequest marks a broker to engine request.
	KindRequest EnvelopeKind = 1
	// KindEvent marks an engine to broker response or event.
	KindEvent EnvelopeKind = 2
)

// Envelope is one frame of the CBOR sequence exchanged with an out-of-process
// engine. Type carries the request or event discriminant; Body the encoded
// payload struct.
type Envelope struct {
	Kind EnvelopeKind    `cbor:"k"`
	Type string          `cbor:"t"`
	Body cbor.RawMessage `cbor:"b"`
}

var requestTypes = map[core.RequestType]func() core.Request{
	core.ReqLogin:                func() core.Request { return &core.LoginRequest{} },
	core.ReqLogout:               func() core.Request { return &core.LogoutRequest{} },
	core.ReqSessionAdd:           func() core.Request { return &core.SessionAddRequest{} },
	core.ReqSessionTerminate:     func() core.Request { return &core.SessionTerminateRequest{} },
	core.ReqMediaConnect:         func() core.Request { return &core.MediaConnectRequest{} },
	core.ReqMediaDisconnect:      func() core.Request { return &core.MediaDisconnectRequest{} },
	core.ReqTextConnect:          func() core.Request { return &core.TextConnectRequest{} },
	core.ReqTextDisconnect:       func() core.Request { return &core.TextDisconnectRequest{} },
	core.ReqSendMessage:          func() core.Request { return &core.SendMessageRequest{} },
	core.ReqSetParticipantMute:   func() core.Request { return &core.SetParticipantMuteRequest{} },
	core.ReqSetParticipantVolume: func() core.Request { return &core.SetParticipantVolumeRequest{} },
	core.ReqAccountArchiveQuery:  func() core.Request { return &core.AccountArchiveQueryRequest{} },
	core.ReqSessionArchiveQuery:  func() core.Request { return &core.SessionArchiveQueryRequest{} },
	core.ReqPresenceSubscribe:    func() core.Request { return &core.PresenceSubscribeRequest{} },
	core.ReqPresenceUnsubscribe:  func() core.Request { return &core.PresenceUnsubscribeRequest{} },
	core.ReqSetPresence:          func() core.Request { return &core.SetPresenceRequest{} },
	core.ReqGetDevices:           func() core.Request { return &core.GetDevicesRequest{} },
	core.ReqSetActiveDevice:      func() core.Request { return &core.SetActiveDeviceRequest{} },
}

var eventTypes = map[core.EventType]func() core.Event{
	core.EvtResponse:               func() core.Event { return &core.Response{} },
	core.EvtLoginStateChanged:      func() core.Event { return &core.LoginStateChangedEvent{} },
	core.EvtSessionAdded:           func() core.Event { return &core.SessionAddedEvent{} },
	core.EvtSessionRemoved:         func() core.Event { return &core.SessionRemovedEvent{} },
	core.EvtMediaStreamUpdated:     func() core.Event { return &core.MediaStreamUpdatedEvent{} },
	core.EvtTextStreamUpdated:      func() core.Event { return &core.TextStreamUpdatedEvent{} },
	core.EvtParticipantAdded:       func() core.Event { return &core.ParticipantAddedEvent{} },
	core.EvtParticipantUpdated:     func() core.Event { return &core.ParticipantUpdatedEvent{} },
	core.EvtParticipantRemoved:     func() core.Event { return &core.ParticipantRemovedEvent{} },
	core.EvtMessageReceived:        func() core.Event { return &core.MessageReceivedEvent{} },
	core.EvtAccountArchiveMessage:  func() core.Event { return &core.AccountArchiveMessageEvent{} },
	core.EvtAccountArchiveQueryEnd: func() core.Event { return &core.AccountArchiveQueryEndEvent{} },
	core.EvtSessionArchiveMessage:  func() core.Event { return &core.SessionArchiveMessageEvent{} },
	core.EvtSessionArchiveQueryEnd: func() core.Event { return &core.SessionArchiveQueryEndEvent{} },
	core.EvtPresenceUpdated:        func() core.Event { return &core.PresenceUpdatedEvent{} },
	core.EvtDevicesChanged:         func() core.Event { return &core.DevicesChangedEvent{} },
}

// EncodeRequest wraps req in an envelope.
func EncodeRequest(req core.Request) (Envelope, error) {
	body, err := encMode.Marshal(req)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", req.RequestType(), err)
	}
	return Envelope{Kind: KindRequest, Type: string(req.RequestType()), Body: body}, nil
}

// EncodeEvent wraps ev in an envelope.
func EncodeEvent(ev core.Event) (Envelope, error) {
	body, err := encMode.Marshal(ev)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", ev.EventType(), err)
	}
	return Envelope{Kind: KindEvent, Type: string(ev.EventType()), Body: body}, nil
}

// Request decodes a request envelope.
func (e Envelope) Request() (core.Request, error) {
	if e.Kind != KindRequest {
		return nil, fmt.Errorf("envelope kind %d is not a request", e.Kind)
	}
	newReq, ok := requestTypes[core.RequestType(e.Type)]
	if !ok {
		return nil, fmt.Errorf("unknown request type %q", e.Type)
	}
	req := newReq()
	if err := decMode.Unmarshal(e.Body, req); err != nil {
		return nil, fmt.Errorf("decode %s: %w", e.Type, err)
	}
	return req, nil
}

// Event decodes an event envelope.
func (e Envelope) Event() (core.Event, error) {
	if e.Kind != KindEvent {
		return nil, fmt.Errorf("envelope kind %d is not an event", e.Kind)
	}
	newEv, ok := eventTypes[core.EventType(e.Type)]
	if !ok {
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}
	ev := newEv()
	if err := decMode.Unmarshal(e.Body, ev); err != nil {
		return nil, fmt.Errorf("decode %s: %w", e.Type, err)
	}
	return ev, nil
}

// NewEncoder returns a CBOR sequence encoder writing envelopes to w.
func NewEncoder(w io.Writer) *cbor.Encoder { return encMode.NewEncoder(w) }

// NewDecoder returns a CBOR sequence decoder reading envelopes from r.
func NewDecoder(r io.Reader) *cbor.Decoder { return decMode.NewDecoder(r) }
