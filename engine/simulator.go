package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/vxbroker/core"
	"github.com/hupe1980/vxbroker/logging"
)

// SimulatorOptions configures a Simulator.
type SimulatorOptions struct {
	// Manual disables automatic responses; tests drive the engine with
	// Respond and Emit.
	Manual bool
	// NotReady starts the simulator uninitialized (Issue fails with
	// EngineUnavailableError until SetReady(true)).
	NotReady bool
	// InputDevices and OutputDevices are reported by GetDevices requests.
	InputDevices  []core.AudioDevice
	OutputDevices []core.AudioDevice
	// Archive holds the canned history served to archive queries.
	Archive []core.ArchiveMessage
	// Logger receives simulator traces.
	Logger logging.Logger
	// Clock stamps generated messages. Defaults to time.Now.
	Clock func() time.Time
}

type failure struct {
	status int
	text   string
}

type simSession struct {
	account      core.AccountHandle
	channel      core.ChannelID
	audio        bool
	text         bool
	participants map[core.ParticipantURI]core.Participant
}

// Simulator is an in-process core.Engine. See the package documentation.
type Simulator struct {
	opts SimulatorOptions

	mu       sync.Mutex
	ready    bool
	handler  core.EventHandler
	sent     []core.Request
	queue    []core.Event
	failNext map[core.RequestType][]failure
	sendErr  error
	sessions map[core.SessionHandle]*simSession
	active   map[core.DeviceDirection]string
	wake     chan struct{}

	flushMu sync.Mutex // one delivering goroutine at a time
}

var _ core.Engine = (*Simulator)(nil)

// NewSimulator creates a Simulator with two default devices per direction.
func NewSimulator(optFns ...func(o *SimulatorOptions)) *Simulator {
	opts := SimulatorOptions{
		InputDevices: []core.AudioDevice{
			{ID: "default-in", Name: "Default Microphone"},
			{ID: "usb-headset-in", Name: "USB Headset Microphone"},
		},
		OutputDevices: []core.AudioDevice{
			{ID: "default-out", Name: "Default Speakers"},
			{ID: "usb-headset-out", Name: "USB Headset"},
		},
		Logger: logging.NoOpLogger{},
		Clock:  time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	s := &Simulator{
		opts:     opts,
		ready:    !opts.NotReady,
		failNext: make(map[core.RequestType][]failure),
		sessions: make(map[core.SessionHandle]*simSession),
		active:   make(map[core.DeviceDirection]string),
		wake:     make(chan struct{}, 1),
	}
	if len(opts.InputDevices) > 0 {
		s.active[core.DeviceInput] = opts.InputDevices[0].ID
	}
	if len(opts.OutputDevices) > 0 {
		s.active[core.DeviceOutput] = opts.OutputDevices[0].ID
	}
	return s
}

// Ready implements core.Engine.
func (s *Simulator) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// SetReady toggles engine availability.
func (s *Simulator) SetReady(ready bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = ready
}

// OnEvent implements core.Engine.
func (s *Simulator) OnEvent(h core.EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// SetSendError makes every following Send fail synchronously with err
// (nil restores normal behavior).
func (s *Simulator) SetSendError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendErr = err
}

// FailNext makes the next request of type t fail with the given status.
// Calls accumulate: each queued failure is consumed by one request.
func (s *Simulator) FailNext(t core.RequestType, status int, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext[t] = append(s.failNext[t], failure{status: status, text: text})
}

// Send implements core.Engine. It records the request and, in automatic
// mode, queues the scripted response and events. It never calls the handler.
func (s *Simulator) Send(req core.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready {
		return errors.New("simulator: engine not initialized")
	}
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, req)
	s.opts.Logger.Debug("simulator received request", "request_type", req.RequestType(), "request_id", req.RequestID())

	if s.opts.Manual {
		return nil
	}

	if fs := s.failNext[req.RequestType()]; len(fs) > 0 {
		f := fs[0]
		s.failNext[req.RequestType()] = fs[1:]
		s.enqueueLocked(&core.Response{
			RequestID:   req.RequestID(),
			RequestType: req.RequestType(),
			ReturnCode:  1,
			StatusCode:  f.status,
			StatusText:  f.text,
		})
		return nil
	}

	s.scriptLocked(req)
	return nil
}

// Sent returns a copy of every request received so far.
func (s *Simulator) Sent() []core.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Request, len(s.sent))
	copy(out, s.sent)
	return out
}

// SentCount returns the number of requests received so far.
func (s *Simulator) SentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

// LastSent returns the most recent request, or nil.
func (s *Simulator) LastSent() core.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		return nil
	}
	return s.sent[len(s.sent)-1]
}

// Respond queues a response to req with the given codes.
func (s *Simulator) Respond(req core.Request, returnCode, status int) {
	s.Emit(&core.Response{
		RequestID:   req.RequestID(),
		RequestType: req.RequestType(),
		ReturnCode:  returnCode,
		StatusCode:  status,
	})
}

// Emit queues events for delivery.
func (s *Simulator) Emit(evs ...core.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range evs {
		s.enqueueLocked(ev)
	}
}

// Queued returns the number of undelivered messages.
func (s *Simulator) Queued() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Flush delivers queued messages to the handler one at a time, in order,
// including messages queued while flushing. It returns the number delivered.
func (s *Simulator) Flush() int {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	n := 0
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return n
		}
		ev := s.queue[0]
		s.queue = s.queue[1:]
		h := s.handler
		s.mu.Unlock()

		if h != nil {
			h(ev)
		}
		n++
	}
}

// Run delivers queued messages in the background until ctx is done. It is
// the simulator's engine-callback thread for demos.
func (s *Simulator) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.wake:
			s.Flush()
		}
	}
}

func (s *Simulator) enqueueLocked(ev core.Event) {
	s.queue = append(s.queue, ev)
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Simulator) okLocked(req core.Request) *core.Response {
	return &core.Response{RequestID: req.RequestID(), RequestType: req.RequestType()}
}

// scriptLocked queues what a real engine would answer to req.
func (s *Simulator) scriptLocked(req core.Request) {
	now := s.opts.Clock()

	switch r := req.(type) {
	case *core.LoginRequest:
		s.enqueueLocked(s.okLocked(r))
		s.enqueueLocked(&core.LoginStateChangedEvent{Account: r.Account, State: core.LoggedIn})

	case *core.LogoutRequest:
		s.enqueueLocked(s.okLocked(r))
		for h, sess := range s.sessions {
			if sess.account == r.Account {
				delete(s.sessions, h)
				s.enqueueLocked(&core.SessionRemovedEvent{Session: h})
			}
		}
		s.enqueueLocked(&core.LoginStateChangedEvent{Account: r.Account, State: core.LoggedOut})

	case *core.SessionAddRequest:
		self := core.Participant{URI: selfURI(r.Account), DisplayName: string(r.Account), IsSelf: true, InAudio: r.ConnectAudio, InText: r.ConnectText, LocalVolume: 50}
		s.sessions[r.Session] = &simSession{
			account:      r.Account,
			channel:      r.Channel,
			audio:        r.ConnectAudio,
			text:         r.ConnectText,
			participants: map[core.ParticipantURI]core.Participant{self.URI: self},
		}
		s.enqueueLocked(s.okLocked(r))
		s.enqueueLocked(&core.SessionAddedEvent{Account: r.Account, Session: r.Session, Channel: r.Channel})
		if r.ConnectAudio {
			s.enqueueLocked(&core.MediaStreamUpdatedEvent{Session: r.Session, State: core.Connecting})
			s.enqueueLocked(&core.MediaStreamUpdatedEvent{Session: r.Session, State: core.Connected})
		}
		if r.ConnectText {
			s.enqueueLocked(&core.TextStreamUpdatedEvent{Session: r.Session, State: core.Connected})
		}
		s.enqueueLocked(&core.ParticipantAddedEvent{Session: r.Session, Participant: self})

	case *core.SessionTerminateRequest:
		s.enqueueLocked(s.okLocked(r))
		if sess, ok := s.sessions[r.Session]; ok {
			if sess.audio {
				s.enqueueLocked(&core.MediaStreamUpdatedEvent{Session: r.Session, State: core.Disconnected})
			}
			if sess.text {
				s.enqueueLocked(&core.TextStreamUpdatedEvent{Session: r.Session, State: core.Disconnected})
			}
			delete(s.sessions, r.Session)
		}
		s.enqueueLocked(&core.SessionRemovedEvent{Session: r.Session})

	case *core.MediaConnectRequest:
		s.enqueueLocked(s.okLocked(r))
		if sess, ok := s.sessions[r.Session]; ok {
			sess.audio = true
		}
		s.enqueueLocked(&core.MediaStreamUpdatedEvent{Session: r.Session, State: core.Connecting})
		s.enqueueLocked(&core.MediaStreamUpdatedEvent{Session: r.Session, State: core.Connected})

	case *core.MediaDisconnectRequest:
		s.enqueueLocked(s.okLocked(r))
		if sess, ok := s.sessions[r.Session]; ok {
			sess.audio = false
		}
		s.enqueueLocked(&core.MediaStreamUpdatedEvent{Session: r.Session, State: core.Disconnected})

	case *core.TextConnectRequest:
		s.enqueueLocked(s.okLocked(r))
		if sess, ok := s.sessions[r.Session]; ok {
			sess.text = true
		}
		s.enqueueLocked(&core.TextStreamUpdatedEvent{Session: r.Session, State: core.Connected})

	case *core.TextDisconnectRequest:
		s.enqueueLocked(s.okLocked(r))
		if sess, ok := s.sessions[r.Session]; ok {
			sess.text = false
		}
		s.enqueueLocked(&core.TextStreamUpdatedEvent{Session: r.Session, State: core.Disconnected})

	case *core.SendMessageRequest:
		resp := s.okLocked(r)
		resp.MessageID = uuid.NewString()
		s.enqueueLocked(resp)
		if sess, ok := s.sessions[r.Session]; ok {
			s.enqueueLocked(&core.MessageReceivedEvent{Session: r.Session, Message: core.ChannelMessage{
				Sender:     selfURI(sess.account),
				Body:       r.Body,
				Language:   r.Language,
				ReceivedAt: now,
			}})
		}

	case *core.SetParticipantMuteRequest:
		s.participantUpdateLocked(r, r.Session, r.Participant, func(p *core.Participant) { p.LocalMute = r.Muted })

	case *core.SetParticipantVolumeRequest:
		s.participantUpdateLocked(r, r.Session, r.Participant, func(p *core.Participant) { p.LocalVolume = r.Volume })

	case *core.AccountArchiveQueryRequest:
		s.enqueueLocked(s.okLocked(r))
		page := s.archivePage(r.QueryID, r.Params)
		for _, m := range page {
			s.enqueueLocked(&core.AccountArchiveMessageEvent{Account: r.Account, Message: m})
		}
		s.enqueueLocked(&core.AccountArchiveQueryEndEvent{Account: r.Account, ArchiveQueryEnd: s.queryEnd(r.QueryID, page)})

	case *core.SessionArchiveQueryRequest:
		s.enqueueLocked(s.okLocked(r))
		page := s.archivePage(r.QueryID, r.Params)
		for _, m := range page {
			s.enqueueLocked(&core.SessionArchiveMessageEvent{Session: r.Session, Message: m})
		}
		s.enqueueLocked(&core.SessionArchiveQueryEndEvent{Session: r.Session, ArchiveQueryEnd: s.queryEnd(r.QueryID, page)})

	case *core.PresenceSubscribeRequest:
		s.enqueueLocked(s.okLocked(r))
		s.enqueueLocked(&core.PresenceUpdatedEvent{
			Account:  r.Account,
			Buddy:    r.Buddy,
			Location: core.PresenceLocation{ID: r.Buddy + "/default", Status: core.PresenceAvailable},
		})

	case *core.PresenceUnsubscribeRequest, *core.SetPresenceRequest:
		s.enqueueLocked(s.okLocked(r))

	case *core.GetDevicesRequest:
		resp := s.okLocked(r)
		resp.Devices = s.devices(r.Direction)
		resp.ActiveDevice = s.active[r.Direction]
		s.enqueueLocked(resp)

	case *core.SetActiveDeviceRequest:
		if !containsDevice(s.devices(r.Direction), r.DeviceID) {
			resp := s.okLocked(r)
			resp.ReturnCode = 1
			resp.StatusCode = 1001
			resp.StatusText = "unknown device"
			s.enqueueLocked(resp)
			return
		}
		s.active[r.Direction] = r.DeviceID
		s.enqueueLocked(s.okLocked(r))
		s.enqueueLocked(&core.DevicesChangedEvent{Direction: r.Direction, Devices: s.devices(r.Direction), ActiveDevice: r.DeviceID})

	default:
		s.enqueueLocked(s.okLocked(r))
	}
}

func (s *Simulator) participantUpdateLocked(req core.Request, h core.SessionHandle, uri core.ParticipantURI, mutate func(p *core.Participant)) {
	sess, ok := s.sessions[h]
	if !ok {
		resp := s.okLocked(req)
		resp.ReturnCode = 1
		resp.StatusCode = core.StatusChannelNotFound
		resp.StatusText = "session not found"
		s.enqueueLocked(resp)
		return
	}
	s.enqueueLocked(s.okLocked(req))
	p, ok := sess.participants[uri]
	if !ok {
		return
	}
	mutate(&p)
	sess.participants[uri] = p
	s.enqueueLocked(&core.ParticipantUpdatedEvent{Session: h, Participant: p})
}

func (s *Simulator) archivePage(id core.QueryID, params core.ArchiveQueryParams) []core.ArchiveMessage {
	var page []core.ArchiveMessage
	for _, m := range s.opts.Archive {
		if params.With != "" && m.Sender != params.With {
			continue
		}
		if params.TimeStart != nil && m.Timestamp.Before(*params.TimeStart) {
			continue
		}
		if params.TimeEnd != nil && m.Timestamp.After(*params.TimeEnd) {
			continue
		}
		m.QueryID = id
		page = append(page, m)
		if params.Max > 0 && uint(len(page)) >= params.Max {
			break
		}
	}
	return page
}

func (s *Simulator) queryEnd(id core.QueryID, page []core.ArchiveMessage) core.ArchiveQueryEnd {
	end := core.ArchiveQueryEnd{QueryID: id, TotalCount: len(page)}
	if len(page) > 0 {
		end.FirstID = page[0].MessageID
		end.LastID = page[len(page)-1].MessageID
	}
	return end
}

func (s *Simulator) devices(d core.DeviceDirection) []core.AudioDevice {
	src := s.opts.InputDevices
	if d == core.DeviceOutput {
		src = s.opts.OutputDevices
	}
	out := make([]core.AudioDevice, len(src))
	copy(out, src)
	return out
}

func containsDevice(devs []core.AudioDevice, id string) bool {
	for _, d := range devs {
		if d.ID == id {
			return true
		}
	}
	return false
}

func selfURI(a core.AccountHandle) core.ParticipantURI {
	return core.ParticipantURI("sip:" + string(a))
}
