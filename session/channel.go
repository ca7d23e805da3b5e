package session

import (
	"sort"
	"sync"

	"github.com/hupe1980/vxbroker/core"
	"github.com/hupe1980/vxbroker/logging"
)

// MaxParticipantVolume is the upper bound of the local participant volume.
const MaxParticipantVolume = 100

// ChannelSession is one joined (or joinable) channel of a login session.
//
// Audio and text each have a ConnectionState. Begin* calls set speculative
// states; stream and session events from the engine always overwrite them.
type ChannelSession struct {
	parent     *LoginSession
	key        core.ChannelKey
	handle     core.SessionHandle
	issuer     Issuer
	logger     logging.Logger
	notifier   *core.Notifier
	archive    *ArchiveQueryTracker
	unregister func()

	mu           sync.Mutex
	audio        core.ConnectionState
	text         core.ConnectionState
	transmitting bool
	participants map[core.ParticipantURI]core.Participant
	messages     []core.ChannelMessage
	deleted      bool
}

func newChannelSession(parent *LoginSession, channel core.ChannelID) *ChannelSession {
	cs := &ChannelSession{
		parent:       parent,
		key:          core.ChannelKey{Account: parent.account, Channel: channel},
		handle:       core.NewSessionHandle(),
		issuer:       parent.issuer,
		logger:       parent.logger,
		notifier:     core.NewNotifier(parent.logger),
		archive:      NewArchiveQueryTracker(),
		participants: make(map[core.ParticipantURI]core.Participant),
	}
	cs.unregister = parent.registrar.Register(core.SessionRoute(cs.handle), cs.handleEvent)
	return cs
}

// Key returns the composite identity of the channel session.
func (c *ChannelSession) Key() core.ChannelKey { return c.key }

// Handle returns the engine session handle.
func (c *ChannelSession) Handle() core.SessionHandle { return c.handle }

// Subscribe observes changes of this channel session.
func (c *ChannelSession) Subscribe(fn core.ChangeFunc) (cancel func()) {
	return c.notifier.Subscribe(fn)
}

func (c *ChannelSession) entity() string { return core.SessionRoute(c.handle).String() }

// AudioState returns the audio transport state.
func (c *ChannelSession) AudioState() core.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.audio
}

// TextState returns the text transport state.
func (c *ChannelSession) TextState() core.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text
}

// ChannelState returns the aggregate of audio and text.
func (c *ChannelSession) ChannelState() core.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return core.ChannelState(c.audio, c.text)
}

// IsTransmitting reports whether this channel was selected for transmission.
func (c *ChannelSession) IsTransmitting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transmitting
}

// setLocked updates one transport and records the resulting changes.
func (c *ChannelSession) setLocked(audio bool, to core.ConnectionState, ch *changes) {
	before := core.ChannelState(c.audio, c.text)
	if audio {
		if c.audio == to {
			return
		}
		c.audio = to
		ch.add(core.FieldAudioState)
	} else {
		if c.text == to {
			return
		}
		c.text = to
		ch.add(core.FieldTextState)
	}
	if core.ChannelState(c.audio, c.text) != before {
		ch.add(core.FieldChannelState)
	}
	// A channel that is neither joined nor joining cannot transmit.
	if c.transmitting && c.audio == core.Disconnected && c.text == core.Disconnected {
		c.transmitting = false
		ch.add(core.FieldTransmitting)
	}
}

// clearTransmitting deselects the channel for transmission.
func (c *ChannelSession) clearTransmitting() {
	c.mu.Lock()
	was := c.transmitting
	c.transmitting = false
	c.mu.Unlock()
	if was {
		c.notifier.Notify(c.entity(), core.FieldTransmitting)
	}
}

// revertTo returns a function that sets the transport back to prev if it is
// still in the speculative state guess.
func (c *ChannelSession) revertTo(audio bool, guess, prev core.ConnectionState) func() {
	return func() {
		var ch changes
		c.mu.Lock()
		cur := c.text
		if audio {
			cur = c.audio
		}
		if cur == guess && !c.deleted {
			c.setLocked(audio, prev, &ch)
		}
		c.mu.Unlock()
		ch.notify(c.notifier, c.entity())
	}
}

// BeginConnect joins the channel with the requested transports. Both
// transports must be Disconnected and the account LoggedIn. The requested
// transports are Connecting when BeginConnect returns.
func (c *ChannelSession) BeginConnect(connectAudio, connectText, switchTransmission bool, token string, cb core.Callback) (*core.Operation, error) {
	if !connectAudio && !connectText {
		return nil, core.NewArgumentError("connectAudio/connectText", "at least one must be true")
	}
	if token == "" {
		return nil, core.NewArgumentError("token", "must not be empty")
	}
	if state := c.parent.State(); state != core.LoggedIn {
		return nil, core.NewInvalidStateError("BeginConnect", state)
	}

	var ch changes
	c.mu.Lock()
	if c.deleted {
		c.mu.Unlock()
		return nil, core.NewInvalidStateError("BeginConnect", deleted)
	}
	if c.audio != core.Disconnected || c.text != core.Disconnected {
		state := core.ChannelState(c.audio, c.text)
		c.mu.Unlock()
		return nil, core.NewInvalidStateError("BeginConnect", state)
	}
	if err := checkReady(c.issuer); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if connectAudio {
		c.setLocked(true, core.Connecting, &ch)
	}
	if connectText {
		c.setLocked(false, core.Connecting, &ch)
	}
	if switchTransmission && !c.transmitting {
		c.transmitting = true
		ch.add(core.FieldTransmitting)
	}
	c.mu.Unlock()
	ch.notify(c.notifier, c.entity())
	if switchTransmission {
		c.parent.selectTransmission(c)
	}

	req := &core.SessionAddRequest{
		Account:            c.key.Account,
		Session:            c.handle,
		Channel:            c.key.Channel,
		Token:              token,
		ConnectAudio:       connectAudio,
		ConnectText:        connectText,
		SwitchTransmission: switchTransmission,
	}
	// Reverting the last Connecting transport also drops the transmission flag.
	return issue(c.issuer, req, nil, func() {
		if connectAudio {
			c.revertTo(true, core.Connecting, core.Disconnected)()
		}
		if connectText {
			c.revertTo(false, core.Connecting, core.Disconnected)()
		}
	}, cb)
}

// BeginDisconnect leaves the channel. Connecting and Connected transports
// become Disconnecting; Disconnected is only reported by the engine.
func (c *ChannelSession) BeginDisconnect(cb core.Callback) (*core.Operation, error) {
	var ch changes
	c.mu.Lock()
	if core.AlreadyDone(false, c.audio) && core.AlreadyDone(false, c.text) {
		c.mu.Unlock()
		return completed(string(core.ReqSessionTerminate), c.logger, cb), nil
	}
	if err := checkReady(c.issuer); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	prevAudio, prevText := c.audio, c.text
	if !core.AlreadyDone(false, c.audio) {
		c.setLocked(true, core.Disconnecting, &ch)
	}
	if !core.AlreadyDone(false, c.text) {
		c.setLocked(false, core.Disconnecting, &ch)
	}
	c.mu.Unlock()
	ch.notify(c.notifier, c.entity())

	return issue(c.issuer, &core.SessionTerminateRequest{Session: c.handle}, nil, func() {
		if !core.AlreadyDone(false, prevAudio) {
			c.revertTo(true, core.Disconnecting, prevAudio)()
		}
		if !core.AlreadyDone(false, prevText) {
			c.revertTo(false, core.Disconnecting, prevText)()
		}
	}, cb)
}

// BeginSetAudioConnected adds or removes audio on a joined channel. When the
// audio state already matches, it completes synchronously without a request.
func (c *ChannelSession) BeginSetAudioConnected(value bool, cb core.Callback) (*core.Operation, error) {
	var req core.Request = &core.MediaDisconnectRequest{Session: c.handle}
	if value {
		req = &core.MediaConnectRequest{Session: c.handle}
	}
	return c.setTransport(true, value, req, cb)
}

// BeginSetTextConnected adds or removes text on a joined channel. When the
// text state already matches, it completes synchronously without a request.
func (c *ChannelSession) BeginSetTextConnected(value bool, cb core.Callback) (*core.Operation, error) {
	var req core.Request = &core.TextDisconnectRequest{Session: c.handle}
	if value {
		req = &core.TextConnectRequest{Session: c.handle}
	}
	return c.setTransport(false, value, req, cb)
}

func (c *ChannelSession) setTransport(audio, value bool, req core.Request, cb core.Callback) (*core.Operation, error) {
	opName := "BeginSetTextConnected"
	if audio {
		opName = "BeginSetAudioConnected"
	}

	var ch changes
	c.mu.Lock()
	cur, other := c.text, c.audio
	if audio {
		cur, other = c.audio, c.text
	}
	if core.AlreadyDone(value, cur) {
		c.mu.Unlock()
		return completed(string(req.RequestType()), c.logger, cb), nil
	}
	if c.deleted {
		c.mu.Unlock()
		return nil, core.NewInvalidStateError(opName, deleted)
	}
	// Adding a transport needs a joined channel; BeginConnect creates one.
	if value && other != core.Connected {
		c.mu.Unlock()
		return nil, core.NewInvalidStateError(opName, core.ChannelState(c.audio, c.text))
	}

	next := core.Disconnecting
	if value {
		next = core.Connecting
	}
	if !cur.CanTransition(next) {
		c.mu.Unlock()
		return nil, core.NewInvalidStateError(opName, cur)
	}
	if err := checkReady(c.issuer); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.setLocked(audio, next, &ch)
	c.mu.Unlock()
	ch.notify(c.notifier, c.entity())

	return issue(c.issuer, req, nil, c.revertTo(audio, next, cur), cb)
}

// BeginSendText posts message to the channel. Text must be Connected. The
// operation's result is the engine message id.
func (c *ChannelSession) BeginSendText(message string, cb core.Callback) (*core.Operation, error) {
	return c.BeginSendTextWithLanguage(message, "", cb)
}

// BeginSendTextWithLanguage posts message tagged with a language code.
func (c *ChannelSession) BeginSendTextWithLanguage(message, language string, cb core.Callback) (*core.Operation, error) {
	if message == "" {
		return nil, core.NewArgumentError("message", "must not be empty")
	}
	if state := c.TextState(); state != core.Connected {
		return nil, core.NewInvalidStateError("BeginSendText", state)
	}
	return issue(c.issuer, &core.SendMessageRequest{Session: c.handle, Body: message, Language: language}, nil, nil, cb)
}

// BeginSessionArchiveQuery starts a paged query over the channel history.
// Text must be Connected. The new query replaces any tracked one.
func (c *ChannelSession) BeginSessionArchiveQuery(params core.ArchiveQueryParams, cb core.Callback) (*core.Operation, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if state := c.TextState(); state != core.Connected {
		return nil, core.NewInvalidStateError("BeginSessionArchiveQuery", state)
	}

	return beginArchiveQuery(c.archive, c.issuer, params, func(id core.QueryID) core.Request {
		return &core.SessionArchiveQueryRequest{Session: c.handle, QueryID: id, Params: params}
	}, func() {
		c.notifier.Notify(c.entity(), core.FieldArchiveResult)
	}, cb)
}

// SessionArchiveResult returns the tracked channel archive query.
func (c *ChannelSession) SessionArchiveResult() (core.ArchiveQueryResult, bool) {
	return c.archive.Result()
}

// ArchiveMessages returns the channel archive messages received so far.
func (c *ChannelSession) ArchiveMessages() []core.ArchiveMessage {
	return c.archive.Messages()
}

// BeginSetParticipantMuted mutes or unmutes a participant for the local user.
func (c *ChannelSession) BeginSetParticipantMuted(uri core.ParticipantURI, muted bool, cb core.Callback) (*core.Operation, error) {
	if err := c.checkParticipant(uri); err != nil {
		return nil, err
	}
	return issue(c.issuer, &core.SetParticipantMuteRequest{Session: c.handle, Participant: uri, Muted: muted}, nil, nil, cb)
}

// BeginSetParticipantVolume sets a participant's volume (0..100) for the local user.
func (c *ChannelSession) BeginSetParticipantVolume(uri core.ParticipantURI, volume int, cb core.Callback) (*core.Operation, error) {
	if volume < 0 || volume > MaxParticipantVolume {
		return nil, core.NewArgumentError("volume", "must be between 0 and 100")
	}
	if err := c.checkParticipant(uri); err != nil {
		return nil, err
	}
	return issue(c.issuer, &core.SetParticipantVolumeRequest{Session: c.handle, Participant: uri, Volume: volume}, nil, nil, cb)
}

func (c *ChannelSession) checkParticipant(uri core.ParticipantURI) error {
	if uri == "" {
		return core.NewArgumentError("participant", "must not be empty")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.participants[uri]; !ok {
		return core.NewArgumentError("participant", "not in channel")
	}
	return nil
}

// Participants returns the channel members ordered by URI.
func (c *ChannelSession) Participants() []core.Participant {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.Participant, 0, len(c.participants))
	for _, p := range c.participants {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URI < out[j].URI })
	return out
}

// Participant returns one member by URI.
func (c *ChannelSession) Participant(uri core.ParticipantURI) (core.Participant, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.participants[uri]
	return p, ok
}

// Messages returns the text messages received in delivery order.
func (c *ChannelSession) Messages() []core.ChannelMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.ChannelMessage, len(c.messages))
	copy(out, c.messages)
	return out
}

// Delete unregisters the channel session and clears its collections. A
// joined channel is left on a best effort basis.
func (c *ChannelSession) Delete() { c.remove(true) }

// remove tears the session down; terminate asks the engine to leave a
// joined channel, which is pointless once the account is logged out.
func (c *ChannelSession) remove(terminate bool) {
	c.mu.Lock()
	if c.deleted {
		c.mu.Unlock()
		return
	}
	joined := c.audio != core.Disconnected || c.text != core.Disconnected
	c.deleted = true
	c.audio, c.text = core.Disconnected, core.Disconnected
	c.transmitting = false
	c.participants = make(map[core.ParticipantURI]core.Participant)
	c.messages = nil
	c.mu.Unlock()

	c.unregister()
	if joined && terminate {
		if _, err := c.issuer.Issue(&core.SessionTerminateRequest{Session: c.handle}, nil, nil); err != nil {
			c.logger.Debug("terminate on delete failed", "session_handle", c.handle, "error", err)
		}
	}
	c.archive.Reset()
	c.parent.forget(c)
	c.notifier.Notify(c.entity(), core.FieldSessionDeleted)
}

func (c *ChannelSession) handleEvent(ev core.Event) {
	var ch changes

	c.mu.Lock()
	if c.deleted {
		c.mu.Unlock()
		return
	}
	switch e := ev.(type) {
	case *core.SessionAddedEvent:
		c.logger.Debug("channel session added", "session_handle", c.handle, "channel", e.Channel)
	case *core.SessionRemovedEvent:
		c.setLocked(true, core.Disconnected, &ch)
		c.setLocked(false, core.Disconnected, &ch)
		if len(c.participants) > 0 {
			c.participants = make(map[core.ParticipantURI]core.Participant)
			ch.add(core.FieldParticipants)
		}
	case *core.MediaStreamUpdatedEvent:
		c.setLocked(true, e.State, &ch)
	case *core.TextStreamUpdatedEvent:
		c.setLocked(false, e.State, &ch)
	case *core.ParticipantAddedEvent:
		c.participants[e.Participant.URI] = e.Participant
		ch.add(core.FieldParticipants)
	case *core.ParticipantUpdatedEvent:
		if _, ok := c.participants[e.Participant.URI]; !ok {
			c.logger.Debug("update for unknown participant ignored", "session_handle", c.handle, "participant", e.Participant.URI)
			break
		}
		c.participants[e.Participant.URI] = e.Participant
		ch.add(core.FieldParticipants)
	case *core.ParticipantRemovedEvent:
		if _, ok := c.participants[e.URI]; ok {
			delete(c.participants, e.URI)
			ch.add(core.FieldParticipants)
		}
	case *core.MessageReceivedEvent:
		c.messages = append(c.messages, e.Message)
		ch.add(core.FieldMessages)
	case *core.SessionArchiveMessageEvent:
		c.archive.Append(e.Message)
		ch.add(core.FieldArchiveMessages)
	case *core.SessionArchiveQueryEndEvent:
		if c.archive.End(e.ArchiveQueryEnd) {
			ch.add(core.FieldArchiveResult)
		}
	default:
		c.logger.Debug("unexpected event for channel session", "session_handle", c.handle, "event_type", ev.EventType())
	}
	c.mu.Unlock()

	ch.notify(c.notifier, c.entity())
}
