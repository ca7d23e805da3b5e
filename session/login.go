package session

import (
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/vxbroker/core"
	"github.com/hupe1980/vxbroker/logging"
)

// LoginSession is the state of one account: its login, presence
// subscriptions, account archive and channel sessions.
type LoginSession struct {
	account     core.AccountHandle
	issuer      Issuer
	registrar   Registrar
	opts        Options
	logger      logging.Logger
	notifier    *core.Notifier
	archive     *ArchiveQueryTracker
	unregister  func()
	onDelete    func(*LoginSession)
	displayName string

	mu            sync.Mutex
	state         core.LoginState
	server        string
	channels      map[core.ChannelID]*ChannelSession
	subscriptions map[string]map[string]core.PresenceLocation
	presence      core.PresenceStatus
	presenceMsg   string
	deleted       bool
}

// NewLoginSession creates the login session of account and registers it
// with registrar. The session starts LoggedOut.
func NewLoginSession(account core.AccountHandle, issuer Issuer, registrar Registrar, optFns ...func(o *Options)) (*LoginSession, error) {
	if account == "" {
		return nil, core.NewArgumentError("account", "must not be empty")
	}
	opts := applyOptions(optFns)

	s := &LoginSession{
		account:       account,
		issuer:        issuer,
		registrar:     registrar,
		opts:          opts,
		logger:        opts.Logger,
		notifier:      core.NewNotifier(opts.Logger),
		archive:       NewArchiveQueryTracker(),
		displayName:   opts.DisplayName,
		channels:      make(map[core.ChannelID]*ChannelSession),
		subscriptions: make(map[string]map[string]core.PresenceLocation),
	}
	s.unregister = registrar.Register(core.AccountRoute(account), s.handleEvent)
	return s, nil
}

// Account returns the account handle.
func (s *LoginSession) Account() core.AccountHandle { return s.account }

// State returns the current login state.
func (s *LoginSession) State() core.LoginState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Server returns the server of the last login attempt.
func (s *LoginSession) Server() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.server
}

// Subscribe observes changes of this session (not of its channels).
func (s *LoginSession) Subscribe(fn core.ChangeFunc) (cancel func()) {
	return s.notifier.Subscribe(fn)
}

func (s *LoginSession) entity() string { return core.AccountRoute(s.account).String() }

// BeginLogin logs the account into server. The state is LoggingIn when
// BeginLogin returns and becomes LoggedIn once the engine accepts the login;
// on failure it reverts to LoggedOut.
func (s *LoginSession) BeginLogin(server, token string, cb core.Callback) (*core.Operation, error) {
	if server == "" {
		return nil, core.NewArgumentError("server", "must not be empty")
	}
	if token == "" {
		return nil, core.NewArgumentError("token", "must not be empty")
	}

	s.mu.Lock()
	if s.deleted {
		s.mu.Unlock()
		return nil, core.NewInvalidStateError("BeginLogin", deleted)
	}
	if s.state != core.LoggedOut {
		state := s.state
		s.mu.Unlock()
		return nil, core.NewInvalidStateError("BeginLogin", state)
	}
	if err := checkReady(s.issuer); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.state = core.LoggingIn
	s.server = server
	s.mu.Unlock()
	s.notifier.Notify(s.entity(), core.FieldLoginState)

	req := &core.LoginRequest{Account: s.account, Server: server, Token: token, DisplayName: s.displayName}
	return issue(s.issuer, req, func(resp *core.Response) error {
		if resp.Failed() {
			return resp.Err()
		}
		s.transition(core.LoggingIn, core.LoggedIn)
		return nil
	}, func() {
		s.transition(core.LoggingIn, core.LoggedOut)
	}, cb)
}

// BeginLogout logs the account out. Channel sessions and presence
// subscriptions are torn down once the engine confirms.
func (s *LoginSession) BeginLogout(cb core.Callback) (*core.Operation, error) {
	s.mu.Lock()
	if s.state != core.LoggedIn {
		state := s.state
		s.mu.Unlock()
		return nil, core.NewInvalidStateError("BeginLogout", state)
	}
	if err := checkReady(s.issuer); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.state = core.LoggingOut
	s.mu.Unlock()
	s.notifier.Notify(s.entity(), core.FieldLoginState)

	return issue(s.issuer, &core.LogoutRequest{Account: s.account}, func(resp *core.Response) error {
		if resp.Failed() {
			return resp.Err()
		}
		if s.transition(core.LoggingOut, core.LoggedOut) {
			s.teardown()
		}
		return nil
	}, func() {
		s.transition(core.LoggingOut, core.LoggedIn)
	}, cb)
}

// transition moves from -> to if the session is still in from.
func (s *LoginSession) transition(from, to core.LoginState) bool {
	s.mu.Lock()
	if s.state != from || s.deleted {
		s.mu.Unlock()
		return false
	}
	s.state = to
	s.mu.Unlock()
	s.notifier.Notify(s.entity(), core.FieldLoginState)
	return true
}

// ChannelSession returns the channel session for channel, creating it on
// first use. New channel sessions start Disconnected.
func (s *LoginSession) ChannelSession(channel core.ChannelID) (*ChannelSession, error) {
	if channel == "" {
		return nil, core.NewArgumentError("channel", "must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleted {
		return nil, core.NewInvalidStateError("ChannelSession", deleted)
	}
	if cs, ok := s.channels[channel]; ok {
		return cs, nil
	}
	cs := newChannelSession(s, channel)
	s.channels[channel] = cs
	return cs, nil
}

// ChannelSessions returns the channel sessions ordered by channel.
func (s *LoginSession) ChannelSessions() []*ChannelSession {
	s.mu.Lock()
	out := make([]*ChannelSession, 0, len(s.channels))
	for _, cs := range s.channels {
		out = append(out, cs)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].key.Channel < out[j].key.Channel })
	return out
}

// DeleteChannelSession deletes the channel session for channel.
func (s *LoginSession) DeleteChannelSession(channel core.ChannelID) error {
	s.mu.Lock()
	cs, ok := s.channels[channel]
	delete(s.channels, channel)
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: channel session %s", core.ErrNotFound, channel)
	}
	cs.Delete()
	return nil
}

// forget drops cs from the channel map without deleting it.
func (s *LoginSession) forget(cs *ChannelSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.channels[cs.key.Channel] == cs {
		delete(s.channels, cs.key.Channel)
	}
}

// selectTransmission deselects every channel session other than cs. Only one
// channel of an account transmits at a time.
func (s *LoginSession) selectTransmission(cs *ChannelSession) {
	for _, other := range s.ChannelSessions() {
		if other != cs {
			other.clearTransmitting()
		}
	}
}

// Delete tears the session down: channels are deleted, the route is removed
// and collections are cleared. A logged in account is logged out on a best
// effort basis.
func (s *LoginSession) Delete() {
	s.mu.Lock()
	if s.deleted {
		s.mu.Unlock()
		return
	}
	loggedIn := s.state == core.LoggedIn
	s.deleted = true
	s.state = core.LoggedOut
	s.mu.Unlock()

	s.unregister()
	if loggedIn {
		if _, err := s.issuer.Issue(&core.LogoutRequest{Account: s.account}, nil, nil); err != nil {
			s.logger.Debug("logout on delete failed", "account_handle", s.account, "error", err)
		}
	}

	s.teardown()
	s.archive.Reset()
	if s.onDelete != nil {
		s.onDelete(s)
	}
	s.notifier.Notify(s.entity(), core.FieldSessionDeleted)
}

// teardown deletes every channel session and presence subscription.
func (s *LoginSession) teardown() {
	s.mu.Lock()
	channels := make([]*ChannelSession, 0, len(s.channels))
	for _, cs := range s.channels {
		channels = append(channels, cs)
	}
	s.channels = make(map[core.ChannelID]*ChannelSession)
	hadPresence := len(s.subscriptions) > 0
	s.subscriptions = make(map[string]map[string]core.PresenceLocation)
	s.mu.Unlock()

	for _, cs := range channels {
		cs.remove(false)
	}
	if hadPresence {
		s.notifier.Notify(s.entity(), core.FieldPresence)
	}
}

// BeginAccountArchiveQuery starts a paged query over the account's message
// history. The new query replaces any tracked one.
func (s *LoginSession) BeginAccountArchiveQuery(params core.ArchiveQueryParams, cb core.Callback) (*core.Operation, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if state := s.State(); state != core.LoggedIn {
		return nil, core.NewInvalidStateError("BeginAccountArchiveQuery", state)
	}

	return beginArchiveQuery(s.archive, s.issuer, params, func(id core.QueryID) core.Request {
		return &core.AccountArchiveQueryRequest{Account: s.account, QueryID: id, Params: params}
	}, func() {
		s.notifier.Notify(s.entity(), core.FieldArchiveResult)
	}, cb)
}

// AccountArchiveResult returns the tracked account archive query.
func (s *LoginSession) AccountArchiveResult() (core.ArchiveQueryResult, bool) {
	return s.archive.Result()
}

// ArchiveMessages returns the account archive messages received so far.
func (s *LoginSession) ArchiveMessages() []core.ArchiveMessage {
	return s.archive.Messages()
}

func (s *LoginSession) handleEvent(ev core.Event) {
	switch e := ev.(type) {
	case *core.LoginStateChangedEvent:
		s.onLoginStateChanged(e)
	case *core.AccountArchiveMessageEvent:
		s.archive.Append(e.Message)
		s.notifier.Notify(s.entity(), core.FieldArchiveMessages)
	case *core.AccountArchiveQueryEndEvent:
		if s.archive.End(e.ArchiveQueryEnd) {
			s.notifier.Notify(s.entity(), core.FieldArchiveResult)
		} else {
			s.logger.Debug("ignoring stale archive query end", "account_handle", s.account, "query_id", e.QueryID)
		}
	case *core.PresenceUpdatedEvent:
		s.onPresenceUpdated(e)
	default:
		s.logger.Debug("unexpected event for login session", "account_handle", s.account, "event_type", ev.EventType())
	}
}

func (s *LoginSession) onLoginStateChanged(e *core.LoginStateChangedEvent) {
	s.mu.Lock()
	if s.deleted || s.state == e.State {
		s.mu.Unlock()
		return
	}
	s.state = e.State
	s.mu.Unlock()
	s.notifier.Notify(s.entity(), core.FieldLoginState)

	if e.State == core.LoggedOut {
		s.teardown()
	}
}
