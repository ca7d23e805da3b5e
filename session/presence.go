package session

import (
	"fmt"
	"sort"

	"github.com/hupe1980/vxbroker/core"
)

// BeginAddPresenceSubscription subscribes to the presence of uri. An existing
// subscription completes synchronously without a request.
func (s *LoginSession) BeginAddPresenceSubscription(uri string, cb core.Callback) (*core.Operation, error) {
	if uri == "" {
		return nil, core.NewArgumentError("uri", "must not be empty")
	}

	s.mu.Lock()
	state := s.state
	_, exists := s.subscriptions[uri]
	s.mu.Unlock()

	if state != core.LoggedIn {
		return nil, core.NewInvalidStateError("BeginAddPresenceSubscription", state)
	}
	if exists {
		return completed(string(core.ReqPresenceSubscribe), s.logger, cb), nil
	}

	req := &core.PresenceSubscribeRequest{Account: s.account, Buddy: uri}
	return issue(s.issuer, req, func(resp *core.Response) error {
		if resp.Failed() {
			return resp.Err()
		}
		s.mu.Lock()
		if _, ok := s.subscriptions[uri]; !ok && !s.deleted {
			s.subscriptions[uri] = make(map[string]core.PresenceLocation)
		}
		s.mu.Unlock()
		s.notifier.Notify(s.entity(), core.FieldPresence)
		return nil
	}, nil, cb)
}

// BeginRemovePresenceSubscription drops the subscription to uri.
func (s *LoginSession) BeginRemovePresenceSubscription(uri string, cb core.Callback) (*core.Operation, error) {
	if uri == "" {
		return nil, core.NewArgumentError("uri", "must not be empty")
	}

	s.mu.Lock()
	state := s.state
	_, exists := s.subscriptions[uri]
	s.mu.Unlock()

	if state != core.LoggedIn {
		return nil, core.NewInvalidStateError("BeginRemovePresenceSubscription", state)
	}
	if !exists {
		return nil, fmt.Errorf("%w: presence subscription %s", core.ErrNotFound, uri)
	}

	req := &core.PresenceUnsubscribeRequest{Account: s.account, Buddy: uri}
	return issue(s.issuer, req, func(resp *core.Response) error {
		if resp.Failed() {
			return resp.Err()
		}
		s.mu.Lock()
		delete(s.subscriptions, uri)
		s.mu.Unlock()
		s.notifier.Notify(s.entity(), core.FieldPresence)
		return nil
	}, nil, cb)
}

// BeginSetPresence publishes the account's own availability.
func (s *LoginSession) BeginSetPresence(status core.PresenceStatus, message string, cb core.Callback) (*core.Operation, error) {
	if status < core.PresenceUnavailable || status > core.PresenceExtendedAway {
		return nil, core.NewArgumentError("status", "unknown presence status")
	}
	if state := s.State(); state != core.LoggedIn {
		return nil, core.NewInvalidStateError("BeginSetPresence", state)
	}

	req := &core.SetPresenceRequest{Account: s.account, Status: status, Message: message}
	return issue(s.issuer, req, func(resp *core.Response) error {
		if resp.Failed() {
			return resp.Err()
		}
		s.mu.Lock()
		s.presence = status
		s.presenceMsg = message
		s.mu.Unlock()
		s.notifier.Notify(s.entity(), core.FieldPresence)
		return nil
	}, nil, cb)
}

// Presence returns the account's own published presence.
func (s *LoginSession) Presence() (core.PresenceStatus, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presence, s.presenceMsg
}

// Subscriptions returns a snapshot of every presence subscription ordered by
// contact, each with its locations ordered by id.
func (s *LoginSession) Subscriptions() []core.PresenceSubscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]core.PresenceSubscription, 0, len(s.subscriptions))
	for uri, locs := range s.subscriptions {
		sub := core.PresenceSubscription{
			Key:       core.PresenceKey{Account: s.account, Subscription: uri},
			Locations: make([]core.PresenceLocation, 0, len(locs)),
		}
		for _, l := range locs {
			sub.Locations = append(sub.Locations, l)
		}
		sort.Slice(sub.Locations, func(i, j int) bool { return sub.Locations[i].ID < sub.Locations[j].ID })
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Subscription < out[j].Key.Subscription })
	return out
}

func (s *LoginSession) onPresenceUpdated(e *core.PresenceUpdatedEvent) {
	s.mu.Lock()
	locs, ok := s.subscriptions[e.Buddy]
	if !ok {
		s.mu.Unlock()
		s.logger.Debug("presence for unknown subscription", "account_handle", s.account, "buddy", e.Buddy)
		return
	}
	if e.Removed {
		delete(locs, e.Location.ID)
	} else {
		locs[e.Location.ID] = e.Location
	}
	s.mu.Unlock()
	s.notifier.Notify(s.entity(), core.FieldPresence)
}
