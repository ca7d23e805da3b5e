package session

import (
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/vxbroker/core"
)

// Registry keeps one LoginSession per account in a process local map. It is
// safe for concurrent access. Sessions are created lazily on first lookup.
type Registry struct {
	issuer    Issuer
	registrar Registrar
	optFns    []func(o *Options)

	mu       sync.RWMutex
	sessions map[core.AccountHandle]*LoginSession
}

// NewRegistry constructs an empty registry. optFns apply to every session it creates.
func NewRegistry(issuer Issuer, registrar Registrar, optFns ...func(o *Options)) *Registry {
	return &Registry{
		issuer:    issuer,
		registrar: registrar,
		optFns:    optFns,
		sessions:  make(map[core.AccountHandle]*LoginSession),
	}
}

// Get returns the login session of account, creating it if needed.
func (r *Registry) Get(account core.AccountHandle) (*LoginSession, error) {
	r.mu.RLock()
	s, ok := r.sessions[account]
	r.mu.RUnlock()
	if ok {
		return s, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[account]; ok {
		return s, nil
	}
	s, err := NewLoginSession(account, r.issuer, r.registrar, r.optFns...)
	if err != nil {
		return nil, err
	}
	s.onDelete = r.forget
	r.sessions[account] = s
	return s, nil
}

// forget drops s from the map when it was deleted directly.
func (r *Registry) forget(s *LoginSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[s.account] == s {
		delete(r.sessions, s.account)
	}
}

// Lookup returns the login session of account without creating it.
func (r *Registry) Lookup(account core.AccountHandle) (*LoginSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[account]
	return s, ok
}

// Delete removes and deletes the login session of account.
func (r *Registry) Delete(account core.AccountHandle) error {
	r.mu.Lock()
	s, ok := r.sessions[account]
	delete(r.sessions, account)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: login session %s", core.ErrNotFound, account)
	}
	s.Delete()
	return nil
}

// List returns all login sessions ordered by account.
func (r *Registry) List() []*LoginSession {
	r.mu.RLock()
	out := make([]*LoginSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].account < out[j].account })
	return out
}

// Close deletes every login session.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[core.AccountHandle]*LoginSession)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Delete()
	}
}
