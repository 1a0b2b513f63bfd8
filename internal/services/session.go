package services

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/soaringjerry/Footprint/internal/models"
)

// Session holds the signed-in principal, if any. Values are published as
// snapshots: a stored principal must not be mutated afterwards, so replace it
// with a clone instead.
type Session struct {
	principal atomic.Pointer[models.Principal]
}

func NewSession(p *models.Principal) *Session {
	s := &Session{}
	s.Set(p)
	return s
}

// Get returns the current principal, or nil when signed out.
func (s *Session) Get() *models.Principal {
	return s.principal.Load()
}

// Set replaces the principal. Set(nil) signs out and is idempotent.
func (s *Session) Set(p *models.Principal) {
	s.principal.Store(p)
}

// SignedIn reports whether a principal is present.
func (s *Session) SignedIn() bool { return s.Get() != nil }

// SessionRegistry tracks the sessions opened at login, keyed by the id that is
// embedded in the issued token. A session past its expiry is treated as
// closed and dropped the next time the registry is touched.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]sessionEntry
	newID    func() string
	now      func() time.Time
}

type sessionEntry struct {
	session *Session
	expires time.Time
}

func (e sessionEntry) expired(now time.Time) bool {
	return !e.expires.IsZero() && !now.Before(e.expires)
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions: map[string]sessionEntry{},
		newID:    func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") },
		now:      time.Now,
	}
}

// Open starts a session for p that lasts until expiresAt and returns its id.
// A zero expiresAt never expires.
func (r *SessionRegistry) Open(p *models.Principal, expiresAt time.Time) (string, *Session) {
	id := r.newID()
	s := NewSession(p)
	r.mu.Lock()
	r.pruneLocked()
	r.sessions[id] = sessionEntry{session: s, expires: expiresAt}
	r.mu.Unlock()
	return id, s
}

// Lookup returns the session for id, or nil if it is unknown, closed or
// expired.
func (r *SessionRegistry) Lookup(id string) *Session {
	r.mu.RLock()
	e, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	if e.expired(r.now()) {
		r.Close(id)
		return nil
	}
	return e.session
}

// Close signs the session out and forgets it. Closing an unknown or already
// closed session is a no-op.
func (r *SessionRegistry) Close(id string) {
	r.mu.Lock()
	e, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok {
		e.session.Set(nil)
	}
}

// Len returns the number of open, unexpired sessions.
func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pruneLocked()
	return len(r.sessions)
}

func (r *SessionRegistry) pruneLocked() {
	now := r.now()
	for id, e := range r.sessions {
		if e.expired(now) {
			delete(r.sessions, id)
			e.session.Set(nil)
		}
	}
}
