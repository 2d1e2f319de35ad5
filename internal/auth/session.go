package auth

import (
	"context"
	"sync"
)

// Session holds the current authenticated user for one consumer (for example
// one dashboard synchronizer). It replaces the module-global "current user"
// of a typical client app with an explicit, injectable object.
type Session struct {
	mu   sync.RWMutex
	user *User
}

// NewSession creates a session pre-bound to a user. Pass the zero User for an
// unauthenticated session.
func NewSession(u User) *Session {
	s := &Session{}
	if u.ID != "" {
		s.user = &u
	}
	return s
}

// CurrentUser returns the signed-in user, if any.
func (s *Session) CurrentUser(ctx context.Context) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return User{}, false
	}
	return *s.user, true
}

// Set replaces the signed-in user.
func (s *Session) Set(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		s.user = nil
		return
	}
	cp := u
	s.user = &cp
}

// Clear signs the session out.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = nil
}
