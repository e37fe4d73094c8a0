package client

import (
	"sync"

	"room_chat/internal/domain"
)

type SessionState int

const (
	SessionLoggedOut SessionState = iota
	SessionAuthenticated
	// SessionExpired is entered once the server rejects the credentials.
	// Only a fresh sign-in leaves it.
	SessionExpired
)

func (s SessionState) String() string {
	switch s {
	case SessionAuthenticated:
		return "authenticated"
	case SessionExpired:
		return "expired"
	default:
		return "logged_out"
	}
}

// Session holds the credentials of the signed-in identity. Transitions are
// explicit: LoggedOut -> Authenticated -> Expired, or Authenticated -> LoggedOut.
type Session struct {
	mu           sync.Mutex
	state        SessionState
	user         *domain.User
	accessToken  string
	refreshToken string
	onExpire     func()
}

// NewSession creates a logged-out session. onExpire runs once per
// Authenticated -> Expired transition and may be nil.
func NewSession(onExpire func()) *Session {
	return &Session{onExpire: onExpire}
}

func (s *Session) Authenticate(resp *AuthResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = SessionAuthenticated
	user := resp.User
	s.user = &user
	s.accessToken = resp.AccessToken
	s.refreshToken = resp.RefreshToken
}

// Expire moves an authenticated session to Expired and reports whether this
// call made the transition. Concurrent failures therefore log out once.
func (s *Session) Expire() bool {
	s.mu.Lock()
	if s.state != SessionAuthenticated {
		s.mu.Unlock()
		return false
	}
	s.state = SessionExpired
	s.accessToken = ""
	onExpire := s.onExpire
	s.mu.Unlock()

	if onExpire != nil {
		onExpire()
	}
	return true
}

func (s *Session) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = SessionLoggedOut
	s.user = nil
	s.accessToken = ""
	s.refreshToken = ""
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// AccessToken is only handed out while authenticated.
func (s *Session) AccessToken() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accessToken, s.state == SessionAuthenticated
}

func (s *Session) RefreshToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshToken
}

func (s *Session) Identity() (domain.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != SessionAuthenticated || s.user == nil {
		return domain.Identity{}, false
	}
	return s.user.Identity(), true
}
