package session

import (
	"strings"
	"sync"

	"github.com/MarcoPoloResearchLab/storage-manager/internal/inventory"
)

// AuthEventType enumerates auth state notifications delivered by the auth service.
type AuthEventType string

const (
	EventSignedIn       AuthEventType = "SIGNED_IN"
	EventSignedOut      AuthEventType = "SIGNED_OUT"
	EventTokenRefreshed AuthEventType = "TOKEN_REFRESHED"
	EventUserUpdated    AuthEventType = "USER_UPDATED"
)

// AuthSession is the session payload attached to an auth event.
type AuthSession struct {
	AccessToken string
	User        inventory.Identity
}

// AuthEvent is a single sign-in or sign-out notification.
type AuthEvent struct {
	Type    AuthEventType
	Session *AuthSession
}

// Store holds the current identity and access token.
type Store struct {
	mu    sync.RWMutex
	user  *inventory.UserProfile
	token string
}

// NewStore returns an empty, signed-out session store.
func NewStore() *Store {
	return &Store{}
}

// HandleAuthEvent populates or clears the store from an auth notification.
func (s *Store) HandleAuthEvent(event AuthEvent) {
	if event.Type == EventSignedOut || event.Session == nil || strings.TrimSpace(event.Session.User.ID) == "" {
		s.Clear()
		return
	}
	profile := inventory.ProfileFromIdentity(event.Session.User)
	s.mu.Lock()
	s.user = &profile
	s.token = event.Session.AccessToken
	s.mu.Unlock()
}

// Clear signs the store out.
func (s *Store) Clear() {
	s.mu.Lock()
	s.user = nil
	s.token = ""
	s.mu.Unlock()
}

// User returns a copy of the current profile.
func (s *Store) User() (inventory.UserProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return inventory.UserProfile{}, false
	}
	profile := *s.user
	profile.Roles = append([]string{}, s.user.Roles...)
	return profile, true
}

// Token returns the current access token.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Authenticated is the route guard: a current identity with a non-empty id.
func (s *Store) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil && strings.TrimSpace(s.user.ID) != ""
}
