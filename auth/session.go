package auth

import (
	"encoding/json"
	"fmt"
	"maps"
	"sync"
	"time"
)

// User is derived from validated ID token claims.
type User struct {
	ID         string
	Name       string
	BillableID string
	// Claims holds every ID token claim, including the ones mapped above.
	Claims map[string]any
}

// MarshalJSON flattens the claims next to id, name and user_billable_id.
func (u User) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(u.Claims)+3)
	maps.Copy(out, u.Claims)
	out["id"] = u.ID
	out["name"] = u.Name
	if u.BillableID != "" {
		out["user_billable_id"] = u.BillableID
	}
	return json.Marshal(out)
}

func (u *User) clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.Claims = maps.Clone(u.Claims)
	return &c
}

func userFromClaims(subject string, claims map[string]any) (*User, error) {
	name, ok := claims["name"]
	if !ok || name == nil || name == "" {
		return nil, ErrMissingNameClaim
	}
	u := &User{
		ID:     subject,
		Name:   fmt.Sprint(name),
		Claims: claims,
	}
	if billable, ok := claims["user_billable_id"].(string); ok {
		u.BillableID = billable
	}
	return u, nil
}

// tokenResult is the processed outcome of one successful token exchange.
type tokenResult struct {
	IDToken      string
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
	User         *User
}

// SessionState is a point-in-time copy of the session.
type SessionState struct {
	IDToken           string
	AccessToken       string
	AccessTokenExpiry time.Time
	User              *User
	Generation        uint64
}

// Session is the in-memory authenticated state. It is written only through
// apply and clear; every clear starts a new generation so that token results
// computed against an older generation are rejected.
type Session struct {
	mu          sync.RWMutex
	idToken     string
	accessToken string
	expiry      time.Time
	user        *User
	generation  uint64
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SessionState{
		IDToken:           s.idToken,
		AccessToken:       s.accessToken,
		AccessTokenExpiry: s.expiry,
		User:              s.user.clone(),
		Generation:        s.generation,
	}
}

// Generation identifies the current session lifetime.
func (s *Session) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

func (s *Session) apply(generation uint64, r tokenResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if generation != s.generation {
		return ErrSessionChanged
	}
	if r.IDToken != "" {
		s.idToken = r.IDToken
	}
	s.accessToken = r.AccessToken
	// A response without expires_in leaves the previous expiry in place.
	if !r.Expiry.IsZero() {
		s.expiry = r.Expiry
	}
	if r.User != nil {
		s.user = r.User
	}
	return nil
}

func (s *Session) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idToken = ""
	s.accessToken = ""
	s.expiry = time.Time{}
	s.user = nil
	s.generation++
}
