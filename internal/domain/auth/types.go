package auth

import (
	"strings"
	"time"
)

// Role is the coarse authorization role derived from a user's profile.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
	RoleGuest Role = "guest"
)

// Identity is the principal established by the identity provider.
// The core never mutates it; providers issue a new value on refresh.
type Identity struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
	// Token is the provider-issued access token.
	Token string `json:"-"`
}

// Same reports whether two identities refer to the same principal.
func (i Identity) Same(other Identity) bool {
	return i.ID != "" && i.ID == other.ID
}

// Session is the provider-owned credential bundle persisted between runs.
type Session struct {
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	IssuedAt     time.Time `json:"issued_at"`
}

// Identity projects the session onto the identity the core tracks.
func (s Session) Identity() Identity {
	return Identity{
		ID:        s.UserID,
		Email:     strings.ToLower(strings.TrimSpace(s.Email)),
		ExpiresAt: s.ExpiresAt,
		Token:     s.AccessToken,
	}
}

// Active reports whether the session carries a usable access token.
// A sign-up awaiting email confirmation yields a session without one.
func (s Session) Active() bool {
	return s.UserID != "" && s.AccessToken != ""
}

// Expired reports whether the access token is past its expiry at now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// ExpiresWithin reports whether the access token expires before now+d.
func (s Session) ExpiresWithin(now time.Time, d time.Duration) bool {
	return !s.ExpiresAt.IsZero() && now.Add(d).After(s.ExpiresAt)
}

// EventKind names a provider-side session change.
type EventKind string

const (
	EventSignedIn         EventKind = "signed_in"
	EventTokenRefreshed   EventKind = "token_refreshed"
	EventUserUpdated      EventKind = "user_updated"
	EventPasswordRecovery EventKind = "password_recovery"
	EventSignedOut        EventKind = "signed_out"
)

// Event is a session-change notification from the identity provider.
// A nil Session means the session was cleared.
type Event struct {
	Kind    EventKind
	Session *Session
}

// Cleared reports whether the event ends the session.
func (e Event) Cleared() bool {
	return e.Session == nil || e.Kind == EventSignedOut
}
