// Package session drives the authentication state machine: it reconciles
// identity-provider events, the credential cache, and the backend user
// profile into a single Session the rest of the application consumes.
package session

import (
	"github.com/dmitrijs2005/sessionkeeper/internal/credstore"
	"github.com/dmitrijs2005/sessionkeeper/internal/provider"
)

// Status is the authentication state visible to the application. It is the
// single source of truth for the UI; the machine never leaves it in a
// half-logged-in shape.
type Status string

const (
	StatusUnauthenticated Status = "unauthenticated"
	StatusAuthenticating  Status = "authenticating"
	StatusAuthenticated   Status = "authenticated"
	StatusError           Status = "error"
)

// UserProfile is the backend's user record. ID is the identity key: a fetched
// profile replaces a cached one only when both belong to the same subject.
type UserProfile struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	Name           string `json:"name"`
	TargetLanguage string `json:"target_language,omitempty"`

	// Degraded marks a profile synthesized from the identity provider's own
	// claims, used until the richer backend profile arrives (or when the
	// fetch fails).
	Degraded bool `json:"degraded,omitempty"`
}

// Session is a snapshot of the authentication state.
//
// Invariant: Status == StatusAuthenticated implies Credential != nil; Profile
// may still be the degraded variant.
type Session struct {
	Status     Status
	Credential *credstore.Credential
	Profile    *UserProfile

	// Message carries the user-facing description when Status == StatusError.
	Message string
}

// DegradedProfile synthesizes a minimal profile from the identity provider's
// principal claims, so the application can render without waiting on the
// backend.
func DegradedProfile(c *provider.PrincipalClaims) *UserProfile {
	return &UserProfile{
		ID:       c.Subject,
		Email:    c.Email,
		Name:     c.Name,
		Degraded: true,
	}
}
