// Package provider defines the identity-provider collaborator: the external
// party that owns the redirect/consent flow and issues bearer tokens. The
// session layer only consumes this interface; it never reimplements
// OAuth/OIDC flows itself.
package provider

import (
	"context"
	"time"
)

// PrincipalClaims are the claims the provider itself exposes about the
// signed-in principal, independent of any access token.
type PrincipalClaims struct {
	Subject string
	Email   string
	Name    string
}

// State is the provider's observable snapshot.
type State struct {
	IsAuthenticated bool
	IsLoading       bool
	Claims          *PrincipalClaims
}

// IdentityProvider is the external authentication collaborator.
//
// Contract:
//   - Login starts the redirect flow towards redirectTarget. For a
//     redirect-based provider this is effectively terminal for the current
//     flow; completion arrives later as a callback.
//   - Logout revokes the provider-side session. Local revocation is the
//     caller's job and must happen before Logout is invoked.
//   - AccessTokenSilently obtains a fresh token without user interaction,
//     bounded by timeout.
//   - State reports the current snapshot without blocking.
type IdentityProvider interface {
	Login(ctx context.Context, redirectTarget string) error
	Logout(ctx context.Context, redirectTarget string) error
	AccessTokenSilently(ctx context.Context, audience string, timeout time.Duration) (string, error)
	State(ctx context.Context) State
}
