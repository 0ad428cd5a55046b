// Package httpx provides the outbound HTTP plumbing that attaches the bearer
// credential to application egress and reacts to credential rejection.
package httpx

import (
	"context"
	"net/http"
	"net/url"

	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
)

// TokenSource yields the current bearer token. An empty token with a nil
// error means "no credential available".
//
// Implementations read the credential cache but never write it back; the
// session orchestrator is the cache's only writer.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// OnUnauthorizedFunc is invoked when the backend answers 401 for a request
// carrying a stored token. path is the request path, so the handler can send
// the user back there after re-authentication.
type OnUnauthorizedFunc func(ctx context.Context, path string)

// BearerTransport is an http.RoundTripper that attaches the Authorization
// header from a TokenSource and reports 401 responses.
type BearerTransport struct {
	Base           http.RoundTripper
	Tokens         TokenSource
	OnUnauthorized OnUnauthorizedFunc
	Log            logging.Logger
}

// RoundTrip attaches the bearer header and forwards the request. Without a
// usable token the request is refused with common.ErrAuthenticationRequired
// before any network I/O. A 401 response triggers OnUnauthorized and is still
// returned to the caller.
func (t *BearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	token, err := t.Tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, common.ErrAuthenticationRequired
	}

	// Per RoundTripper contract the original request is not mutated.
	clone := req.Clone(ctx)
	clone.Header.Set("Authorization", "Bearer "+token)

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	resp, err := base.RoundTrip(clone)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized && t.OnUnauthorized != nil {
		if t.Log != nil {
			t.Log.Warn(ctx, "backend rejected stored credential", "path", req.URL.Path)
		}
		t.OnUnauthorized(ctx, req.URL.Path)
	}
	return resp, nil
}

// LoginRedirectURL builds the login entry URL carrying a returnTo parameter,
// so the user comes back to where they left off after re-authenticating.
func LoginRedirectURL(entry, returnTo string) string {
	if returnTo == "" {
		return entry
	}
	return entry + "?returnTo=" + url.QueryEscape(returnTo)
}
