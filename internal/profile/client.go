// Package profile implements the ProfileBackend collaborator: a thin REST
// client for the application backend's user-profile endpoint.
package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
	"github.com/dmitrijs2005/sessionkeeper/internal/session"
)

// DefaultTimeout bounds a single profile fetch.
const DefaultTimeout = 10 * time.Second

// Client fetches user profiles from the application backend.
type Client struct {
	baseURL string
	http    *http.Client
	log     logging.Logger
}

// NewClient builds a Client for the backend at baseURL (no trailing slash).
func NewClient(baseURL string, log logging.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: DefaultTimeout},
		log:     log.With("component", "profile"),
	}
}

// Me fetches the authenticated principal's profile via GET /me.
//
// Error taxonomy:
//   - empty token: common.ErrAuthenticationRequired (no request is made)
//   - 401/403: common.ErrUnauthorized — the backend rejected the credential
//   - transport failures, timeouts, other non-2xx: common.ErrBackendUnavailable
func (c *Client) Me(ctx context.Context, token string) (*session.UserProfile, error) {
	if token == "" {
		return nil, common.ErrAuthenticationRequired
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/me", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", common.ErrBackendUnavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %d", common.ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("%w: status %d", common.ErrBackendUnavailable, resp.StatusCode)
	}

	p := &session.UserProfile{}
	if err := json.NewDecoder(resp.Body).Decode(p); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", common.ErrBackendUnavailable, err)
	}
	return p, nil
}
