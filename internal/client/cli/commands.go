package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/dmitrijs2005/sessionkeeper/internal/common"
)

func (a *App) login(ctx context.Context) {
	if err := a.orch.Login(ctx, "/"); err != nil {
		a.printer("Login failed: %v", err)
	}
}

// callback completes a login: the user pastes the full redirect URL the
// identity provider sent the browser to.
func (a *App) callback(ctx context.Context, args []string) {
	if len(args) != 1 {
		a.printer("Usage: callback <url>")
		return
	}

	state, code, err := parseCallback(args[0])
	if err != nil {
		a.printer("Bad callback URL: %v", err)
		return
	}

	if err := a.idp.HandleCallback(ctx, state, code); err != nil {
		a.printer("Login failed: %v", err)
		return
	}
	if err := a.orch.HandleProviderState(ctx); err != nil {
		a.printer("Login failed: %v", err)
		return
	}
	// Enrichment is best-effort; a failure keeps the degraded profile.
	_ = a.orch.RefreshProfile(ctx)
	a.status()
}

func (a *App) status() {
	s := a.orch.Session()
	a.printer("Status: %s", s.Status)
	if s.Message != "" {
		a.printer("  %s", s.Message)
	}
	if s.Profile != nil {
		kind := "full"
		if s.Profile.Degraded {
			kind = "degraded"
		}
		a.printer("  Profile (%s): %s <%s>", kind, s.Profile.Name, s.Profile.Email)
	}
}

func (a *App) token(ctx context.Context) {
	token, err := a.orch.GetToken(ctx)
	if err != nil {
		a.printer("Token error: %v", err)
		return
	}
	if token == "" {
		a.printer("No token available.")
		return
	}
	a.printer("%s", token)
}

func (a *App) profile(ctx context.Context) {
	if err := a.orch.RefreshProfile(ctx); err != nil {
		a.printer("Profile refresh failed: %v", err)
		return
	}
	a.status()
}

// get issues an authenticated request against the backend, exercising the
// bearer transport (including its 401 handling).
func (a *App) get(ctx context.Context, args []string) {
	if len(args) != 1 {
		a.printer("Usage: get <path>")
		return
	}
	path := args[0]
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.config.BackendBaseURL+path, nil)
	if err != nil {
		a.printer("Request error: %v", err)
		return
	}

	resp, err := a.httpc.Do(req)
	if err != nil {
		if errors.Is(err, common.ErrAuthenticationRequired) {
			a.printer("Not logged in.")
			return
		}
		a.printer("Request failed: %v", err)
		return
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	a.printer("%s", resp.Status)
	if len(body) > 0 {
		a.printer("%s", string(body))
	}
}

func (a *App) logout(ctx context.Context) {
	if err := a.orch.Logout(ctx, "/"); err != nil {
		a.printer("Logout failed: %v", err)
		return
	}
	a.printer("Logged out.")
}

// parseCallback extracts the state and code parameters from a pasted
// redirect URL.
func parseCallback(raw string) (state, code string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", err
	}
	q := u.Query()

	if e := q.Get("error"); e != "" {
		return "", "", fmt.Errorf("authorization failed: %s - %s", e, q.Get("error_description"))
	}

	state, code = q.Get("state"), q.Get("code")
	if state == "" || code == "" {
		return "", "", errors.New("missing code or state parameter")
	}
	return state, code, nil
}
