package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// Config holds the OIDC client registration.
type Config struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Audience     string
	Scopes       []string
}

// OpenURLFunc hands the authorization URL to the surrounding application,
// which is responsible for getting the user's browser there.
type OpenURLFunc func(url string) error

// OIDCProvider implements IdentityProvider on top of a standard OIDC
// authorization-code flow. The ID token received on callback is signature-
// verified here — that verification belongs to the provider boundary, unlike
// the advisory-only claims decoding in the credential cache.
type OIDCProvider struct {
	cfg      Config
	oauthCfg oauth2.Config
	verifier *oidc.IDTokenVerifier
	openURL  OpenURLFunc
	log      logging.Logger

	mu           sync.Mutex
	pendingState string
	pendingNonce string
	loading      bool
	token        *oauth2.Token
	claims       *PrincipalClaims
}

// NewOIDC discovers the issuer's endpoints and returns a provider ready to
// start login flows.
func NewOIDC(ctx context.Context, cfg Config, openURL OpenURLFunc, log logging.Logger) (*OIDCProvider, error) {
	oidcProvider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("%w: issuer discovery: %v", common.ErrProvider, err)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email", "offline_access"}
	}

	return &OIDCProvider{
		cfg: cfg,
		oauthCfg: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     oidcProvider.Endpoint(),
			Scopes:       scopes,
		},
		verifier: oidcProvider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		openURL:  openURL,
		log:      log.With("component", "provider"),
	}, nil
}

// Login builds the authorization URL and hands it to the URL opener. The flow
// completes asynchronously via HandleCallback; once the redirect has begun it
// cannot be cancelled locally.
func (p *OIDCProvider) Login(ctx context.Context, redirectTarget string) error {
	p.mu.Lock()
	p.pendingState = uuid.NewString()
	p.pendingNonce = uuid.NewString()
	p.loading = true
	state, nonce := p.pendingState, p.pendingNonce
	p.mu.Unlock()

	opts := []oauth2.AuthCodeOption{
		oidc.Nonce(nonce),
		oauth2.AccessTypeOffline,
	}
	if p.cfg.Audience != "" {
		opts = append(opts, oauth2.SetAuthURLParam("audience", p.cfg.Audience))
	}
	if redirectTarget != "" {
		opts = append(opts, oauth2.SetAuthURLParam("returnTo", redirectTarget))
	}

	authURL := p.oauthCfg.AuthCodeURL(state, opts...)
	p.log.Info(ctx, "starting login redirect", "state", state)

	if err := p.openURL(authURL); err != nil {
		p.mu.Lock()
		p.loading = false
		p.pendingState, p.pendingNonce = "", ""
		p.mu.Unlock()
		return fmt.Errorf("%w: open authorization url: %v", common.ErrProvider, err)
	}
	return nil
}

// HandleCallback finishes the redirect flow: it checks the state parameter,
// exchanges the code, and signature-verifies the returned ID token (including
// the nonce) before trusting its principal claims.
func (p *OIDCProvider) HandleCallback(ctx context.Context, state, code string) error {
	p.mu.Lock()
	expectedState, expectedNonce := p.pendingState, p.pendingNonce
	p.mu.Unlock()

	if expectedState == "" || state != expectedState {
		return fmt.Errorf("%w: state mismatch", common.ErrProvider)
	}

	tok, err := p.oauthCfg.Exchange(ctx, code)
	if err != nil {
		p.finishFlow(nil, nil)
		return fmt.Errorf("%w: code exchange: %v", common.ErrProvider, err)
	}

	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok {
		p.finishFlow(nil, nil)
		return fmt.Errorf("%w: no id_token in response", common.ErrProvider)
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		p.finishFlow(nil, nil)
		return fmt.Errorf("%w: id token verification: %v", common.ErrProvider, err)
	}
	if idToken.Nonce != expectedNonce {
		p.finishFlow(nil, nil)
		return fmt.Errorf("%w: nonce mismatch", common.ErrProvider)
	}

	var idClaims struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := idToken.Claims(&idClaims); err != nil {
		p.finishFlow(nil, nil)
		return fmt.Errorf("%w: id token claims: %v", common.ErrProvider, err)
	}

	p.finishFlow(tok, &PrincipalClaims{
		Subject: idToken.Subject,
		Email:   idClaims.Email,
		Name:    idClaims.Name,
	})
	p.log.Info(ctx, "login callback accepted", "subject", idToken.Subject)
	return nil
}

func (p *OIDCProvider) finishFlow(tok *oauth2.Token, claims *PrincipalClaims) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pendingState, p.pendingNonce = "", ""
	p.loading = false
	p.token = tok
	p.claims = claims
}

// Logout drops the provider-side session. The caller clears the local
// credential cache before invoking this.
func (p *OIDCProvider) Logout(ctx context.Context, redirectTarget string) error {
	p.mu.Lock()
	p.token = nil
	p.claims = nil
	p.mu.Unlock()
	p.log.Info(ctx, "provider session dropped", "return_to", redirectTarget)
	return nil
}

// AccessTokenSilently returns the current access token, refreshing it through
// the token endpoint when possible. Without a provider session, or without a
// refresh token once the access token has expired, it reports
// common.ErrSilentRenewUnavailable rather than pretending a refresh happened.
func (p *OIDCProvider) AccessTokenSilently(ctx context.Context, audience string, timeout time.Duration) (string, error) {
	p.mu.Lock()
	tok := p.token
	p.mu.Unlock()

	if tok == nil {
		return "", common.ErrSilentRenewUnavailable
	}
	if !tok.Valid() && tok.RefreshToken == "" {
		return "", fmt.Errorf("%w: access token expired and no refresh token granted", common.ErrSilentRenewUnavailable)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fresh, err := p.oauthCfg.TokenSource(ctx, tok).Token()
	if err != nil {
		return "", fmt.Errorf("%w: token refresh: %v", common.ErrProvider, err)
	}

	p.mu.Lock()
	p.token = fresh
	p.mu.Unlock()
	return fresh.AccessToken, nil
}

// State reports the provider snapshot without blocking.
func (p *OIDCProvider) State(ctx context.Context) State {
	p.mu.Lock()
	defer p.mu.Unlock()

	var claims *PrincipalClaims
	if p.claims != nil {
		c := *p.claims
		claims = &c
	}
	return State{
		IsAuthenticated: p.claims != nil,
		IsLoading:       p.loading,
		Claims:          claims,
	}
}
