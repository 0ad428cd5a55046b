package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/claims"
	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/credstore"
	"github.com/dmitrijs2005/sessionkeeper/internal/httpx"
	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
	"github.com/dmitrijs2005/sessionkeeper/internal/provider"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// ProfileFetcher is the backend collaborator that enriches a session with the
// full user profile.
type ProfileFetcher interface {
	Me(ctx context.Context, token string) (*UserProfile, error)
}

// DefaultTimeout bounds the backend profile fetch and the provider's silent
// token call, so a hung call degrades to the fetch-failed branch instead of
// pinning the session in a loading state.
const DefaultTimeout = 10 * time.Second

// Options configures an Orchestrator.
type Options struct {
	Store    *credstore.Store
	Provider provider.IdentityProvider
	Backend  ProfileFetcher
	Codec    *claims.Codec
	Logger   logging.Logger

	// Audience requested on silent token renewal.
	Audience string

	// LoginEntryPath is where HandleUnauthorized sends the user, with a
	// returnTo parameter appended. Defaults to "/login".
	LoginEntryPath string

	// FetchTimeout / RenewTimeout default to DefaultTimeout.
	FetchTimeout time.Duration
	RenewTimeout time.Duration
}

// Orchestrator owns the Session and is the sole writer of the credential
// store (the single-writer rule). All state transitions are serialized by an
// internal mutex; concurrent token fetches collapse into one provider
// round-trip via a single-flight group.
type Orchestrator struct {
	store    *credstore.Store
	provider provider.IdentityProvider
	backend  ProfileFetcher
	codec    *claims.Codec
	log      logging.Logger

	audience       string
	loginEntryPath string
	fetchTimeout   time.Duration
	renewTimeout   time.Duration

	mu      sync.Mutex
	session Session
	// epoch is bumped on every local revocation (logout, backend rejection).
	// Async operations that write the store after a suspension point capture
	// it first and discard their result when it moved: a renewal or profile
	// fetch that raced a logout must not resurrect the cleared credential.
	epoch  uint64
	flight singleflight.Group
}

// New builds the orchestrator and evaluates the startup fast path: when the
// store already holds a valid credential the session starts Authenticated
// immediately, skipping a visible loading state.
func New(ctx context.Context, opts Options) *Orchestrator {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultTimeout
	}
	if opts.RenewTimeout <= 0 {
		opts.RenewTimeout = DefaultTimeout
	}
	if opts.LoginEntryPath == "" {
		opts.LoginEntryPath = "/login"
	}

	o := &Orchestrator{
		store:          opts.Store,
		provider:       opts.Provider,
		backend:        opts.Backend,
		codec:          opts.Codec,
		log:            opts.Logger.With("component", "session"),
		audience:       opts.Audience,
		loginEntryPath: opts.LoginEntryPath,
		fetchTimeout:   opts.FetchTimeout,
		renewTimeout:   opts.RenewTimeout,
		session:        Session{Status: StatusUnauthenticated},
	}

	if cred := o.store.Read(ctx); cred != nil {
		o.session = Session{
			Status:     StatusAuthenticated,
			Credential: cred,
			Profile:    o.cachedOrDegradedProfile(ctx, cred),
		}
		o.log.Info(ctx, "restored cached session", "subject", cred.Claims.Subject)
	}
	return o
}

// Session returns a snapshot of the current state. The credential and
// profile are copied, so mutating the returned value never reaches the
// orchestrator's own state.
func (o *Orchestrator) Session() Session {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := o.session
	if s.Credential != nil {
		c := *s.Credential
		if c.Claims != nil {
			cl := *c.Claims
			c.Claims = &cl
		}
		s.Credential = &c
	}
	if s.Profile != nil {
		p := *s.Profile
		s.Profile = &p
	}
	return s
}

// Login starts the identity provider's redirect flow. The transition to
// Authenticating is typically terminal for the current flow; completion
// arrives later through HandleProviderState. A synchronous provider failure
// moves the session to StatusError with a user-facing message; the flow is
// never retried automatically — re-invoking Login is the explicit retry.
func (o *Orchestrator) Login(ctx context.Context, returnTo string) error {
	op := uuid.NewString()
	o.setSession(Session{Status: StatusAuthenticating})
	o.log.Info(ctx, "login started", "op", op, "return_to", returnTo)

	if err := o.provider.Login(ctx, returnTo); err != nil {
		o.setSession(Session{Status: StatusError, Message: "Login failed. Please try again."})
		o.log.Error(ctx, "login failed", "op", op, "error", err)
		return err
	}
	return nil
}

// Logout revokes the local session first — the store is cleared before the
// provider logout is even requested, so a failed or cancelled redirect still
// leaves this client logged out — and then asks the provider to end its
// session.
func (o *Orchestrator) Logout(ctx context.Context, returnTo string) error {
	o.revokeLocal(ctx)
	o.log.Info(ctx, "local session revoked")

	if err := o.provider.Logout(ctx, returnTo); err != nil {
		// Local revocation already happened; only the provider redirect is
		// reported as failed.
		o.setSession(Session{Status: StatusError, Message: "Logout did not complete. Please try again."})
		o.log.Error(ctx, "provider logout failed", "error", err)
		return err
	}
	return nil
}

// HandleProviderState reconciles the session with the provider's current
// snapshot. Call it after a login callback and whenever the provider's state
// changes.
//
// Provider authenticated with an email claim: the session becomes
// Authenticated immediately with a degraded profile synthesized from the
// principal claims, persisted right away; call RefreshProfile afterwards for
// the in-place upgrade. Provider unauthenticated: a still-valid cached
// credential keeps the session alive (availability over freshness), otherwise
// the session is Unauthenticated. Provider still loading: no transition.
func (o *Orchestrator) HandleProviderState(ctx context.Context) error {
	st := o.provider.State(ctx)
	if st.IsLoading {
		return nil
	}

	if st.IsAuthenticated && st.Claims != nil && st.Claims.Email != "" {
		return o.establishSession(ctx, st.Claims)
	}

	if cred := o.store.Read(ctx); cred != nil {
		o.setSession(Session{
			Status:     StatusAuthenticated,
			Credential: cred,
			Profile:    o.cachedOrDegradedProfile(ctx, cred),
		})
		o.log.Info(ctx, "provider unauthenticated, falling back to cached credential",
			"subject", cred.Claims.Subject)
		return nil
	}

	o.setSession(Session{Status: StatusUnauthenticated})
	return nil
}

func (o *Orchestrator) establishSession(ctx context.Context, pc *provider.PrincipalClaims) error {
	degraded := DegradedProfile(pc)

	o.mu.Lock()
	started := o.epoch
	o.mu.Unlock()

	token, err := o.silentToken(ctx)
	if err != nil || token == "" {
		if cred := o.store.Read(ctx); cred != nil {
			o.setSession(Session{Status: StatusAuthenticated, Credential: cred, Profile: degraded})
			return nil
		}
		o.setSession(Session{Status: StatusError, Message: "Could not obtain an access token. Please try again."})
		o.log.Error(ctx, "no token available while provider reports authenticated", "error", err)
		if err == nil {
			err = common.ErrProvider
		}
		return err
	}

	cred := o.credentialFromToken(ctx, token)

	payload, merr := json.Marshal(degraded)
	if merr != nil {
		payload = nil
	}

	o.mu.Lock()
	if o.epoch != started {
		o.mu.Unlock()
		o.log.Info(ctx, "session revoked during login completion, discarding token")
		return nil
	}
	o.store.Write(ctx, cred, payload)
	o.session = Session{Status: StatusAuthenticated, Credential: cred, Profile: degraded}
	o.mu.Unlock()

	o.log.Info(ctx, "session established", "subject", pc.Subject, "degraded_profile", true)
	return nil
}

// RefreshProfile fetches the full backend profile and swaps it into the
// session in place: Status stays Authenticated throughout, only Profile
// changes. A fetch failure keeps the degraded profile — the user holds a
// valid credential and is not logged out because a secondary enrichment call
// failed. A 401/403, however, means the backend rejected the credential
// itself, which revokes the local session.
func (o *Orchestrator) RefreshProfile(ctx context.Context) error {
	o.mu.Lock()
	if o.session.Status != StatusAuthenticated || o.session.Credential == nil {
		o.mu.Unlock()
		return nil
	}
	cred := o.session.Credential
	current := o.session.Profile
	started := o.epoch
	o.mu.Unlock()

	fctx, cancel := context.WithTimeout(ctx, o.fetchTimeout)
	defer cancel()

	fetched, err := o.backend.Me(fctx, cred.Token)
	if err != nil {
		if errors.Is(err, common.ErrUnauthorized) {
			o.log.Warn(ctx, "backend rejected credential during profile fetch")
			o.HandleUnauthorized(ctx, "")
			return err
		}
		// Enrichment failure is absorbed: retried only on the next natural
		// re-evaluation, never via an internal retry loop.
		o.log.Warn(ctx, "profile fetch failed, keeping degraded profile", "error", err)
		return nil
	}

	if current != nil && current.ID != "" && fetched.ID != current.ID {
		o.log.Warn(ctx, "fetched profile belongs to a different principal, ignoring",
			"cached", current.ID, "fetched", fetched.ID)
		return nil
	}
	fetched.Degraded = false

	o.mu.Lock()
	if o.epoch != started || o.session.Status != StatusAuthenticated ||
		o.session.Credential == nil || o.session.Credential.Token != cred.Token {
		o.mu.Unlock()
		o.log.Info(ctx, "session changed during profile fetch, discarding result")
		return nil
	}
	o.session.Profile = fetched
	if payload, merr := json.Marshal(fetched); merr == nil {
		o.store.Write(ctx, cred, payload)
	}
	o.mu.Unlock()

	o.log.Info(ctx, "profile upgraded", "subject", fetched.ID)
	return nil
}

// GetToken returns a usable bearer token, or "" when none is available.
//
// A stored non-expired token wins. Otherwise, when the provider reports an
// authenticated principal, one silent renewal is issued and its result is
// written through the store. Concurrent callers share a single provider
// round-trip. Silent-renewal failure degrades to "no token available".
func (o *Orchestrator) GetToken(ctx context.Context) (string, error) {
	if cred := o.store.Read(ctx); cred != nil {
		return cred.Token, nil
	}

	if st := o.provider.State(ctx); !st.IsAuthenticated {
		return "", nil
	}

	token, err := o.silentToken(ctx)
	if err != nil {
		o.log.Warn(ctx, "silent token renewal failed", "error", err)
		return "", nil
	}
	return token, nil
}

// silentToken performs the deduplicated silent-renewal round-trip and writes
// the result through the store.
func (o *Orchestrator) silentToken(ctx context.Context) (string, error) {
	v, err, _ := o.flight.Do("silent-renew", func() (any, error) {
		o.mu.Lock()
		started := o.epoch
		o.mu.Unlock()

		token, err := o.provider.AccessTokenSilently(ctx, o.audience, o.renewTimeout)
		if err != nil {
			return "", err
		}

		o.mu.Lock()
		defer o.mu.Unlock()
		if o.epoch != started {
			o.log.Info(ctx, "session revoked during silent renewal, discarding token")
			return "", common.ErrSilentRenewUnavailable
		}
		o.store.Write(ctx, o.credentialFromToken(ctx, token), nil)
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Token implements httpx.TokenSource.
func (o *Orchestrator) Token(ctx context.Context) (string, error) {
	return o.GetToken(ctx)
}

// HandleUnauthorized revokes the local session after the backend answered
// 401 for a stored token, and returns the login entry URL carrying
// returnTo=currentPath.
func (o *Orchestrator) HandleUnauthorized(ctx context.Context, currentPath string) string {
	o.revokeLocal(ctx)
	o.log.Info(ctx, "session revoked after backend rejection", "return_to", currentPath)
	return httpx.LoginRedirectURL(o.loginEntryPath, currentPath)
}

// revokeLocal clears the store and drops the session atomically with respect
// to the epoch-guarded writers, so an async result produced before the
// revocation cannot be persisted after it.
func (o *Orchestrator) revokeLocal(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.store.Clear(ctx)
	o.epoch++
	o.session = Session{Status: StatusUnauthenticated}
}

// OnRouteChange opportunistically re-fetches a token when the session looks
// authenticated but the memory tier has gone empty (a restart, or another
// process rotated the credential).
func (o *Orchestrator) OnRouteChange(ctx context.Context) {
	o.mu.Lock()
	status := o.session.Status
	o.mu.Unlock()
	if status != StatusAuthenticated {
		return
	}

	token, _ := o.GetToken(ctx)
	if token == "" {
		o.log.Warn(ctx, "no token available on route change")
		return
	}

	o.mu.Lock()
	if o.session.Status == StatusAuthenticated && o.session.Credential != nil &&
		o.session.Credential.Token != token {
		if cl, err := o.codec.Decode(token); err == nil {
			o.session.Credential = &credstore.Credential{Token: token, Claims: cl}
		}
	}
	o.mu.Unlock()
}

func (o *Orchestrator) setSession(s Session) {
	o.mu.Lock()
	o.session = s
	o.mu.Unlock()
}

// credentialFromToken decodes the token's claims; on decode failure the
// credential carries nil claims, which the store refuses to persist and the
// codec treats as already expired.
func (o *Orchestrator) credentialFromToken(ctx context.Context, token string) *credstore.Credential {
	cl, err := o.codec.Decode(token)
	if err != nil {
		o.log.Warn(ctx, "token claims failed to decode", "error", err)
		return &credstore.Credential{Token: token}
	}
	if o.codec.NotYetValid(cl) {
		o.log.Warn(ctx, "token not yet valid, clock skew suspected", "issued_at", cl.IssuedAt)
	}
	return &credstore.Credential{Token: token, Claims: cl}
}

// cachedOrDegradedProfile prefers the profile persisted next to the
// credential; absent that it synthesizes a degraded one from the token's own
// subject claim.
func (o *Orchestrator) cachedOrDegradedProfile(ctx context.Context, cred *credstore.Credential) *UserProfile {
	if payload := o.store.ReadProfile(ctx); payload != nil {
		p := &UserProfile{}
		if err := json.Unmarshal(payload, p); err == nil {
			return p
		}
		o.log.Warn(ctx, "stored profile payload is malformed, synthesizing degraded profile")
	}
	return &UserProfile{ID: cred.Claims.Subject, Degraded: true}
}
