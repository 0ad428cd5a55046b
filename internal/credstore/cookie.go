package credstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/claims"
	"github.com/dmitrijs2005/sessionkeeper/internal/common"
)

// CookieName is the fixed cookie name under which the token travels between
// concurrent client processes.
const CookieName = "sk_token"

// DefaultCookieMaxAge bounds how long a cookie-file token stays readable.
const DefaultCookieMaxAge = 24 * time.Hour

// CookieTier stores the token in Set-Cookie wire format in a file shared by
// every client process of the same user, so a login in one process becomes
// visible to the others on their next read.
//
// The token is stored verbatim (URL-encoded), without integrity protection,
// and the file has no HttpOnly analogue: any code running as the user can
// read it. That is a deliberate trust trade-off carried over from the
// original design; the token is never trusted for authorization locally, the
// backend verifies it on every request.
type CookieTier struct {
	path   string
	maxAge time.Duration
	codec  *claims.Codec
	now    func() time.Time
	mu     sync.Mutex
}

// NewCookieTier stores the cookie at path, bounded by maxAge (falls back to
// DefaultCookieMaxAge when maxAge <= 0).
func NewCookieTier(path string, maxAge time.Duration, codec *claims.Codec) *CookieTier {
	if maxAge <= 0 {
		maxAge = DefaultCookieMaxAge
	}
	return &CookieTier{path: path, maxAge: maxAge, codec: codec, now: time.Now}
}

func (t *CookieTier) Name() string { return "cookie" }

// Read parses the cookie file. A missing file, an expired Max-Age, or a
// malformed cookie line all count as absence; only an unreadable file or an
// undecodable token surfaces as an error.
func (t *CookieTier) Read(ctx context.Context) (*Credential, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	data, err := os.ReadFile(t.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read cookie file: %v", common.ErrStorage, err)
	}

	lines := strings.SplitN(strings.TrimSpace(string(data)), "\n", 2)
	if len(lines) != 2 {
		return nil, nil
	}

	cookie, err := http.ParseSetCookie(strings.TrimSpace(lines[0]))
	if err != nil || cookie.Name != CookieName {
		return nil, nil
	}
	writtenAt, err := time.Parse(time.RFC3339, strings.TrimSpace(lines[1]))
	if err != nil {
		return nil, nil
	}

	maxAge := time.Duration(cookie.MaxAge) * time.Second
	if maxAge <= 0 || t.now().After(writtenAt.Add(maxAge)) {
		return nil, nil
	}

	token, err := url.QueryUnescape(cookie.Value)
	if err != nil {
		return nil, fmt.Errorf("%w: unescape cookie value: %v", common.ErrDecode, err)
	}

	cl, err := t.codec.Decode(token)
	if err != nil {
		return nil, fmt.Errorf("cookie token: %w", err)
	}
	return &Credential{Token: token, Claims: cl}, nil
}

func (t *CookieTier) Write(ctx context.Context, cred *Credential) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	cookie := &http.Cookie{
		Name:     CookieName,
		Value:    url.QueryEscape(cred.Token),
		Path:     "/",
		MaxAge:   int(t.maxAge.Seconds()),
		SameSite: http.SameSiteLaxMode,
	}
	content := cookie.String() + "\n" + t.now().UTC().Format(time.RFC3339) + "\n"

	if err := os.WriteFile(t.path, []byte(content), 0o600); err != nil {
		return fmt.Errorf("%w: write cookie file: %v", common.ErrStorage, err)
	}
	return nil
}

func (t *CookieTier) Clear(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	err := os.Remove(t.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: remove cookie file: %v", common.ErrStorage, err)
	}
	return nil
}
