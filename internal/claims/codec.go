// Package claims decodes the time-based claims embedded in a bearer token.
//
// Decoding is deliberately unverified: the signature is never checked, because
// the claims are advisory only (expiry decisions, display of the principal).
// The backend independently verifies every token it receives, so nothing here
// is trusted for authorization.
package claims

import (
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// DefaultSafetyMargin is subtracted from a token's remaining lifetime when
// deciding expiry, so renewal happens before network latency can turn a
// borderline-valid token into an expired one mid-request.
const DefaultSafetyMargin = 5 * time.Minute

// Claims holds the decoded, unverified claims of a token.
type Claims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Codec decodes tokens and evaluates their time-based claims.
type Codec struct {
	// SafetyMargin widens the expiry check; see DefaultSafetyMargin.
	SafetyMargin time.Duration

	now func() time.Time
}

// NewCodec returns a Codec with the default safety margin.
func NewCodec() *Codec {
	return &Codec{SafetyMargin: DefaultSafetyMargin, now: time.Now}
}

// WithNow replaces the codec's clock. Intended for tests.
func (c *Codec) WithNow(now func() time.Time) *Codec {
	c.now = now
	return c
}

// Decode parses the dot-separated token, base64url-decodes the payload
// segment, and extracts subject, issued-at, and expiry. Malformed input of
// any kind returns a wrapped common.ErrDecode; Decode never panics.
func (c *Codec) Decode(token string) (*Claims, error) {
	if strings.Count(token, ".") < 1 {
		return nil, fmt.Errorf("%w: token has fewer than two segments", common.ErrDecode)
	}
	// A two-segment token (payload without signature) is still decodable;
	// normalize it to the three-segment shape the parser expects.
	if strings.Count(token, ".") == 1 {
		token += "."
	}

	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	mc := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, mc); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDecode, err)
	}

	out := &Claims{}

	sub, err := mc.GetSubject()
	if err != nil {
		return nil, fmt.Errorf("%w: malformed sub claim", common.ErrDecode)
	}
	out.Subject = sub

	iat, err := mc.GetIssuedAt()
	if err != nil {
		return nil, fmt.Errorf("%w: malformed iat claim", common.ErrDecode)
	}
	if iat != nil {
		out.IssuedAt = iat.Time
	}

	exp, err := mc.GetExpirationTime()
	if err != nil {
		return nil, fmt.Errorf("%w: malformed exp claim", common.ErrDecode)
	}
	if exp != nil {
		out.ExpiresAt = exp.Time
	}

	return out, nil
}

// Expired reports whether cl is past (or within SafetyMargin of) its expiry.
// Absent claims, and claims without an exp value, count as expired.
func (c *Codec) Expired(cl *Claims) bool {
	if cl == nil {
		return true
	}
	return !cl.ExpiresAt.After(c.now().Add(c.SafetyMargin))
}

// NotYetValid reports whether cl claims to have been issued in the future,
// i.e. the local clock lags the identity provider's.
//
// This is a diagnostic only. Callers log the skew but still store and use the
// token; rejecting here would lock out users with a slightly-wrong clock.
func (c *Codec) NotYetValid(cl *Claims) bool {
	if cl == nil {
		return false
	}
	return cl.IssuedAt.After(c.now())
}
