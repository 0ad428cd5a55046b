package claims

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, sub string, iat, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   sub,
		IssuedAt:  jwt.NewNumericDate(iat),
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func fixedCodec(now time.Time) *Codec {
	return NewCodec().WithNow(func() time.Time { return now })
}

func TestDecode_RoundTrip(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	iat := now.Add(-time.Minute)
	exp := now.Add(time.Hour)

	cl, err := NewCodec().Decode(signedToken(t, "user-1", iat, exp))
	require.NoError(t, err)
	require.Equal(t, "user-1", cl.Subject)
	require.WithinDuration(t, iat, cl.IssuedAt, time.Second)
	require.WithinDuration(t, exp, cl.ExpiresAt, time.Second)
}

func TestDecode_TwoSegmentToken(t *testing.T) {
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"u1","exp":4102444800}`))
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))

	cl, err := NewCodec().Decode(header + "." + payload)
	require.NoError(t, err)
	require.Equal(t, "u1", cl.Subject)
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{"no segments", "justonepart"},
		{"empty", ""},
		{"payload not base64url", "eyJhbGciOiJub25lIn0.!!!not-base64!!!.sig"},
		{"payload not json", "eyJhbGciOiJub25lIn0." + base64.RawURLEncoding.EncodeToString([]byte("plain text")) + ".sig"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCodec().Decode(tt.token)
			require.ErrorIs(t, err, common.ErrDecode)
		})
	}
}

func TestExpired_SafetyMargin(t *testing.T) {
	now := time.Now()
	codec := fixedCodec(now)

	within := &Claims{Subject: "u1", ExpiresAt: now.Add(200 * time.Second)}
	require.True(t, codec.Expired(within), "token inside the 300s margin must count as expired")

	beyond := &Claims{Subject: "u1", ExpiresAt: now.Add(400 * time.Second)}
	require.False(t, codec.Expired(beyond))
}

func TestExpired_AbsentClaims(t *testing.T) {
	codec := fixedCodec(time.Now())
	require.True(t, codec.Expired(nil))
	require.True(t, codec.Expired(&Claims{Subject: "u1"}), "claims without exp count as expired")
}

func TestNotYetValid(t *testing.T) {
	now := time.Now()
	codec := fixedCodec(now)

	require.True(t, codec.NotYetValid(&Claims{IssuedAt: now.Add(60 * time.Second)}))
	require.False(t, codec.NotYetValid(&Claims{IssuedAt: now.Add(-time.Minute)}))
	require.False(t, codec.NotYetValid(nil))
}
