package profile

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
	"github.com/stretchr/testify/require"
)

func testLogger() logging.Logger {
	return logging.NewText(io.Discard, slog.LevelDebug)
}

func TestMe_Success(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/me", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"u1","email":"a@b.com","target_language":"FR"}`))
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, testLogger())
	p, err := c.Me(context.Background(), "tok-123")
	require.NoError(t, err)
	require.Equal(t, "Bearer tok-123", gotAuth)
	require.Equal(t, "u1", p.ID)
	require.Equal(t, "FR", p.TargetLanguage)
	require.False(t, p.Degraded)
}

func TestMe_EmptyToken(t *testing.T) {
	c := NewClient("http://127.0.0.1:0", testLogger())
	_, err := c.Me(context.Background(), "")
	require.ErrorIs(t, err, common.ErrAuthenticationRequired)
}

func TestMe_RejectedCredential(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		c := NewClient(srv.URL, testLogger())
		_, err := c.Me(context.Background(), "tok")
		require.ErrorIs(t, err, common.ErrUnauthorized, "status %d", status)
		require.NotErrorIs(t, err, common.ErrBackendUnavailable)
		srv.Close()
	}
}

func TestMe_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, testLogger())
	_, err := c.Me(context.Background(), "tok")
	require.ErrorIs(t, err, common.ErrBackendUnavailable)
	require.NotErrorIs(t, err, common.ErrUnauthorized)
}

func TestMe_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	c := NewClient(srv.URL, testLogger())
	_, err := c.Me(context.Background(), "tok")
	require.ErrorIs(t, err, common.ErrBackendUnavailable)
}

func TestMe_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, testLogger())
	_, err := c.Me(context.Background(), "tok")
	require.ErrorIs(t, err, common.ErrBackendUnavailable)
}
