package credstore

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/claims"
	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

// ---- helpers ----

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "credstore.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE credential (
  id           INTEGER PRIMARY KEY CHECK (id = 1),
  token        TEXT NOT NULL,
  expires_at   TIMESTAMP NOT NULL,
  profile      BLOB,
  last_updated TIMESTAMP NOT NULL
);
`)
	require.NoError(t, err)
	return db
}

// testToken builds an unsigned three-segment token with the given claims.
func testToken(t *testing.T, sub string, iat, exp time.Time) string {
	t.Helper()
	payload, err := json.Marshal(map[string]any{"sub": sub, "iat": iat.Unix(), "exp": exp.Unix()})
	require.NoError(t, err)
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	return header + "." + base64.RawURLEncoding.EncodeToString(payload) + "."
}

func testCredential(t *testing.T, codec *claims.Codec, sub string, ttl time.Duration) *Credential {
	t.Helper()
	token := testToken(t, sub, time.Now().Add(-time.Minute), time.Now().Add(ttl))
	cl, err := codec.Decode(token)
	require.NoError(t, err)
	return &Credential{Token: token, Claims: cl}
}

type storeFixture struct {
	store  *Store
	memory *MemoryTier
	sqlite *SQLiteTier
	cookie *CookieTier
	codec  *claims.Codec
	logBuf *bytes.Buffer
}

func setupStore(t *testing.T) *storeFixture {
	t.Helper()
	codec := claims.NewCodec()
	memory := NewMemoryTier()
	sqlite := NewSQLiteTier(setupDB(t), codec)
	cookie := NewCookieTier(filepath.Join(t.TempDir(), "cookie"), time.Hour, codec)

	buf := &bytes.Buffer{}
	log := logging.NewText(buf, slog.LevelDebug)

	return &storeFixture{
		store:  NewStore(codec, memory, sqlite, cookie, log),
		memory: memory,
		sqlite: sqlite,
		cookie: cookie,
		codec:  codec,
		logBuf: buf,
	}
}

// ---- tier tests ----

func TestMemoryTier_RoundTrip(t *testing.T) {
	ctx := context.Background()
	tier := NewMemoryTier()
	codec := claims.NewCodec()

	got, err := tier.Read(ctx)
	require.NoError(t, err)
	require.Nil(t, got)

	cred := testCredential(t, codec, "u1", time.Hour)
	require.NoError(t, tier.Write(ctx, cred))

	got, err = tier.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, cred.Token, got.Token)

	require.NoError(t, tier.Clear(ctx))
	got, err = tier.Read(ctx)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestCookieTier_RoundTrip(t *testing.T) {
	ctx := context.Background()
	codec := claims.NewCodec()
	tier := NewCookieTier(filepath.Join(t.TempDir(), "cookie"), time.Hour, codec)

	got, err := tier.Read(ctx)
	require.NoError(t, err)
	require.Nil(t, got)

	cred := testCredential(t, codec, "u1", time.Hour)
	require.NoError(t, tier.Write(ctx, cred))

	got, err = tier.Read(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, cred.Token, got.Token)
	require.Equal(t, "u1", got.Claims.Subject)

	require.NoError(t, tier.Clear(ctx))
	got, err = tier.Read(ctx)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestCookieTier_MaxAgeExpiry(t *testing.T) {
	ctx := context.Background()
	codec := claims.NewCodec()
	tier := NewCookieTier(filepath.Join(t.TempDir(), "cookie"), time.Hour, codec)

	cred := testCredential(t, codec, "u1", 48*time.Hour)
	require.NoError(t, tier.Write(ctx, cred))

	// The file is older than Max-Age even though the token itself is valid.
	tier.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	got, err := tier.Read(ctx)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestCookieTier_UndecodableTokenIsAnError(t *testing.T) {
	ctx := context.Background()
	codec := claims.NewCodec()
	path := filepath.Join(t.TempDir(), "cookie")
	tier := NewCookieTier(path, time.Hour, codec)

	require.NoError(t, tier.Write(ctx, &Credential{Token: "garbage-token"}))

	_, err := tier.Read(ctx)
	require.Error(t, err)
}

func TestSQLiteTier_WritePreservesProfile(t *testing.T) {
	ctx := context.Background()
	codec := claims.NewCodec()
	tier := NewSQLiteTier(setupDB(t), codec)

	cred := testCredential(t, codec, "u1", time.Hour)
	require.NoError(t, tier.WriteWithProfile(ctx, cred, []byte(`{"id":"u1"}`)))

	// A plain credential refresh must not drop the attached profile.
	refreshed := testCredential(t, codec, "u1", 2*time.Hour)
	require.NoError(t, tier.Write(ctx, refreshed))

	profile, err := tier.ReadProfile(ctx)
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"u1"}`, string(profile))

	got, err := tier.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, refreshed.Token, got.Token)
}

func TestSQLiteTier_NoExpiryClaimGetsDefaultHorizon(t *testing.T) {
	ctx := context.Background()
	codec := claims.NewCodec()
	tier := NewSQLiteTier(setupDB(t), codec)

	// Decodable claims without an exp leave ExpiresAt zero; the record's
	// denormalized column gets the default horizon, not a dead zero time.
	cred := &Credential{Token: "opaque-token", Claims: &claims.Claims{Subject: "u1"}}
	require.NoError(t, tier.Write(ctx, cred))

	rec, err := tier.ReadRecord(ctx)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(DefaultExpiryHorizon), rec.ExpiresAt, time.Minute)
}

func TestSQLiteTier_Record(t *testing.T) {
	ctx := context.Background()
	codec := claims.NewCodec()
	tier := NewSQLiteTier(setupDB(t), codec)

	rec, err := tier.ReadRecord(ctx)
	require.NoError(t, err)
	require.Nil(t, rec)

	cred := testCredential(t, codec, "u1", time.Hour)
	require.NoError(t, tier.Write(ctx, cred))

	rec, err = tier.ReadRecord(ctx)
	require.NoError(t, err)
	require.Equal(t, cred.Token, rec.Token)
	require.WithinDuration(t, cred.Claims.ExpiresAt, rec.ExpiresAt, time.Second)
	require.WithinDuration(t, time.Now(), rec.LastUpdated, 5*time.Second)
}

// ---- store tests ----

func TestStore_ReadPrefersMemory(t *testing.T) {
	ctx := context.Background()
	f := setupStore(t)

	memCred := testCredential(t, f.codec, "mem", time.Hour)
	sqlCred := testCredential(t, f.codec, "sql", time.Hour)
	require.NoError(t, f.memory.Write(ctx, memCred))
	require.NoError(t, f.sqlite.Write(ctx, sqlCred))

	got := f.store.Read(ctx)
	require.NotNil(t, got)
	require.Equal(t, "mem", got.Claims.Subject)
}

func TestStore_CookieFallbackPromotes(t *testing.T) {
	ctx := context.Background()
	f := setupStore(t)

	cred := testCredential(t, f.codec, "u1", time.Hour)
	require.NoError(t, f.cookie.Write(ctx, cred))

	got := f.store.Read(ctx)
	require.NotNil(t, got)
	require.Equal(t, cred.Token, got.Token)

	// Promotion: memory and persistent now hold the credential too.
	mem, err := f.memory.Read(ctx)
	require.NoError(t, err)
	require.NotNil(t, mem)
	require.Equal(t, cred.Token, mem.Token)

	persisted, err := f.sqlite.Read(ctx)
	require.NoError(t, err)
	require.NotNil(t, persisted)
	require.Equal(t, cred.Token, persisted.Token)
}

func TestStore_ExpiredEverywhereReturnsNil(t *testing.T) {
	ctx := context.Background()
	f := setupStore(t)

	// Within the 5-minute safety margin counts as expired.
	cred := testCredential(t, f.codec, "u1", 200*time.Second)
	require.NoError(t, f.memory.Write(ctx, cred))
	require.NoError(t, f.sqlite.Write(ctx, cred))
	require.NoError(t, f.cookie.Write(ctx, cred))

	require.Nil(t, f.store.Read(ctx))
}

func TestStore_WriteReachesAllTiers(t *testing.T) {
	ctx := context.Background()
	f := setupStore(t)

	cred := testCredential(t, f.codec, "u1", time.Hour)
	f.store.Write(ctx, cred, []byte(`{"id":"u1","email":"a@b.com"}`))

	for _, tier := range []Tier{f.memory, f.sqlite, f.cookie} {
		got, err := tier.Read(ctx)
		require.NoError(t, err)
		require.NotNil(t, got, tier.Name())
		require.Equal(t, cred.Token, got.Token, tier.Name())
	}

	require.JSONEq(t, `{"id":"u1","email":"a@b.com"}`, string(f.store.ReadProfile(ctx)))
}

func TestStore_WriteRefusesUndecodableClaims(t *testing.T) {
	ctx := context.Background()
	f := setupStore(t)

	f.store.Write(ctx, &Credential{Token: "garbage"}, nil)

	for _, tier := range []Tier{f.memory, f.sqlite, f.cookie} {
		got, err := tier.Read(ctx)
		require.NoError(t, err)
		require.Nil(t, got, tier.Name())
	}
	require.Contains(t, f.logBuf.String(), "refusing to store credential")
}

func TestStore_ClearIdempotent(t *testing.T) {
	ctx := context.Background()
	f := setupStore(t)

	cred := testCredential(t, f.codec, "u1", time.Hour)
	f.store.Write(ctx, cred, nil)

	f.store.Clear(ctx)
	f.store.Clear(ctx)

	require.Nil(t, f.store.Read(ctx))
	for _, tier := range []Tier{f.memory, f.sqlite, f.cookie} {
		got, err := tier.Read(ctx)
		require.NoError(t, err)
		require.Nil(t, got, tier.Name())
	}
}

func TestStore_TierFailureDoesNotAbortWrite(t *testing.T) {
	ctx := context.Background()
	codec := claims.NewCodec()
	memory := NewMemoryTier()
	sqlite := NewSQLiteTier(setupDB(t), codec)
	// A cookie path inside a directory that does not exist makes every
	// cookie write fail.
	cookie := NewCookieTier(filepath.Join(t.TempDir(), "missing", "cookie"), time.Hour, codec)

	buf := &bytes.Buffer{}
	store := NewStore(codec, memory, sqlite, cookie, logging.NewText(buf, slog.LevelDebug))

	cred := testCredential(t, codec, "u1", time.Hour)
	store.Write(ctx, cred, nil)

	got, err := memory.Read(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)

	persisted, err := sqlite.Read(ctx)
	require.NoError(t, err)
	require.NotNil(t, persisted)

	require.Contains(t, buf.String(), "tier write failed")
}

func TestStore_ClockSkewTokenReturnedWithWarning(t *testing.T) {
	ctx := context.Background()
	f := setupStore(t)

	// Issued 60s in the future: stored and returned, but diagnosed.
	token := testToken(t, "u1", time.Now().Add(60*time.Second), time.Now().Add(time.Hour))
	cl, err := f.codec.Decode(token)
	require.NoError(t, err)
	f.store.Write(ctx, &Credential{Token: token, Claims: cl}, nil)

	got := f.store.Read(ctx)
	require.NotNil(t, got)
	require.Equal(t, token, got.Token)
	require.Contains(t, f.logBuf.String(), "clock skew")
}

func TestOpenDatabase_Migrates(t *testing.T) {
	ctx := context.Background()
	db, err := OpenDatabase(ctx, filepath.Join(t.TempDir(), "migrated.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	codec := claims.NewCodec()
	tier := NewSQLiteTier(db, codec)
	cred := testCredential(t, codec, "u1", time.Hour)
	require.NoError(t, tier.Write(ctx, cred))

	got, err := tier.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, cred.Token, got.Token)
}
