package credstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/claims"
	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/dbx"
)

// DefaultExpiryHorizon bounds the denormalized expires_at column when the
// decoded claims carry no expiry of their own.
const DefaultExpiryHorizon = 24 * time.Hour

// SQLiteTier persists the credential record across process restarts. It keeps
// a single row: {token, expires_at, profile, last_updated}. The profile
// payload is attached to this tier only; the cookie tier is not an
// appropriate channel for rich payloads.
type SQLiteTier struct {
	db    *sql.DB
	codec *claims.Codec
	now   func() time.Time
}

func NewSQLiteTier(db *sql.DB, codec *claims.Codec) *SQLiteTier {
	return &SQLiteTier{db: db, codec: codec, now: time.Now}
}

func (t *SQLiteTier) Name() string { return "persistent" }

func (t *SQLiteTier) Read(ctx context.Context) (*Credential, error) {
	var token string
	err := t.db.QueryRowContext(ctx, `SELECT token FROM credential WHERE id = 1`).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read credential record: %v", common.ErrStorage, err)
	}

	cl, err := t.codec.Decode(token)
	if err != nil {
		return nil, fmt.Errorf("persisted token: %w", err)
	}
	return &Credential{Token: token, Claims: cl}, nil
}

// Write upserts the credential. The profile column is left untouched so that
// a credential refresh (e.g. a promotion from the cookie tier) does not drop
// a previously attached profile.
func (t *SQLiteTier) Write(ctx context.Context, cred *Credential) error {
	return t.write(ctx, t.db, cred)
}

func (t *SQLiteTier) write(ctx context.Context, db dbx.DBTX, cred *Credential) error {
	expiresAt := cred.Claims.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = t.now().Add(DefaultExpiryHorizon)
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO credential (id, token, expires_at, last_updated) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			token = excluded.token,
			expires_at = excluded.expires_at,
			last_updated = excluded.last_updated
	`, cred.Token, expiresAt.UTC(), t.now().UTC())
	if err != nil {
		return fmt.Errorf("%w: write credential record: %v", common.ErrStorage, err)
	}
	return nil
}

// WriteWithProfile stores the credential and its profile payload in a single
// transaction, so a reader never observes the new token next to the old
// principal's profile.
func (t *SQLiteTier) WriteWithProfile(ctx context.Context, cred *Credential, profile []byte) error {
	return dbx.WithTx(ctx, t.db, func(ctx context.Context, tx dbx.DBTX) error {
		if err := t.write(ctx, tx, cred); err != nil {
			return err
		}
		return t.writeProfile(ctx, tx, profile)
	})
}

// WriteProfile replaces the profile payload attached to the stored record.
// It is a no-op when no record exists: a profile never creates a credential.
func (t *SQLiteTier) WriteProfile(ctx context.Context, profile []byte) error {
	return t.writeProfile(ctx, t.db, profile)
}

func (t *SQLiteTier) writeProfile(ctx context.Context, db dbx.DBTX, profile []byte) error {
	_, err := db.ExecContext(ctx, `
		UPDATE credential SET profile = ?, last_updated = ? WHERE id = 1
	`, profile, t.now().UTC())
	if err != nil {
		return fmt.Errorf("%w: write profile payload: %v", common.ErrStorage, err)
	}
	return nil
}

// ReadProfile returns the attached profile payload, or nil when absent.
func (t *SQLiteTier) ReadProfile(ctx context.Context) ([]byte, error) {
	var profile []byte
	err := t.db.QueryRowContext(ctx, `SELECT profile FROM credential WHERE id = 1`).Scan(&profile)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read profile payload: %v", common.ErrStorage, err)
	}
	return profile, nil
}

// ReadRecord returns the full persisted record, or nil when absent.
func (t *SQLiteTier) ReadRecord(ctx context.Context) (*Record, error) {
	rec := &Record{}
	err := t.db.QueryRowContext(ctx, `
		SELECT token, expires_at, profile, last_updated FROM credential WHERE id = 1
	`).Scan(&rec.Token, &rec.ExpiresAt, &rec.Profile, &rec.LastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read credential record: %v", common.ErrStorage, err)
	}
	return rec, nil
}

func (t *SQLiteTier) Clear(ctx context.Context) error {
	_, err := t.db.ExecContext(ctx, `DELETE FROM credential`)
	if err != nil {
		return fmt.Errorf("%w: clear credential record: %v", common.ErrStorage, err)
	}
	return nil
}
