package credstore

import (
	"context"

	"github.com/dmitrijs2005/sessionkeeper/internal/claims"
	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
)

// Store orchestrates the three tiers.
//
// Single-writer rule: only the session orchestrator may call Write and Clear.
// Every other consumer (e.g. the outbound HTTP transport) treats the store as
// read-only and must never write back a token it did not obtain through the
// orchestrator.
type Store struct {
	codec      *claims.Codec
	persistent *SQLiteTier
	tiers      []Tier // read-priority order
	log        logging.Logger
}

// NewStore wires the tiers in read-priority order memory > persistent >
// cookie.
func NewStore(codec *claims.Codec, memory *MemoryTier, persistent *SQLiteTier, cookie *CookieTier, log logging.Logger) *Store {
	return &Store{
		codec:      codec,
		persistent: persistent,
		tiers:      []Tier{memory, persistent, cookie},
		log:        log.With("component", "credstore"),
	}
}

// Read returns the freshest non-expired credential, or nil when every tier is
// absent or expired. A hit in a lower-priority tier is promoted into every
// tier above it, so the next read is served from memory. A tier that fails to
// read is treated as absent, never as a reason to abort.
func (s *Store) Read(ctx context.Context) *Credential {
	for i, tier := range s.tiers {
		cred, err := tier.Read(ctx)
		if err != nil {
			s.log.Warn(ctx, "tier read failed, treating as absent", "tier", tier.Name(), "error", err)
			continue
		}
		if cred == nil {
			continue
		}
		if s.codec.Expired(cred.Claims) {
			s.log.Debug(ctx, "tier holds expired credential", "tier", tier.Name())
			continue
		}
		if s.codec.NotYetValid(cred.Claims) {
			// Diagnostic only: a future iat means the local clock lags the
			// identity provider. The token is still returned and stored.
			s.log.Warn(ctx, "credential not yet valid, clock skew suspected",
				"tier", tier.Name(), "issued_at", cred.Claims.IssuedAt)
		}

		for j := 0; j < i; j++ {
			if err := s.tiers[j].Write(ctx, cred); err != nil {
				s.log.Warn(ctx, "tier promotion failed", "tier", s.tiers[j].Name(), "error", err)
			}
		}
		if i > 0 {
			s.log.Debug(ctx, "credential promoted", "from", tier.Name())
		}
		return cred
	}
	return nil
}

// Write propagates the credential to every tier. The profile payload, when
// supplied, is attached to the persistent tier only. A credential whose
// claims failed to decode is refused: it would be unreadable on every
// subsequent read, so storing it only spreads garbage.
func (s *Store) Write(ctx context.Context, cred *Credential, profile []byte) {
	if cred == nil || cred.Claims == nil {
		s.log.Warn(ctx, "refusing to store credential without decodable claims")
		return
	}

	for _, tier := range s.tiers {
		var err error
		if tier == Tier(s.persistent) && profile != nil {
			err = s.persistent.WriteWithProfile(ctx, cred, profile)
		} else {
			err = tier.Write(ctx, cred)
		}
		if err != nil {
			s.log.Warn(ctx, "tier write failed", "tier", tier.Name(), "error", err)
		}
	}
}

// Clear removes the credential from every tier. Idempotent: clearing empty
// tiers is fine, and one tier failing does not stop the others.
func (s *Store) Clear(ctx context.Context) {
	for _, tier := range s.tiers {
		if err := tier.Clear(ctx); err != nil {
			s.log.Warn(ctx, "tier clear failed", "tier", tier.Name(), "error", err)
		}
	}
}

// ReadProfile returns the profile payload attached to the persistent tier,
// or nil.
func (s *Store) ReadProfile(ctx context.Context) []byte {
	profile, err := s.persistent.ReadProfile(ctx)
	if err != nil {
		s.log.Warn(ctx, "profile read failed", "error", err)
		return nil
	}
	return profile
}
