// Package credstore implements the three-tier credential cache: an in-process
// memory tier, a persistent sqlite tier, and a cross-process cookie-file tier.
//
// Read priority is memory > persistent > cookie; a hit in a lower tier is
// promoted into every tier above it. Writes propagate to all tiers. Any tier
// may fail independently; a failing tier is treated as absent and the rest
// proceed.
package credstore

import (
	"encoding/json"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/claims"
)

// Credential is a bearer token together with its decoded, unverified claims.
// Claims is never nil for a credential accepted by the store: a token whose
// claims cannot be decoded is treated as already expired and is not persisted.
type Credential struct {
	Token  string
	Claims *claims.Claims
}

// Record is the persisted representation kept by the sqlite tier: the token,
// a denormalized copy of its expiry, the optional profile payload, and the
// time of the last write.
type Record struct {
	Token       string
	ExpiresAt   time.Time
	Profile     json.RawMessage
	LastUpdated time.Time
}
