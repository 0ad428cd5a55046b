package credstore

import "context"

// Tier is one storage back-end of the credential cache.
//
// Contract:
//   - Read returns (nil, nil) when the tier holds no credential. An error
//     means the tier itself failed (quota, serialization, undecodable
//     payload); callers treat a failing tier as absent and continue.
//   - Write replaces the tier's value.
//   - Clear is idempotent: clearing an empty tier is not an error.
//
// Implementations are safe for concurrent use.
type Tier interface {
	Name() string
	Read(ctx context.Context) (*Credential, error)
	Write(ctx context.Context, cred *Credential) error
	Clear(ctx context.Context) error
}
