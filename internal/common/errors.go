// Package common defines shared constants and sentinel errors used across
// the credential cache and session layers. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Claims-level errors (malformed token payload).
	ErrDecode = errors.New("cannot decode token claims")

	// Storage-tier errors. A failing tier is treated as absent by the
	// cache; the sentinel exists so tests and logs can tell a real tier
	// failure from simple absence.
	ErrStorage = errors.New("storage tier unavailable")

	// Consumer-facing errors.
	ErrAuthenticationRequired = errors.New("authentication required")

	// Backend errors. ErrUnauthorized covers 401/403 responses and is
	// surfaced distinctly from transport failures so the session layer
	// can revoke on rejection but keep the session on mere unreachability.
	ErrUnauthorized       = errors.New("backend rejected credential")
	ErrBackendUnavailable = errors.New("backend unavailable")

	// Identity-provider errors.
	ErrProvider               = errors.New("identity provider error")
	ErrSilentRenewUnavailable = errors.New("silent token renewal unavailable")
)
