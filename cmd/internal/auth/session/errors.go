package session

import "errors"

var (
	// ErrInvalidToken is returned when a credential fails signature or format checks.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenNotFound is returned when a refresh secret does not match any record.
	// Callers must surface it identically to ErrInvalidToken to avoid oracles.
	ErrTokenNotFound = errors.New("token not found")

	// ErrTokenExpired is returned when a credential or record is past its window.
	ErrTokenExpired = errors.New("token expired")

	// ErrGenerationMismatch is returned when a credential's generation does not
	// match the user's live counter (sessions were globally invalidated).
	ErrGenerationMismatch = errors.New("token generation mismatch")

	// ErrReuseDetected is returned when an already-revoked refresh secret is
	// presented again. All of the user's sessions are revoked before this is
	// returned; re-authentication is required.
	ErrReuseDetected = errors.New("refresh token reuse detected")

	// ErrNotFound is returned by session-management operations on records that
	// do not exist, are already revoked, or belong to another user.
	ErrNotFound = errors.New("session not found")

	// ErrDuplicateID is returned on an identifier collision during insert.
	// Cryptographically negligible; treated as fatal if it occurs.
	ErrDuplicateID = errors.New("duplicate token identifier")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)
