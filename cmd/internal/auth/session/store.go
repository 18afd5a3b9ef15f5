package session

import (
	"context"
	"net"
	"time"
)

// RevocationReason is the persisted enum explaining why a record was revoked.
type RevocationReason string

const (
	// ReasonRotation marks the old record retired by a successful refresh.
	ReasonRotation RevocationReason = "rotation"
	// ReasonUserLogout marks an explicit single-session logout.
	ReasonUserLogout RevocationReason = "user_logout"
	// ReasonUserLogoutAll marks an explicit "log out everywhere".
	ReasonUserLogoutAll RevocationReason = "user_logout_all"
	// ReasonTokenReuse marks the incident-response cascade after reuse detection.
	ReasonTokenReuse RevocationReason = "token_reuse"
)

// DeviceContext describes the client that owns a session.
type DeviceContext struct {
	UserAgent string
	IP        net.IP
}

// Record mirrors a refresh_tokens row.
//
// The raw refresh secret is never persisted; TokenHash is its one-way digest.
// Revoked records are retained, not deleted: reuse detection depends on a
// revoked record still being findable by hash.
type Record struct {
	ID         string
	UserID     string
	TokenHash  string
	Generation int64

	CreatedAt  time.Time
	LastUsedAt *time.Time
	ExpiresAt  time.Time

	RevokedAt        *time.Time
	RevocationReason *RevocationReason
	ReplacedByID     *string

	UserAgent string
	IP        net.IP
}

// Active reports whether the record is usable at the given instant.
func (r Record) Active(now time.Time) bool {
	return r.RevokedAt == nil && r.ExpiresAt.After(now)
}

// Store abstracts persistence for refresh-token state.
//
// All mutation is atomic with respect to concurrent calls on the same hash;
// the check-then-rotate sequence runs under BeginRotation, which locks the
// matched record until the returned tx commits or rolls back.
type Store interface {
	// Insert creates a new record. Returns ErrDuplicateID on identifier or
	// hash collision.
	Insert(ctx context.Context, now time.Time, userID string, dev DeviceContext, tokenHash string, expiresAt time.Time, generation int64) (recordID string, err error)

	// GetByID loads a record by its opaque identifier.
	GetByID(ctx context.Context, recordID string) (Record, error)

	// GetByHash loads a record by refresh-secret hash without locking it.
	GetByHash(ctx context.Context, tokenHash string) (Record, error)

	// ListActive returns the user's non-revoked, non-expired records,
	// most-recently-used first.
	ListActive(ctx context.Context, now time.Time, userID string) ([]Record, error)

	// Revoke revokes a single record. Idempotent: revoking an already-revoked
	// record is a no-op that still succeeds.
	Revoke(ctx context.Context, now time.Time, recordID string, reason RevocationReason) error

	// RevokeAllForUser bulk-flags every non-revoked record for the user.
	RevokeAllForUser(ctx context.Context, now time.Time, userID string, reason RevocationReason) error

	// Touch updates last_used_at for a record.
	Touch(ctx context.Context, now time.Time, recordID string) error

	// DeleteExpiredRevoked removes records that are revoked and whose expiry
	// is older than cutoff. Used only by the retention sweep.
	DeleteExpiredRevoked(ctx context.Context, cutoff time.Time) (int64, error)

	// BeginRotation locks the record matching tokenHash for the duration of a
	// check-then-rotate sequence. Returns ErrTokenNotFound when no record
	// matches. The caller must Commit or Rollback the returned tx.
	BeginRotation(ctx context.Context, tokenHash string) (RotationTx, Record, error)
}

// RotationTx is the transactional boundary for refresh rotation and for the
// incident response. Everything performed through it becomes visible
// atomically on Commit.
type RotationTx interface {
	// Insert creates the replacement record inside the transaction.
	Insert(ctx context.Context, now time.Time, userID string, dev DeviceContext, tokenHash string, expiresAt time.Time, generation int64) (recordID string, err error)

	// MarkRotated revokes the old record with reason rotation and links it to
	// its replacement.
	MarkRotated(ctx context.Context, now time.Time, oldID, newID string) error

	// RevokeAllForUser bulk-revokes inside the transaction.
	RevokeAllForUser(ctx context.Context, now time.Time, userID string, reason RevocationReason) error

	// UserGeneration reads the user's live token-generation counter.
	UserGeneration(ctx context.Context, userID string) (int64, error)

	// BumpUserGeneration increments the counter and returns the new value.
	BumpUserGeneration(ctx context.Context, userID string) (int64, error)

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// GenerationSource reads the live token-generation counter outside of a
// rotation transaction (access-token validation path).
type GenerationSource interface {
	TokenGeneration(ctx context.Context, userID string) (int64, error)
}
