package session

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

// pgRotationTx wraps a pgx transaction holding the FOR UPDATE lock taken by
// BeginRotation. The lock is released on Commit/Rollback.
type pgRotationTx struct {
	tx pgx.Tx
}

func (t *pgRotationTx) Insert(ctx context.Context, now time.Time, userID string, dev DeviceContext, tokenHash string, expiresAt time.Time, generation int64) (string, error) {
	return insertRecord(ctx, t.tx, now, userID, dev, tokenHash, expiresAt, generation)
}

func (t *pgRotationTx) MarkRotated(ctx context.Context, now time.Time, oldID, newID string) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE refresh_tokens
		SET
			last_used_at = $2,
			revoked_at = $2,
			replaced_by_id = $3,
			revocation_reason = $4
		WHERE id = $1
	`, oldID, now, newID, string(ReasonRotation))
	return err
}

func (t *pgRotationTx) RevokeAllForUser(ctx context.Context, now time.Time, userID string, reason RevocationReason) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = COALESCE(revoked_at, $2),
		    revocation_reason = COALESCE(revocation_reason, $3)
		WHERE user_id = $1
	`, userID, now, string(reason))
	return err
}

func (t *pgRotationTx) UserGeneration(ctx context.Context, userID string) (int64, error) {
	var gen int64
	err := t.tx.QueryRow(ctx, `
		SELECT token_generation FROM users WHERE id = $1
	`, userID).Scan(&gen)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return gen, nil
}

func (t *pgRotationTx) BumpUserGeneration(ctx context.Context, userID string) (int64, error) {
	var gen int64
	err := t.tx.QueryRow(ctx, `
		UPDATE users
		SET token_generation = token_generation + 1
		WHERE id = $1
		RETURNING token_generation
	`, userID).Scan(&gen)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return gen, nil
}

func (t *pgRotationTx) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t *pgRotationTx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }
