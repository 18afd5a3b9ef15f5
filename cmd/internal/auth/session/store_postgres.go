package session

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
)

// PostgresStore implements Store using PostgreSQL (refresh_tokens).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed token store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const recordColumns = `
	id, user_id, token_hash, generation,
	created_at, last_used_at, expires_at,
	revoked_at, revocation_reason, replaced_by_id,
	user_agent, ip
`

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	var reason *string
	var ua *string

	err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.TokenHash,
		&rec.Generation,
		&rec.CreatedAt,
		&rec.LastUsedAt,
		&rec.ExpiresAt,
		&rec.RevokedAt,
		&reason,
		&rec.ReplacedByID,
		&ua,
		&rec.IP,
	)
	if err != nil {
		return Record{}, err
	}

	if reason != nil {
		r := RevocationReason(*reason)
		rec.RevocationReason = &r
	}
	if ua != nil {
		rec.UserAgent = *ua
	}
	return rec, nil
}

// Insert creates a new record and returns its ULID.
func (s *PostgresStore) Insert(ctx context.Context, now time.Time, userID string, dev DeviceContext, tokenHash string, expiresAt time.Time, generation int64) (string, error) {
	return insertRecord(ctx, s.pool, now, userID, dev, tokenHash, expiresAt, generation)
}

type execQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertRecord(ctx context.Context, q execQuerier, now time.Time, userID string, dev DeviceContext, tokenHash string, expiresAt time.Time, generation int64) (string, error) {
	id := ulid.Make().String()

	var ip net.IP
	if dev.IP != nil {
		ip = dev.IP
	}

	_, err := q.Exec(ctx, `
		INSERT INTO refresh_tokens (
			id, user_id, token_hash, generation,
			created_at, last_used_at, expires_at, revoked_at,
			revocation_reason, replaced_by_id, user_agent, ip
		) VALUES (
			$1, $2, $3, $4,
			$5, $5, $6, NULL,
			NULL, NULL, $7, $8
		)
	`, id, userID, tokenHash, generation, now, expiresAt, nullIfEmpty(dev.UserAgent), ip)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return "", ErrDuplicateID
		}
		return "", err
	}

	return id, nil
}

// GetByID loads a record by ID.
func (s *PostgresStore) GetByID(ctx context.Context, recordID string) (Record, error) {
	rec, err := scanRecord(s.pool.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM refresh_tokens
		WHERE id = $1
	`, recordID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// GetByHash loads a record by refresh-secret hash without locking it.
func (s *PostgresStore) GetByHash(ctx context.Context, tokenHash string) (Record, error) {
	rec, err := scanRecord(s.pool.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM refresh_tokens
		WHERE token_hash = $1
	`, tokenHash))
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrTokenNotFound
	}
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// ListActive returns the user's active records, most-recently-used first.
func (s *PostgresStore) ListActive(ctx context.Context, now time.Time, userID string) ([]Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+recordColumns+`
		FROM refresh_tokens
		WHERE user_id = $1
		  AND revoked_at IS NULL
		  AND expires_at > $2
		ORDER BY COALESCE(last_used_at, created_at) DESC
	`, userID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Revoke revokes a single record (idempotent).
func (s *PostgresStore) Revoke(ctx context.Context, now time.Time, recordID string, reason RevocationReason) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = COALESCE(revoked_at, $2),
		    revocation_reason = COALESCE(revocation_reason, $3)
		WHERE id = $1
	`, recordID, now, string(reason))
	return err
}

// RevokeAllForUser revokes all non-revoked records for a user (idempotent).
func (s *PostgresStore) RevokeAllForUser(ctx context.Context, now time.Time, userID string, reason RevocationReason) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = COALESCE(revoked_at, $2),
		    revocation_reason = COALESCE(revocation_reason, $3)
		WHERE user_id = $1
	`, userID, now, string(reason))
	return err
}

// Touch updates last_used_at for a record.
func (s *PostgresStore) Touch(ctx context.Context, now time.Time, recordID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE refresh_tokens
		SET last_used_at = $2
		WHERE id = $1
	`, recordID, now)
	return err
}

// DeleteExpiredRevoked removes revoked records whose expiry is older than cutoff.
func (s *PostgresStore) DeleteExpiredRevoked(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM refresh_tokens
		WHERE revoked_at IS NOT NULL
		  AND expires_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// BeginRotation opens a transaction and locks the record matching tokenHash.
func (s *PostgresStore) BeginRotation(ctx context.Context, tokenHash string) (RotationTx, Record, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, Record{}, err
	}

	rec, err := scanRecord(tx.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM refresh_tokens
		WHERE token_hash = $1
		FOR UPDATE
	`, tokenHash))
	if errors.Is(err, pgx.ErrNoRows) {
		_ = tx.Rollback(ctx)
		return nil, Record{}, ErrTokenNotFound
	}
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, Record{}, err
	}

	return &pgRotationTx{tx: tx}, rec, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
