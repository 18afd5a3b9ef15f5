package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
)

// PostgresStore implements Store using PostgreSQL (users table).
type PostgresStore struct {
	pool *pgxpool.Pool

	// dummyHash keeps VerifyCredentials timing comparable when the account
	// does not exist.
	dummyHash string
}

// NewPostgresStore creates a Postgres-backed identity store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("identity: nil db pool")
	}

	s := &PostgresStore{pool: pool}
	if hash, err := HashPassword("dummy-password-for-timing-only", DefaultArgon2idParams()); err == nil {
		s.dummyHash = hash
	}
	return s, nil
}

// CreateUser inserts a new user with token_generation zero.
func (s *PostgresStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	email := NormalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return User{}, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}

	hash, err := HashPassword(in.Password, DefaultArgon2idParams())
	if err != nil {
		return User{}, err
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id := ulid.Make().String()

	_, err = s.pool.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, display_name, token_generation, created_at)
		VALUES ($1, $2, $3, $4, 0, $5)
	`, id, email, hash, in.DisplayName, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return User{}, fmt.Errorf("%w: email", ErrConflict)
		}
		return User{}, err
	}

	return User{ID: id, Email: email, DisplayName: in.DisplayName, CreatedAt: now}, nil
}

// GetUserByID loads a user by id.
func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var u User
	err := s.pool.QueryRow(ctx, `
		SELECT id, email, display_name, token_generation, created_at
		FROM users
		WHERE id = $1
	`, userID).Scan(&u.ID, &u.Email, &u.DisplayName, &u.TokenGeneration, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

// VerifyCredentials authenticates email+password.
//
// Unknown accounts and wrong passwords return the same ErrInvalidCredentials.
// A dummy Argon2id verification runs when the account is missing so response
// timing does not reveal account existence.
func (s *PostgresStore) VerifyCredentials(ctx context.Context, email, password string) (User, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return User{}, ErrInvalidCredentials
	}

	var u User
	var passwordHash string
	err := s.pool.QueryRow(ctx, `
		SELECT id, email, display_name, token_generation, created_at, password_hash
		FROM users
		WHERE email = $1
	`, email).Scan(&u.ID, &u.Email, &u.DisplayName, &u.TokenGeneration, &u.CreatedAt, &passwordHash)
	if errors.Is(err, pgx.ErrNoRows) {
		if s.dummyHash != "" {
			_, _ = VerifyPassword(password, s.dummyHash)
		}
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}

	ok, err := VerifyPassword(password, passwordHash)
	if err != nil || !ok {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}

// TokenGeneration reads the live generation counter for a user.
func (s *PostgresStore) TokenGeneration(ctx context.Context, userID string) (int64, error) {
	var gen int64
	err := s.pool.QueryRow(ctx, `
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
