package identity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// MemoryStore is a dev/test fallback when DB is not configured.
type MemoryStore struct {
	mu      sync.Mutex
	byEmail map[string]*memUser
	byID    map[string]*memUser

	dummyHash string
}

type memUser struct {
	user         User
	passwordHash string
}

// NewMemoryStore constructs an in-memory Store implementation.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		byEmail: make(map[string]*memUser),
		byID:    make(map[string]*memUser),
	}
	if hash, err := HashPassword("dummy-password-for-timing-only", DefaultArgon2idParams()); err == nil {
		s.dummyHash = hash
	}
	return s
}

// CreateUser inserts a new user with token_generation zero.
func (s *MemoryStore) CreateUser(_ context.Context, in CreateUserInput) (User, error) {
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

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[email]; ok {
		return User{}, fmt.Errorf("%w: email", ErrConflict)
	}

	u := User{
		ID:          ulid.Make().String(),
		Email:       email,
		DisplayName: in.DisplayName,
		CreatedAt:   now,
	}
	rec := &memUser{user: u, passwordHash: hash}
	s.byEmail[email] = rec
	s.byID[u.ID] = rec
	return u, nil
}

// GetUserByID loads a user by id.
func (s *MemoryStore) GetUserByID(_ context.Context, userID string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[userID]
	if !ok {
		return User{}, ErrNotFound
	}
	return rec.user, nil
}

// VerifyCredentials authenticates email+password with the same timing
// behavior as the Postgres store.
func (s *MemoryStore) VerifyCredentials(_ context.Context, email, password string) (User, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return User{}, ErrInvalidCredentials
	}

	s.mu.Lock()
	rec, ok := s.byEmail[email]
	s.mu.Unlock()

	if !ok {
		if s.dummyHash != "" {
			_, _ = VerifyPassword(password, s.dummyHash)
		}
		return User{}, ErrInvalidCredentials
	}

	okPw, err := VerifyPassword(password, rec.passwordHash)
	if err != nil || !okPw {
		return User{}, ErrInvalidCredentials
	}
	return rec.user, nil
}

// TokenGeneration reads the live generation counter for a user.
func (s *MemoryStore) TokenGeneration(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[userID]
	if !ok {
		return 0, ErrNotFound
	}
	return rec.user.TokenGeneration, nil
}

// BumpGeneration increments a user's counter (dev mode incident path).
func (s *MemoryStore) BumpGeneration(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[userID]
	if !ok {
		return 0, ErrNotFound
	}
	rec.user.TokenGeneration++
	return rec.user.TokenGeneration, nil
}
