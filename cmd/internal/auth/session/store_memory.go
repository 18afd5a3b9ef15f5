package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// MemoryStore is a dev/test fallback when DB is not configured.
//
// It honors the same locking contract as the Postgres store: BeginRotation
// holds the store lock until the returned tx commits or rolls back, so a
// concurrent rotation of the same secret observes post-commit state only.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record // id -> record
	byHash  map[string]string  // token hash -> id
	gens    map[string]int64   // user id -> generation counter
}

// NewMemoryStore constructs an in-memory Store implementation.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
		byHash:  make(map[string]string),
		gens:    make(map[string]int64),
	}
}

// TokenGeneration implements GenerationSource.
func (s *MemoryStore) TokenGeneration(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gens[userID], nil
}

// SetGeneration seeds a user's counter (tests only).
func (s *MemoryStore) SetGeneration(userID string, gen int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gens[userID] = gen
}

func (s *MemoryStore) insertLocked(now time.Time, userID string, dev DeviceContext, tokenHash string, expiresAt time.Time, generation int64) (string, error) {
	if _, ok := s.byHash[tokenHash]; ok {
		return "", ErrDuplicateID
	}

	id := ulid.Make().String()
	if _, ok := s.records[id]; ok {
		return "", ErrDuplicateID
	}

	lastUsed := now
	rec := &Record{
		ID:         id,
		UserID:     userID,
		TokenHash:  tokenHash,
		Generation: generation,
		CreatedAt:  now,
		LastUsedAt: &lastUsed,
		ExpiresAt:  expiresAt,
		UserAgent:  dev.UserAgent,
		IP:         dev.IP,
	}
	s.records[id] = rec
	s.byHash[tokenHash] = id
	return id, nil
}

func (s *MemoryStore) revokeLocked(now time.Time, rec *Record, reason RevocationReason) {
	if rec.RevokedAt != nil {
		return
	}
	t := now
	r := reason
	rec.RevokedAt = &t
	rec.RevocationReason = &r
}

// Insert creates a new record.
func (s *MemoryStore) Insert(_ context.Context, now time.Time, userID string, dev DeviceContext, tokenHash string, expiresAt time.Time, generation int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(now, userID, dev, tokenHash, expiresAt, generation)
}

// GetByID loads a record by id.
func (s *MemoryStore) GetByID(_ context.Context, recordID string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[recordID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return *rec, nil
}

// GetByHash loads a record by token hash.
func (s *MemoryStore) GetByHash(_ context.Context, tokenHash string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byHash[tokenHash]
	if !ok {
		return Record{}, ErrTokenNotFound
	}
	return *s.records[id], nil
}

// ListActive returns active records, most-recently-used first.
func (s *MemoryStore) ListActive(_ context.Context, now time.Time, userID string) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Record
	for _, rec := range s.records {
		if rec.UserID == userID && rec.Active(now) {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return lastUse(out[i]).After(lastUse(out[j]))
	})
	return out, nil
}

func lastUse(r Record) time.Time {
	if r.LastUsedAt != nil {
		return *r.LastUsedAt
	}
	return r.CreatedAt
}

// Revoke revokes a single record (idempotent; unknown ids are a no-op).
func (s *MemoryStore) Revoke(_ context.Context, now time.Time, recordID string, reason RevocationReason) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[recordID]; ok {
		s.revokeLocked(now, rec, reason)
	}
	return nil
}

// RevokeAllForUser revokes every non-revoked record for the user.
func (s *MemoryStore) RevokeAllForUser(_ context.Context, now time.Time, userID string, reason RevocationReason) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.records {
		if rec.UserID == userID {
			s.revokeLocked(now, rec, reason)
		}
	}
	return nil
}

// Touch updates last_used_at for a record.
func (s *MemoryStore) Touch(_ context.Context, now time.Time, recordID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[recordID]; ok {
		t := now
		rec.LastUsedAt = &t
	}
	return nil
}

// DeleteExpiredRevoked removes revoked records whose expiry is older than cutoff.
func (s *MemoryStore) DeleteExpiredRevoked(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, rec := range s.records {
		if rec.RevokedAt != nil && rec.ExpiresAt.Before(cutoff) {
			delete(s.byHash, rec.TokenHash)
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}

// BeginRotation takes the store lock and stages a rotation transaction.
//
// The lock is a conservative superset of the Postgres per-row lock: it
// serializes all rotations, which is sufficient for dev and makes the
// concurrency tests deterministic.
func (s *MemoryStore) BeginRotation(_ context.Context, tokenHash string) (RotationTx, Record, error) {
	s.mu.Lock()

	id, ok := s.byHash[tokenHash]
	if !ok {
		s.mu.Unlock()
		return nil, Record{}, ErrTokenNotFound
	}

	return &memRotationTx{store: s}, *s.records[id], nil
}

// memRotationTx buffers mutations until Commit so a rolled-back rotation
// leaves no trace, mirroring the transactional Postgres path.
type memRotationTx struct {
	store *MemoryStore
	done  bool

	inserts []Record
	rotated []memRotated
	revokes []memRevokeAll
	bumps   map[string]int64
}

type memRotated struct {
	oldID string
	newID string
	now   time.Time
}

type memRevokeAll struct {
	userID string
	reason RevocationReason
	now    time.Time
}

func (t *memRotationTx) Insert(_ context.Context, now time.Time, userID string, dev DeviceContext, tokenHash string, expiresAt time.Time, generation int64) (string, error) {
	if _, ok := t.store.byHash[tokenHash]; ok {
		return "", ErrDuplicateID
	}

	lastUsed := now
	rec := Record{
		ID:         ulid.Make().String(),
		UserID:     userID,
		TokenHash:  tokenHash,
		Generation: generation,
		CreatedAt:  now,
		LastUsedAt: &lastUsed,
		ExpiresAt:  expiresAt,
		UserAgent:  dev.UserAgent,
		IP:         dev.IP,
	}
	t.inserts = append(t.inserts, rec)
	return rec.ID, nil
}

func (t *memRotationTx) MarkRotated(_ context.Context, now time.Time, oldID, newID string) error {
	t.rotated = append(t.rotated, memRotated{oldID: oldID, newID: newID, now: now})
	return nil
}

func (t *memRotationTx) RevokeAllForUser(_ context.Context, now time.Time, userID string, reason RevocationReason) error {
	t.revokes = append(t.revokes, memRevokeAll{userID: userID, reason: reason, now: now})
	return nil
}

func (t *memRotationTx) UserGeneration(_ context.Context, userID string) (int64, error) {
	return t.store.gens[userID] + t.bumps[userID], nil
}

func (t *memRotationTx) BumpUserGeneration(_ context.Context, userID string) (int64, error) {
	if t.bumps == nil {
		t.bumps = make(map[string]int64)
	}
	t.bumps[userID]++
	return t.store.gens[userID] + t.bumps[userID], nil
}

func (t *memRotationTx) Commit(_ context.Context) error {
	if t.done {
		return nil
	}
	t.done = true

	s := t.store
	for i := range t.inserts {
		rec := t.inserts[i]
		cp := rec
		s.records[cp.ID] = &cp
		s.byHash[cp.TokenHash] = cp.ID
	}
	for _, m := range t.rotated {
		if rec, ok := s.records[m.oldID]; ok && rec.RevokedAt == nil {
			now := m.now
			reason := ReasonRotation
			newID := m.newID
			rec.LastUsedAt = &now
			rec.RevokedAt = &now
			rec.RevocationReason = &reason
			rec.ReplacedByID = &newID
		}
	}
	for _, rv := range t.revokes {
		for _, rec := range s.records {
			if rec.UserID == rv.userID {
				s.revokeLocked(rv.now, rec, rv.reason)
			}
		}
	}
	for userID, n := range t.bumps {
		s.gens[userID] += n
	}

	s.mu.Unlock()
	return nil
}

func (t *memRotationTx) Rollback(_ context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.store.mu.Unlock()
	return nil
}
