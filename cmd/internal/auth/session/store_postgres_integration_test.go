package session

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
)

// Integration tests run against a real database with migrations applied:
//
//	TIPCAST_DATABASE_URL=postgres://... go test ./...
func newIntegrationStore(t *testing.T) (*PostgresStore, *pgxpool.Pool, string) {
	t.Helper()

	dsn := os.Getenv("TIPCAST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TIPCAST_DATABASE_URL not set; skipping integration test")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pgxpool.New: %v", err)
	}
	t.Cleanup(pool.Close)

	userID := ulid.Make().String()
	_, err = pool.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, token_generation, created_at)
		VALUES ($1, $2, 'x', 0, now())
	`, userID, userID+"@integration.test")
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
	t.Cleanup(func() {
		_, _ = pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, userID)
		_, _ = pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
	})

	return NewPostgresStore(pool), pool, userID
}

func TestPostgresStoreRotationFlow(t *testing.T) {
	store, _, userID := newIntegrationStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	id, err := store.Insert(ctx, now, userID, DeviceContext{UserAgent: "curl/8.0"}, "it-hash-1", now.Add(time.Hour), 0)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	tx, rec, err := store.BeginRotation(ctx, "it-hash-1")
	if err != nil {
		t.Fatalf("BeginRotation: %v", err)
	}
	if rec.ID != id || rec.UserID != userID {
		t.Fatalf("locked record = %+v", rec)
	}

	gen, err := tx.UserGeneration(ctx, userID)
	if err != nil {
		t.Fatalf("UserGeneration: %v", err)
	}
	if gen != 0 {
		t.Fatalf("generation = %d, want 0", gen)
	}

	newID, err := tx.Insert(ctx, now, userID, DeviceContext{}, "it-hash-2", now.Add(time.Hour), gen)
	if err != nil {
		t.Fatalf("tx.Insert: %v", err)
	}
	if err := tx.MarkRotated(ctx, now, id, newID); err != nil {
		t.Fatalf("MarkRotated: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	old, err := store.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if old.RevokedAt == nil || old.RevocationReason == nil || *old.RevocationReason != ReasonRotation {
		t.Fatalf("old record not rotated: %+v", old)
	}
	if old.ReplacedByID == nil || *old.ReplacedByID != newID {
		t.Fatalf("replaced_by_id = %v", old.ReplacedByID)
	}

	list, err := store.ListActive(ctx, now, userID)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(list) != 1 || list[0].ID != newID {
		t.Fatalf("active = %+v", list)
	}
}

func TestPostgresStoreReuseCascadeAndGeneration(t *testing.T) {
	store, pool, userID := newIntegrationStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	if _, err := store.Insert(ctx, now, userID, DeviceContext{}, "it-reuse-1", now.Add(time.Hour), 0); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	otherID, err := store.Insert(ctx, now, userID, DeviceContext{}, "it-reuse-2", now.Add(time.Hour), 0)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	tx, _, err := store.BeginRotation(ctx, "it-reuse-1")
	if err != nil {
		t.Fatalf("BeginRotation: %v", err)
	}
	if err := tx.RevokeAllForUser(ctx, now, userID, ReasonTokenReuse); err != nil {
		t.Fatalf("RevokeAllForUser: %v", err)
	}
	gen, err := tx.BumpUserGeneration(ctx, userID)
	if err != nil {
		t.Fatalf("BumpUserGeneration: %v", err)
	}
	if gen != 1 {
		t.Fatalf("generation = %d, want 1", gen)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	other, err := store.GetByID(ctx, otherID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if other.RevokedAt == nil || *other.RevocationReason != ReasonTokenReuse {
		t.Fatalf("sibling not revoked by cascade: %+v", other)
	}

	var dbGen int64
	if err := pool.QueryRow(ctx, `SELECT token_generation FROM users WHERE id = $1`, userID).Scan(&dbGen); err != nil {
		t.Fatalf("select generation: %v", err)
	}
	if dbGen != 1 {
		t.Fatalf("persisted generation = %d, want 1", dbGen)
	}
}

func TestPostgresStoreDuplicateHash(t *testing.T) {
	store, _, userID := newIntegrationStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := store.Insert(ctx, now, userID, DeviceContext{}, "it-dup", now.Add(time.Hour), 0); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := store.Insert(ctx, now, userID, DeviceContext{}, "it-dup", now.Add(time.Hour), 0); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("err = %v, want ErrDuplicateID", err)
	}
}
