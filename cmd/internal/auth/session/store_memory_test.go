package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStoreRotationRollbackLeavesNoTrace(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	id, err := store.Insert(ctx, now, "user-1", DeviceContext{}, "hash-1", now.Add(time.Hour), 0)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	tx, rec, err := store.BeginRotation(ctx, "hash-1")
	if err != nil {
		t.Fatalf("BeginRotation: %v", err)
	}
	if rec.ID != id {
		t.Fatalf("locked record id = %s, want %s", rec.ID, id)
	}

	newID, err := tx.Insert(ctx, now, "user-1", DeviceContext{}, "hash-2", now.Add(time.Hour), 0)
	if err != nil {
		t.Fatalf("tx.Insert: %v", err)
	}
	if err := tx.MarkRotated(ctx, now, id, newID); err != nil {
		t.Fatalf("tx.MarkRotated: %v", err)
	}
	if _, err := tx.BumpUserGeneration(ctx, "user-1"); err != nil {
		t.Fatalf("tx.BumpUserGeneration: %v", err)
	}

	if err := tx.Rollback(ctx); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	if _, err := store.GetByHash(ctx, "hash-2"); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("buffered insert visible after rollback: %v", err)
	}
	old, err := store.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if old.RevokedAt != nil {
		t.Fatal("record revoked despite rollback")
	}
	if gen, _ := store.TokenGeneration(ctx, "user-1"); gen != 0 {
		t.Fatalf("generation = %d after rollback, want 0", gen)
	}
}

func TestMemoryStoreRotationCommitAppliesAtomically(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	id, err := store.Insert(ctx, now, "user-1", DeviceContext{}, "hash-1", now.Add(time.Hour), 0)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	tx, _, err := store.BeginRotation(ctx, "hash-1")
	if err != nil {
		t.Fatalf("BeginRotation: %v", err)
	}
	newID, err := tx.Insert(ctx, now, "user-1", DeviceContext{}, "hash-2", now.Add(time.Hour), 0)
	if err != nil {
		t.Fatalf("tx.Insert: %v", err)
	}
	if err := tx.MarkRotated(ctx, now, id, newID); err != nil {
		t.Fatalf("tx.MarkRotated: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	// Double commit/rollback after done must be safe no-ops.
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("second Commit: %v", err)
	}
	if err := tx.Rollback(ctx); err != nil {
		t.Fatalf("Rollback after Commit: %v", err)
	}

	old, err := store.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if old.RevokedAt == nil || old.ReplacedByID == nil || *old.ReplacedByID != newID {
		t.Fatalf("old record not rotated: %+v", old)
	}
	if _, err := store.GetByHash(ctx, "hash-2"); err != nil {
		t.Fatalf("replacement not visible after commit: %v", err)
	}
}

func TestMemoryStoreBeginRotationUnknownHash(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, _, err := store.BeginRotation(ctx, "nope")
	if !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("err = %v, want ErrTokenNotFound", err)
	}

	// The store lock must have been released on the error path.
	if _, err := store.Insert(ctx, time.Now().UTC(), "user-1", DeviceContext{}, "h", time.Now().Add(time.Hour), 0); err != nil {
		t.Fatalf("store locked after failed BeginRotation: %v", err)
	}
}

func TestMemoryStoreInsertRejectsHashCollision(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := store.Insert(ctx, now, "user-1", DeviceContext{}, "same", now.Add(time.Hour), 0); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := store.Insert(ctx, now, "user-2", DeviceContext{}, "same", now.Add(time.Hour), 0); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("err = %v, want ErrDuplicateID", err)
	}
}

func TestMemoryStoreListActiveOrdering(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	oldID, err := store.Insert(ctx, now, "user-1", DeviceContext{}, "h1", now.Add(time.Hour), 0)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	newID, err := store.Insert(ctx, now.Add(time.Minute), "user-1", DeviceContext{}, "h2", now.Add(time.Hour), 0)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	list, err := store.ListActive(ctx, now.Add(2*time.Minute), "user-1")
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(list) != 2 || list[0].ID != newID || list[1].ID != oldID {
		t.Fatalf("order = %+v", list)
	}

	// Touching the older one moves it to the front.
	if err := store.Touch(ctx, now.Add(3*time.Minute), oldID); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	list, err = store.ListActive(ctx, now.Add(4*time.Minute), "user-1")
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if list[0].ID != oldID {
		t.Fatalf("touched record not first: %+v", list)
	}
}
