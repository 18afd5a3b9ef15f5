package identity

import (
	"context"
	"testing"
)

func TestMemoryStoreCreateAndVerify(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()

	u, err := s.CreateUser(ctx, CreateUserInput{Email: "Dana@Example.com ", Password: "correct horse battery"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.Email != "dana@example.com" {
		t.Fatalf("email not normalized: %q", u.Email)
	}
	if u.TokenGeneration != 0 {
		t.Fatalf("new user generation = %d, want 0", u.TokenGeneration)
	}

	got, err := s.VerifyCredentials(ctx, "DANA@example.com", "correct horse battery")
	if err != nil {
		t.Fatalf("VerifyCredentials: %v", err)
	}
	if got.ID != u.ID {
		t.Fatalf("verified wrong user: %q != %q", got.ID, u.ID)
	}

	if _, err := s.VerifyCredentials(ctx, "dana@example.com", "wrong"); !IsInvalidCredentials(err) {
		t.Fatalf("wrong password err = %v, want ErrInvalidCredentials", err)
	}
	if _, err := s.VerifyCredentials(ctx, "nobody@example.com", "whatever"); !IsInvalidCredentials(err) {
		t.Fatalf("unknown account err = %v, want ErrInvalidCredentials", err)
	}
}

func TestMemoryStoreDuplicateEmail(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.CreateUser(ctx, CreateUserInput{Email: "dup@example.com", Password: "long enough password"}); err != nil {
		t.Fatalf("first CreateUser: %v", err)
	}
	if _, err := s.CreateUser(ctx, CreateUserInput{Email: "DUP@example.com", Password: "another long password"}); !IsConflict(err) {
		t.Fatalf("duplicate err = %v, want ErrConflict", err)
	}
}

func TestMemoryStoreGenerationBump(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()

	u, err := s.CreateUser(ctx, CreateUserInput{Email: "gen@example.com", Password: "long enough password"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	if gen, err := s.BumpGeneration(ctx, u.ID); err != nil || gen != 1 {
		t.Fatalf("BumpGeneration = (%d, %v), want (1, nil)", gen, err)
	}
	if gen, err := s.TokenGeneration(ctx, u.ID); err != nil || gen != 1 {
		t.Fatalf("TokenGeneration = (%d, %v), want (1, nil)", gen, err)
	}
	if _, err := s.TokenGeneration(ctx, "missing"); !IsNotFound(err) {
		t.Fatalf("unknown user err = %v, want ErrNotFound", err)
	}
}
