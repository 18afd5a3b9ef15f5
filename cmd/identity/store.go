package identity

import (
	"context"
	"time"
)

// User is tipcast's canonical security principal.
type User struct {
	ID          string
	Email       string
	DisplayName *string

	// TokenGeneration is a monotonically increasing counter. Every credential
	// is minted carrying the generation current at issuance; bumping the
	// counter invalidates all previously issued credentials for the user.
	TokenGeneration int64

	CreatedAt time.Time
}

// CreateUserInput describes a user registration request.
type CreateUserInput struct {
	Email       string
	Password    string
	DisplayName *string
	Now         time.Time
}

// Provider verifies primary credentials for login.
//
// VerifyCredentials returns ErrInvalidCredentials for unknown accounts and
// wrong passwords alike so callers cannot distinguish the two.
type Provider interface {
	VerifyCredentials(ctx context.Context, email, password string) (User, error)
}

// Store is the identity persistence boundary.
type Store interface {
	Provider

	CreateUser(ctx context.Context, in CreateUserInput) (User, error)
	GetUserByID(ctx context.Context, userID string) (User, error)

	// TokenGeneration reads the live generation counter for a user.
	TokenGeneration(ctx context.Context, userID string) (int64, error)
}
