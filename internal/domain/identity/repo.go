package identity

import (
	"context"

	"github.com/google/uuid"
)

type UserRepository interface {
	// Create fails with a Conflict when the email is taken.
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	IsPatient(ctx context.Context, id uuid.UUID) (bool, error)
}
