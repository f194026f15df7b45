package auth

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Role is the single role a user account carries.
type Role string

const (
	RolePatient Role = "Patient"
	RoleDoctor  Role = "Doctor"
	RoleAdmin   Role = "Admin"
)

// ParseRole accepts exactly the three role names.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RolePatient, RoleDoctor, RoleAdmin:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID uuid.UUID
	Email  string
	Role   Role
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// IsPatient reports whether the actor is restricted to their own records.
func (a Actor) IsPatient() bool { return a.Role == RolePatient }

type contextKey string

const actorKey contextKey = "actor"

// WithActor stores the caller on ctx.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

// ActorFromContext returns the caller set by Authenticate, if any.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey).(Actor)
	return a, ok
}

func UserIDFromContext(ctx context.Context) uuid.UUID {
	a, _ := ActorFromContext(ctx)
	return a.UserID
}

func RoleFromContext(ctx context.Context) Role {
	a, _ := ActorFromContext(ctx)
	return a.Role
}
