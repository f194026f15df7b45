package identity

import (
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinicbook/clinic/internal/platform/apperr"
	"github.com/clinicbook/clinic/internal/platform/auth"
)

const minPasswordLength = 8

// User is an account that can sign in. Every user carries exactly one role.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	PhoneNumber  string    `json:"phoneNumber,omitempty"`
	Role         auth.Role `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

type RegisterRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	PhoneNumber     string `json:"phoneNumber"`
	Role            string `json:"role"`
}

// validate normalizes the request and resolves the requested role. Admin
// accounts cannot be self-registered.
func (r *RegisterRequest) validate() (auth.Role, error) {
	r.Email = normalizeEmail(r.Email)
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.PhoneNumber = strings.TrimSpace(r.PhoneNumber)

	if r.Email == "" || r.Password == "" {
		return "", apperr.Validation("email and password are required")
	}
	if _, err := mail.ParseAddress(r.Email); err != nil {
		return "", apperr.Validation("email is not a valid address")
	}
	if len(r.Password) < minPasswordLength {
		return "", apperr.Validation("password must be at least %d characters", minPasswordLength)
	}
	if r.Password != r.ConfirmPassword {
		return "", apperr.Validation("passwords do not match")
	}
	if r.FirstName == "" || r.LastName == "" {
		return "", apperr.Validation("firstName and lastName are required")
	}

	switch role := auth.Role(strings.TrimSpace(r.Role)); role {
	case "":
		return auth.RolePatient, nil
	case auth.RolePatient, auth.RoleDoctor:
		return role, nil
	default:
		return "", apperr.Validation("role must be Patient or Doctor")
	}
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserResponse is the public view of an account returned by register and me.
type UserResponse struct {
	UserID      uuid.UUID   `json:"userId"`
	Email       string      `json:"email"`
	FirstName   string      `json:"firstName"`
	LastName    string      `json:"lastName"`
	FullName    string      `json:"fullName"`
	PhoneNumber string      `json:"phoneNumber,omitempty"`
	Role        auth.Role   `json:"role"`
	Roles       []auth.Role `json:"roles"`
}

func newUserResponse(u *User) UserResponse {
	return UserResponse{
		UserID:      u.ID,
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		FullName:    u.FullName(),
		PhoneNumber: u.PhoneNumber,
		Role:        u.Role,
		Roles:       []auth.Role{u.Role},
	}
}

type RegisterResponse struct {
	Message string `json:"message"`
	UserResponse
}

type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	UserResponse
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
