package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/clinicbook/clinic/internal/platform/apperr"
	"github.com/clinicbook/clinic/internal/platform/auth"
)

var errBadCredentials = apperr.Unauthorized("invalid email or password")

type Service struct {
	users      UserRepository
	tokens     *auth.TokenIssuer
	bcryptCost int
}

func NewService(users UserRepository, tokens *auth.TokenIssuer, bcryptCost int) *Service {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Service{users: users, tokens: tokens, bcryptCost: bcryptCost}
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error) {
	role, err := req.validate()
	if err != nil {
		return nil, err
	}
	u, err := s.createUser(ctx, req.Email, req.Password, req.FirstName, req.LastName, req.PhoneNumber, role)
	if err != nil {
		return nil, err
	}
	return &RegisterResponse{Message: "User registered successfully", UserResponse: newUserResponse(u)}, nil
}

// CreateAdmin provisions an administrator. It is not reachable over HTTP.
func (s *Service) CreateAdmin(ctx context.Context, email, password, name string) (*User, error) {
	email = normalizeEmail(email)
	if email == "" || len(password) < minPasswordLength {
		return nil, apperr.Validation("email and a password of at least %d characters are required", minPasswordLength)
	}
	first, last, _ := strings.Cut(strings.TrimSpace(name), " ")
	if first == "" {
		first = "Admin"
	}
	return s.createUser(ctx, email, password, first, strings.TrimSpace(last), "", auth.RoleAdmin)
}

func (s *Service) createUser(ctx context.Context, email, password, first, last, phone string, role auth.Role) (*User, error) {
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, apperr.Conflict("email is already registered")
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err, "password cannot be used")
	}
	u := &User{
		Email:        email,
		PasswordHash: string(hash),
		FirstName:    first,
		LastName:     last,
		PhoneNumber:  phone,
		Role:         role,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	zerolog.Ctx(ctx).Info().Str("user_id", u.ID.String()).Str("role", string(role)).Msg("user registered")
	return u, nil
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return nil, apperr.Validation("email and password are required")
	}
	u, err := s.users.GetByEmail(ctx, req.Email)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, errBadCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
		zerolog.Ctx(ctx).Info().Str("user_id", u.ID.String()).Msg("login rejected")
		return nil, errBadCredentials
	}

	token, expires, err := s.tokens.Issue(auth.Subject{
		UserID:   u.ID,
		Email:    u.Email,
		FullName: u.FullName(),
		Role:     u.Role,
	})
	if err != nil {
		return nil, err
	}
	return &LoginResponse{Token: token, ExpiresAt: expires, UserResponse: newUserResponse(u)}, nil
}

func (s *Service) Me(ctx context.Context, actor auth.Actor) (*UserResponse, error) {
	u, err := s.users.GetByID(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	resp := newUserResponse(u)
	return &resp, nil
}

// IsPatient reports whether id names a Patient account.
func (s *Service) IsPatient(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.users.IsPatient(ctx, id)
}
