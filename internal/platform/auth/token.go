package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  Role   `json:"role"`
}

type JWTConfig struct {
	Issuer     string
	Audience   string
	SigningKey []byte
	TTL        time.Duration
}

// Subject is the account a token is issued for.
type Subject struct {
	UserID   uuid.UUID
	Email    string
	FullName string
	Role     Role
}

// TokenIssuer signs HS256 bearer tokens.
type TokenIssuer struct {
	cfg JWTConfig
	now func() time.Time
}

func NewTokenIssuer(cfg JWTConfig) *TokenIssuer {
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	return &TokenIssuer{cfg: cfg, now: time.Now}
}

// Issue returns a signed token and its expiry.
func (i *TokenIssuer) Issue(s Subject) (string, time.Time, error) {
	now := i.now()
	expires := now.Add(i.cfg.TTL)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.UserID.String(),
			Issuer:    i.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
		Email: s.Email,
		Name:  s.FullName,
		Role:  s.Role,
	}
	if i.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{i.cfg.Audience}
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.cfg.SigningKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return token, expires, nil
}

var errInvalidToken = errors.New("invalid token")

// ParseToken validates tokenStr and returns the caller it identifies.
func ParseToken(cfg JWTConfig, tokenStr string) (Actor, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return cfg.SigningKey, nil
	}, opts...)
	if err != nil || !token.Valid {
		return Actor{}, errInvalidToken
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Actor{}, errInvalidToken
	}
	role, err := ParseRole(string(claims.Role))
	if err != nil {
		return Actor{}, errInvalidToken
	}
	return Actor{UserID: userID, Email: claims.Email, Role: role}, nil
}
