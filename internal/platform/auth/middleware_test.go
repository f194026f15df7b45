package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

var testConfig = JWTConfig{
	Issuer:     "clinic-server",
	Audience:   "clinic-app",
	SigningKey: []byte("test-secret-key-for-unit-tests-only"),
	TTL:        time.Hour,
}

func createTestToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func issueTestToken(t *testing.T, role Role) (string, uuid.UUID) {
	t.Helper()
	id := uuid.New()
	tok, _, err := NewTokenIssuer(testConfig).Issue(Subject{
		UserID: id, Email: "jane@example.com", FullName: "Jane Roe", Role: role,
	})
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}
	return tok, id
}

func runAuthenticate(t *testing.T, header string) (*httptest.ResponseRecorder, *Actor, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var seen *Actor
	handler := func(c echo.Context) error {
		if a, ok := ActorFromContext(c.Request().Context()); ok {
			seen = &a
		}
		return c.String(http.StatusOK, "ok")
	}

	err := Authenticate(testConfig)(handler)(c)
	return rec, seen, err
}

func TestAuthenticate_NoHeaderIsAnonymous(t *testing.T) {
	rec, actor, err := runAuthenticate(t, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if actor != nil {
		t.Errorf("expected no actor, got %+v", actor)
	}
}

func TestAuthenticate_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
		{"garbage token", "Bearer not.a.jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := runAuthenticate(t, tt.header)
			httpErr, ok := err.(*echo.HTTPError)
			if !ok {
				t.Fatalf("expected echo.HTTPError, got %T", err)
			}
			if httpErr.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", httpErr.Code)
			}
		})
	}
}

func TestAuthenticate_ValidToken(t *testing.T) {
	tok, id := issueTestToken(t, RoleDoctor)

	_, actor, err := runAuthenticate(t, "Bearer "+tok)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if actor == nil {
		t.Fatal("expected actor on context")
	}
	if actor.UserID != id {
		t.Errorf("expected user id %s, got %s", id, actor.UserID)
	}
	if actor.Role != RoleDoctor {
		t.Errorf("expected Doctor role, got %s", actor.Role)
	}
	if actor.Email != "jane@example.com" {
		t.Errorf("expected email claim, got %s", actor.Email)
	}
}

func TestAuthenticate_ExpiredToken(t *testing.T) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.NewString(),
			Issuer:    testConfig.Issuer,
			Audience:  jwt.ClaimStrings{testConfig.Audience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-1 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
		},
		Role: RolePatient,
	}
	tok := createTestToken(t, claims, testConfig.SigningKey)

	_, _, err := runAuthenticate(t, "Bearer "+tok)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for expired token, got %v", err)
	}
}

func TestAuthenticate_WrongKeyOrAudience(t *testing.T) {
	base := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.NewString(),
			Issuer:    testConfig.Issuer,
			Audience:  jwt.ClaimStrings{testConfig.Audience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: RolePatient,
	}

	wrongKey := createTestToken(t, base, []byte("another-secret-key-entirely"))
	if _, _, err := runAuthenticate(t, "Bearer "+wrongKey); err == nil {
		t.Error("expected error for token signed with another key")
	}

	otherAud := base
	otherAud.Audience = jwt.ClaimStrings{"someone-else"}
	if _, _, err := runAuthenticate(t, "Bearer "+createTestToken(t, otherAud, testConfig.SigningKey)); err == nil {
		t.Error("expected error for wrong audience")
	}
}

func TestAuthenticate_UnknownRoleRejected(t *testing.T) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.NewString(),
			Issuer:    testConfig.Issuer,
			Audience:  jwt.ClaimStrings{testConfig.Audience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: Role("superuser"),
	}
	tok := createTestToken(t, claims, testConfig.SigningKey)
	if _, _, err := runAuthenticate(t, "Bearer "+tok); err == nil {
		t.Error("expected error for unknown role claim")
	}
}

func TestTokenIssuer_Claims(t *testing.T) {
	issuer := NewTokenIssuer(testConfig)
	fixed := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	issuer.now = func() time.Time { return fixed }

	id := uuid.New()
	tok, exp, err := issuer.Issue(Subject{UserID: id, Email: "a@b.c", FullName: "A B", Role: RoleAdmin})
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}
	if !exp.Equal(fixed.Add(time.Hour)) {
		t.Errorf("unexpected expiry %v", exp)
	}

	claims := &Claims{}
	_, _, err = jwt.NewParser().ParseUnverified(tok, claims)
	if err != nil {
		t.Fatalf("ParseUnverified() error: %v", err)
	}
	if claims.Subject != id.String() || claims.Role != RoleAdmin || claims.Name != "A B" {
		t.Errorf("unexpected claims: %+v", claims)
	}
	if claims.ID == "" {
		t.Error("expected jti to be set")
	}
}

func TestRequireAuthenticated(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := RequireAuthenticated()(func(c echo.Context) error { return nil })(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}
