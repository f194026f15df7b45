package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinicbook/clinic/internal/config"
	"github.com/clinicbook/clinic/internal/platform/auth"
	"github.com/clinicbook/clinic/internal/platform/db"
	"github.com/clinicbook/clinic/internal/platform/metrics"
)

func testConfig() *config.Config {
	return &config.Config{
		Env:              "test",
		JWTSecret:        "0123456789abcdef0123456789abcdef",
		JWTIssuer:        "clinic-server",
		JWTAudience:      "clinic-app",
		JWTExpiryMinutes: 60,
		CORSOrigins:      []string{"http://localhost:4200"},
		RateLimitRPS:     100,
		RateLimitBurst:   100,
		RequestTimeout:   5 * time.Second,
		BodyLimit:        "1M",
		BcryptCost:       4,
		DBMaxConns:       2,
		DBMinConns:       1,
	}
}

// newTestServer wires the full router over a pgxmock pool that expects no
// queries, so only requests rejected before reaching the database are valid.
func newTestServer(t *testing.T) (*echo.Echo, *config.Config) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unexpected database use: %v", err)
		}
		mock.Close()
	})

	cfg := testConfig()
	reg := metrics.NewRegistry()
	m := metrics.New(reg)
	e, api := newRouter(zerolog.Nop(), cfg, reg, m)
	newServices(cfg, mock, db.NewTxRunner(mock), m, nil).registerRoutes(api)
	return e, cfg
}

func bearer(t *testing.T, cfg *config.Config, role auth.Role) string {
	t.Helper()
	tok, _, err := auth.NewTokenIssuer(jwtConfig(cfg)).Issue(auth.Subject{
		UserID:   uuid.New(),
		Email:    "someone@example.com",
		FullName: "Some One",
		Role:     role,
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return "Bearer " + tok
}

func serve(e *echo.Echo, method, path, authz string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if authz != "" {
		req.Header.Set(echo.HeaderAuthorization, authz)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	e, _ := newTestServer(t)
	rec := serve(e, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
	if rec.Header().Get(echo.HeaderXRequestID) == "" {
		t.Error("request id missing")
	}
}

func TestRoutes_AuthGuards(t *testing.T) {
	e, cfg := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		role   auth.Role
		want   int
	}{
		{"me requires a token", http.MethodGet, "/api/auth/me", "", http.StatusUnauthorized},
		{"booking requires a token", http.MethodPost, "/api/appointments", "", http.StatusUnauthorized},
		{"payments require a token", http.MethodPost, "/api/payments", "", http.StatusUnauthorized},
		{"patients cannot create doctors", http.MethodPost, "/api/doctors", auth.RolePatient, http.StatusForbidden},
		{"doctors cannot delete doctors", http.MethodDelete, "/api/doctors/" + uuid.NewString(), auth.RoleDoctor, http.StatusForbidden},
		{"patients cannot list payments", http.MethodGet, "/api/payments", auth.RolePatient, http.StatusForbidden},
		{"doctors cannot refund", http.MethodPost, "/api/payments/" + uuid.NewString() + "/refund", auth.RoleDoctor, http.StatusForbidden},
		{"patients cannot change payment status", http.MethodPut, "/api/payments/" + uuid.NewString() + "/status", auth.RolePatient, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authz := ""
			if tt.role != "" {
				authz = bearer(t, cfg, tt.role)
			}
			if rec := serve(e, tt.method, tt.path, authz); rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestRoutes_UnknownAPIPathIsNotFound(t *testing.T) {
	e, cfg := newTestServer(t)

	for _, authz := range []string{"", bearer(t, cfg, auth.RolePatient), bearer(t, cfg, auth.RoleDoctor)} {
		for _, path := range []string{"/api/nope", "/api/payments/" + uuid.NewString() + "/nope"} {
			if rec := serve(e, http.MethodGet, path, authz); rec.Code != http.StatusNotFound {
				t.Errorf("GET %s (authz=%t): expected 404, got %d: %s", path, authz != "", rec.Code, rec.Body.String())
			}
		}
	}
}

func TestRoutes_RejectsBadToken(t *testing.T) {
	e, _ := newTestServer(t)
	rec := serve(e, http.MethodGet, "/api/doctors", "Bearer not-a-jwt")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}

	other := testConfig()
	other.JWTSecret = "ffffffffffffffffffffffffffffffff"
	rec = serve(e, http.MethodGet, "/api/doctors", bearer(t, other, auth.RoleAdmin))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("token signed with another key: expected 401, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	e, _ := newTestServer(t)
	serve(e, http.MethodGet, "/api/auth/me", "")

	rec := serve(e, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `clinic_http_requests_total{method="GET",route="/api/auth/me",status="401"} 1`) {
		t.Errorf("request counter missing from exposition:\n%s", body)
	}
}

func TestCORSPreflight(t *testing.T) {
	e, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/doctors", nil)
	req.Header.Set(echo.HeaderOrigin, "http://localhost:4200")
	req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodPost)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if got := rec.Header().Get(echo.HeaderAccessControlAllowOrigin); got != "http://localhost:4200" {
		t.Errorf("unexpected allow-origin %q", got)
	}
}

func TestPrintMigrationStatus(t *testing.T) {
	applied := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetOut(&out)

	printMigrationStatus(cmd, []db.MigrationStatus{
		{Version: 1, Name: "initial_schema", Applied: true, AppliedAt: &applied},
		{Version: 2, Name: "payments", Applied: false},
	})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header, rule and two rows, got %q", out.String())
	}
	if !strings.Contains(lines[2], "applied") || !strings.Contains(lines[2], "2026-01-02T03:04:05Z") {
		t.Errorf("unexpected applied row %q", lines[2])
	}
	if !strings.Contains(lines[3], "pending") {
		t.Errorf("unexpected pending row %q", lines[3])
	}
}

func TestCreateAdminCmd_RequiresFlags(t *testing.T) {
	cmd := userCmd()
	cmd.SetArgs([]string{"create-admin", "--email", "root@example.com"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "--password") {
		t.Errorf("expected missing password error, got %v", err)
	}
}
