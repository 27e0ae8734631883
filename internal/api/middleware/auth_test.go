package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saferoute/saferoute/internal/api/middleware"
	"github.com/saferoute/saferoute/internal/auth"
)

const testSigningKey = "test-secret-key-for-testing-only"

func newJWTService() *auth.JWTService {
	return auth.NewJWTService(auth.JWTConfig{SigningKey: testSigningKey})
}

func issue(t *testing.T, role string) string {
	t.Helper()
	token, _, err := newJWTService().Issue("ops@campus", role, time.Minute)
	require.NoError(t, err)
	return token
}

func TestRequireRole_Rejections(t *testing.T) {
	handler := middleware.RequireRole(newJWTService(), auth.RoleAdmin)(statusHandler(http.StatusOK))

	tests := []struct {
		name   string
		header string
		detail string
	}{
		{"missing header", "", "missing authorization header"},
		{"no bearer prefix", "token123", "invalid authorization header format"},
		{"basic auth", "Basic dXNlcjpwYXNz", "invalid authorization header format"},
		{"empty bearer", "Bearer ", "missing bearer token"},
		{"just bearer", "Bearer", "invalid authorization header format"},
		{"garbage token", "Bearer invalid.jwt.token", "invalid access token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/admin/graph:reload", http.NoBody)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.detail)
			assert.Equal(t, `Bearer realm="saferoute"`, rec.Header().Get("WWW-Authenticate"))
		})
	}
}

func TestRequireRole_ValidToken(t *testing.T) {
	var subject string
	handler := middleware.RequireRole(newJWTService(), auth.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject = middleware.GetSubject(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	for _, prefix := range []string{"Bearer ", "bearer ", "BEARER "} {
		req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
		req.Header.Set("Authorization", prefix+issue(t, auth.RoleAdmin))
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code, prefix)
		assert.Equal(t, "ops@campus", subject)
	}
}

func TestRequireRole_WrongRole(t *testing.T) {
	handler := middleware.RequireRole(newJWTService(), auth.RoleAdmin)(statusHandler(http.StatusOK))

	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+issue(t, "viewer"))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "admin role required")
}

func TestRequireRole_ExpiredToken(t *testing.T) {
	issuedAt := time.Now().Add(-2 * time.Hour)
	old := auth.NewJWTService(auth.JWTConfig{
		SigningKey: testSigningKey,
		Now:        func() time.Time { return issuedAt },
	})
	token, _, err := old.Issue("ops", auth.RoleAdmin, time.Minute)
	require.NoError(t, err)

	handler := middleware.RequireRole(newJWTService(), auth.RoleAdmin)(statusHandler(http.StatusOK))
	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "access token has expired")
}

func TestGetSubject_NoAuth(t *testing.T) {
	assert.Empty(t, middleware.GetSubject(context.Background()))
}
