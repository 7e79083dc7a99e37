package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/personakit/persona-engine/pkg/models"
)

type stubValidator struct {
	claims *Claims
	err    error
}

func (s *stubValidator) ValidateToken(string) (*Claims, error) {
	return s.claims, s.err
}

func ownerClaims(username string, roles ...string) *Claims {
	c := &Claims{Roles: roles}
	c.Subject = username
	return c
}

func newTestMiddleware(v TokenValidator) *Middleware {
	return NewMiddleware(NewAuthService(v, nil, zap.NewNop()), zap.NewNop())
}

func capturedPrincipal(t *testing.T) (http.HandlerFunc, *models.Principal) {
	t.Helper()
	captured := &models.Principal{}
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := GetPrincipal(r.Context())
		require.True(t, ok)
		*captured = p
		w.WriteHeader(http.StatusOK)
	}, captured
}

func TestOptionalAuth_AnonymousWithoutCredentials(t *testing.T) {
	mw := newTestMiddleware(&stubValidator{})
	next, principal := capturedPrincipal(t)

	req := httptest.NewRequest(http.MethodGet, "/api/u/ada/resume", nil)
	rec := httptest.NewRecorder()
	mw.OptionalAuth(next)(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, principal.Anonymous)
}

func TestOptionalAuth_ValidBearer(t *testing.T) {
	mw := newTestMiddleware(&stubValidator{claims: ownerClaims("ada")})
	next, principal := capturedPrincipal(t)

	req := httptest.NewRequest(http.MethodGet, "/api/u/ada/resume", nil)
	req.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()
	mw.OptionalAuth(next)(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ada", principal.Username)
	assert.False(t, principal.Anonymous)
}

func TestOptionalAuth_InvalidCredentialsRejected(t *testing.T) {
	mw := newTestMiddleware(&stubValidator{err: ErrInvalidAuthFormat})
	next, _ := capturedPrincipal(t)

	req := httptest.NewRequest(http.MethodGet, "/api/u/ada/resume", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec := httptest.NewRecorder()
	mw.OptionalAuth(next)(rec, req)

	// Presented-but-invalid credentials must not downgrade to anonymous.
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuth_RejectsAnonymous(t *testing.T) {
	mw := newTestMiddleware(&stubValidator{})
	next, _ := capturedPrincipal(t)

	req := httptest.NewRequest(http.MethodPost, "/api/imports", nil)
	rec := httptest.NewRecorder()
	mw.RequireAuth(next)(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "unauthorized", resp["error"])
}

func TestRequireAdmin(t *testing.T) {
	tests := []struct {
		name       string
		claims     *Claims
		wantStatus int
	}{
		{"admin allowed", ownerClaims("root", "admin"), http.StatusOK},
		{"plain user forbidden", ownerClaims("ada"), http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mw := newTestMiddleware(&stubValidator{claims: tt.claims})
			next, _ := capturedPrincipal(t)

			req := httptest.NewRequest(http.MethodGet, "/api/audit", nil)
			req.Header.Set("Authorization", "Bearer token")
			rec := httptest.NewRecorder()
			mw.RequireAdmin(next)(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestClaims_Principal(t *testing.T) {
	p := ownerClaims("ada").Principal()
	assert.Equal(t, "ada", p.Username)
	assert.False(t, p.Admin)

	p = ownerClaims("root", "editor", "admin").Principal()
	assert.True(t, p.Admin)
}
