package auth

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// Middleware provides HTTP authentication middleware.
// It is thin and delegates credential logic to AuthService.
type Middleware struct {
	authService AuthService
	logger      *zap.Logger
}

// NewMiddleware creates a new auth middleware with the given AuthService.
func NewMiddleware(authService AuthService, logger *zap.Logger) *Middleware {
	return &Middleware{
		authService: authService,
		logger:      logger,
	}
}

// OptionalAuth resolves credentials when present and otherwise lets the
// request through as an anonymous principal. Use this for endpoints serving
// public personal content: the visibility resolver decides what anonymous
// callers see, not the transport.
func (m *Middleware) OptionalAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, err := m.authService.ResolveRequest(r)
		if err != nil && err != ErrMissingCredentials {
			// Credentials were presented but are invalid: reject rather
			// than silently downgrading the caller to anonymous.
			m.unauthorized(w, "Invalid credentials")
			return
		}
		next(w, r.WithContext(SetPrincipal(r.Context(), principal)))
	}
}

// RequireAuth resolves credentials and rejects anonymous callers.
// Use this for owner/admin operations (writes, imports).
func (m *Middleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, err := m.authService.ResolveRequest(r)
		if err != nil || principal.Anonymous {
			m.unauthorized(w, "Authentication required")
			return
		}
		next(w, r.WithContext(SetPrincipal(r.Context(), principal)))
	}
}

// RequireAdmin resolves credentials and rejects non-admin principals.
// Use this for operator surfaces such as the audit review API.
func (m *Middleware) RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, err := m.authService.ResolveRequest(r)
		if err != nil || principal.Anonymous {
			m.unauthorized(w, "Authentication required")
			return
		}
		if !principal.Admin {
			m.logger.Warn("Non-admin principal attempted to access admin endpoint",
				zap.String("principal", principal.String()),
				zap.String("path", r.URL.Path))
			m.forbidden(w, "Admin authorization required")
			return
		}
		next(w, r.WithContext(SetPrincipal(r.Context(), principal)))
	}
}

// unauthorized returns a 401 response with JSON error body.
func (m *Middleware) unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "unauthorized",
		"message": message,
	})
}

// forbidden returns a 403 response with JSON error body.
func (m *Middleware) forbidden(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "forbidden",
		"message": message,
	})
}
