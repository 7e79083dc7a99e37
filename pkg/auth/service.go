package auth

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/personakit/persona-engine/pkg/models"
)

// Common authentication errors.
var (
	ErrMissingCredentials = errors.New("missing credentials")
	ErrInvalidAuthFormat  = errors.New("invalid authorization header format")
)

// AuthService resolves a request into a principal. This abstraction keeps
// HTTP handling separate from credential logic, making both easier to test.
type AuthService interface {
	// ResolveRequest extracts and validates credentials from the request.
	// It checks, in order:
	//   1. The owner browser session cookie
	//   2. Authorization header with "Bearer" scheme (API clients)
	// Returns the resolved principal or an error when credentials are
	// present but invalid, or absent entirely.
	ResolveRequest(r *http.Request) (models.Principal, error)
}

// authService implements AuthService.
type authService struct {
	validator TokenValidator
	sessions  *SessionStore
	logger    *zap.Logger
}

// NewAuthService creates a new AuthService. sessions may be nil when cookie
// auth is not configured.
func NewAuthService(validator TokenValidator, sessions *SessionStore, logger *zap.Logger) AuthService {
	return &authService{
		validator: validator,
		sessions:  sessions,
		logger:    logger,
	}
}

// ResolveRequest extracts and validates credentials from the request.
func (s *authService) ResolveRequest(r *http.Request) (models.Principal, error) {
	if s.sessions != nil {
		if p, ok := s.sessions.Principal(r); ok {
			return p, nil
		}
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return models.AnonymousPrincipal(), ErrMissingCredentials
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		s.logger.Debug("Invalid Authorization header format",
			zap.String("path", r.URL.Path))
		return models.AnonymousPrincipal(), ErrInvalidAuthFormat
	}

	claims, err := s.validator.ValidateToken(parts[1])
	if err != nil {
		s.logger.Debug("JWT validation failed",
			zap.Error(err),
			zap.String("path", r.URL.Path))
		return models.AnonymousPrincipal(), err
	}

	return claims.Principal(), nil
}

// Ensure authService implements AuthService at compile time.
var _ AuthService = (*authService)(nil)
