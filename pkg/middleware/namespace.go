package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/personakit/persona-engine/pkg/apperrors"
	"github.com/personakit/persona-engine/pkg/auth"
	"github.com/personakit/persona-engine/pkg/database"
	"github.com/personakit/persona-engine/pkg/models"
	"github.com/personakit/persona-engine/pkg/services"
)

// NamespaceResolver builds middleware that pins each request to exactly one
// owner's namespace. The resolved, RLS-scoped database connection rides the
// request context; handlers never see an unscoped connection.
type NamespaceResolver struct {
	namespaces services.NamespaceService
	db         *database.DB
	logger     *zap.Logger
}

// NewNamespaceResolver creates a NamespaceResolver.
func NewNamespaceResolver(namespaces services.NamespaceService, db *database.DB, logger *zap.Logger) *NamespaceResolver {
	return &NamespaceResolver{
		namespaces: namespaces,
		db:         db,
		logger:     logger,
	}
}

// ReadScope resolves the {username} path parameter for public read requests.
// Any principal, including anonymous, may address any existing owner; what
// each principal actually sees is decided per entry downstream. An unknown
// owner is a plain 404.
func (n *NamespaceResolver) ReadScope(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, _ := auth.GetPrincipal(r.Context())

		owner, err := n.namespaces.ResolveTarget(r.Context(), principal, r.PathValue("username"))
		if err != nil {
			n.reject(w, err)
			return
		}

		n.withScope(w, r, owner, next)
	}
}

// WriteScope resolves the namespace for owner/admin operations. The target
// comes from the {username} path parameter, falling back to the "target"
// query parameter, falling back to the principal's own namespace.
// Cross-namespace writes require an admin principal.
func (n *NamespaceResolver) WriteScope(next http.HandlerFunc) http.HandlerFunc {
	return n.WriteScopeFor("", next)
}

// WriteScopeFor is WriteScope with an explicit audit action instead of one
// derived from the HTTP method.
func (n *NamespaceResolver) WriteScopeFor(action string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, _ := auth.GetPrincipal(r.Context())

		target := r.PathValue("username")
		if target == "" {
			target = r.URL.Query().Get("target")
		}

		act := action
		if act == "" {
			act = actionForMethod(r.Method)
		}

		owner, err := n.namespaces.ResolveNamespace(r.Context(), principal, target, act)
		if err != nil {
			n.reject(w, err)
			return
		}

		n.withScope(w, r, owner, next)
	}
}

// withScope acquires a namespace-scoped connection, runs the handler with it
// in context and releases it when the handler returns.
func (n *NamespaceResolver) withScope(w http.ResponseWriter, r *http.Request, owner string, next http.HandlerFunc) {
	scope, err := n.db.WithNamespace(r.Context(), owner)
	if err != nil {
		n.logger.Error("Failed to acquire namespace scope",
			zap.String("owner", owner),
			zap.Error(err))
		n.writeError(w, http.StatusServiceUnavailable, "unavailable", "Service temporarily unavailable")
		return
	}
	defer scope.Close()

	next(w, r.WithContext(database.SetNamespaceScope(r.Context(), scope)))
}

func (n *NamespaceResolver) reject(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		n.writeError(w, http.StatusNotFound, "not_found", "Resource not found")
	case errors.Is(err, apperrors.ErrAccessDenied):
		n.writeError(w, http.StatusForbidden, "access_denied", "Access denied")
	case errors.Is(err, apperrors.ErrValidation):
		n.writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	default:
		n.logger.Error("Namespace resolution failed", zap.Error(err))
		n.writeError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}

func (n *NamespaceResolver) writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": message,
	})
}

func actionForMethod(method string) string {
	switch method {
	case http.MethodPost:
		return models.AuditActionCreate
	case http.MethodPut, http.MethodPatch:
		return models.AuditActionUpdate
	case http.MethodDelete:
		return models.AuditActionDelete
	default:
		return models.AuditActionResolve
	}
}
