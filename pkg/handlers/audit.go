package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/personakit/persona-engine/pkg/auth"
	"github.com/personakit/persona-engine/pkg/repositories"
	"github.com/personakit/persona-engine/pkg/services"
)

// AuditHandler exposes the access audit trail to admin review.
type AuditHandler struct {
	auditLog services.AuditService
	logger   *zap.Logger
}

// NewAuditHandler creates a new AuditHandler with the given service.
func NewAuditHandler(auditLog services.AuditService, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{
		auditLog: auditLog,
		logger:   logger,
	}
}

// RegisterRoutes registers the audit handler's routes on the given mux.
func (h *AuditHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/audit", authMiddleware.RequireAdmin(h.List))
}

// List handles GET /api/audit requests.
// Supports filtering by principal, target, action and outcome, with an
// optional limit capped server-side.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := repositories.AuditFilter{
		Principal: query.Get("principal"),
		Target:    query.Get("target"),
		Action:    query.Get("action"),
		Outcome:   query.Get("outcome"),
	}

	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_limit", "Limit must be a non-negative integer"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		filter.Limit = limit
	}

	entries, err := h.auditLog.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list audit entries", zap.Error(err))
		if writeErr := MapError(w, err); writeErr != nil {
			h.logger.Error("Failed to write error response", zap.Error(writeErr))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(entries),
		"entries": entries,
	}); err != nil {
		h.logger.Error("Failed to encode audit response", zap.Error(err))
	}
}
