package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/personakit/persona-engine/pkg/models"
	"github.com/personakit/persona-engine/pkg/privacy"
)

// ParseEntryID extracts and validates the entry ID from the request path.
// Returns the parsed UUID and true on success, or uuid.Nil and false on error
// (after writing an error response).
// Expects path parameter: id
func ParseEntryID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	idStr := r.PathValue("id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_entry_id", "Invalid entry ID format"); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return uuid.Nil, false
	}
	return id, true
}

// ParseLevel extracts the required privacy level from the "level" query
// parameter. Personal-content endpoints never have an implicit level; the
// caller states what view it wants.
func ParseLevel(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (privacy.Level, bool) {
	raw := r.URL.Query().Get("level")
	if raw == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "missing_level", "Query parameter 'level' is required"); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return "", false
	}
	level, err := privacy.ParseLevel(raw)
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_level", err.Error()); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return "", false
	}
	return level, true
}

// ParseEndpointKind extracts the endpoint kind from the request path.
// Expects path parameter: endpoint
func ParseEndpointKind(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (string, bool) {
	kind := r.PathValue("endpoint")
	if !models.ValidEndpointKind(kind) {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_endpoint", "Invalid endpoint name"); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return "", false
	}
	return kind, true
}
