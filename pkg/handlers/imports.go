package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/personakit/persona-engine/pkg/auth"
	"github.com/personakit/persona-engine/pkg/database"
	"github.com/personakit/persona-engine/pkg/models"
	"github.com/personakit/persona-engine/pkg/services"
)

// ImportsHandler handles bulk import HTTP requests.
type ImportsHandler struct {
	imports services.ImportService
	logger  *zap.Logger
}

// NewImportsHandler creates a new ImportsHandler with the given service.
func NewImportsHandler(imports services.ImportService, logger *zap.Logger) *ImportsHandler {
	return &ImportsHandler{
		imports: imports,
		logger:  logger,
	}
}

// importRunResponse summarizes one bulk import run.
type importRunResponse struct {
	Namespace string              `json:"namespace"`
	Replace   bool                `json:"replace"`
	Files     int                 `json:"files"`
	Imported  int                 `json:"imported"`
	Skipped   int                 `json:"skipped"`
	Failed    int                 `json:"failed"`
	Results   []models.FileResult `json:"results"`
}

// RegisterRoutes registers the import handler's routes on the given mux.
// The target namespace comes from the "target" query parameter and defaults
// to the caller's own namespace; cross-namespace imports require admin.
func (h *ImportsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, importScope, queryScope NamespaceMiddleware) {
	mux.HandleFunc("POST /api/imports", authMiddleware.RequireAuth(importScope(h.Run)))
	mux.HandleFunc("GET /api/imports/runs", authMiddleware.RequireAuth(queryScope(h.ListRuns)))
}

// Run handles POST /api/imports?target=...&replace=true requests.
// Runs the full discover/validate/apply pipeline over the namespace's import
// directory. Per-file failures land in the response; they never abort the run.
func (h *ImportsHandler) Run(w http.ResponseWriter, r *http.Request) {
	scope, ok := database.GetNamespaceScope(r.Context())
	if !ok {
		h.internalError(w, "namespace scope missing from context")
		return
	}

	replace := r.URL.Query().Get("replace") == "true"
	principal, _ := auth.GetPrincipal(r.Context())

	results, err := h.imports.ImportAll(r.Context(), principal, scope.Owner, replace)
	if err != nil {
		if writeErr := MapError(w, err); writeErr != nil {
			h.logger.Error("Failed to write error response", zap.Error(writeErr))
		}
		return
	}

	response := importRunResponse{
		Namespace: scope.Owner,
		Replace:   replace,
		Files:     len(results),
		Results:   results,
	}
	for _, result := range results {
		response.Imported += result.Imported
		response.Skipped += result.Skipped
		if result.Status == models.ImportStatusFailed {
			response.Failed++
		}
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode import response", zap.Error(err))
	}
}

// ListRuns handles GET /api/imports/runs?target=...&limit=... requests.
func (h *ImportsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	scope, ok := database.GetNamespaceScope(r.Context())
	if !ok {
		h.internalError(w, "namespace scope missing from context")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_limit", "Limit must be a non-negative integer"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		limit = parsed
	}

	runs, err := h.imports.ListRuns(r.Context(), scope.Owner, limit)
	if err != nil {
		if writeErr := MapError(w, err); writeErr != nil {
			h.logger.Error("Failed to write error response", zap.Error(writeErr))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, map[string]interface{}{
		"namespace": scope.Owner,
		"runs":      runs,
	}); err != nil {
		h.logger.Error("Failed to encode import runs response", zap.Error(err))
	}
}

func (h *ImportsHandler) internalError(w http.ResponseWriter, message string) {
	h.logger.Error(message)
	if err := ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Internal server error"); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}
