package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/personakit/persona-engine/pkg/auth"
	"github.com/personakit/persona-engine/pkg/database"
	"github.com/personakit/persona-engine/pkg/models"
	"github.com/personakit/persona-engine/pkg/privacy"
	"github.com/personakit/persona-engine/pkg/services"
)

// NamespaceMiddleware pins a request to one owner's namespace before the
// handler runs. Middlewares of this shape are built by the middleware package
// and injected at wiring time.
type NamespaceMiddleware func(http.HandlerFunc) http.HandlerFunc

// EntriesHandler handles personal data entry HTTP requests.
type EntriesHandler struct {
	entries services.EntryService
	logger  *zap.Logger
}

// NewEntriesHandler creates a new EntriesHandler with the given service.
func NewEntriesHandler(entries services.EntryService, logger *zap.Logger) *EntriesHandler {
	return &EntriesHandler{
		entries: entries,
		logger:  logger,
	}
}

// createEntryRequest is the request body for creating an entry.
type createEntryRequest struct {
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Visibility string            `json:"visibility,omitempty"`
}

// updateEntryRequest is the request body for updating an entry.
// Absent fields stay unchanged.
type updateEntryRequest struct {
	Content    *string           `json:"content,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Visibility *string           `json:"visibility,omitempty"`
}

// listEntriesResponse wraps a filtered listing.
type listEntriesResponse struct {
	Endpoint string                  `json:"endpoint"`
	Level    privacy.Level           `json:"level"`
	Count    int                     `json:"count"`
	Entries  []*privacy.FilteredEntry `json:"entries"`
}

// endpointKindsResponse lists the endpoint kinds present in a namespace.
type endpointKindsResponse struct {
	Username  string   `json:"username"`
	Endpoints []string `json:"endpoints"`
}

// RegisterRoutes registers the entry handler's routes on the given mux.
// Reads are public surfaces: anonymous callers pass through and the privacy
// engine decides what they see. Writes require authentication and a write
// grant on the target namespace.
func (h *EntriesHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, readScope, writeScope NamespaceMiddleware) {
	mux.HandleFunc("GET /api/u/{username}", authMiddleware.OptionalAuth(readScope(h.ListEndpointKinds)))
	mux.HandleFunc("GET /api/u/{username}/{endpoint}", authMiddleware.OptionalAuth(readScope(h.List)))
	mux.HandleFunc("GET /api/u/{username}/{endpoint}/{id}", authMiddleware.OptionalAuth(readScope(h.Get)))
	mux.HandleFunc("POST /api/u/{username}/{endpoint}", authMiddleware.RequireAuth(writeScope(h.Create)))
	mux.HandleFunc("PATCH /api/u/{username}/{endpoint}/{id}", authMiddleware.RequireAuth(writeScope(h.Update)))
	mux.HandleFunc("DELETE /api/u/{username}/{endpoint}/{id}", authMiddleware.RequireAuth(writeScope(h.Delete)))
}

// ListEndpointKinds handles GET /api/u/{username} requests.
// Returns the endpoint kinds present in the namespace, never their contents.
func (h *EntriesHandler) ListEndpointKinds(w http.ResponseWriter, r *http.Request) {
	scope, ok := database.GetNamespaceScope(r.Context())
	if !ok {
		h.internalError(w, "namespace scope missing from context")
		return
	}

	kinds, err := h.entries.ListEndpointKinds(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, endpointKindsResponse{
		Username:  scope.Owner,
		Endpoints: kinds,
	}); err != nil {
		h.logger.Error("Failed to encode endpoint kinds response", zap.Error(err))
	}
}

// List handles GET /api/u/{username}/{endpoint}?level=... requests.
// Every entry in the response has passed the privacy filter at the requested
// level; unlisted and inaccessible entries are simply absent.
func (h *EntriesHandler) List(w http.ResponseWriter, r *http.Request) {
	scope, ok := database.GetNamespaceScope(r.Context())
	if !ok {
		h.internalError(w, "namespace scope missing from context")
		return
	}
	kind, ok := ParseEndpointKind(w, r, h.logger)
	if !ok {
		return
	}
	level, ok := ParseLevel(w, r, h.logger)
	if !ok {
		return
	}

	principal, _ := auth.GetPrincipal(r.Context())
	views, err := h.entries.ListEntries(r.Context(), principal, scope.Owner, kind, level)
	if err != nil {
		h.respondError(w, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, listEntriesResponse{
		Endpoint: kind,
		Level:    level,
		Count:    len(views),
		Entries:  views,
	}); err != nil {
		h.logger.Error("Failed to encode entries response", zap.Error(err))
	}
}

// Get handles GET /api/u/{username}/{endpoint}/{id}?level=... requests.
// A private entry the caller may not see answers 404, identical to an entry
// that does not exist.
func (h *EntriesHandler) Get(w http.ResponseWriter, r *http.Request) {
	scope, ok := database.GetNamespaceScope(r.Context())
	if !ok {
		h.internalError(w, "namespace scope missing from context")
		return
	}
	kind, ok := ParseEndpointKind(w, r, h.logger)
	if !ok {
		return
	}
	entryID, ok := ParseEntryID(w, r, h.logger)
	if !ok {
		return
	}
	level, ok := ParseLevel(w, r, h.logger)
	if !ok {
		return
	}

	principal, _ := auth.GetPrincipal(r.Context())
	view, err := h.entries.GetEntry(r.Context(), principal, scope.Owner, kind, entryID, level)
	if err != nil {
		h.respondError(w, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, view); err != nil {
		h.logger.Error("Failed to encode entry response", zap.Error(err))
	}
}

// Create handles POST /api/u/{username}/{endpoint} requests.
func (h *EntriesHandler) Create(w http.ResponseWriter, r *http.Request) {
	scope, ok := database.GetNamespaceScope(r.Context())
	if !ok {
		h.internalError(w, "namespace scope missing from context")
		return
	}
	kind, ok := ParseEndpointKind(w, r, h.logger)
	if !ok {
		return
	}

	var req createEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid JSON in request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	principal, _ := auth.GetPrincipal(r.Context())
	entry, err := h.entries.CreateEntry(r.Context(), principal, scope.Owner, services.EntryInput{
		EndpointKind: kind,
		Content:      req.Content,
		Metadata:     req.Metadata,
		Visibility:   models.Visibility(req.Visibility),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}

	if err := WriteJSON(w, http.StatusCreated, entry); err != nil {
		h.logger.Error("Failed to encode created entry", zap.Error(err))
	}
}

// Update handles PATCH /api/u/{username}/{endpoint}/{id} requests.
func (h *EntriesHandler) Update(w http.ResponseWriter, r *http.Request) {
	scope, ok := database.GetNamespaceScope(r.Context())
	if !ok {
		h.internalError(w, "namespace scope missing from context")
		return
	}
	if _, ok := ParseEndpointKind(w, r, h.logger); !ok {
		return
	}
	entryID, ok := ParseEntryID(w, r, h.logger)
	if !ok {
		return
	}

	var req updateEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid JSON in request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	update := services.EntryUpdate{
		Content:  req.Content,
		Metadata: req.Metadata,
	}
	if req.Visibility != nil {
		vis := models.Visibility(*req.Visibility)
		update.Visibility = &vis
	}

	principal, _ := auth.GetPrincipal(r.Context())
	entry, err := h.entries.UpdateEntry(r.Context(), principal, scope.Owner, entryID, update)
	if err != nil {
		h.respondError(w, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, entry); err != nil {
		h.logger.Error("Failed to encode updated entry", zap.Error(err))
	}
}

// Delete handles DELETE /api/u/{username}/{endpoint}/{id} requests.
func (h *EntriesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	scope, ok := database.GetNamespaceScope(r.Context())
	if !ok {
		h.internalError(w, "namespace scope missing from context")
		return
	}
	if _, ok := ParseEndpointKind(w, r, h.logger); !ok {
		return
	}
	entryID, ok := ParseEntryID(w, r, h.logger)
	if !ok {
		return
	}

	principal, _ := auth.GetPrincipal(r.Context())
	if err := h.entries.DeleteEntry(r.Context(), principal, scope.Owner, entryID); err != nil {
		h.respondError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *EntriesHandler) respondError(w http.ResponseWriter, err error) {
	if writeErr := MapError(w, err); writeErr != nil {
		h.logger.Error("Failed to write error response", zap.Error(writeErr))
	}
}

func (h *EntriesHandler) internalError(w http.ResponseWriter, message string) {
	h.logger.Error(message)
	if err := ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Internal server error"); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}
