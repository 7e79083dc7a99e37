package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/personakit/persona-engine/pkg/apperrors"
	"github.com/personakit/persona-engine/pkg/auth"
	"github.com/personakit/persona-engine/pkg/database"
	"github.com/personakit/persona-engine/pkg/models"
	"github.com/personakit/persona-engine/pkg/privacy"
	"github.com/personakit/persona-engine/pkg/services"
)

// stubAuthService resolves every request to a fixed principal.
type stubAuthService struct {
	principal models.Principal
	err       error
}

func (s stubAuthService) ResolveRequest(r *http.Request) (models.Principal, error) {
	return s.principal, s.err
}

func authAs(principal models.Principal) *auth.Middleware {
	return auth.NewMiddleware(stubAuthService{principal: principal}, zap.NewNop())
}

func authAnonymous() *auth.Middleware {
	return auth.NewMiddleware(stubAuthService{
		principal: models.AnonymousPrincipal(),
		err:       auth.ErrMissingCredentials,
	}, zap.NewNop())
}

// testScope injects a namespace scope without touching a database.
func testScope(owner string) NamespaceMiddleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			scope := &database.NamespaceScope{Owner: owner}
			next(w, r.WithContext(database.SetNamespaceScope(r.Context(), scope)))
		}
	}
}

// mockEntryService records calls and returns canned results.
type mockEntryService struct {
	view  *privacy.FilteredEntry
	views []*privacy.FilteredEntry
	kinds []string
	entry *models.Entry
	err   error

	lastPrincipal models.Principal
	lastOwner     string
	lastKind      string
	lastLevel     privacy.Level
	lastInput     services.EntryInput
	lastUpdate    services.EntryUpdate
}

var _ services.EntryService = (*mockEntryService)(nil)

func (m *mockEntryService) GetEntry(ctx context.Context, principal models.Principal, owner, endpointKind string, entryID uuid.UUID, level privacy.Level) (*privacy.FilteredEntry, error) {
	m.lastPrincipal, m.lastOwner, m.lastKind, m.lastLevel = principal, owner, endpointKind, level
	return m.view, m.err
}

func (m *mockEntryService) ListEntries(ctx context.Context, principal models.Principal, owner, endpointKind string, level privacy.Level) ([]*privacy.FilteredEntry, error) {
	m.lastPrincipal, m.lastOwner, m.lastKind, m.lastLevel = principal, owner, endpointKind, level
	return m.views, m.err
}

func (m *mockEntryService) ListEndpointKinds(ctx context.Context) ([]string, error) {
	return m.kinds, m.err
}

func (m *mockEntryService) CreateEntry(ctx context.Context, principal models.Principal, owner string, input services.EntryInput) (*models.Entry, error) {
	m.lastPrincipal, m.lastOwner, m.lastInput = principal, owner, input
	return m.entry, m.err
}

func (m *mockEntryService) UpdateEntry(ctx context.Context, principal models.Principal, owner string, entryID uuid.UUID, update services.EntryUpdate) (*models.Entry, error) {
	m.lastPrincipal, m.lastOwner, m.lastUpdate = principal, owner, update
	return m.entry, m.err
}

func (m *mockEntryService) DeleteEntry(ctx context.Context, principal models.Principal, owner string, entryID uuid.UUID) error {
	m.lastPrincipal, m.lastOwner = principal, owner
	return m.err
}

func newEntriesMux(svc services.EntryService, authMiddleware *auth.Middleware) *http.ServeMux {
	mux := http.NewServeMux()
	handler := NewEntriesHandler(svc, zap.NewNop())
	handler.RegisterRoutes(mux, authMiddleware, testScope("ada"), testScope("ada"))
	return mux
}

func TestGetEntry(t *testing.T) {
	entryID := uuid.New()
	svc := &mockEntryService{view: &privacy.FilteredEntry{
		ID:           entryID,
		Owner:        "ada",
		EndpointKind: "notes",
		Visibility:   models.VisibilityPublic,
		Level:        privacy.LevelPublicFull,
		Content:      "hello",
	}}
	mux := newEntriesMux(svc, authAnonymous())

	req := httptest.NewRequest("GET", "/api/u/ada/notes/"+entryID.String()+"?level=public_full", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var view privacy.FilteredEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, entryID, view.ID)
	assert.Equal(t, "hello", view.Content)

	assert.Equal(t, "ada", svc.lastOwner)
	assert.Equal(t, "notes", svc.lastKind)
	assert.Equal(t, privacy.LevelPublicFull, svc.lastLevel)
	assert.True(t, svc.lastPrincipal.Anonymous)
}

func TestGetEntry_NotFoundAndDeniedLookIdentical(t *testing.T) {
	svc := &mockEntryService{err: apperrors.ErrNotFound}
	mux := newEntriesMux(svc, authAnonymous())

	req := httptest.NewRequest("GET", "/api/u/ada/notes/"+uuid.NewString()+"?level=public_full", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not_found", body["error"])
}

func TestGetEntry_ParamValidation(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"missing level", "/api/u/ada/notes/" + uuid.NewString()},
		{"unknown level", "/api/u/ada/notes/" + uuid.NewString() + "?level=loud"},
		{"malformed id", "/api/u/ada/notes/not-a-uuid?level=public_full"},
		{"malformed endpoint", "/api/u/ada/NOTES!/" + uuid.NewString() + "?level=public_full"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := newEntriesMux(&mockEntryService{}, authAnonymous())
			req := httptest.NewRequest("GET", tt.path, nil)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestListEntries(t *testing.T) {
	svc := &mockEntryService{views: []*privacy.FilteredEntry{
		{Content: "one"},
		{Content: "two"},
	}}
	mux := newEntriesMux(svc, authAnonymous())

	req := httptest.NewRequest("GET", "/api/u/ada/projects?level=ai_safe", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body listEntriesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "projects", body.Endpoint)
	assert.Equal(t, privacy.LevelAISafe, body.Level)
	assert.Equal(t, 2, body.Count)
	assert.Len(t, body.Entries, 2)
}

func TestListEndpointKinds(t *testing.T) {
	svc := &mockEntryService{kinds: []string{"notes", "projects"}}
	mux := newEntriesMux(svc, authAnonymous())

	req := httptest.NewRequest("GET", "/api/u/ada", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body endpointKindsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ada", body.Username)
	assert.Equal(t, []string{"notes", "projects"}, body.Endpoints)
}

func TestCreateEntry(t *testing.T) {
	svc := &mockEntryService{entry: &models.Entry{ID: uuid.New(), EndpointKind: "notes"}}
	mux := newEntriesMux(svc, authAs(models.Principal{Username: "ada"}))

	payload := `{"content": "hello", "metadata": {"topic": "math"}, "visibility": "public"}`
	req := httptest.NewRequest("POST", "/api/u/ada/notes", bytes.NewBufferString(payload))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "notes", svc.lastInput.EndpointKind)
	assert.Equal(t, "hello", svc.lastInput.Content)
	assert.Equal(t, "math", svc.lastInput.Metadata["topic"])
	assert.Equal(t, models.VisibilityPublic, svc.lastInput.Visibility)
}

func TestCreateEntry_RequiresAuth(t *testing.T) {
	mux := newEntriesMux(&mockEntryService{}, authAnonymous())

	req := httptest.NewRequest("POST", "/api/u/ada/notes", bytes.NewBufferString(`{"content": "x"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateEntry_MalformedBody(t *testing.T) {
	mux := newEntriesMux(&mockEntryService{}, authAs(models.Principal{Username: "ada"}))

	req := httptest.NewRequest("POST", "/api/u/ada/notes", bytes.NewBufferString(`{not json`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateEntry_VisibilityIsOwnerOnly(t *testing.T) {
	svc := &mockEntryService{err: apperrors.ErrNotOwner}
	mux := newEntriesMux(svc, authAs(models.Principal{Username: "root", Admin: true}))

	payload := `{"visibility": "public"}`
	req := httptest.NewRequest("PATCH", "/api/u/ada/notes/"+uuid.NewString(), bytes.NewBufferString(payload))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not_owner", body["error"])
}

func TestUpdateEntry_PassesPartialUpdate(t *testing.T) {
	svc := &mockEntryService{entry: &models.Entry{ID: uuid.New()}}
	mux := newEntriesMux(svc, authAs(models.Principal{Username: "ada"}))

	payload := `{"content": "revised"}`
	req := httptest.NewRequest("PATCH", "/api/u/ada/notes/"+uuid.NewString(), bytes.NewBufferString(payload))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.lastUpdate.Content)
	assert.Equal(t, "revised", *svc.lastUpdate.Content)
	assert.Nil(t, svc.lastUpdate.Visibility)
}

func TestDeleteEntry(t *testing.T) {
	svc := &mockEntryService{}
	mux := newEntriesMux(svc, authAs(models.Principal{Username: "ada"}))

	req := httptest.NewRequest("DELETE", "/api/u/ada/notes/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "ada", svc.lastOwner)
}

func TestGetEntry_ValidationErrorFromService(t *testing.T) {
	svc := &mockEntryService{err: apperrors.ErrValidation}
	mux := newEntriesMux(svc, authAnonymous())

	req := httptest.NewRequest("GET", "/api/u/ada/notes/"+uuid.NewString()+"?level=public_full", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
