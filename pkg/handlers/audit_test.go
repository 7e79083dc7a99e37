package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/personakit/persona-engine/pkg/models"
	"github.com/personakit/persona-engine/pkg/repositories"
	"github.com/personakit/persona-engine/pkg/services"
)

// mockAuditService returns canned entries and records the last filter.
type mockAuditService struct {
	entries    []*models.AccessLogEntry
	err        error
	lastFilter repositories.AuditFilter
}

var _ services.AuditService = (*mockAuditService)(nil)

func (m *mockAuditService) Record(ctx context.Context, principal models.Principal, target, action, outcome, detail string) {
}

func (m *mockAuditService) List(ctx context.Context, filter repositories.AuditFilter) ([]*models.AccessLogEntry, error) {
	m.lastFilter = filter
	return m.entries, m.err
}

func newAuditMux(svc services.AuditService, principal models.Principal) *http.ServeMux {
	mux := http.NewServeMux()
	handler := NewAuditHandler(svc, zap.NewNop())
	handler.RegisterRoutes(mux, authAs(principal))
	return mux
}

func TestListAudit(t *testing.T) {
	svc := &mockAuditService{entries: []*models.AccessLogEntry{
		{Principal: "grace", Target: "ada", Action: models.AuditActionResolve, Outcome: models.AuditOutcomeDenied},
	}}
	mux := newAuditMux(svc, models.Principal{Username: "root", Admin: true})

	req := httptest.NewRequest("GET", "/api/audit?principal=grace&outcome=denied&limit=10", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "grace", svc.lastFilter.Principal)
	assert.Equal(t, models.AuditOutcomeDenied, svc.lastFilter.Outcome)
	assert.Equal(t, 10, svc.lastFilter.Limit)

	var body struct {
		Count   int                      `json:"count"`
		Entries []*models.AccessLogEntry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	require.Len(t, body.Entries, 1)
	assert.Equal(t, "grace", body.Entries[0].Principal)
}

func TestListAudit_AdminOnly(t *testing.T) {
	mux := newAuditMux(&mockAuditService{}, models.Principal{Username: "ada"})

	req := httptest.NewRequest("GET", "/api/audit", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestListAudit_RejectsBadLimit(t *testing.T) {
	mux := newAuditMux(&mockAuditService{}, models.Principal{Username: "root", Admin: true})

	req := httptest.NewRequest("GET", "/api/audit?limit=-1", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
