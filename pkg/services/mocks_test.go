package services

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/personakit/persona-engine/pkg/apperrors"
	"github.com/personakit/persona-engine/pkg/models"
	"github.com/personakit/persona-engine/pkg/repositories"
)

// mockEntryRepository is an in-memory EntryRepository for one namespace.
type mockEntryRepository struct {
	mu      sync.Mutex
	owner   string
	entries []*models.Entry

	// replacing reports an in-flight ReplaceForEndpoint; used to assert
	// replace serialization.
	replacing  bool
	overlapped bool
	onReplace  func()
}

func newMockEntryRepository(owner string) *mockEntryRepository {
	return &mockEntryRepository{owner: owner}
}

var _ repositories.EntryRepository = (*mockEntryRepository)(nil)

func (m *mockEntryRepository) Create(ctx context.Context, entry *models.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *entry
	clone.ID = uuid.New()
	clone.Owner = m.owner
	m.entries = append(m.entries, &clone)
	entry.ID = clone.ID
	entry.Owner = m.owner
	return nil
}

func (m *mockEntryRepository) Update(ctx context.Context, entry *models.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.entries {
		if e.ID == entry.ID {
			clone := *entry
			m.entries[i] = &clone
			return nil
		}
	}
	return apperrors.ErrNotFound
}

func (m *mockEntryRepository) Delete(ctx context.Context, entryID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.entries {
		if e.ID == entryID {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return nil
		}
	}
	return apperrors.ErrNotFound
}

func (m *mockEntryRepository) GetByID(ctx context.Context, entryID uuid.UUID) (*models.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == entryID {
			clone := *e
			return &clone, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockEntryRepository) ListByEndpoint(ctx context.Context, endpointKind string) ([]*models.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Entry
	for _, e := range m.entries {
		if e.EndpointKind == endpointKind {
			clone := *e
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (m *mockEntryRepository) ListEndpointKinds(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]bool{}
	var kinds []string
	for _, e := range m.entries {
		if !seen[e.EndpointKind] {
			seen[e.EndpointKind] = true
			kinds = append(kinds, e.EndpointKind)
		}
	}
	return kinds, nil
}

func (m *mockEntryRepository) ContentHashExists(ctx context.Context, endpointKind, contentHash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.EndpointKind == endpointKind && e.ContentHash == contentHash {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockEntryRepository) ReplaceForEndpoint(ctx context.Context, endpointKind string, entries []*models.Entry) error {
	m.mu.Lock()
	if m.replacing {
		m.overlapped = true
	}
	m.replacing = true
	m.mu.Unlock()

	if m.onReplace != nil {
		m.onReplace()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.replacing = false

	var kept []*models.Entry
	for _, e := range m.entries {
		if e.EndpointKind != endpointKind {
			kept = append(kept, e)
		}
	}
	for _, e := range entries {
		clone := *e
		clone.ID = uuid.New()
		clone.Owner = m.owner
		clone.EndpointKind = endpointKind
		kept = append(kept, &clone)
		e.ID = clone.ID
	}
	m.entries = kept
	return nil
}

// mockAuditRepository is an in-memory append-only audit log.
type mockAuditRepository struct {
	mu      sync.Mutex
	entries []*models.AccessLogEntry
}

var _ repositories.AuditRepository = (*mockAuditRepository)(nil)

func (m *mockAuditRepository) Append(ctx context.Context, entry *models.AccessLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *entry
	clone.ID = uuid.New()
	m.entries = append(m.entries, &clone)
	return nil
}

func (m *mockAuditRepository) List(ctx context.Context, filter repositories.AuditFilter) ([]*models.AccessLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.AccessLogEntry
	for i := len(m.entries) - 1; i >= 0; i-- {
		e := m.entries[i]
		if filter.Principal != "" && e.Principal != filter.Principal {
			continue
		}
		if filter.Target != "" && e.Target != filter.Target {
			continue
		}
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		if filter.Outcome != "" && e.Outcome != filter.Outcome {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *mockAuditRepository) lastOutcome() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.entries) == 0 {
		return ""
	}
	return m.entries[len(m.entries)-1].Outcome
}

// mockUserRepository holds a fixed set of users.
type mockUserRepository struct {
	users map[string]*models.User
}

func newMockUserRepository(usernames ...string) *mockUserRepository {
	m := &mockUserRepository{users: map[string]*models.User{}}
	for _, u := range usernames {
		m.users[u] = &models.User{ID: uuid.New(), Username: u}
	}
	return m
}

var _ repositories.UserRepository = (*mockUserRepository)(nil)

func (m *mockUserRepository) Create(ctx context.Context, user *models.User) error {
	if _, ok := m.users[user.Username]; ok {
		return apperrors.ErrConflict
	}
	user.ID = uuid.New()
	m.users[user.Username] = user
	return nil
}

func (m *mockUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	user, ok := m.users[username]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return user, nil
}

func (m *mockUserRepository) Count(ctx context.Context) (int, error) {
	return len(m.users), nil
}

func (m *mockUserRepository) Sole(ctx context.Context) (*models.User, error) {
	if len(m.users) != 1 {
		return nil, apperrors.ErrConfig
	}
	for _, u := range m.users {
		return u, nil
	}
	return nil, apperrors.ErrConfig
}

// mockImportRunRepository records runs in memory.
type mockImportRunRepository struct {
	mu   sync.Mutex
	runs []*models.ImportRun
}

var _ repositories.ImportRunRepository = (*mockImportRunRepository)(nil)

func (m *mockImportRunRepository) Record(ctx context.Context, run *models.ImportRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *run
	clone.ID = uuid.New()
	m.runs = append(m.runs, &clone)
	return nil
}

func (m *mockImportRunRepository) ListByNamespace(ctx context.Context, namespace string, limit int) ([]*models.ImportRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ImportRun
	for _, r := range m.runs {
		if r.Namespace == namespace {
			out = append(out, r)
		}
	}
	return out, nil
}
