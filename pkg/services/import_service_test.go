package services

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/personakit/persona-engine/pkg/apperrors"
	securityaudit "github.com/personakit/persona-engine/pkg/audit"
	"github.com/personakit/persona-engine/pkg/models"
)

type importFixture struct {
	svc       ImportService
	repo      *mockEntryRepository
	runs      *mockImportRunRepository
	auditRepo *mockAuditRepository
	sourceDir string
}

func newImportFixture(t *testing.T) *importFixture {
	t.Helper()
	repo := newMockEntryRepository("ada")
	runs := &mockImportRunRepository{}
	auditRepo := &mockAuditRepository{}
	sourceDir := t.TempDir()
	svc := NewImportService(
		repo,
		runs,
		NewAuditService(auditRepo, zap.NewNop()),
		securityaudit.NewSecurityAuditor(zap.NewNop()),
		NewViewCache(nil, zap.NewNop()),
		sourceDir,
		zap.NewNop(),
	)
	return &importFixture{svc: svc, repo: repo, runs: runs, auditRepo: auditRepo, sourceDir: sourceDir}
}

func (f *importFixture) writeFile(t *testing.T, namespace, name, content string) {
	t.Helper()
	dir := filepath.Join(f.sourceDir, namespace)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestDiscover(t *testing.T) {
	f := newImportFixture(t)
	f.writeFile(t, "ada", "project.json", `[]`)
	f.writeFile(t, "ada", "resume.md", "# Resume")
	f.writeFile(t, "ada", "skills.json", `[]`)
	f.writeFile(t, "ada", "notes.txt", "ignored")

	candidates, err := f.svc.Discover(context.Background(), "ada")
	require.NoError(t, err)
	require.Len(t, candidates, 3)

	byName := map[string]models.FileCandidate{}
	for _, c := range candidates {
		byName[c.Name] = c
	}
	// JSON collections pluralize; markdown documents keep their name.
	assert.Equal(t, "projects", byName["project.json"].EndpointKind)
	assert.Equal(t, "skills", byName["skills.json"].EndpointKind)
	assert.Equal(t, "resume", byName["resume.md"].EndpointKind)
	assert.Equal(t, "markdown", byName["resume.md"].Format)
}

func TestDiscover_MissingNamespaceDir(t *testing.T) {
	f := newImportFixture(t)

	candidates, err := f.svc.Discover(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestValidate_Shapes(t *testing.T) {
	f := newImportFixture(t)
	ctx := context.Background()

	f.writeFile(t, "ada", "profile.json", `{"name": "Ada", "content": "Engineer.", "visibility": "public"}`)
	f.writeFile(t, "ada", "project.json", `[{"content": "Engine"}, {"content": "Notes on computation"}]`)
	f.writeFile(t, "ada", "skill.json", `{"metadata": {"source": "import"}, "records": [{"content": "Mathematics"}]}`)

	candidates, err := f.svc.Discover(ctx, "ada")
	require.NoError(t, err)
	byName := map[string]models.FileCandidate{}
	for _, c := range candidates {
		byName[c.Name] = c
	}

	payload, err := f.svc.Validate(ctx, "ada", byName["profile.json"])
	require.NoError(t, err)
	assert.Equal(t, ShapeObject, payload.Shape)
	require.Len(t, payload.Records, 1)
	assert.Equal(t, "Engineer.", payload.Records[0].Content)
	assert.Equal(t, "Ada", payload.Records[0].Metadata["name"])
	assert.Equal(t, models.VisibilityPublic, payload.Records[0].Visibility)

	payload, err = f.svc.Validate(ctx, "ada", byName["project.json"])
	require.NoError(t, err)
	assert.Equal(t, ShapeArray, payload.Shape)
	assert.Len(t, payload.Records, 2)
	// Unspecified visibility stays private until the owner opens it up.
	assert.Equal(t, models.VisibilityPrivate, payload.Records[0].Visibility)

	payload, err = f.svc.Validate(ctx, "ada", byName["skill.json"])
	require.NoError(t, err)
	assert.Equal(t, ShapeWrapped, payload.Shape)
	require.Len(t, payload.Records, 1)
	assert.Equal(t, "import", payload.Records[0].Metadata["source"])
}

func TestValidate_Markdown(t *testing.T) {
	f := newImportFixture(t)
	f.writeFile(t, "ada", "resume.md", "# Ada\n\nEngineer.")

	candidates, err := f.svc.Discover(context.Background(), "ada")
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	payload, err := f.svc.Validate(context.Background(), "ada", candidates[0])
	require.NoError(t, err)
	require.Len(t, payload.Records, 1)
	assert.Equal(t, "# Ada\n\nEngineer.", payload.Records[0].Content)
}

func TestValidate_Rejections(t *testing.T) {
	f := newImportFixture(t)
	ctx := context.Background()

	f.writeFile(t, "ada", "broken.json", `{not json`)
	f.writeFile(t, "ada", "scalar.json", `42`)
	f.writeFile(t, "ada", "badvis.json", `{"content": "x", "visibility": "loud"}`)

	candidates, err := f.svc.Discover(ctx, "ada")
	require.NoError(t, err)
	for _, c := range candidates {
		_, err := f.svc.Validate(ctx, "ada", c)
		assert.ErrorIs(t, err, apperrors.ErrValidation, c.Name)
	}
}

func TestValidate_RejectsUnaddressableEndpointKind(t *testing.T) {
	f := newImportFixture(t)
	ctx := context.Background()

	// "My Resume.md" lowercases to "my resume", which no API path can
	// reach; entries imported under it would be unreachable.
	f.writeFile(t, "ada", "My Resume.md", "# Resume")
	f.writeFile(t, "ada", "project.json", `[{"content": "Engine"}]`)

	candidates, err := f.svc.Discover(ctx, "ada")
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	results, err := f.svc.ImportAll(ctx, owner, "ada", false)
	require.NoError(t, err)
	require.Len(t, results, 2)

	byFile := map[string]models.FileResult{}
	for _, r := range results {
		byFile[r.File] = r
	}
	assert.Equal(t, models.ImportStatusFailed, byFile["My Resume.md"].Status)
	assert.Contains(t, byFile["My Resume.md"].Error, "endpoint kind")
	assert.Equal(t, models.ImportStatusImported, byFile["project.json"].Status)

	_, err = f.svc.Validate(ctx, "ada", models.FileCandidate{Name: "My Resume.md", EndpointKind: "my resume", Format: "markdown"})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestApply_AppendDeduplicates(t *testing.T) {
	f := newImportFixture(t)
	ctx := context.Background()

	payload := &models.ParsedPayload{
		EndpointKind: "projects",
		Shape:        ShapeArray,
		Records: []models.ImportRecord{
			{Content: "Engine", Visibility: models.VisibilityPublic},
			{Content: "Notes", Visibility: models.VisibilityPublic},
		},
	}

	result, err := f.svc.Apply(ctx, "ada", payload, false)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, 0, result.Skipped)

	// Importing the same payload again duplicates nothing.
	result, err = f.svc.Apply(ctx, "ada", payload, false)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Imported)
	assert.Equal(t, 2, result.Skipped)
	assert.Equal(t, models.ImportStatusSkipped, result.Status)

	entries, err := f.repo.ListByEndpoint(ctx, "projects")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestApply_ReplaceIsStableAcrossRuns(t *testing.T) {
	f := newImportFixture(t)
	ctx := context.Background()

	payload := &models.ParsedPayload{
		EndpointKind: "projects",
		Shape:        ShapeArray,
		Records: []models.ImportRecord{
			{Content: "One"},
			{Content: "Two"},
		},
	}

	for i := 0; i < 3; i++ {
		result, err := f.svc.Apply(ctx, "ada", payload, true)
		require.NoError(t, err)
		assert.Equal(t, 2, result.Imported)
	}

	entries, err := f.repo.ListByEndpoint(ctx, "projects")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestApply_ReplaceSerializesPerEndpoint(t *testing.T) {
	f := newImportFixture(t)
	ctx := context.Background()

	payload := &models.ParsedPayload{
		EndpointKind: "projects",
		Shape:        ShapeArray,
		Records:      []models.ImportRecord{{Content: "One"}},
	}

	// Widen the window in which an unserialized second replace would overlap.
	f.repo.onReplace = func() { time.Sleep(time.Millisecond) }

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Apply(ctx, "ada", payload, true)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.False(t, f.repo.overlapped, "replace operations must not interleave")

	entries, err := f.repo.ListByEndpoint(ctx, "projects")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestImportAll_IsolatesPerFileFailures(t *testing.T) {
	f := newImportFixture(t)
	ctx := context.Background()

	f.writeFile(t, "ada", "broken.json", `{not json`)
	f.writeFile(t, "ada", "project.json", `[{"content": "Engine"}]`)
	f.writeFile(t, "ada", "resume.md", "# Resume")

	results, err := f.svc.ImportAll(ctx, owner, "ada", false)
	require.NoError(t, err)
	require.Len(t, results, 3)

	byFile := map[string]models.FileResult{}
	for _, r := range results {
		byFile[r.File] = r
	}
	assert.Equal(t, models.ImportStatusFailed, byFile["broken.json"].Status)
	assert.NotEmpty(t, byFile["broken.json"].Error)
	assert.Equal(t, models.ImportStatusImported, byFile["project.json"].Status)
	assert.Equal(t, models.ImportStatusImported, byFile["resume.md"].Status)

	// The run summary and audit trail record the outcome.
	runs, err := f.runs.ListByNamespace(ctx, "ada", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 3, runs[0].Files)
	assert.Equal(t, 2, runs[0].Imported)
	assert.Equal(t, 1, runs[0].Failed)
	assert.Equal(t, models.AuditOutcomeAllowed, f.auditRepo.lastOutcome())
}

func TestImportAll_DoubleRunSkipsEverything(t *testing.T) {
	f := newImportFixture(t)
	ctx := context.Background()

	f.writeFile(t, "ada", "project.json", `[{"content": "Engine"}, {"content": "Notes"}]`)

	results, err := f.svc.ImportAll(ctx, owner, "ada", false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 2, results[0].Imported)

	results, err = f.svc.ImportAll(ctx, owner, "ada", false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 0, results[0].Imported)
	assert.Equal(t, 2, results[0].Skipped)
	assert.Equal(t, models.ImportStatusSkipped, results[0].Status)
}
