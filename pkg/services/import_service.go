package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"github.com/personakit/persona-engine/pkg/apperrors"
	"github.com/personakit/persona-engine/pkg/audit"
	"github.com/personakit/persona-engine/pkg/jsonutil"
	"github.com/personakit/persona-engine/pkg/logging"
	"github.com/personakit/persona-engine/pkg/models"
	"github.com/personakit/persona-engine/pkg/repositories"
	"github.com/personakit/persona-engine/pkg/sql"
)

// Import payload shapes, auto-detected by structural inspection.
const (
	ShapeObject  = "object"
	ShapeArray   = "array"
	ShapeWrapped = "wrapped"
)

// ImportService moves external files into a namespace without violating
// isolation or silently duplicating data. Per file: discovered -> validated
// -> one of merged/replaced/rejected.
//
// Apply and ImportAll expect a namespace scope in the context; Discover and
// Validate never touch the database.
type ImportService interface {
	Discover(ctx context.Context, namespace string) ([]models.FileCandidate, error)
	Validate(ctx context.Context, namespace string, candidate models.FileCandidate) (*models.ParsedPayload, error)
	Apply(ctx context.Context, namespace string, payload *models.ParsedPayload, replace bool) (*models.FileResult, error)
	ImportAll(ctx context.Context, principal models.Principal, namespace string, replace bool) ([]models.FileResult, error)
	ListRuns(ctx context.Context, namespace string, limit int) ([]*models.ImportRun, error)
}

type importService struct {
	repo      repositories.EntryRepository
	runs      repositories.ImportRunRepository
	auditLog  AuditService
	security  *audit.SecurityAuditor
	cache     *ViewCache
	sourceDir string
	logger    *zap.Logger

	// mu guards locks; each per-(namespace, endpoint) mutex serializes
	// replace-mode writes so concurrent imports never interleave.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewImportService creates a new ImportService reading from sourceDir.
func NewImportService(
	repo repositories.EntryRepository,
	runs repositories.ImportRunRepository,
	auditLog AuditService,
	security *audit.SecurityAuditor,
	cache *ViewCache,
	sourceDir string,
	logger *zap.Logger,
) ImportService {
	return &importService{
		repo:      repo,
		runs:      runs,
		auditLog:  auditLog,
		security:  security,
		cache:     cache,
		sourceDir: sourceDir,
		logger:    logger.Named("import-service"),
		locks:     make(map[string]*sync.Mutex),
	}
}

var _ ImportService = (*importService)(nil)

// Discover scans the namespace's subdirectory of the import source for
// candidate files. JSON files hold record collections and map to pluralized
// endpoint kinds (project.json -> projects); markdown files are single
// documents and keep their name (resume.md -> resume).
func (s *importService) Discover(ctx context.Context, namespace string) ([]models.FileCandidate, error) {
	dir := filepath.Join(s.sourceDir, namespace)
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan import source: %w", err)
	}

	var candidates []models.FileCandidate
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		name := de.Name()
		ext := strings.ToLower(filepath.Ext(name))
		base := strings.ToLower(strings.TrimSuffix(name, filepath.Ext(name)))
		if base == "" {
			continue
		}

		switch ext {
		case ".json":
			candidates = append(candidates, models.FileCandidate{
				Path:         filepath.Join(dir, name),
				Name:         name,
				EndpointKind: inflection.Plural(base),
				Format:       "json",
			})
		case ".md", ".markdown":
			candidates = append(candidates, models.FileCandidate{
				Path:         filepath.Join(dir, name),
				Name:         name,
				EndpointKind: base,
				Format:       "markdown",
			})
		}
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Name < candidates[j].Name })
	return candidates, nil
}

// Validate reads and parses a candidate file. Shape is detected from the
// payload structure, never the extension. String values are screened for
// injection patterns; a hit raises a security audit event but never rejects
// the file - imported values only ever travel as bound parameters.
func (s *importService) Validate(ctx context.Context, namespace string, candidate models.FileCandidate) (*models.ParsedPayload, error) {
	// A filename like "My Resume.md" derives an endpoint kind the API can
	// never address; reject it before anything is written.
	if !models.ValidEndpointKind(candidate.EndpointKind) {
		return nil, fmt.Errorf("%w: %s derives unusable endpoint kind %q", apperrors.ErrValidation, candidate.Name, candidate.EndpointKind)
	}

	data, err := os.ReadFile(candidate.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot read %s: %v", apperrors.ErrValidation, candidate.Name, err)
	}

	var payload *models.ParsedPayload
	switch candidate.Format {
	case "markdown":
		payload = &models.ParsedPayload{
			EndpointKind: candidate.EndpointKind,
			Shape:        ShapeObject,
			Records: []models.ImportRecord{{
				Content:    string(data),
				Visibility: models.VisibilityPrivate,
			}},
		}
	case "json":
		payload, err = s.parseJSON(candidate, data)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", apperrors.ErrValidation, candidate.Format)
	}

	for _, record := range payload.Records {
		s.scanRecord(ctx, namespace, candidate.Name, record)
	}

	return payload, nil
}

// parseJSON detects the payload shape and extracts records.
func (s *importService) parseJSON(candidate models.FileCandidate, data []byte) (*models.ParsedPayload, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s is not valid JSON: %v", apperrors.ErrValidation, candidate.Name, err)
	}

	payload := &models.ParsedPayload{EndpointKind: candidate.EndpointKind}

	switch v := raw.(type) {
	case []any:
		payload.Shape = ShapeArray
		for i, item := range v {
			record, err := parseRecord(item, nil)
			if err != nil {
				return nil, fmt.Errorf("%w: %s record %d: %v", apperrors.ErrValidation, candidate.Name, i, err)
			}
			payload.Records = append(payload.Records, record)
		}
	case map[string]any:
		if wrapped, ok := v["records"].([]any); ok {
			payload.Shape = ShapeWrapped
			shared := sharedMetadata(v)
			for i, item := range wrapped {
				record, err := parseRecord(item, shared)
				if err != nil {
					return nil, fmt.Errorf("%w: %s record %d: %v", apperrors.ErrValidation, candidate.Name, i, err)
				}
				payload.Records = append(payload.Records, record)
			}
		} else {
			payload.Shape = ShapeObject
			record, err := parseRecord(v, nil)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", apperrors.ErrValidation, candidate.Name, err)
			}
			payload.Records = append(payload.Records, record)
		}
	default:
		return nil, fmt.Errorf("%w: %s: top-level value must be an object or array", apperrors.ErrValidation, candidate.Name)
	}

	if len(payload.Records) == 0 {
		return nil, fmt.Errorf("%w: %s holds no records", apperrors.ErrValidation, candidate.Name)
	}

	return payload, nil
}

// parseRecord converts one JSON value into an ImportRecord. The "content"
// field becomes narrative content, "visibility" sets the entry tag, and every
// other scalar field lands in metadata. shared metadata from a wrapped
// payload applies where the record itself has no value for the key.
func parseRecord(item any, shared map[string]string) (models.ImportRecord, error) {
	obj, ok := item.(map[string]any)
	if !ok {
		return models.ImportRecord{}, fmt.Errorf("record must be an object")
	}

	record := models.ImportRecord{
		Metadata:   make(map[string]string),
		Visibility: models.VisibilityPrivate,
	}
	for k, v := range shared {
		record.Metadata[k] = v
	}

	for key, value := range obj {
		switch key {
		case "content":
			str, ok := value.(string)
			if !ok {
				return models.ImportRecord{}, fmt.Errorf("content must be a string")
			}
			record.Content = str
		case "visibility":
			str, _ := value.(string)
			vis := models.Visibility(str)
			if !models.ValidVisibility(vis) {
				return models.ImportRecord{}, fmt.Errorf("unknown visibility %q", str)
			}
			record.Visibility = vis
		default:
			if str, ok := jsonutil.ScalarString(value); ok {
				record.Metadata[key] = str
			}
			// Nested objects/arrays are not flattened into metadata.
		}
	}

	if record.Content == "" && len(record.Metadata) == 0 {
		return models.ImportRecord{}, fmt.Errorf("record is empty")
	}

	return record, nil
}

// sharedMetadata extracts wrapped-payload top-level scalars (minus the
// records array) as metadata inherited by every record.
func sharedMetadata(obj map[string]any) map[string]string {
	shared := make(map[string]string)
	for key, value := range obj {
		if key == "records" {
			continue
		}
		if md, ok := value.(map[string]any); ok && key == "metadata" {
			for k, v := range md {
				if str, ok := jsonutil.ScalarString(v); ok {
					shared[k] = str
				}
			}
			continue
		}
		if str, ok := jsonutil.ScalarString(value); ok {
			shared[key] = str
		}
	}
	return shared
}

// scanRecord screens every string value in the record for injection patterns.
func (s *importService) scanRecord(ctx context.Context, namespace, file string, record models.ImportRecord) {
	for _, hit := range sql.CheckRecord(record.Content, record.Metadata) {
		s.security.LogSuspiciousImportPayload(ctx, namespace, audit.InjectionPayloadDetails{
			File:        file,
			Field:       hit.Field,
			Fingerprint: hit.Fingerprint,
			Snippet:     logging.SanitizeValue(hit.Value),
		})
	}
}

// Apply writes a validated payload into the namespace.
//
// replace=true swaps the endpoint's entire entry set in one transaction,
// serialized per (namespace, endpoint) so concurrent replaces never
// interleave. replace=false appends, skipping records whose content hash
// already exists for the endpoint.
func (s *importService) Apply(ctx context.Context, namespace string, payload *models.ParsedPayload, replace bool) (*models.FileResult, error) {
	lock := s.lockFor(namespace, payload.EndpointKind)
	lock.Lock()
	defer lock.Unlock()

	result := &models.FileResult{Status: models.ImportStatusImported}

	if replace {
		entries, skipped := buildEntries(payload)
		if err := s.repo.ReplaceForEndpoint(ctx, payload.EndpointKind, entries); err != nil {
			return nil, fmt.Errorf("replace failed for %s: %w", payload.EndpointKind, err)
		}
		result.Imported = len(entries)
		result.Skipped = skipped
	} else {
		for _, record := range payload.Records {
			entry := entryFromRecord(payload.EndpointKind, record)
			exists, err := s.repo.ContentHashExists(ctx, payload.EndpointKind, entry.ContentHash)
			if err != nil {
				return nil, fmt.Errorf("dedup check failed for %s: %w", payload.EndpointKind, err)
			}
			if exists {
				result.Skipped++
				continue
			}
			if err := s.repo.Create(ctx, entry); err != nil {
				return nil, fmt.Errorf("insert failed for %s: %w", payload.EndpointKind, err)
			}
			result.Imported++
		}
		if result.Imported == 0 && result.Skipped > 0 {
			result.Status = models.ImportStatusSkipped
		}
	}

	s.cache.Invalidate(ctx, namespace, payload.EndpointKind)
	return result, nil
}

// ImportAll runs the full pipeline for a namespace. A failure in one file is
// recorded in its result and never aborts the rest of the run.
func (s *importService) ImportAll(ctx context.Context, principal models.Principal, namespace string, replace bool) ([]models.FileResult, error) {
	started := time.Now()

	candidates, err := s.Discover(ctx, namespace)
	if err != nil {
		return nil, err
	}

	results := make([]models.FileResult, 0, len(candidates))
	run := &models.ImportRun{
		Namespace: namespace,
		Principal: principal.String(),
		Files:     len(candidates),
		Replace:   replace,
		StartedAt: started,
	}

	for _, candidate := range candidates {
		payload, err := s.Validate(ctx, namespace, candidate)
		if err != nil {
			s.logger.Warn("Import file rejected",
				zap.String("namespace", namespace),
				zap.String("file", candidate.Name),
				zap.String("error", logging.SanitizeError(err)))
			results = append(results, models.FileResult{
				File:   candidate.Name,
				Status: models.ImportStatusFailed,
				Error:  err.Error(),
			})
			run.Failed++
			continue
		}

		result, err := s.Apply(ctx, namespace, payload, replace)
		if err != nil {
			s.logger.Error("Import apply failed",
				zap.String("namespace", namespace),
				zap.String("file", candidate.Name),
				zap.String("error", logging.SanitizeError(err)))
			results = append(results, models.FileResult{
				File:   candidate.Name,
				Status: models.ImportStatusFailed,
				Error:  err.Error(),
			})
			run.Failed++
			continue
		}

		result.File = candidate.Name
		results = append(results, *result)
		run.Imported += result.Imported
		run.Skipped += result.Skipped
	}

	s.auditLog.Record(ctx, principal, namespace, models.AuditActionImport, models.AuditOutcomeAllowed,
		fmt.Sprintf("%d files: %d imported, %d skipped, %d failed",
			run.Files, run.Imported, run.Skipped, run.Failed))
	if err := s.runs.Record(ctx, run); err != nil {
		s.logger.Error("Failed to record import run", zap.Error(err))
	}

	return results, nil
}

// ListRuns returns the namespace's most recent import runs, newest first.
func (s *importService) ListRuns(ctx context.Context, namespace string, limit int) ([]*models.ImportRun, error) {
	return s.runs.ListByNamespace(ctx, namespace, limit)
}

func (s *importService) lockFor(namespace, endpointKind string) *sync.Mutex {
	key := namespace + "/" + endpointKind
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	return lock
}

// buildEntries converts payload records to entries, dropping duplicates
// within the payload itself so a replace never inserts the same content
// twice.
func buildEntries(payload *models.ParsedPayload) ([]*models.Entry, int) {
	seen := make(map[string]bool, len(payload.Records))
	entries := make([]*models.Entry, 0, len(payload.Records))
	skipped := 0
	for _, record := range payload.Records {
		entry := entryFromRecord(payload.EndpointKind, record)
		if seen[entry.ContentHash] {
			skipped++
			continue
		}
		seen[entry.ContentHash] = true
		entries = append(entries, entry)
	}
	return entries, skipped
}

func entryFromRecord(endpointKind string, record models.ImportRecord) *models.Entry {
	return &models.Entry{
		EndpointKind: endpointKind,
		Content:      record.Content,
		Metadata:     record.Metadata,
		Visibility:   record.Visibility,
		ContentHash:  models.ComputeContentHash(record.Content, record.Metadata),
	}
}
