package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/personakit/persona-engine/pkg/apperrors"
	"github.com/personakit/persona-engine/pkg/database"
	"github.com/personakit/persona-engine/pkg/models"
)

// EntryRepository provides data access for personal data entries.
//
// All methods except none operate inside the namespace scope carried in the
// context: the connection has app.current_owner set and row-level security
// confines every statement to that owner's rows.
type EntryRepository interface {
	Create(ctx context.Context, entry *models.Entry) error
	Update(ctx context.Context, entry *models.Entry) error
	Delete(ctx context.Context, entryID uuid.UUID) error
	GetByID(ctx context.Context, entryID uuid.UUID) (*models.Entry, error)
	ListByEndpoint(ctx context.Context, endpointKind string) ([]*models.Entry, error)
	ListEndpointKinds(ctx context.Context) ([]string, error)
	ContentHashExists(ctx context.Context, endpointKind, contentHash string) (bool, error)
	// ReplaceForEndpoint deletes every entry of the endpoint kind and inserts
	// the given entries in a single transaction. Readers never observe the
	// intermediate empty state.
	ReplaceForEndpoint(ctx context.Context, endpointKind string, entries []*models.Entry) error
}

type entryRepository struct{}

// NewEntryRepository creates a new EntryRepository.
func NewEntryRepository() EntryRepository {
	return &entryRepository{}
}

var _ EntryRepository = (*entryRepository)(nil)

func (r *entryRepository) Create(ctx context.Context, entry *models.Entry) error {
	scope, ok := database.GetNamespaceScope(ctx)
	if !ok {
		return fmt.Errorf("no namespace scope in context")
	}

	now := time.Now()

	query := `
		INSERT INTO entries (
			owner, endpoint_kind, content, metadata, visibility,
			content_hash, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`

	err := scope.Conn.QueryRow(ctx, query,
		scope.Owner,
		entry.EndpointKind,
		entry.Content,
		metadataValue(entry.Metadata),
		entry.Visibility,
		entry.ContentHash,
		now,
		now,
	).Scan(&entry.ID, &entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create entry: %w", err)
	}
	entry.Owner = scope.Owner

	return nil
}

func (r *entryRepository) Update(ctx context.Context, entry *models.Entry) error {
	scope, ok := database.GetNamespaceScope(ctx)
	if !ok {
		return fmt.Errorf("no namespace scope in context")
	}

	query := `
		UPDATE entries
		SET content = $2, metadata = $3, visibility = $4,
		    content_hash = $5, updated_at = now()
		WHERE id = $1 AND owner = $6
		RETURNING updated_at`

	err := scope.Conn.QueryRow(ctx, query,
		entry.ID,
		entry.Content,
		metadataValue(entry.Metadata),
		entry.Visibility,
		entry.ContentHash,
		scope.Owner,
	).Scan(&entry.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.ErrNotFound
		}
		return fmt.Errorf("failed to update entry: %w", err)
	}

	return nil
}

func (r *entryRepository) Delete(ctx context.Context, entryID uuid.UUID) error {
	scope, ok := database.GetNamespaceScope(ctx)
	if !ok {
		return fmt.Errorf("no namespace scope in context")
	}

	result, err := scope.Conn.Exec(ctx,
		`DELETE FROM entries WHERE id = $1 AND owner = $2`, entryID, scope.Owner)
	if err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

func (r *entryRepository) GetByID(ctx context.Context, entryID uuid.UUID) (*models.Entry, error) {
	scope, ok := database.GetNamespaceScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no namespace scope in context")
	}

	query := `
		SELECT id, owner, endpoint_kind, content, metadata, visibility,
		       content_hash, created_at, updated_at
		FROM entries
		WHERE id = $1 AND owner = $2`

	entry, err := scanEntry(scope.Conn.QueryRow(ctx, query, entryID, scope.Owner))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}

	return entry, nil
}

func (r *entryRepository) ListByEndpoint(ctx context.Context, endpointKind string) ([]*models.Entry, error) {
	scope, ok := database.GetNamespaceScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no namespace scope in context")
	}

	query := `
		SELECT id, owner, endpoint_kind, content, metadata, visibility,
		       content_hash, created_at, updated_at
		FROM entries
		WHERE endpoint_kind = $1 AND owner = $2
		ORDER BY seq`

	rows, err := scope.Conn.Query(ctx, query, endpointKind, scope.Owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

func (r *entryRepository) ListEndpointKinds(ctx context.Context) ([]string, error) {
	scope, ok := database.GetNamespaceScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no namespace scope in context")
	}

	rows, err := scope.Conn.Query(ctx,
		`SELECT DISTINCT endpoint_kind FROM entries WHERE owner = $1 ORDER BY endpoint_kind`,
		scope.Owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list endpoint kinds: %w", err)
	}
	defer rows.Close()

	var kinds []string
	for rows.Next() {
		var kind string
		if err := rows.Scan(&kind); err != nil {
			return nil, fmt.Errorf("failed to scan endpoint kind: %w", err)
		}
		kinds = append(kinds, kind)
	}

	return kinds, rows.Err()
}

func (r *entryRepository) ContentHashExists(ctx context.Context, endpointKind, contentHash string) (bool, error) {
	scope, ok := database.GetNamespaceScope(ctx)
	if !ok {
		return false, fmt.Errorf("no namespace scope in context")
	}

	var exists bool
	err := scope.Conn.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM entries WHERE endpoint_kind = $1 AND content_hash = $2 AND owner = $3)`,
		endpointKind, contentHash, scope.Owner,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check content hash: %w", err)
	}

	return exists, nil
}

func (r *entryRepository) ReplaceForEndpoint(ctx context.Context, endpointKind string, entries []*models.Entry) error {
	scope, ok := database.GetNamespaceScope(ctx)
	if !ok {
		return fmt.Errorf("no namespace scope in context")
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin replace transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM entries WHERE endpoint_kind = $1 AND owner = $2`, endpointKind, scope.Owner); err != nil {
		return fmt.Errorf("failed to clear endpoint: %w", err)
	}

	now := time.Now()
	query := `
		INSERT INTO entries (
			owner, endpoint_kind, content, metadata, visibility,
			content_hash, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	for _, entry := range entries {
		err := tx.QueryRow(ctx, query,
			scope.Owner,
			endpointKind,
			entry.Content,
			metadataValue(entry.Metadata),
			entry.Visibility,
			entry.ContentHash,
			now,
			now,
		).Scan(&entry.ID)
		if err != nil {
			return fmt.Errorf("failed to insert replacement entry: %w", err)
		}
		entry.Owner = scope.Owner
		entry.EndpointKind = endpointKind
		entry.CreatedAt = now
		entry.UpdatedAt = now
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit replace transaction: %w", err)
	}

	return nil
}

// scanner covers pgx.Row and pgx.Rows for shared scanning.
type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*models.Entry, error) {
	var entry models.Entry
	var metadata []byte

	err := row.Scan(
		&entry.ID,
		&entry.Owner,
		&entry.EndpointKind,
		&entry.Content,
		&metadata,
		&entry.Visibility,
		&entry.ContentHash,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &entry.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode entry metadata: %w", err)
		}
	}

	return &entry, nil
}

// metadataValue renders metadata as JSONB, with NULL for an empty map.
func metadataValue(metadata map[string]string) any {
	if len(metadata) == 0 {
		return nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil
	}
	return data
}
