package repositories

import (
	"context"
	"fmt"

	"github.com/personakit/persona-engine/pkg/database"
	"github.com/personakit/persona-engine/pkg/models"
)

// ImportRunRepository persists bulk import run summaries.
// Runs are recorded outside the namespace scope so a run into a namespace the
// caller was denied still leaves a trace.
type ImportRunRepository interface {
	Record(ctx context.Context, run *models.ImportRun) error
	ListByNamespace(ctx context.Context, namespace string, limit int) ([]*models.ImportRun, error)
}

type importRunRepository struct {
	db *database.DB
}

// NewImportRunRepository creates a new ImportRunRepository.
func NewImportRunRepository(db *database.DB) ImportRunRepository {
	return &importRunRepository{db: db}
}

var _ ImportRunRepository = (*importRunRepository)(nil)

func (r *importRunRepository) Record(ctx context.Context, run *models.ImportRun) error {
	query := `
		INSERT INTO import_runs (
			namespace, principal, files, imported, skipped, failed,
			replace_mode, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		RETURNING id, finished_at`

	err := r.db.Pool.QueryRow(ctx, query,
		run.Namespace,
		run.Principal,
		run.Files,
		run.Imported,
		run.Skipped,
		run.Failed,
		run.Replace,
		run.StartedAt,
	).Scan(&run.ID, &run.FinishedAt)
	if err != nil {
		return fmt.Errorf("failed to record import run: %w", err)
	}

	return nil
}

func (r *importRunRepository) ListByNamespace(ctx context.Context, namespace string, limit int) ([]*models.ImportRun, error) {
	if limit <= 0 {
		limit = DefaultAuditLimit
	}

	query := `
		SELECT id, namespace, principal, files, imported, skipped, failed,
		       replace_mode, started_at, finished_at
		FROM import_runs
		WHERE namespace = $1
		ORDER BY finished_at DESC
		LIMIT $2`

	rows, err := r.db.Pool.Query(ctx, query, namespace, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list import runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.ImportRun
	for rows.Next() {
		var run models.ImportRun
		err := rows.Scan(
			&run.ID,
			&run.Namespace,
			&run.Principal,
			&run.Files,
			&run.Imported,
			&run.Skipped,
			&run.Failed,
			&run.Replace,
			&run.StartedAt,
			&run.FinishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan import run: %w", err)
		}
		runs = append(runs, &run)
	}

	return runs, rows.Err()
}
