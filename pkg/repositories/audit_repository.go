package repositories

import (
	"context"
	"fmt"

	"github.com/personakit/persona-engine/pkg/database"
	"github.com/personakit/persona-engine/pkg/models"
)

// DefaultAuditLimit bounds audit listings when the caller gives no limit.
const DefaultAuditLimit = 100

// MaxAuditLimit is the hard cap on a single audit listing.
const MaxAuditLimit = 1000

// AuditFilter narrows an audit listing. Zero values mean "any".
type AuditFilter struct {
	Principal string
	Target    string
	Action    string
	Outcome   string
	Limit     int
}

// AuditRepository provides append-only access to the access audit trail.
//
// The audit trail is deliberately outside the namespace scope: a denial of a
// cross-namespace request must be recorded even though the caller never gets
// a connection scoped to the target owner.
type AuditRepository interface {
	Append(ctx context.Context, entry *models.AccessLogEntry) error
	List(ctx context.Context, filter AuditFilter) ([]*models.AccessLogEntry, error)
}

type auditRepository struct {
	db *database.DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *database.DB) AuditRepository {
	return &auditRepository{db: db}
}

var _ AuditRepository = (*auditRepository)(nil)

func (r *auditRepository) Append(ctx context.Context, entry *models.AccessLogEntry) error {
	query := `
		INSERT INTO access_log (principal, target, action, outcome, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING id, created_at`

	err := r.db.Pool.QueryRow(ctx, query,
		entry.Principal,
		entry.Target,
		entry.Action,
		entry.Outcome,
		entry.Detail,
	).Scan(&entry.ID, &entry.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	return nil
}

func (r *auditRepository) List(ctx context.Context, filter AuditFilter) ([]*models.AccessLogEntry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultAuditLimit
	}
	if limit > MaxAuditLimit {
		limit = MaxAuditLimit
	}

	query := `
		SELECT id, principal, target, action, outcome, detail, created_at
		FROM access_log
		WHERE ($1 = '' OR principal = $1)
		  AND ($2 = '' OR target = $2)
		  AND ($3 = '' OR action = $3)
		  AND ($4 = '' OR outcome = $4)
		ORDER BY created_at DESC, id DESC
		LIMIT $5`

	rows, err := r.db.Pool.Query(ctx, query,
		filter.Principal, filter.Target, filter.Action, filter.Outcome, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.AccessLogEntry
	for rows.Next() {
		var entry models.AccessLogEntry
		err := rows.Scan(
			&entry.ID,
			&entry.Principal,
			&entry.Target,
			&entry.Action,
			&entry.Outcome,
			&entry.Detail,
			&entry.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}
