package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/personakit/persona-engine/pkg/models"
	"github.com/personakit/persona-engine/pkg/repositories"
)

// AuditService records and exposes the append-only access audit trail.
// Every namespace resolution and import run leaves an entry of the shape
// {principal, target, action, outcome, timestamp}.
type AuditService interface {
	// Record appends one entry. Append failures are logged but never fail
	// the operation being audited.
	Record(ctx context.Context, principal models.Principal, target, action, outcome, detail string)

	// List returns audit entries for admin review, newest first.
	List(ctx context.Context, filter repositories.AuditFilter) ([]*models.AccessLogEntry, error)
}

type auditService struct {
	repo   repositories.AuditRepository
	logger *zap.Logger
}

// NewAuditService creates a new AuditService.
func NewAuditService(repo repositories.AuditRepository, logger *zap.Logger) AuditService {
	return &auditService{
		repo:   repo,
		logger: logger.Named("audit-service"),
	}
}

var _ AuditService = (*auditService)(nil)

func (s *auditService) Record(ctx context.Context, principal models.Principal, target, action, outcome, detail string) {
	entry := &models.AccessLogEntry{
		Principal: principal.String(),
		Target:    target,
		Action:    action,
		Outcome:   outcome,
		Detail:    detail,
	}

	if err := s.repo.Append(ctx, entry); err != nil {
		s.logger.Error("Failed to append audit entry",
			zap.String("principal", entry.Principal),
			zap.String("target", target),
			zap.String("action", action),
			zap.String("outcome", outcome),
			zap.Error(err))
	}
}

func (s *auditService) List(ctx context.Context, filter repositories.AuditFilter) ([]*models.AccessLogEntry, error) {
	return s.repo.List(ctx, filter)
}
