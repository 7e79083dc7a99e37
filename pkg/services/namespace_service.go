package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/personakit/persona-engine/pkg/apperrors"
	"github.com/personakit/persona-engine/pkg/audit"
	"github.com/personakit/persona-engine/pkg/models"
	"github.com/personakit/persona-engine/pkg/repositories"
)

// NamespaceService is the user isolation gate: every data operation resolves
// to exactly one owner's namespace before it touches storage.
//
// Two resolution strengths exist. ResolveNamespace guards operations that act
// within a namespace (writes, imports): cross-user resolution requires admin.
// ResolveTarget serves the public read path: any principal may address any
// existing owner, and the visibility resolver decides per entry what that
// principal actually sees.
type NamespaceService interface {
	ResolveNamespace(ctx context.Context, principal models.Principal, target, action string) (string, error)
	ResolveTarget(ctx context.Context, principal models.Principal, target string) (string, error)
}

// NamespaceConfig carries the isolation gate's configuration.
type NamespaceConfig struct {
	// SingleUser maps every resolution target to SoleOwner. Explicit
	// opt-in only; it is never inferred from the account count. Write
	// resolutions still require the sole owner or an admin.
	SingleUser bool
	// SoleOwner is the sole account's username, resolved at startup when
	// SingleUser is set.
	SoleOwner string
}

type namespaceService struct {
	users    repositories.UserRepository
	auditLog AuditService
	security *audit.SecurityAuditor
	cfg      NamespaceConfig
	logger   *zap.Logger
}

// NewNamespaceService creates a new NamespaceService.
func NewNamespaceService(
	users repositories.UserRepository,
	auditLog AuditService,
	security *audit.SecurityAuditor,
	cfg NamespaceConfig,
	logger *zap.Logger,
) NamespaceService {
	return &namespaceService{
		users:    users,
		auditLog: auditLog,
		security: security,
		cfg:      cfg,
		logger:   logger.Named("namespace-service"),
	}
}

var _ NamespaceService = (*namespaceService)(nil)

// ResolveNamespace maps (principal, target) to the namespace the operation
// runs in. Empty target resolves to the principal's own namespace. A target
// naming another user requires an admin principal.
func (s *namespaceService) ResolveNamespace(ctx context.Context, principal models.Principal, target, action string) (string, error) {
	if s.cfg.SingleUser {
		// The target always maps to the sole owner, but writes still belong
		// to the owner or an admin; any other principal is denied.
		if !principal.IsOwnerOf(s.cfg.SoleOwner) && !principal.Admin {
			s.auditLog.Record(ctx, principal, s.cfg.SoleOwner, action, models.AuditOutcomeDenied, "single-user mode: not the sole owner")
			s.security.LogCrossNamespaceDenial(ctx, s.cfg.SoleOwner, action, "")
			return "", apperrors.ErrAccessDenied
		}
		s.auditLog.Record(ctx, principal, s.cfg.SoleOwner, action, models.AuditOutcomeAllowed, "single-user mode")
		return s.cfg.SoleOwner, nil
	}

	if target == "" {
		if principal.Anonymous {
			s.auditLog.Record(ctx, principal, "", action, models.AuditOutcomeDenied, "anonymous principal has no namespace")
			return "", apperrors.ErrAccessDenied
		}
		target = principal.Username
	}

	if _, err := s.users.GetByUsername(ctx, target); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			s.auditLog.Record(ctx, principal, target, action, models.AuditOutcomeDenied, "unknown namespace")
			return "", apperrors.ErrNotFound
		}
		return "", fmt.Errorf("failed to resolve namespace: %w", err)
	}

	if !principal.IsOwnerOf(target) && !principal.Admin {
		s.auditLog.Record(ctx, principal, target, action, models.AuditOutcomeDenied, "cross-namespace without admin")
		s.security.LogCrossNamespaceDenial(ctx, target, action, "")
		return "", apperrors.ErrAccessDenied
	}

	s.auditLog.Record(ctx, principal, target, action, models.AuditOutcomeAllowed, "")
	return target, nil
}

// ResolveTarget resolves the namespace for a read request. The target must
// name an existing owner; per-entry visibility is enforced downstream.
func (s *namespaceService) ResolveTarget(ctx context.Context, principal models.Principal, target string) (string, error) {
	if s.cfg.SingleUser {
		s.auditLog.Record(ctx, principal, s.cfg.SoleOwner, models.AuditActionResolve, models.AuditOutcomeAllowed, "single-user mode")
		return s.cfg.SoleOwner, nil
	}

	if target == "" {
		return "", fmt.Errorf("%w: missing target username", apperrors.ErrValidation)
	}

	if _, err := s.users.GetByUsername(ctx, target); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			s.auditLog.Record(ctx, principal, target, models.AuditActionResolve, models.AuditOutcomeDenied, "unknown namespace")
			return "", apperrors.ErrNotFound
		}
		return "", fmt.Errorf("failed to resolve target: %w", err)
	}

	s.auditLog.Record(ctx, principal, target, models.AuditActionResolve, models.AuditOutcomeAllowed, "")
	return target, nil
}
