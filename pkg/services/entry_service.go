package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/personakit/persona-engine/pkg/apperrors"
	"github.com/personakit/persona-engine/pkg/audit"
	"github.com/personakit/persona-engine/pkg/models"
	"github.com/personakit/persona-engine/pkg/privacy"
	"github.com/personakit/persona-engine/pkg/repositories"
)

// EntryInput carries the caller-supplied fields for entry creation.
type EntryInput struct {
	EndpointKind string
	Content      string
	Metadata     map[string]string
	Visibility   models.Visibility
}

// EntryUpdate carries the mutable fields of an entry. Nil pointers leave the
// field unchanged; owner and endpoint kind are immutable after creation.
type EntryUpdate struct {
	Content    *string
	Metadata   map[string]string
	Visibility *models.Visibility
}

// EntryService serves personal data entries through the privacy engine.
// Read methods return filtered views only; an unfiltered entry never crosses
// this boundary toward a non-owner caller.
//
// All methods expect a namespace scope in the context for the entry's owner.
type EntryService interface {
	GetEntry(ctx context.Context, principal models.Principal, owner, endpointKind string, entryID uuid.UUID, level privacy.Level) (*privacy.FilteredEntry, error)
	ListEntries(ctx context.Context, principal models.Principal, owner, endpointKind string, level privacy.Level) ([]*privacy.FilteredEntry, error)
	ListEndpointKinds(ctx context.Context) ([]string, error)
	CreateEntry(ctx context.Context, principal models.Principal, owner string, input EntryInput) (*models.Entry, error)
	UpdateEntry(ctx context.Context, principal models.Principal, owner string, entryID uuid.UUID, update EntryUpdate) (*models.Entry, error)
	DeleteEntry(ctx context.Context, principal models.Principal, owner string, entryID uuid.UUID) error
}

type entryService struct {
	repo              repositories.EntryRepository
	rules             *privacy.Store
	cache             *ViewCache
	auditLog          AuditService
	security          *audit.SecurityAuditor
	adminSeesUnlisted bool
	logger            *zap.Logger
}

// NewEntryService creates a new EntryService.
func NewEntryService(
	repo repositories.EntryRepository,
	rules *privacy.Store,
	cache *ViewCache,
	auditLog AuditService,
	security *audit.SecurityAuditor,
	adminSeesUnlisted bool,
	logger *zap.Logger,
) EntryService {
	return &entryService{
		repo:              repo,
		rules:             rules,
		cache:             cache,
		auditLog:          auditLog,
		security:          security,
		adminSeesUnlisted: adminSeesUnlisted,
		logger:            logger.Named("entry-service"),
	}
}

var _ EntryService = (*entryService)(nil)

func (s *entryService) GetEntry(ctx context.Context, principal models.Principal, owner, endpointKind string, entryID uuid.UUID, level privacy.Level) (*privacy.FilteredEntry, error) {
	if !level.Valid() {
		return nil, fmt.Errorf("%w: unknown privacy level %q", apperrors.ErrValidation, level)
	}

	rules := s.rules.Current()
	fingerprint := rules.Fingerprint()

	if view := s.cache.Get(ctx, owner, endpointKind, entryID.String(), level, fingerprint); view != nil {
		// The cached view carries the visibility tag; accessibility is still
		// evaluated per caller before anything leaves the cache.
		if !s.admit(ctx, view.Owner, view.EndpointKind, view.ID, view.Visibility, principal) {
			return nil, apperrors.ErrNotFound
		}
		return view, nil
	}

	entry, err := s.repo.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.EndpointKind != endpointKind {
		return nil, apperrors.ErrNotFound
	}
	if !s.admit(ctx, entry.Owner, entry.EndpointKind, entry.ID, entry.Visibility, principal) {
		return nil, apperrors.ErrNotFound
	}

	view, err := privacy.FilterEntry(entry, level, rules)
	if err != nil {
		// Fail closed: an entry that cannot be filtered is not served.
		s.logger.Error("Filtering failed, omitting entry",
			zap.String("entry_id", entryID.String()),
			zap.String("level", string(level)),
			zap.Error(err))
		return nil, apperrors.ErrNotFound
	}

	s.cache.Set(ctx, owner, endpointKind, entryID.String(), level, fingerprint, view)
	return view, nil
}

func (s *entryService) ListEntries(ctx context.Context, principal models.Principal, owner, endpointKind string, level privacy.Level) ([]*privacy.FilteredEntry, error) {
	if !level.Valid() {
		return nil, fmt.Errorf("%w: unknown privacy level %q", apperrors.ErrValidation, level)
	}

	entries, err := s.repo.ListByEndpoint(ctx, endpointKind)
	if err != nil {
		return nil, err
	}

	rules := s.rules.Current()
	views := make([]*privacy.FilteredEntry, 0, len(entries))
	for _, entry := range entries {
		if !privacy.VisibleInListing(entry, principal, s.adminSeesUnlisted) {
			continue
		}
		view, err := privacy.FilterEntry(entry, level, rules)
		if err != nil {
			// Omit the entry rather than risk serving it unfiltered.
			s.logger.Error("Filtering failed, omitting entry from listing",
				zap.String("entry_id", entry.ID.String()),
				zap.Error(err))
			continue
		}
		views = append(views, view)
	}

	return views, nil
}

func (s *entryService) ListEndpointKinds(ctx context.Context) ([]string, error) {
	return s.repo.ListEndpointKinds(ctx)
}

func (s *entryService) CreateEntry(ctx context.Context, principal models.Principal, owner string, input EntryInput) (*models.Entry, error) {
	if input.EndpointKind == "" {
		return nil, fmt.Errorf("%w: endpoint kind is required", apperrors.ErrValidation)
	}
	if input.Visibility == "" {
		input.Visibility = models.VisibilityPrivate
	}
	if !models.ValidVisibility(input.Visibility) {
		return nil, fmt.Errorf("%w: unknown visibility %q", apperrors.ErrValidation, input.Visibility)
	}

	entry := &models.Entry{
		EndpointKind: input.EndpointKind,
		Content:      input.Content,
		Metadata:     input.Metadata,
		Visibility:   input.Visibility,
		ContentHash:  models.ComputeContentHash(input.Content, input.Metadata),
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		return nil, err
	}

	s.auditLog.Record(ctx, principal, owner, models.AuditActionCreate, models.AuditOutcomeAllowed,
		fmt.Sprintf("%s: %s", entry.EndpointKind, entry.ID))
	s.cache.Invalidate(ctx, owner, entry.EndpointKind)

	return entry, nil
}

func (s *entryService) UpdateEntry(ctx context.Context, principal models.Principal, owner string, entryID uuid.UUID, update EntryUpdate) (*models.Entry, error) {
	entry, err := s.repo.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}

	if update.Visibility != nil && *update.Visibility != entry.Visibility {
		// Visibility is the owner's call alone; admins may fix content but
		// not widen or narrow what the owner chose to expose.
		if !principal.IsOwnerOf(entry.Owner) {
			return nil, apperrors.ErrNotOwner
		}
		if !models.ValidVisibility(*update.Visibility) {
			return nil, fmt.Errorf("%w: unknown visibility %q", apperrors.ErrValidation, *update.Visibility)
		}
		entry.Visibility = *update.Visibility
	}
	if update.Content != nil {
		entry.Content = *update.Content
	}
	if update.Metadata != nil {
		entry.Metadata = update.Metadata
	}
	entry.ContentHash = models.ComputeContentHash(entry.Content, entry.Metadata)

	if err := s.repo.Update(ctx, entry); err != nil {
		return nil, err
	}

	s.auditLog.Record(ctx, principal, owner, models.AuditActionUpdate, models.AuditOutcomeAllowed,
		fmt.Sprintf("%s: %s", entry.EndpointKind, entry.ID))
	s.cache.Invalidate(ctx, owner, entry.EndpointKind)

	return entry, nil
}

func (s *entryService) DeleteEntry(ctx context.Context, principal models.Principal, owner string, entryID uuid.UUID) error {
	entry, err := s.repo.GetByID(ctx, entryID)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, entryID); err != nil {
		return err
	}

	s.auditLog.Record(ctx, principal, owner, models.AuditActionDelete, models.AuditOutcomeAllowed,
		fmt.Sprintf("%s: %s", entry.EndpointKind, entry.ID))
	s.cache.Invalidate(ctx, owner, entry.EndpointKind)

	return nil
}

// admit applies the visibility resolver and records probe attempts on private
// entries. Denial is reported as plain false; callers translate it to a
// not-found so existence is never confirmed.
func (s *entryService) admit(ctx context.Context, owner, endpointKind string, entryID uuid.UUID, visibility models.Visibility, principal models.Principal) bool {
	shim := &models.Entry{Owner: owner, Visibility: visibility}
	if privacy.IsAccessible(shim, principal) {
		return true
	}
	s.security.LogPrivateEntryProbe(ctx, owner, endpointKind, entryID.String(), "")
	return false
}
