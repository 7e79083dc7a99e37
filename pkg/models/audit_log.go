package models

import (
	"time"

	"github.com/google/uuid"
)

// Audit actions recorded by the isolation gate and import pipeline.
const (
	AuditActionResolve = "resolve"
	AuditActionImport  = "import"
	AuditActionCreate  = "create"
	AuditActionUpdate  = "update"
	AuditActionDelete  = "delete"
)

// Audit outcomes.
const (
	AuditOutcomeAllowed = "allowed"
	AuditOutcomeDenied  = "denied"
)

// AccessLogEntry is one row of the append-only access audit log.
// Entries are never mutated after write.
type AccessLogEntry struct {
	ID        uuid.UUID `json:"id"`
	Principal string    `json:"principal"` // "anonymous" for public callers
	Target    string    `json:"target"`    // namespace owner the operation resolved to
	Action    string    `json:"action"`
	Outcome   string    `json:"outcome"`
	Detail    string    `json:"detail,omitempty"` // free-form, e.g. "projects: 12 records"
	Timestamp time.Time `json:"timestamp"`
}
