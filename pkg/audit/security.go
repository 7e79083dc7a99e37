// Package audit provides security audit logging for SIEM consumption.
// It logs security-relevant events in structured JSON format for easy parsing
// and integration with security information and event management systems.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/personakit/persona-engine/pkg/auth"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	// EventCrossNamespaceDenied is logged when a principal attempts to reach
	// another owner's namespace without admin privileges.
	EventCrossNamespaceDenied SecurityEventType = "cross_namespace_denied"
	// EventSuspiciousImportPayload is logged when libinjection flags an
	// imported field value as a potential injection payload.
	EventSuspiciousImportPayload SecurityEventType = "suspicious_import_payload"
	// EventPrivateEntryProbe is logged when a non-owner requests a private
	// entry. The caller receives 404; the probe itself is still worth noting.
	EventPrivateEntryProbe SecurityEventType = "private_entry_probe"
)

// SecurityEvent represents an auditable security event with all relevant
// context for SIEM ingestion and analysis.
type SecurityEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType SecurityEventType `json:"event_type"`
	Principal string            `json:"principal"`
	Namespace string            `json:"namespace,omitempty"`
	ClientIP  string            `json:"client_ip,omitempty"`
	Details   any               `json:"details"`
	Severity  string            `json:"severity"` // info, warning, critical
}

// InjectionPayloadDetails contains specifics of a flagged import value.
type InjectionPayloadDetails struct {
	File        string `json:"file"`
	Field       string `json:"field"`
	Fingerprint string `json:"fingerprint"` // libinjection fingerprint for pattern analysis
	Snippet     string `json:"snippet"`
}

// SecurityAuditor logs security events for SIEM consumption.
// Events are logged in structured JSON format with appropriate severity levels.
type SecurityAuditor struct {
	logger *zap.Logger
}

// NewSecurityAuditor creates a new security auditor with a dedicated logger
// namespace. The "security_audit" namespace makes these events easy to filter
// in SIEM systems.
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	return &SecurityAuditor{logger: logger.Named("security_audit")}
}

// principalName extracts the acting principal from the request context.
func principalName(ctx context.Context) string {
	if p, ok := auth.GetPrincipal(ctx); ok {
		return p.String()
	}
	return "unknown"
}

// LogCrossNamespaceDenial records a denied attempt to act in another owner's
// namespace. Logged at WARN level: a single denial is usually a client bug,
// but a burst of them is an enumeration or escalation attempt.
func (a *SecurityAuditor) LogCrossNamespaceDenial(ctx context.Context, namespace, action, clientIP string) {
	principal := principalName(ctx)

	event := SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: EventCrossNamespaceDenied,
		Principal: principal,
		Namespace: namespace,
		ClientIP:  clientIP,
		Details: map[string]string{
			"action": action,
		},
		Severity: "warning",
	}

	eventJSON, _ := json.Marshal(event)

	a.logger.Warn("Cross-namespace access denied",
		zap.String("event_json", string(eventJSON)),
		zap.String("principal", principal),
		zap.String("namespace", namespace),
		zap.String("action", action),
		zap.String("client_ip", clientIP),
		zap.String("severity", "warning"),
	)
}

// LogSuspiciousImportPayload records an imported value that libinjection
// flagged as a potential injection payload. The import itself proceeds; all
// values travel as bound parameters, so this is signal for review rather than
// a blocked operation. Logged at ERROR level with "critical" severity for
// immediate alerting.
func (a *SecurityAuditor) LogSuspiciousImportPayload(ctx context.Context, namespace string, details InjectionPayloadDetails) {
	principal := principalName(ctx)

	event := SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: EventSuspiciousImportPayload,
		Principal: principal,
		Namespace: namespace,
		Details:   details,
		Severity:  "critical",
	}

	eventJSON, _ := json.Marshal(event)

	a.logger.Error("Suspicious import payload detected",
		zap.String("event_json", string(eventJSON)),
		zap.String("principal", principal),
		zap.String("namespace", namespace),
		zap.String("file", details.File),
		zap.String("field", details.Field),
		zap.String("fingerprint", details.Fingerprint),
		zap.String("severity", "critical"),
	)
}

// LogPrivateEntryProbe records a non-owner request for a private entry.
// Logged at INFO level; this can be high volume on public profiles.
func (a *SecurityAuditor) LogPrivateEntryProbe(ctx context.Context, namespace, endpointKind, entryID, clientIP string) {
	principal := principalName(ctx)

	event := SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: EventPrivateEntryProbe,
		Principal: principal,
		Namespace: namespace,
		ClientIP:  clientIP,
		Details: map[string]string{
			"endpoint_kind": endpointKind,
			"entry_id":      entryID,
		},
		Severity: "info",
	}

	eventJSON, _ := json.Marshal(event)

	a.logger.Info("Private entry probe",
		zap.String("event_json", string(eventJSON)),
		zap.String("principal", principal),
		zap.String("namespace", namespace),
		zap.String("endpoint_kind", endpointKind),
		zap.String("entry_id", entryID),
		zap.String("client_ip", clientIP),
		zap.String("severity", "info"),
	)
}
