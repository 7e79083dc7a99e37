package models

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Visibility is the author-declared base accessibility of an entry.
type Visibility string

const (
	// VisibilityPublic entries are accessible to every principal.
	VisibilityPublic Visibility = "public"
	// VisibilityUnlisted entries are fetchable by ID but excluded from
	// listings for everyone except the owner.
	VisibilityUnlisted Visibility = "unlisted"
	// VisibilityPrivate entries are accessible only to the owner or an admin.
	VisibilityPrivate Visibility = "private"
)

// ValidVisibility reports whether v is one of the three recognized tags.
func ValidVisibility(v Visibility) bool {
	switch v {
	case VisibilityPublic, VisibilityUnlisted, VisibilityPrivate:
		return true
	}
	return false
}

// endpointKindPattern bounds endpoint kinds (and usernames) wherever they
// enter the system: URL paths and import filename derivation alike.
var endpointKindPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// ValidEndpointKind reports whether kind is addressable as an API endpoint.
func ValidEndpointKind(kind string) bool {
	return endpointKindPattern.MatchString(kind)
}

// Entry is one stored content unit (a resume, a values document, ...).
// Owner never changes after creation; Visibility may be mutated only by
// the owner.
type Entry struct {
	ID           uuid.UUID         `json:"id"`
	Owner        string            `json:"owner"`
	EndpointKind string            `json:"endpoint_kind"` // resume, skills, projects, ...
	Content      string            `json:"content"`       // markdown body
	Metadata     map[string]string `json:"metadata"`      // title, tags, status, date, ...
	Visibility   Visibility        `json:"visibility"`
	ContentHash  string            `json:"content_hash"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// ComputeContentHash returns the canonical sha256 fingerprint of the entry's
// content and metadata. Metadata keys are hashed in sorted order so the hash
// is stable regardless of map iteration. Used for import deduplication.
func ComputeContentHash(content string, metadata map[string]string) string {
	h := sha256.New()
	h.Write([]byte(content))
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte{0})
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(metadata[k]))
	}
	return hex.EncodeToString(h.Sum(nil))
}
