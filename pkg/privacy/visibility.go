package privacy

import (
	"github.com/personakit/persona-engine/pkg/models"
)

// IsAccessible is the coarse-grained gate applied before field-level
// filtering. It decides whether the principal may see the entry at all when
// fetching it directly by identifier.
//
// When this returns false the API layer must respond "not found", never
// "forbidden": a 403 on a private entry would confirm its existence to an
// unauthorized caller.
func IsAccessible(entry *models.Entry, principal models.Principal) bool {
	switch entry.Visibility {
	case models.VisibilityPublic:
		return true
	case models.VisibilityUnlisted:
		// Anyone presenting the exact identifier gets through; discovery is
		// prevented at the listing layer, not here.
		return true
	case models.VisibilityPrivate:
		return principal.Admin || principal.IsOwnerOf(entry.Owner)
	default:
		// Unknown tag: fail closed.
		return false
	}
}

// VisibleInListing decides whether the entry appears in listing endpoints for
// the principal. Unlisted entries are fetchable by ID but must not be
// discoverable by browsing, so listings hide them from everyone but the
// owner. Whether admins see unlisted entries in listings is an operator
// choice (adminSeesUnlisted).
func VisibleInListing(entry *models.Entry, principal models.Principal, adminSeesUnlisted bool) bool {
	if !IsAccessible(entry, principal) {
		return false
	}
	if entry.Visibility == models.VisibilityUnlisted {
		if principal.IsOwnerOf(entry.Owner) {
			return true
		}
		return principal.Admin && adminSeesUnlisted
	}
	return true
}
