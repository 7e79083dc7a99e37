package models

// Principal is the authenticated caller as established by the auth layer.
// The engine trusts it completely and performs no credential checks itself.
// Identity never implies visibility beyond what the visibility resolver grants.
type Principal struct {
	// Username is the caller's account name. Empty for anonymous callers.
	Username string
	// Admin is true for operator accounts that may cross user namespaces.
	Admin bool
	// Anonymous is true for unauthenticated public callers.
	Anonymous bool
}

// AnonymousPrincipal returns the principal used for unauthenticated requests.
func AnonymousPrincipal() Principal {
	return Principal{Anonymous: true}
}

// IsOwnerOf reports whether the principal is the owner of the given namespace.
func (p Principal) IsOwnerOf(owner string) bool {
	return !p.Anonymous && p.Username != "" && p.Username == owner
}

// String returns a loggable identity for audit entries.
func (p Principal) String() string {
	if p.Anonymous || p.Username == "" {
		return "anonymous"
	}
	return p.Username
}
