package database

import (
	"context"
)

type contextKey string

const (
	// NamespaceScopeKey is the context key for storing the namespace-scoped
	// database connection.
	NamespaceScopeKey contextKey = "namespaceScope"
)

// GetNamespaceScope retrieves the namespace-scoped database connection from
// context. Returns nil and false if not present.
func GetNamespaceScope(ctx context.Context) (*NamespaceScope, bool) {
	scope, ok := ctx.Value(NamespaceScopeKey).(*NamespaceScope)
	return scope, ok
}

// SetNamespaceScope stores the namespace-scoped database connection in context.
func SetNamespaceScope(ctx context.Context, scope *NamespaceScope) context.Context {
	return context.WithValue(ctx, NamespaceScopeKey, scope)
}

// NamespaceScopeProvider creates namespace-scoped contexts for database
// operations outside the HTTP request path (import CLI, tests).
type NamespaceScopeProvider struct {
	db *DB
}

// NewNamespaceScopeProvider creates a NamespaceScopeProvider for the given database.
func NewNamespaceScopeProvider(db *DB) *NamespaceScopeProvider {
	return &NamespaceScopeProvider{db: db}
}

// WithNamespaceScope returns a context with namespace scope set for the given
// owner. The cleanup function must be called when the scope is no longer needed.
func (p *NamespaceScopeProvider) WithNamespaceScope(ctx context.Context, owner string) (context.Context, func(), error) {
	scope, err := p.db.WithNamespace(ctx, owner)
	if err != nil {
		return nil, nil, err
	}
	nsCtx := SetNamespaceScope(ctx, scope)
	return nsCtx, func() { scope.Close() }, nil
}
