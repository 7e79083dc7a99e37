package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NamespaceScope wraps a connection pinned to one user's namespace.
// The connection has app.current_owner set for RLS policy evaluation, so
// queries physically cannot see another user's rows.
type NamespaceScope struct {
	Conn  *pgxpool.Conn
	Owner string
}

// Close resets the namespace context and releases the connection to the pool.
// This MUST be called to prevent namespace context from leaking to the next
// request.
func (s *NamespaceScope) Close() {
	if s.Conn == nil {
		return
	}
	_, _ = s.Conn.Exec(context.Background(), "RESET app.current_owner")
	s.Conn.Release()
}

// WithNamespace acquires a connection and sets the namespace context for RLS.
// The returned NamespaceScope MUST be closed with defer scope.Close().
func (db *DB) WithNamespace(ctx context.Context, owner string) (*NamespaceScope, error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	_, err = conn.Exec(ctx, "SELECT set_config('app.current_owner', $1, false)", owner)
	if err != nil {
		conn.Release()
		return nil, err
	}

	return &NamespaceScope{Conn: conn, Owner: owner}, nil
}

// WithoutNamespace acquires a connection without namespace context.
// Use this for system-level operations such as audit log writes and account
// lookups. The returned NamespaceScope MUST be closed with defer scope.Close().
func (db *DB) WithoutNamespace(ctx context.Context) (*NamespaceScope, error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &NamespaceScope{Conn: conn}, nil
}
