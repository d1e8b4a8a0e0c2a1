package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type contextKey string

const (
	// ScopeKey is the context key for the request-scoped database connection.
	ScopeKey contextKey = "dbScope"
)

// Scope wraps a pooled connection held for the duration of one request.
type Scope struct {
	Conn *pgxpool.Conn
}

// Close releases the connection to the pool. Safe to call on an empty scope.
func (s *Scope) Close() {
	if s.Conn == nil {
		return
	}
	s.Conn.Release()
}

// Acquire takes a connection from the pool.
// The returned Scope MUST be closed with defer scope.Close().
func (db *DB) Acquire(ctx context.Context) (*Scope, error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &Scope{Conn: conn}, nil
}

// GetScope retrieves the request-scoped connection from context.
func GetScope(ctx context.Context) (*Scope, bool) {
	scope, ok := ctx.Value(ScopeKey).(*Scope)
	return scope, ok
}

// SetScope stores the request-scoped connection in context.
func SetScope(ctx context.Context, scope *Scope) context.Context {
	return context.WithValue(ctx, ScopeKey, scope)
}

// ScopeProvider creates scoped contexts outside the HTTP middleware (MCP tools, CLI).
type ScopeProvider struct {
	db *DB
}

// NewScopeProvider creates a ScopeProvider for the given database.
func NewScopeProvider(db *DB) *ScopeProvider {
	return &ScopeProvider{db: db}
}

// WithScope returns a context carrying a pooled connection.
// The cleanup function must be called when the scope is no longer needed.
func (p *ScopeProvider) WithScope(ctx context.Context) (context.Context, func(), error) {
	if existing, ok := GetScope(ctx); ok && existing.Conn != nil {
		return ctx, func() {}, nil
	}
	scope, err := p.db.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	return SetScope(ctx, scope), scope.Close, nil
}
