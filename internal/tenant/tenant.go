// Package tenant resolves tenant schemas and provisions/deprovisions the
// per-tenant PostgreSQL schemas that back GraphStore and the memory
// registry.
package tenant

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Record is the global-catalog row for a tenant.
type Record struct {
	ID   string
	Name string
	Slug string
}

// SchemaName returns the PostgreSQL schema name for a tenant slug.
func SchemaName(slug string) string {
	return fmt.Sprintf("tenant_%s", slug)
}

type contextKey string

const connKey contextKey = "tenant_conn"

// NewConnContext stores a tenant-scoped database connection in the context.
func NewConnContext(ctx context.Context, conn *pgxpool.Conn) context.Context {
	return context.WithValue(ctx, connKey, conn)
}

// ConnFromContext extracts the tenant-scoped database connection from the
// context. Returns nil if no connection is set.
func ConnFromContext(ctx context.Context) *pgxpool.Conn {
	v, _ := ctx.Value(connKey).(*pgxpool.Conn)
	return v
}

// WithSchema acquires a pooled connection, sets its search_path to the
// tenant schema, runs fn, and releases the connection. It is the
// building block every tenant-scoped query runs through.
func WithSchema(ctx context.Context, pool *pgxpool.Pool, schema string, fn func(ctx context.Context, conn *pgxpool.Conn) error) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection for schema %s: %w", schema, err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s, public", schema)); err != nil {
		return fmt.Errorf("setting search_path to %s: %w", schema, err)
	}

	return fn(NewConnContext(ctx, conn), conn)
}
