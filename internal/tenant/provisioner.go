package tenant

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wisbric/stratum/internal/platform"
)

// slugPattern restricts tenant slugs to safe identifiers for schema names.
var slugPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{1,62}$`)

// Provisioner creates and destroys tenant schemas and the global tenant
// registry row backing them.
type Provisioner struct {
	DB            *pgxpool.Pool
	DatabaseURL   string
	MigrationsDir string // path to tenant migration files
	Logger        *slog.Logger
}

// Provision registers a new tenant, creates its PostgreSQL schema, and
// runs tenant migrations against it.
func (p *Provisioner) Provision(ctx context.Context, name, slug string) (*Record, error) {
	if !slugPattern.MatchString(slug) {
		return nil, fmt.Errorf("invalid tenant slug %q: must match %s", slug, slugPattern.String())
	}

	var id string
	err := p.DB.QueryRow(ctx,
		`INSERT INTO tenants (name, slug) VALUES ($1, $2) RETURNING id`,
		name, slug,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("inserting tenant record: %w", err)
	}

	schema := SchemaName(slug)

	// Slug is validated above so schema is safe to interpolate.
	if _, err := p.DB.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)); err != nil {
		_, _ = p.DB.Exec(ctx, `DELETE FROM tenants WHERE id = $1`, id)
		return nil, fmt.Errorf("creating schema %s: %w", schema, err)
	}

	tenantURL, err := withSearchPath(p.DatabaseURL, schema)
	if err != nil {
		return nil, fmt.Errorf("building tenant database URL: %w", err)
	}

	if err := platform.RunTenantMigrations(tenantURL, p.MigrationsDir); err != nil {
		_, _ = p.DB.Exec(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schema))
		_, _ = p.DB.Exec(ctx, `DELETE FROM tenants WHERE id = $1`, id)
		return nil, fmt.Errorf("running tenant migrations: %w", err)
	}

	p.Logger.Info("tenant provisioned", "tenant_id", id, "slug", slug, "schema", schema)

	return &Record{ID: id, Name: name, Slug: slug}, nil
}

// Deprovision drops the tenant schema and removes the global record.
func (p *Provisioner) Deprovision(ctx context.Context, slug string) error {
	schema := SchemaName(slug)

	if _, err := p.DB.Exec(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schema)); err != nil {
		return fmt.Errorf("dropping schema %s: %w", schema, err)
	}

	tag, err := p.DB.Exec(ctx, `DELETE FROM tenants WHERE slug = $1`, slug)
	if err != nil {
		return fmt.Errorf("deleting tenant record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("tenant %q: %w", slug, pgx.ErrNoRows)
	}

	p.Logger.Info("tenant deprovisioned", "slug", slug, "schema", schema)
	return nil
}

// Lookup resolves a tenant record by slug from the global registry.
func (p *Provisioner) Lookup(ctx context.Context, slug string) (*Record, error) {
	var rec Record
	err := p.DB.QueryRow(ctx,
		`SELECT id, name, slug FROM tenants WHERE slug = $1`, slug,
	).Scan(&rec.ID, &rec.Name, &rec.Slug)
	if err != nil {
		return nil, fmt.Errorf("looking up tenant %q: %w", slug, err)
	}
	return &rec, nil
}

// withSearchPath appends search_path=<schema> to a PostgreSQL connection URL.
func withSearchPath(databaseURL, schema string) (string, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing database URL: %w", err)
	}
	q := u.Query()
	q.Set("search_path", schema)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
