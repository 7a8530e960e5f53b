// Package pgvectoridx implements the VectorIndex backend over PostgreSQL
// with the pgvector extension, storing each tenant's vectors in its own
// schema (the same per-tenant schema GraphStore uses), giving
// per_tenant_collection isolation without a separate service.
package pgvectoridx

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/wisbric/stratum/internal/tenant"
	"github.com/wisbric/stratum/internal/vectorindex"
)

// Index implements vectorindex.Index over a pgvector-enabled Postgres pool.
type Index struct {
	pool      *pgxpool.Pool
	dimension int
}

// New constructs a pgvector-backed Index. dimension must be in [64, 4096].
func New(pool *pgxpool.Pool, dimension int) (*Index, error) {
	if dimension < 64 || dimension > 4096 {
		return nil, &vectorindex.InvalidBackendConfigError{Backend: "pgvector", Reason: "dimension must be in [64, 4096]"}
	}
	return &Index{pool: pool, dimension: dimension}, nil
}

func (idx *Index) BackendName() string { return "pgvector" }

func (idx *Index) HealthCheck(ctx context.Context) error {
	return idx.pool.Ping(ctx)
}

func (idx *Index) Capabilities(ctx context.Context) (vectorindex.Capabilities, error) {
	return vectorindex.Capabilities{
		MaxDimensions:     idx.dimension,
		MetadataFilter:    true,
		HybridSearch:      false,
		BatchUpsert:       true,
		SupportedMetrics:  []vectorindex.DistanceMetric{vectorindex.MetricCosine, vectorindex.MetricL2, vectorindex.MetricInnerProduct},
		IsolationStrategy: vectorindex.IsolationPerTenantCollection,
	}, nil
}

func (idx *Index) Upsert(ctx context.Context, tenantID string, records []vectorindex.Record) error {
	schema := tenant.SchemaName(tenantID)
	return tenant.WithSchema(ctx, idx.pool, schema, func(ctx context.Context, conn *pgxpool.Conn) error {
		for _, rec := range records {
			if len(rec.Vector) != idx.dimension {
				return &vectorindex.InvalidBackendConfigError{Backend: "pgvector", Reason: "vector width mismatch"}
			}
			metadata, err := marshalMetadata(rec.Metadata)
			if err != nil {
				return &vectorindex.ProviderError{Backend: "pgvector", Op: "upsert", Cause: err}
			}
			_, err = conn.Exec(ctx,
				`INSERT INTO vector_records (id, embedding, metadata)
				 VALUES ($1, $2, $3)
				 ON CONFLICT (id) DO UPDATE SET embedding = EXCLUDED.embedding, metadata = EXCLUDED.metadata`,
				rec.ID, pgvector.NewVector(rec.Vector), metadata,
			)
			if err != nil {
				return &vectorindex.ProviderError{Backend: "pgvector", Op: "upsert", Cause: err}
			}
		}
		return nil
	})
}

func (idx *Index) Search(ctx context.Context, tenantID string, req vectorindex.SearchRequest) ([]vectorindex.SearchResult, error) {
	schema := tenant.SchemaName(tenantID)
	var results []vectorindex.SearchResult

	err := tenant.WithSchema(ctx, idx.pool, schema, func(ctx context.Context, conn *pgxpool.Conn) error {
		query := `SELECT id, metadata, 1 - (embedding <=> $1) AS score
				  FROM vector_records WHERE TRUE`
		args := []any{pgvector.NewVector(req.Vector)}
		argN := 2

		for k, v := range req.Filter {
			query += fmt.Sprintf(" AND metadata->>'%s' = $%d", k, argN)
			args = append(args, fmt.Sprintf("%v", v))
			argN++
		}
		query += fmt.Sprintf(" ORDER BY embedding <=> $1 LIMIT %d", req.K)

		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return &vectorindex.ProviderError{Backend: "pgvector", Op: "search", Cause: err}
		}
		defer rows.Close()

		for rows.Next() {
			var id string
			var metadataRaw []byte
			var score float64
			if err := rows.Scan(&id, &metadataRaw, &score); err != nil {
				return &vectorindex.ProviderError{Backend: "pgvector", Op: "search scan", Cause: err}
			}
			if score < req.Threshold {
				continue
			}
			metadata, err := unmarshalMetadata(metadataRaw)
			if err != nil {
				return &vectorindex.ProviderError{Backend: "pgvector", Op: "search decode", Cause: err}
			}
			results = append(results, vectorindex.SearchResult{ID: id, Score: score, Metadata: metadata})
		}
		return rows.Err()
	})

	return results, err
}

func (idx *Index) Delete(ctx context.Context, tenantID string, ids []string) error {
	schema := tenant.SchemaName(tenantID)
	return tenant.WithSchema(ctx, idx.pool, schema, func(ctx context.Context, conn *pgxpool.Conn) error {
		_, err := conn.Exec(ctx, `DELETE FROM vector_records WHERE id = ANY($1)`, ids)
		if err != nil {
			return &vectorindex.ProviderError{Backend: "pgvector", Op: "delete", Cause: err}
		}
		return nil
	})
}

func (idx *Index) Get(ctx context.Context, tenantID string, id string) (*vectorindex.Record, error) {
	schema := tenant.SchemaName(tenantID)
	var rec *vectorindex.Record

	err := tenant.WithSchema(ctx, idx.pool, schema, func(ctx context.Context, conn *pgxpool.Conn) error {
		var vec pgvector.Vector
		var metadataRaw []byte
		row := conn.QueryRow(ctx, `SELECT embedding, metadata FROM vector_records WHERE id = $1`, id)
		if err := row.Scan(&vec, &metadataRaw); err != nil {
			if err == pgx.ErrNoRows {
				return nil
			}
			return &vectorindex.ProviderError{Backend: "pgvector", Op: "get", Cause: err}
		}
		metadata, err := unmarshalMetadata(metadataRaw)
		if err != nil {
			return &vectorindex.ProviderError{Backend: "pgvector", Op: "get decode", Cause: err}
		}
		rec = &vectorindex.Record{ID: id, Vector: vec.Slice(), Metadata: metadata}
		return nil
	})

	return rec, err
}

var _ vectorindex.Index = (*Index)(nil)
