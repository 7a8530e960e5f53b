// Package graphstore implements C2: an embedded property-graph store
// over per-tenant PostgreSQL schemas. Writes are serialized through a
// single-writer queue; persistence checkpoints to an ObjectStore as
// columnar-style snapshot partitions.
package graphstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wisbric/stratum/internal/domain"
	"github.com/wisbric/stratum/internal/resilience"
	"github.com/wisbric/stratum/internal/tenant"
)

// Config configures a Store.
type Config struct {
	WriterTimeout     time.Duration // default write timeout, spec §6 graph.writer.timeout_ms
	ColdStartBudget   time.Duration
	WriterQueueDepth  int
}

// DefaultConfig returns spec-mandated defaults.
func DefaultConfig() Config {
	return Config{
		WriterTimeout:    30 * time.Second,
		ColdStartBudget:  3 * time.Second,
		WriterQueueDepth: 256,
	}
}

// Store is the embedded property-graph store: one Store instance per
// process, fanning tenant-scoped writes through a single in-process
// writer queue. The queue serializes writes within this process only;
// no distributed lock coordinates writers in other processes.
type Store struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	cfg     Config
	queue   *resilience.WriterQueue
	objects ObjectStore
}

// New constructs a Store. ctx bounds the lifetime of the writer-queue
// worker goroutine; cancel it to drain and stop accepting writes.
func New(ctx context.Context, pool *pgxpool.Pool, objects ObjectStore, logger *slog.Logger, cfg Config) *Store {
	return &Store{
		pool:    pool,
		logger:  logger,
		cfg:     cfg,
		queue:   resilience.NewWriterQueue(ctx, cfg.WriterQueueDepth),
		objects: objects,
	}
}

// QueueDepth reports pending writer-queue jobs, for metrics export.
func (s *Store) QueueDepth() int {
	return s.queue.Depth()
}

// AddMemoryTx is the atomic bundle a memory-add operation commits: the
// graph node for the memory itself, plus any extracted entities and
// relationship edges, per invariant 4 ("atomic multi-table write").
type AddMemoryTx struct {
	MemoryNode     domain.GraphNode
	Entities       []domain.GraphNode
	EntityEdges    []domain.GraphEdge
}

// AddMemory serializes through the writer queue and opens one
// serializable transaction spanning memory node, entities, and edges.
// Any error rolls back every insert.
func (s *Store) AddMemory(ctx context.Context, tenantID string, tx AddMemoryTx) error {
	writeCtx, cancel := context.WithTimeout(ctx, s.cfg.WriterTimeout)
	defer cancel()

	return s.queue.Submit(writeCtx, func(ctx context.Context) error {
		schema := tenant.SchemaName(tenantID)
		return tenant.WithSchema(ctx, s.pool, schema, func(ctx context.Context, conn *pgxpool.Conn) error {
			pgtx, err := conn.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
			if err != nil {
				return fmt.Errorf("beginning transaction: %w", err)
			}
			defer pgtx.Rollback(ctx)

			if err := insertNode(ctx, pgtx, tenantID, tx.MemoryNode); err != nil {
				return err
			}
			for _, entity := range tx.Entities {
				if err := insertNode(ctx, pgtx, tenantID, entity); err != nil {
					return err
				}
			}
			for _, edge := range tx.EntityEdges {
				if err := insertEdge(ctx, pgtx, tenantID, edge); err != nil {
					return err
				}
			}

			return pgtx.Commit(ctx)
		})
	})
}

func insertNode(ctx context.Context, pgtx pgx.Tx, tenantID string, node domain.GraphNode) error {
	if node.ID == "" {
		node.ID = uuid.New().String()
	}
	_, err := pgtx.Exec(ctx,
		`INSERT INTO graph_nodes (id, tenant_id, kind, label, properties)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET label = EXCLUDED.label, properties = EXCLUDED.properties`,
		node.ID, tenantID, node.Kind, node.Label, propertiesJSON(node.Properties),
	)
	if err != nil {
		return fmt.Errorf("inserting node %s: %w", node.ID, err)
	}
	return nil
}

// endpointMissingError identifies which side of an edge is dangling,
// per spec §4.2's referential-integrity requirement.
type endpointMissingError struct {
	EdgeID string
	Side   string
	NodeID string
}

func (e *endpointMissingError) Error() string {
	return fmt.Sprintf("edge %s: %s endpoint %s does not exist", e.EdgeID, e.Side, e.NodeID)
}

func insertEdge(ctx context.Context, pgtx pgx.Tx, tenantID string, edge domain.GraphEdge) error {
	if edge.ID == "" {
		edge.ID = uuid.New().String()
	}

	for side, nodeID := range map[string]string{"source": edge.SourceID, "target": edge.TargetID} {
		var exists bool
		err := pgtx.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM graph_nodes WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL)`,
			nodeID, tenantID,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("checking edge endpoint %s: %w", nodeID, err)
		}
		if !exists {
			return &endpointMissingError{EdgeID: edge.ID, Side: side, NodeID: nodeID}
		}
	}

	_, err := pgtx.Exec(ctx,
		`INSERT INTO graph_edges (id, tenant_id, source_id, target_id, edge_type, properties)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET properties = EXCLUDED.properties`,
		edge.ID, tenantID, edge.SourceID, edge.TargetID, edge.EdgeType, propertiesJSON(edge.Properties),
	)
	if err != nil {
		return fmt.Errorf("inserting edge %s: %w", edge.ID, err)
	}
	return nil
}

// derivedEntityIDs returns the non-memory nodes at the other end of
// nodeID's live incident edges — the "derived entities" a memory's
// cascade must also soft-delete.
func derivedEntityIDs(ctx context.Context, pgtx pgx.Tx, tenantID, nodeID string) ([]string, error) {
	rows, err := pgtx.Query(ctx, `
		SELECT n.id FROM graph_edges e
		JOIN graph_nodes n ON n.id = CASE WHEN e.source_id = $1 THEN e.target_id ELSE e.source_id END
		WHERE e.tenant_id = $2 AND (e.source_id = $1 OR e.target_id = $1) AND e.deleted_at IS NULL
		  AND n.tenant_id = $2 AND n.kind != 'memory' AND n.deleted_at IS NULL`,
		nodeID, tenantID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteMemoryCascade soft-deletes a memory's graph node along with
// every incident edge, every derived entity node reachable from it,
// and every edge incident to those entities, per the cascading-delete
// invariant (S7: node + incident edges + derived entities + entity
// edges all marked deleted_at in one transaction). Idempotent:
// deleting an already-deleted or nonexistent node still returns nil.
func (s *Store) DeleteMemoryCascade(ctx context.Context, tenantID, nodeID string) error {
	writeCtx, cancel := context.WithTimeout(ctx, s.cfg.WriterTimeout)
	defer cancel()

	return s.queue.Submit(writeCtx, func(ctx context.Context) error {
		schema := tenant.SchemaName(tenantID)
		return tenant.WithSchema(ctx, s.pool, schema, func(ctx context.Context, conn *pgxpool.Conn) error {
			pgtx, err := conn.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
			if err != nil {
				return fmt.Errorf("beginning transaction: %w", err)
			}
			defer pgtx.Rollback(ctx)

			now := time.Now().UTC()

			entityIDs, err := derivedEntityIDs(ctx, pgtx, tenantID, nodeID)
			if err != nil {
				return fmt.Errorf("finding derived entities of %s: %w", nodeID, err)
			}

			if _, err := pgtx.Exec(ctx,
				`UPDATE graph_nodes SET deleted_at = $1 WHERE id = $2 AND tenant_id = $3 AND deleted_at IS NULL`,
				now, nodeID, tenantID,
			); err != nil {
				return fmt.Errorf("soft-deleting node %s: %w", nodeID, err)
			}

			if _, err := pgtx.Exec(ctx,
				`UPDATE graph_edges SET deleted_at = $1
				 WHERE tenant_id = $2 AND (source_id = $3 OR target_id = $3) AND deleted_at IS NULL`,
				now, tenantID, nodeID,
			); err != nil {
				return fmt.Errorf("soft-deleting incident edges of %s: %w", nodeID, err)
			}

			if len(entityIDs) > 0 {
				if _, err := pgtx.Exec(ctx,
					`UPDATE graph_nodes SET deleted_at = $1
					 WHERE tenant_id = $2 AND id = ANY($3) AND deleted_at IS NULL`,
					now, tenantID, entityIDs,
				); err != nil {
					return fmt.Errorf("soft-deleting derived entities of %s: %w", nodeID, err)
				}

				if _, err := pgtx.Exec(ctx,
					`UPDATE graph_edges SET deleted_at = $1
					 WHERE tenant_id = $2 AND (source_id = ANY($3) OR target_id = ANY($3)) AND deleted_at IS NULL`,
					now, tenantID, entityIDs,
				); err != nil {
					return fmt.Errorf("soft-deleting entity edges of %s: %w", nodeID, err)
				}
			}

			return pgtx.Commit(ctx)
		})
	})
}

func propertiesJSON(props map[string]any) []byte {
	raw, err := marshalProperties(props)
	if err != nil {
		return []byte("{}")
	}
	return raw
}
