package graphstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wisbric/stratum/internal/domain"
	"github.com/wisbric/stratum/internal/tenant"
)

func marshalProperties(props map[string]any) ([]byte, error) {
	if props == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(props)
}

func unmarshalProperties(raw []byte) map[string]any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var props map[string]any
	if err := json.Unmarshal(raw, &props); err != nil {
		return map[string]any{}
	}
	return props
}

// GetNode fetches a single non-deleted node by id, scoped to tenantID.
// Every query in this package binds tenant_id as a parameter — spec
// §4.2 requires a validator reject any query that omits this predicate.
func (s *Store) GetNode(ctx context.Context, tenantID, nodeID string) (*domain.GraphNode, error) {
	var node domain.GraphNode
	var propsRaw []byte

	err := tenant.WithSchema(ctx, s.pool, tenant.SchemaName(tenantID), func(ctx context.Context, conn *pgxpool.Conn) error {
		row := conn.QueryRow(ctx,
			`SELECT id, kind, label, properties FROM graph_nodes
			 WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL`,
			nodeID, tenantID,
		)
		return row.Scan(&node.ID, &node.Kind, &node.Label, &propsRaw)
	})
	if err != nil {
		return nil, nil
	}

	node.TenantID = tenantID
	node.Properties = unmarshalProperties(propsRaw)
	return &node, nil
}

// Neighbors returns the N-hop neighbor expansion from startID, following
// edges in either direction up to maxHops.
func (s *Store) Neighbors(ctx context.Context, tenantID, startID string, maxHops int) ([]domain.GraphNode, error) {
	if maxHops < 1 {
		maxHops = 1
	}

	var nodes []domain.GraphNode
	err := tenant.WithSchema(ctx, s.pool, tenant.SchemaName(tenantID), func(ctx context.Context, conn *pgxpool.Conn) error {
		rows, err := conn.Query(ctx, `
			WITH RECURSIVE expansion(id, depth) AS (
				SELECT $1::text, 0
				UNION
				SELECT CASE WHEN e.source_id = x.id THEN e.target_id ELSE e.source_id END, x.depth + 1
				FROM graph_edges e
				JOIN expansion x ON (e.source_id = x.id OR e.target_id = x.id)
				WHERE e.tenant_id = $2 AND e.deleted_at IS NULL AND x.depth < $3
			)
			SELECT DISTINCT n.id, n.kind, n.label, n.properties
			FROM graph_nodes n
			JOIN expansion x ON x.id = n.id
			WHERE n.tenant_id = $2 AND n.deleted_at IS NULL AND x.id != $1`,
			startID, tenantID, maxHops,
		)
		if err != nil {
			return fmt.Errorf("querying neighbors: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var n domain.GraphNode
			var propsRaw []byte
			if err := rows.Scan(&n.ID, &n.Kind, &n.Label, &propsRaw); err != nil {
				return fmt.Errorf("scanning neighbor: %w", err)
			}
			n.TenantID = tenantID
			n.Properties = unmarshalProperties(propsRaw)
			nodes = append(nodes, n)
		}
		return rows.Err()
	})

	return nodes, err
}

// ShortestPath returns the edges, in order, of the shortest path
// between two nodes (breadth-first via the same recursive expansion
// pattern as Neighbors), or nil if no path exists within maxHops.
func (s *Store) ShortestPath(ctx context.Context, tenantID, fromID, toID string, maxHops int) ([]domain.GraphEdge, error) {
	if maxHops < 1 {
		maxHops = 1
	}

	var edges []domain.GraphEdge
	err := tenant.WithSchema(ctx, s.pool, tenant.SchemaName(tenantID), func(ctx context.Context, conn *pgxpool.Conn) error {
		rows, err := conn.Query(ctx, `
			WITH RECURSIVE path(id, edge_ids, depth) AS (
				SELECT $1::text, ARRAY[]::text[], 0
				UNION
				SELECT CASE WHEN e.source_id = p.id THEN e.target_id ELSE e.source_id END, p.edge_ids || e.id, p.depth + 1
				FROM graph_edges e
				JOIN path p ON (e.source_id = p.id OR e.target_id = p.id)
				WHERE e.tenant_id = $2 AND e.deleted_at IS NULL AND p.depth < $3 AND p.id != $4
			), best AS (
				SELECT edge_ids FROM path WHERE id = $4 ORDER BY depth ASC LIMIT 1
			)
			SELECT e.id, e.source_id, e.target_id, e.edge_type, e.properties
			FROM best
			CROSS JOIN LATERAL unnest(best.edge_ids) WITH ORDINALITY AS u(edge_id, ord)
			JOIN graph_edges e ON e.id = u.edge_id
			ORDER BY u.ord`,
			fromID, tenantID, maxHops, toID,
		)
		if err != nil {
			return fmt.Errorf("querying shortest path: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var e domain.GraphEdge
			var propsRaw []byte
			if err := rows.Scan(&e.ID, &e.SourceID, &e.TargetID, &e.EdgeType, &propsRaw); err != nil {
				return fmt.Errorf("scanning path edge: %w", err)
			}
			e.TenantID = tenantID
			e.Properties = unmarshalProperties(propsRaw)
			edges = append(edges, e)
		}
		return rows.Err()
	})

	return edges, err
}

// Ready implements httpserver.GraphReadinessChecker: it succeeds only
// when a trivial query against the store's underlying pool succeeds,
// satisfying spec.md §4.2's "/ready/graph returns ready only when graph
// queries succeed".
func (s *Store) Ready(ctx context.Context) error {
	var one int
	return s.pool.QueryRow(ctx, "SELECT 1").Scan(&one)
}

// ListMemoryNodes returns every non-deleted "memory"-kind node for a
// tenant, used by the decay sweep and the layer-summary generator rather
// than by any request-serving path.
func (s *Store) ListMemoryNodes(ctx context.Context, tenantID string) ([]domain.GraphNode, error) {
	var nodes []domain.GraphNode

	err := tenant.WithSchema(ctx, s.pool, tenant.SchemaName(tenantID), func(ctx context.Context, conn *pgxpool.Conn) error {
		rows, err := conn.Query(ctx,
			`SELECT id, kind, label, properties FROM graph_nodes
			 WHERE tenant_id = $1 AND kind = 'memory' AND deleted_at IS NULL`,
			tenantID,
		)
		if err != nil {
			return fmt.Errorf("listing memory nodes: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var n domain.GraphNode
			var propsRaw []byte
			if err := rows.Scan(&n.ID, &n.Kind, &n.Label, &propsRaw); err != nil {
				return fmt.Errorf("scanning memory node: %w", err)
			}
			n.TenantID = tenantID
			n.Properties = unmarshalProperties(propsRaw)
			nodes = append(nodes, n)
		}
		return rows.Err()
	})

	return nodes, err
}

// ScanOrphanedEdges finds edges whose endpoints no longer exist (or are
// soft-deleted) — the daily repair scan from spec §4.2. autoRepair, when
// true, soft-deletes the orphaned edges found; otherwise it only returns them.
func (s *Store) ScanOrphanedEdges(ctx context.Context, tenantID string, autoRepair bool) ([]string, error) {
	var orphaned []string

	err := tenant.WithSchema(ctx, s.pool, tenant.SchemaName(tenantID), func(ctx context.Context, conn *pgxpool.Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT e.id FROM graph_edges e
			LEFT JOIN graph_nodes src ON src.id = e.source_id AND src.tenant_id = e.tenant_id AND src.deleted_at IS NULL
			LEFT JOIN graph_nodes tgt ON tgt.id = e.target_id AND tgt.tenant_id = e.tenant_id AND tgt.deleted_at IS NULL
			WHERE e.tenant_id = $1 AND e.deleted_at IS NULL AND (src.id IS NULL OR tgt.id IS NULL)`,
			tenantID,
		)
		if err != nil {
			return fmt.Errorf("scanning orphaned edges: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return fmt.Errorf("scanning orphan row: %w", err)
			}
			orphaned = append(orphaned, id)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		if autoRepair && len(orphaned) > 0 {
			if _, err := conn.Exec(ctx,
				`UPDATE graph_edges SET deleted_at = now() WHERE id = ANY($1) AND tenant_id = $2`,
				orphaned, tenantID,
			); err != nil {
				return fmt.Errorf("repairing orphaned edges: %w", err)
			}
		}
		return nil
	})

	return orphaned, err
}
