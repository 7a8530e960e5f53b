package graphstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wisbric/stratum/internal/tenant"
)

// ColdStart loads a tenant's graph for serverless-style startup: it
// loads index metadata (the manifest) synchronously, then loads
// partitions within the configured cold-start budget; any partitions
// not loaded by the deadline continue loading asynchronously while the
// caller may already serve queries against whatever loaded.
func (s *Store) ColdStart(ctx context.Context, tenantID string) error {
	prefix, err := s.LatestSnapshot(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("finding latest snapshot for %s: %w", tenantID, err)
	}
	if prefix == "" {
		s.logger.Info("cold start: no snapshot found, starting empty", "tenant_id", tenantID)
		return nil
	}

	loadCtx, cancel := context.WithTimeout(ctx, s.cfg.ColdStartBudget)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Load(context.Background(), tenantID, prefix) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("cold start load for %s: %w", tenantID, err)
		}
		s.logger.Info("cold start completed within budget", "tenant_id", tenantID, "prefix", prefix)
		return nil
	case <-loadCtx.Done():
		s.logger.Warn("cold start budget exceeded, continuing load asynchronously",
			"tenant_id", tenantID, "budget", s.cfg.ColdStartBudget)
		go func() {
			if err := <-done; err != nil {
				s.logger.Error("async cold start load failed", "tenant_id", tenantID, "error", err)
			}
		}()
		return nil
	}
}

// RetentionSweep permanently removes soft-deleted nodes and edges older
// than retention, per the cascading-delete lifecycle's permanent-removal
// step.
func (s *Store) RetentionSweep(ctx context.Context, tenantID string, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)
	var removed int64

	writeCtx, cancel := context.WithTimeout(ctx, s.cfg.WriterTimeout)
	defer cancel()

	err := s.queue.Submit(writeCtx, func(ctx context.Context) error {
		return tenant.WithSchema(ctx, s.pool, tenant.SchemaName(tenantID), func(ctx context.Context, conn *pgxpool.Conn) error {
			edgeTag, err := conn.Exec(ctx,
				`DELETE FROM graph_edges WHERE tenant_id = $1 AND deleted_at IS NOT NULL AND deleted_at < $2`,
				tenantID, cutoff,
			)
			if err != nil {
				return fmt.Errorf("purging retained edges: %w", err)
			}
			nodeTag, err := conn.Exec(ctx,
				`DELETE FROM graph_nodes WHERE tenant_id = $1 AND deleted_at IS NOT NULL AND deleted_at < $2`,
				tenantID, cutoff,
			)
			if err != nil {
				return fmt.Errorf("purging retained nodes: %w", err)
			}
			removed = edgeTag.RowsAffected() + nodeTag.RowsAffected()
			return nil
		})
	})

	return removed, err
}
