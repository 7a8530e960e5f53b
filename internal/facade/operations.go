package facade

import (
	"context"

	"github.com/wisbric/stratum/internal/domain"
	"github.com/wisbric/stratum/internal/memoryengine"
)

// AddMemory is the sole entry point for creating a memory: it binds
// PolicyEngine through memoryengine.Add (which validates the write
// before touching C2/C1) and emits an audit record on success.
func (f *Facade) AddMemory(ctx context.Context, tc *domain.TenantContext, in memoryengine.AddInput) (*domain.MemoryEntry, error) {
	entry, err := f.memory.Add(ctx, tc, in)
	if err != nil {
		f.logAudit(tc, "memory.add", "memory", "", "denied", nil)
		return nil, err
	}
	f.logAudit(tc, "memory.add", "memory", entry.ID, "allowed", nil)
	return entry, nil
}

// GetMemory retrieves a single memory by id.
func (f *Facade) GetMemory(ctx context.Context, tc *domain.TenantContext, id string) (*domain.MemoryEntry, error) {
	entry, err := f.memory.Get(ctx, tc, id)
	if err != nil {
		f.logAudit(tc, "memory.get", "memory", id, "denied", nil)
		return nil, err
	}
	decision := "allowed"
	if entry == nil {
		decision = "not_found"
	}
	f.logAudit(tc, "memory.get", "memory", id, decision, nil)
	return entry, nil
}

// UpdateMemory applies a content or metadata patch to an existing memory.
func (f *Facade) UpdateMemory(ctx context.Context, tc *domain.TenantContext, id string, in memoryengine.UpdateInput) error {
	if err := f.memory.Update(ctx, tc, id, in); err != nil {
		f.logAudit(tc, "memory.update", "memory", id, "denied", nil)
		return err
	}
	f.logAudit(tc, "memory.update", "memory", id, "allowed", nil)
	return nil
}

// DeleteMemory removes a memory and its graph edges. Idempotent.
func (f *Facade) DeleteMemory(ctx context.Context, tc *domain.TenantContext, id string) error {
	if err := f.memory.Delete(ctx, tc, id); err != nil {
		f.logAudit(tc, "memory.delete", "memory", id, "denied", nil)
		return err
	}
	f.logAudit(tc, "memory.delete", "memory", id, "allowed", nil)
	return nil
}

// PromoteMemory copies a memory's (redacted) content to a wider layer.
func (f *Facade) PromoteMemory(ctx context.Context, tc *domain.TenantContext, in memoryengine.PromoteInput, identifiers domain.Identifiers, content string) (*memoryengine.PromoteResult, error) {
	result, err := f.memory.Promote(ctx, tc, in, identifiers, content)
	if err != nil {
		f.logAudit(tc, "memory.promote", "memory", in.ID, "denied", nil)
		return nil, err
	}
	decision := "allowed"
	if !result.Promoted {
		decision = "blocked:" + string(result.Reason)
	}
	f.logAudit(tc, "memory.promote", "memory", in.ID, decision, nil)
	return result, nil
}

// SearchResult is what Search returns regardless of which internal path
// (standard fan-out or routed decomposition) actually produced it — the
// routing decision is never visible to the caller (§4.6 invariant 8).
type SearchResult struct {
	Hits     []memoryengine.SearchHit
	Warnings []domain.Warning
	Routed   bool // internal/debug only; not part of the wire schema
}

// Search is the sole entry point for querying memory. A complexity
// score at or above the router's threshold routes the query through the
// DecompositionExecutor instead of the standard per-layer fan-out; both
// paths return the identical SearchHit schema.
func (f *Facade) Search(ctx context.Context, tc *domain.TenantContext, in memoryengine.SearchInput) (*SearchResult, error) {
	if f.complex == nil || f.exec == nil || !f.complex.Route(f.complex.Score(in.Query, in.Identifiers)) {
		hits, warnings, err := f.memory.Search(ctx, tc, in)
		if err != nil {
			f.logAudit(tc, "memory.search", "memory", "", "denied", warnings)
			return nil, err
		}
		f.logAudit(tc, "memory.search", "memory", "", "allowed", warnings)
		return &SearchResult{Hits: hits, Warnings: warnings, Routed: false}, nil
	}

	result, err := f.exec.Run(ctx, tc, in.Query, in.Identifiers)
	if err != nil {
		f.logAudit(tc, "memory.search", "memory", "", "denied", nil)
		return nil, err
	}

	if f.trainer != nil {
		success := 0.0
		if len(result.Hits) > 0 {
			success = 1.0
		}
		tokenCost := 0
		for _, action := range result.Trajectory.Actions {
			tokenCost += action.TokenCost
		}
		result.Trajectory.Reward = f.trainer.Reward(success, tokenCost)
		_ = f.trainer.Record(ctx, result.Trajectory)
	}

	f.logAudit(tc, "memory.search", "memory", "", "allowed", result.Warnings)
	return &SearchResult{Hits: result.Hits, Warnings: result.Warnings, Routed: true}, nil
}
