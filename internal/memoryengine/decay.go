package memoryengine

import (
	"context"
	"time"

	"github.com/wisbric/stratum/internal/domain"
)

// DecayConfig controls the background decay and reinforcement-pruning
// sweep (§4.5, optional per tenant config). The sweep does no
// consolidation.
type DecayConfig struct {
	Enabled          bool
	HalfLife         time.Duration
	PruneThreshold   float64 // decay factor below this becomes prune-eligible
	MinAgeForPruning time.Duration
}

// DefaultDecayConfig returns conservative, opt-in defaults.
func DefaultDecayConfig() DecayConfig {
	return DecayConfig{
		Enabled:          false,
		HalfLife:         30 * 24 * time.Hour,
		PruneThreshold:   0.05,
		MinAgeForPruning: 7 * 24 * time.Hour,
	}
}

// DecaySweepResult summarizes one tenant's sweep outcome.
type DecaySweepResult struct {
	Scanned int
	Pruned  int
}

// RunDecaySweep walks every memory node for a tenant, recomputes each
// one's decay factor from its age since created_at (credited by its
// access count), and
// soft-deletes ("reinforcement-driven pruning") entries that decay
// below cfg.PruneThreshold and are old enough that pruning them is
// not just noise from a cold cache.
func (e *Engine) RunDecaySweep(ctx context.Context, tenantID string, cfg DecayConfig) (DecaySweepResult, error) {
	var result DecaySweepResult
	if !cfg.Enabled {
		return result, nil
	}

	nodes, err := e.graph.ListMemoryNodes(ctx, tenantID)
	if err != nil {
		return result, domain.NewError(domain.CodeProviderError, "listing memory nodes for decay sweep").WithCause(err)
	}

	now := time.Now().UTC()
	var toPrune []string

	for _, node := range nodes {
		result.Scanned++

		createdRaw, _ := node.Properties["created_at"].(string)
		createdAt, parseErr := time.Parse(time.RFC3339, createdRaw)
		if parseErr != nil {
			continue
		}
		age := now.Sub(createdAt)
		if age < cfg.MinAgeForPruning {
			continue
		}

		accessCount, _ := node.Properties["access_count"].(float64)
		decayFactor := halfLifeDecay(age, cfg.HalfLife)
		if accessCount > 0 {
			// Each access adds 1/frequencyNormalizer to the factor,
			// clamped to 1, so 50 or more accesses keep it at 1.
			decayFactor = clamp01(decayFactor + accessCount/frequencyNormalizer)
		}

		if decayFactor < cfg.PruneThreshold {
			toPrune = append(toPrune, node.ID)
		}
	}

	for _, id := range toPrune {
		if err := e.Delete(ctx, &domain.TenantContext{TenantID: tenantID}, id); err != nil {
			continue
		}
		result.Pruned++
	}

	return result, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
