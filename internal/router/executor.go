package router

import (
	"context"
	"fmt"
	"time"

	"github.com/wisbric/stratum/internal/domain"
	"github.com/wisbric/stratum/internal/memoryengine"
)

// AggregateStrategy is one of the three result-set transforms §4.6's
// Aggregate action may apply — each preserves the external search-result
// schema per SPEC_FULL §7 decision 2.
type AggregateStrategy string

const (
	AggregateCombine   AggregateStrategy = "combine"
	AggregateCompare   AggregateStrategy = "compare"
	AggregateSummarize AggregateStrategy = "summarize"
)

// DecompositionExecutor runs the bounded multi-step SearchLayer/
// DrillDown/RecursiveCall/Aggregate sequence a complex query is routed
// to, recording every action into an internal Trajectory used only to
// train the routing policy.
type DecompositionExecutor struct {
	memory *memoryengine.Engine
	router *ComplexityRouter
	cfg    Config
}

// NewDecompositionExecutor constructs a DecompositionExecutor over a
// MemoryEngine. router scores the sub-queries DrillDown surfaces, so a
// neighborhood that is itself complex triggers a bounded RecursiveCall
// instead of always stopping at one hop.
func NewDecompositionExecutor(memory *memoryengine.Engine, router *ComplexityRouter, cfg Config) *DecompositionExecutor {
	return &DecompositionExecutor{memory: memory, router: router, cfg: cfg}
}

// Result is what a decomposition run produces: the same hit shape the
// standard search path returns, plus the internal trajectory used for
// training (never surfaced to callers).
type Result struct {
	Hits       []memoryengine.SearchHit
	Trajectory domain.Trajectory
	Warnings   []domain.Warning
}

// budget tracks the global sub-query allowance and hop depth for one
// decomposition run.
type budget struct {
	remaining int
	depth     int
	maxHops   int
}

func (b *budget) spend() bool {
	if b.remaining <= 0 {
		return false
	}
	b.remaining--
	return true
}

// Run executes the decomposition for query: it fans SearchLayer across
// every accessible layer, and for any layer whose top hit clears the
// relevance floor it follows up with DrillDown on that hit; if the
// drilled-down neighborhood's own content still scores as complex, it
// issues a bounded RecursiveCall (runSubQuery) over that neighborhood
// before aggregating everything with the "combine" strategy.
func (x *DecompositionExecutor) Run(ctx context.Context, tc *domain.TenantContext, query string, identifiers domain.Identifiers) (*Result, error) {
	b := &budget{remaining: x.cfg.GlobalQueryBudget, maxHops: x.cfg.MaxHops}
	trajectory := &domain.Trajectory{TenantID: tc.TenantID}

	hits, warnings := x.decompose(ctx, tc, query, identifiers, b, trajectory)
	aggregated := x.aggregateAction(hits, AggregateCombine, trajectory)

	return &Result{Hits: aggregated, Trajectory: *trajectory, Warnings: warnings}, nil
}

// decompose is Run's recursion-sharing core: both the top-level call and
// every runSubQuery (RecursiveCall) step through it against the same
// budget and trajectory, so the global sub-query allowance and hop
// depth are enforced across the whole call tree, not just one level.
func (x *DecompositionExecutor) decompose(ctx context.Context, tc *domain.TenantContext, query string, identifiers domain.Identifiers, b *budget, trajectory *domain.Trajectory) ([]memoryengine.SearchHit, []domain.Warning) {
	var warnings []domain.Warning
	var allHits []memoryengine.SearchHit

	layers := domain.AccessibleLayers(identifiers)
	for _, layer := range layers {
		if b.depth >= b.maxHops {
			warnings = append(warnings, domain.Warning{Code: "max_hops_reached", Message: "decomposition stopped at configured hop limit"})
			break
		}
		if !b.spend() {
			warnings = append(warnings, domain.Warning{Code: "query_budget_exhausted", Message: "decomposition stopped at configured sub-query budget"})
			break
		}

		hits, outcome := x.searchLayerAction(ctx, tc, layer, query, trajectory)
		if outcome != "" {
			continue
		}

		topScore := 0.0
		if len(hits) > 0 {
			topScore = hits[0].Score
		}
		allHits = append(allHits, hits...)
		b.depth++

		if topScore < x.cfg.RelevanceFloor {
			// No further drill-down on a layer that already scored low.
			continue
		}

		entries, err := x.DrillDown(ctx, tc, hits[0].ID, trajectory)
		if err != nil || len(entries) == 0 {
			continue
		}
		allHits = append(allHits, drillDownHits(entries, topScore)...)

		subQuery := entries[0].Content
		if subQuery == "" || x.router == nil || !x.router.Route(x.router.Score(subQuery, identifiers)) {
			// The drilled-down neighborhood is simple enough on its own;
			// RecursiveCall would just repeat the search we already did.
			continue
		}

		subHits, err := x.runSubQuery(ctx, tc, subQuery, identifiers, b, trajectory)
		if err != nil {
			warnings = append(warnings, domain.Warning{Code: "recursive_call_refused", Message: err.Error()})
			continue
		}
		allHits = append(allHits, subHits...)
	}

	return allHits, warnings
}

// drillDownHits turns DrillDown's graph-neighbor entries into SearchHits
// at a score discounted from the anchor hit that led to them — they
// were reached by graph adjacency, not a direct vector match.
func drillDownHits(entries []domain.MemoryEntry, anchorScore float64) []memoryengine.SearchHit {
	const drillDownDiscount = 0.9
	out := make([]memoryengine.SearchHit, 0, len(entries))
	for _, e := range entries {
		out = append(out, memoryengine.SearchHit{
			ID:      e.ID,
			Layer:   e.Layer,
			Score:   anchorScore * drillDownDiscount,
			Content: e.Content,
		})
	}
	return out
}

func (x *DecompositionExecutor) searchLayerAction(ctx context.Context, tc *domain.TenantContext, layer domain.Layer, query string, trajectory *domain.Trajectory) ([]memoryengine.SearchHit, string) {
	actionCtx, cancel := context.WithTimeout(ctx, x.cfg.ActionBudget)
	defer cancel()

	start := time.Now()
	hits, err := x.memory.SearchLayer(actionCtx, tc, layer, query, 10, 0)
	outcome := "success"
	if err != nil {
		outcome = "error: " + err.Error()
	}

	trajectory.Actions = append(trajectory.Actions, domain.TrajectoryAction{
		Name:       fmt.Sprintf("SearchLayer(%s)", layer),
		TokenCost:  estimateTokens(query),
		Outcome:    outcome,
		OccurredAt: start,
	})

	if err != nil {
		return nil, outcome
	}
	return hits, ""
}

// DrillDown narrows scope to the graph neighborhood of one anchor hit
// by listing the memories one hop from anchorID, recorded as its own
// trajectory action.
func (x *DecompositionExecutor) DrillDown(ctx context.Context, tc *domain.TenantContext, anchorID string, trajectory *domain.Trajectory) ([]domain.MemoryEntry, error) {
	actionCtx, cancel := context.WithTimeout(ctx, x.cfg.ActionBudget)
	defer cancel()

	start := time.Now()
	entries, err := x.memory.List(actionCtx, tc, anchorID, 1)
	outcome := "success"
	if err != nil {
		outcome = "error: " + err.Error()
	}

	trajectory.Actions = append(trajectory.Actions, domain.TrajectoryAction{
		Name:       "DrillDown",
		TokenCost:  estimateTokens(anchorID),
		Outcome:    outcome,
		OccurredAt: start,
	})

	return entries, err
}

// runSubQuery implements RecursiveCall: a bounded-depth nested
// decomposition over a narrower sub_query, sharing b and trajectory
// with the caller so the global budget and hop depth apply across the
// whole recursive call tree, refusing once maxHops is reached per
// §4.6's "enforced depth limit".
func (x *DecompositionExecutor) runSubQuery(ctx context.Context, tc *domain.TenantContext, subQuery string, identifiers domain.Identifiers, b *budget, trajectory *domain.Trajectory) ([]memoryengine.SearchHit, error) {
	if b.depth >= b.maxHops {
		return nil, fmt.Errorf("recursive call refused: depth limit %d reached", b.maxHops)
	}
	if !b.spend() {
		return nil, fmt.Errorf("recursive call refused: query budget exhausted")
	}
	b.depth++
	hits, _ := x.decompose(ctx, tc, subQuery, identifiers, b, trajectory)
	return hits, nil
}

// aggregateAction unifies partial per-layer results using strategy,
// recording the action into trajectory. Every strategy preserves the
// SearchHit schema so the caller cannot distinguish which path produced
// the response (§4.6, invariant 8).
func (x *DecompositionExecutor) aggregateAction(hits []memoryengine.SearchHit, strategy AggregateStrategy, trajectory *domain.Trajectory) []memoryengine.SearchHit {
	start := time.Now()
	result := aggregate(hits, strategy)

	trajectory.Actions = append(trajectory.Actions, domain.TrajectoryAction{
		Name:       fmt.Sprintf("Aggregate(%s)", strategy),
		TokenCost:  estimateTokens(fmt.Sprintf("%d hits", len(hits))),
		Outcome:    "success",
		OccurredAt: start,
	})

	return result
}

// aggregate applies one of the three result-set transforms.
func aggregate(hits []memoryengine.SearchHit, strategy AggregateStrategy) []memoryengine.SearchHit {
	switch strategy {
	case AggregateCompare:
		return sortByScoreDesc(dedupeByID(hits))
	case AggregateSummarize:
		return topN(sortByScoreDesc(dedupeByID(hits)), 5)
	default: // combine
		return sortByScoreDesc(dedupeByID(hits))
	}
}

func dedupeByID(hits []memoryengine.SearchHit) []memoryengine.SearchHit {
	seen := make(map[string]bool, len(hits))
	out := make([]memoryengine.SearchHit, 0, len(hits))
	for _, h := range hits {
		if seen[h.ID] {
			continue
		}
		seen[h.ID] = true
		out = append(out, h)
	}
	return out
}

func sortByScoreDesc(hits []memoryengine.SearchHit) []memoryengine.SearchHit {
	out := make([]memoryengine.SearchHit, len(hits))
	copy(out, hits)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1].Score < out[j].Score; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

func topN(hits []memoryengine.SearchHit, n int) []memoryengine.SearchHit {
	if len(hits) <= n {
		return hits
	}
	return hits[:n]
}

// estimateTokens is a coarse token-cost estimate for trajectory
// accounting — roughly 4 characters per token, the same heuristic used
// when no tokenizer is available.
func estimateTokens(s string) int {
	return (len(s) + 3) / 4
}
