package router

import (
	"testing"

	"github.com/wisbric/stratum/internal/domain"
	"github.com/wisbric/stratum/internal/memoryengine"
)

func TestBudgetSpendExhausts(t *testing.T) {
	b := &budget{remaining: 2, maxHops: 5}
	if !b.spend() {
		t.Fatal("expected first spend to succeed")
	}
	if !b.spend() {
		t.Fatal("expected second spend to succeed")
	}
	if b.spend() {
		t.Error("expected third spend to fail once remaining is exhausted")
	}
}

func TestDrillDownHitsDiscountsAnchorScore(t *testing.T) {
	entries := []domain.MemoryEntry{
		{ID: "n1", Layer: domain.LayerProject, Content: "neighbor content"},
	}

	hits := drillDownHits(entries, 1.0)
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	if hits[0].Score >= 1.0 {
		t.Errorf("expected drill-down hit score discounted below anchor score, got %f", hits[0].Score)
	}
	if hits[0].Content != "neighbor content" {
		t.Errorf("expected content carried through, got %q", hits[0].Content)
	}
}

func TestAggregateCombineDedupesAndSortsByScore(t *testing.T) {
	hits := []memoryengine.SearchHit{
		{ID: "a", Score: 0.2},
		{ID: "b", Score: 0.9},
		{ID: "a", Score: 0.5},
	}

	out := aggregate(hits, AggregateCombine)
	if len(out) != 2 {
		t.Fatalf("expected duplicate id collapsed, got %d hits", len(out))
	}
	if out[0].ID != "b" {
		t.Errorf("expected highest-score hit first, got %s", out[0].ID)
	}
}

func TestAggregateSummarizeCapsAtFive(t *testing.T) {
	hits := make([]memoryengine.SearchHit, 0, 10)
	for i := 0; i < 10; i++ {
		hits = append(hits, memoryengine.SearchHit{ID: string(rune('a' + i)), Score: float64(i)})
	}

	out := aggregate(hits, AggregateSummarize)
	if len(out) != 5 {
		t.Errorf("expected summarize to cap at 5 hits, got %d", len(out))
	}
}

func TestRunSubQueryRefusesAtMaxHops(t *testing.T) {
	x := &DecompositionExecutor{cfg: Config{MaxHops: 1}}
	b := &budget{remaining: 10, depth: 1, maxHops: 1}
	trajectory := &domain.Trajectory{}

	_, err := x.runSubQuery(nil, nil, "sub query", domain.Identifiers{}, b, trajectory)
	if err == nil {
		t.Error("expected recursive call to be refused at max hop depth")
	}
}

func TestRunSubQueryRefusesWhenBudgetExhausted(t *testing.T) {
	x := &DecompositionExecutor{cfg: Config{MaxHops: 5}}
	b := &budget{remaining: 0, depth: 0, maxHops: 5}
	trajectory := &domain.Trajectory{}

	_, err := x.runSubQuery(nil, nil, "sub query", domain.Identifiers{}, b, trajectory)
	if err == nil {
		t.Error("expected recursive call to be refused when the query budget is exhausted")
	}
}
