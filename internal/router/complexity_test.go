package router

import (
	"testing"

	"github.com/wisbric/stratum/internal/domain"
)

func TestScoreSimpleSingleLayerLookupStaysBelowThreshold(t *testing.T) {
	r := NewComplexityRouter(DefaultConfig())
	score := r.Score("what did I save yesterday", domain.Identifiers{UserID: "u1"})
	if r.Route(score) {
		t.Errorf("expected simple query to take standard path, score=%f", score)
	}
}

func TestScoreAggregationKeywordRaisesComplexity(t *testing.T) {
	r := NewComplexityRouter(DefaultConfig())
	plain := r.Score("what is the deployment process", domain.Identifiers{UserID: "u1"})
	withAgg := r.Score("summarize all deployment processes across teams", domain.Identifiers{UserID: "u1"})
	if withAgg <= plain {
		t.Errorf("expected aggregation keywords to raise score: plain=%f withAgg=%f", plain, withAgg)
	}
}

func TestScoreComparisonKeywordRaisesComplexity(t *testing.T) {
	r := NewComplexityRouter(DefaultConfig())
	plain := r.Score("what is the deployment process", domain.Identifiers{UserID: "u1"})
	withCmp := r.Score("compare the deployment process versus last quarter", domain.Identifiers{UserID: "u1"})
	if withCmp <= plain {
		t.Errorf("expected comparison keywords to raise score: plain=%f withCmp=%f", plain, withCmp)
	}
}

func TestScoreMultiLayerIdentifiersRaisesComplexity(t *testing.T) {
	r := NewComplexityRouter(DefaultConfig())
	single := r.Score("status update", domain.Identifiers{UserID: "u1"})
	multi := r.Score("status update", domain.Identifiers{UserID: "u1", ProjectID: "p1", TeamID: "t1", OrgID: "o1"})
	if multi <= single {
		t.Errorf("expected broader identifier access to raise score: single=%f multi=%f", single, multi)
	}
}

func TestScoreIsClampedToUnitInterval(t *testing.T) {
	r := NewComplexityRouter(DefaultConfig())
	score := r.Score("compare and contrast, summarize, all, across, versus, every single project, team, org, company, and agent session memory entries in detail", domain.Identifiers{
		UserID: "u1", ProjectID: "p1", TeamID: "t1", OrgID: "o1", CompanyID: "c1",
	})
	if score > 1.0 || score < 0.0 {
		t.Errorf("expected score in [0,1], got %f", score)
	}
}

func TestRouteHonorsConfiguredThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Threshold = 0.9
	r := NewComplexityRouter(cfg)
	if r.Route(0.5) {
		t.Error("expected score below raised threshold to stay on standard path")
	}
}
