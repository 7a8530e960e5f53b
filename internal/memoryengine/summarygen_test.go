package memoryengine

import (
	"context"
	"testing"

	"github.com/wisbric/stratum/internal/domain"
)

type fakeSummarizer struct {
	name string
}

func (f *fakeSummarizer) Summarize(ctx context.Context, content string, tokenBudget int) (string, int, error) {
	return f.name, tokenBudget, nil
}

func TestSummarizerForUsesCheapTierForLowPriorityLayers(t *testing.T) {
	standard := &fakeSummarizer{name: "standard"}
	cheap := &fakeSummarizer{name: "cheap"}
	g := NewSummaryGenerator(nil, standard, cheap)

	if got := g.summarizerFor(domain.LayerOrg); got != cheap {
		t.Errorf("LayerOrg should use cheap summarizer")
	}
	if got := g.summarizerFor(domain.LayerCompany); got != cheap {
		t.Errorf("LayerCompany should use cheap summarizer")
	}
}

func TestSummarizerForUsesStandardTierForOtherLayers(t *testing.T) {
	standard := &fakeSummarizer{name: "standard"}
	cheap := &fakeSummarizer{name: "cheap"}
	g := NewSummaryGenerator(nil, standard, cheap)

	if got := g.summarizerFor(domain.LayerSession); got != standard {
		t.Errorf("LayerSession should use standard summarizer")
	}
}

func TestSummarizerForFallsBackToStandardWhenNoCheapConfigured(t *testing.T) {
	standard := &fakeSummarizer{name: "standard"}
	g := NewSummaryGenerator(nil, standard, nil)

	if got := g.summarizerFor(domain.LayerOrg); got != standard {
		t.Errorf("expected fallback to standard summarizer when cheap is nil")
	}
}

func TestContentHashIsStableAndDeterministic(t *testing.T) {
	a := contentHash("same input")
	b := contentHash("same input")
	if a != b {
		t.Errorf("contentHash should be deterministic: %q != %q", a, b)
	}
	if contentHash("different input") == a {
		t.Errorf("contentHash should differ for different input")
	}
}
