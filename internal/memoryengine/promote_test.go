package memoryengine

import (
	"testing"
	"time"

	"github.com/wisbric/stratum/internal/domain"
)

func TestImportanceScoreFreshFrequentMemoryScoresHigh(t *testing.T) {
	now := time.Now().UTC()
	recent := now.Add(-time.Minute)
	meta := domain.MemoryMetadata{AccessCount: 100, LastAccessedAt: &recent}

	score := ImportanceScore(meta, now)
	if score < 0.9 {
		t.Errorf("expected high importance for recent+frequent memory, got %f", score)
	}
}

func TestImportanceScoreStaleUnusedMemoryScoresLow(t *testing.T) {
	now := time.Now().UTC()
	stale := now.Add(-90 * 24 * time.Hour)
	meta := domain.MemoryMetadata{AccessCount: 0, LastAccessedAt: &stale}

	score := ImportanceScore(meta, now)
	if score > 0.1 {
		t.Errorf("expected low importance for stale unused memory, got %f", score)
	}
}

func TestImportanceScoreNeverAccessedHasZeroRecency(t *testing.T) {
	now := time.Now().UTC()
	meta := domain.MemoryMetadata{AccessCount: 10}

	score := ImportanceScore(meta, now)
	expectedFrequency := importanceWeightFrequency * (float64(meta.AccessCount) / frequencyNormalizer)
	if score != expectedFrequency {
		t.Errorf("expected score to equal frequency-only contribution %f, got %f", expectedFrequency, score)
	}
}

func TestPromoteRejectsNarrowerOrEqualTargetLayer(t *testing.T) {
	e := &Engine{}
	tc := &domain.TenantContext{TenantID: "t1"}

	_, err := e.Promote(nil, tc, PromoteInput{
		ID:        "m1",
		FromLayer: domain.LayerProject,
		ToLayer:   domain.LayerAgent,
	}, domain.Identifiers{}, "hello")

	if domain.CodeOf(err) != domain.CodeInvalidLayer {
		t.Errorf("expected CodeInvalidLayer, got %v", err)
	}
}
