package memoryengine

import (
	"context"
	"testing"

	"github.com/wisbric/stratum/internal/domain"
	"github.com/wisbric/stratum/internal/vectorindex"
)

func newMergeTestEngine() *Engine {
	return &Engine{embedCache: make(map[string][]float32)}
}

func TestMergeByPrecedenceNarrowestWins(t *testing.T) {
	results := []layerResult{
		{layer: domain.LayerAgent, hits: []vectorindex.SearchResult{{ID: "a1", Score: 0.5}}},
		{layer: domain.LayerProject, hits: []vectorindex.SearchResult{{ID: "p1", Score: 0.99}}},
	}

	merged := newMergeTestEngine().mergeByPrecedence(context.Background(), "t1", results, 0.95)
	if len(merged) != 2 {
		t.Fatalf("expected 2 merged hits, got %d", len(merged))
	}
	if merged[0].ID != "a1" {
		t.Errorf("expected narrower layer hit first despite lower score, got %s", merged[0].ID)
	}
}

func TestMergeByPrecedenceDropsExactDuplicateID(t *testing.T) {
	results := []layerResult{
		{layer: domain.LayerAgent, hits: []vectorindex.SearchResult{{ID: "x", Score: 0.9}}},
		{layer: domain.LayerProject, hits: []vectorindex.SearchResult{{ID: "x", Score: 0.99}}},
	}

	merged := newMergeTestEngine().mergeByPrecedence(context.Background(), "t1", results, 0.95)
	if len(merged) != 1 {
		t.Fatalf("expected duplicate id collapsed to 1 hit, got %d", len(merged))
	}
	if merged[0].layer != domain.LayerAgent {
		t.Errorf("expected narrower layer's copy retained, got %s", merged[0].layer)
	}
}

func TestMergeByPrecedenceDropsContentHashDuplicate(t *testing.T) {
	results := []layerResult{
		{layer: domain.LayerAgent, hits: []vectorindex.SearchResult{{ID: "a", Score: 0.9, Metadata: map[string]any{"content_hash": "h1"}}}},
		{layer: domain.LayerProject, hits: []vectorindex.SearchResult{{ID: "b", Score: 0.99, Metadata: map[string]any{"content_hash": "h1"}}}},
	}

	merged := newMergeTestEngine().mergeByPrecedence(context.Background(), "t1", results, 0.95)
	if len(merged) != 1 {
		t.Fatalf("expected content-hash duplicate collapsed to 1 hit, got %d", len(merged))
	}
	if merged[0].ID != "a" {
		t.Errorf("expected first-seen (narrower layer) hit retained, got %s", merged[0].ID)
	}
}

func TestMergeByPrecedenceTieBreaksByScore(t *testing.T) {
	results := []layerResult{
		{layer: domain.LayerProject, hits: []vectorindex.SearchResult{
			{ID: "low", Score: 0.5},
			{ID: "high", Score: 0.9},
		}},
	}

	merged := newMergeTestEngine().mergeByPrecedence(context.Background(), "t1", results, 0.95)
	if merged[0].ID != "high" {
		t.Errorf("expected higher-score hit first within same layer, got %s", merged[0].ID)
	}
}

// fakeEmbedder returns a fixed vector per content string, so tests can
// construct near-identical and dissimilar embeddings deterministically.
type fakeEmbedder struct {
	vectors map[string][]float32
}

func (f *fakeEmbedder) Embed(ctx context.Context, content string) ([]float32, error) {
	return f.vectors[content], nil
}

func (f *fakeEmbedder) Dimension() int { return 3 }

func TestIsNearDuplicateCollapsesCosineSimilarHits(t *testing.T) {
	e := &Engine{
		embedCache: make(map[string][]float32),
		embedder: &fakeEmbedder{vectors: map[string][]float32{
			"the deployment failed at 3am":  {1, 0, 0},
			"the deployment failed at 3 am": {0.99, 0.01, 0},
		}},
	}

	seen := []scoredHit{{
		SearchResult: vectorindex.SearchResult{ID: "a", Score: 0.9},
		layer:        domain.LayerProject,
		content:      "the deployment failed at 3am",
	}}

	hit := vectorindex.SearchResult{ID: "b", Score: 0.95}
	if !e.isNearDuplicate(context.Background(), hit, "the deployment failed at 3 am", seen, 0.95) {
		t.Error("expected near-identical paraphrase content to collapse as a duplicate")
	}
}

func TestIsNearDuplicateKeepsDissimilarContent(t *testing.T) {
	e := &Engine{
		embedCache: make(map[string][]float32),
		embedder: &fakeEmbedder{vectors: map[string][]float32{
			"the deployment failed at 3am": {1, 0, 0},
			"the invoice is overdue":       {0, 1, 0},
		}},
	}

	seen := []scoredHit{{
		SearchResult: vectorindex.SearchResult{ID: "a", Score: 0.9},
		layer:        domain.LayerProject,
		content:      "the deployment failed at 3am",
	}}

	hit := vectorindex.SearchResult{ID: "b", Score: 0.95}
	if e.isNearDuplicate(context.Background(), hit, "the invoice is overdue", seen, 0.95) {
		t.Error("expected unrelated content to not be treated as a duplicate")
	}
}

func TestCosineSimilarityIdenticalVectorsIsOne(t *testing.T) {
	if got := cosineSimilarity([]float32{1, 2, 3}, []float32{1, 2, 3}); got < 0.999999 {
		t.Errorf("expected similarity ~1.0, got %f", got)
	}
}

func TestCosineSimilarityOrthogonalVectorsIsZero(t *testing.T) {
	if got := cosineSimilarity([]float32{1, 0}, []float32{0, 1}); got != 0 {
		t.Errorf("expected similarity 0, got %f", got)
	}
}

func TestCosineSimilarityMismatchedLengthIsZero(t *testing.T) {
	if got := cosineSimilarity([]float32{1, 2}, []float32{1, 2, 3}); got != 0 {
		t.Errorf("expected similarity 0 for mismatched lengths, got %f", got)
	}
}

func TestContentHashOfPrefersMetadata(t *testing.T) {
	got := contentHashOf(map[string]any{"content_hash": "stored"}, "ignored content")
	if got != "stored" {
		t.Errorf("expected stored hash to win, got %s", got)
	}
}

func TestContentHashOfFallsBackToComputedHash(t *testing.T) {
	got := contentHashOf(nil, "hello")
	if got != normalizedHash("hello") {
		t.Errorf("expected computed hash fallback, got %s", got)
	}
}
