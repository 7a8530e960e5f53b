package memoryengine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/wisbric/stratum/internal/domain"
	"github.com/wisbric/stratum/internal/embedding"
)

// depthTokenBudget is the approximate token target per SummaryDepth,
// per §3's LayerSummary.depth tiers.
var depthTokenBudget = map[domain.SummaryDepth]int{
	domain.DepthSentence:  50,
	domain.DepthParagraph: 200,
	domain.DepthDetailed:  500,
}

// cheapTierLayers use a cheaper summarizer model per §4.4 ("lower-
// priority layers use a cheaper summarizer tier").
var cheapTierLayers = map[domain.Layer]bool{
	domain.LayerOrg:     true,
	domain.LayerCompany: true,
}

// SummaryGenerator implements summarycache.Generator by concatenating a
// layer's current memory content and summarizing it with a Summarizer,
// selecting a cheaper-tier Summarizer for lower-priority layers.
type SummaryGenerator struct {
	engine   *Engine
	standard embedding.Summarizer
	cheap    embedding.Summarizer
}

// NewSummaryGenerator constructs a SummaryGenerator over engine. cheap
// may equal standard if no separate cheap-tier model is configured.
func NewSummaryGenerator(engine *Engine, standard, cheap embedding.Summarizer) *SummaryGenerator {
	return &SummaryGenerator{engine: engine, standard: standard, cheap: cheap}
}

func (g *SummaryGenerator) summarizerFor(layer domain.Layer) embedding.Summarizer {
	if cheapTierLayers[layer] && g.cheap != nil {
		return g.cheap
	}
	return g.standard
}

// Generate concatenates every non-deleted memory node at layer and
// summarizes it at the requested depth, recomputing the source hash so
// SummaryCache can detect staleness on the next read.
func (g *SummaryGenerator) Generate(ctx context.Context, tenantID string, layer domain.Layer, depth domain.SummaryDepth) (domain.LayerSummary, error) {
	nodes, err := g.engine.graph.ListMemoryNodes(ctx, tenantID)
	if err != nil {
		return domain.LayerSummary{}, domain.NewError(domain.CodeProviderError, "listing memory nodes for summary generation").WithCause(err)
	}

	var contents []string
	for _, n := range nodes {
		if domain.Layer(n.Label) != layer {
			continue
		}
		if content, ok := n.Properties["content"].(string); ok && content != "" {
			contents = append(contents, content)
		}
	}
	sort.Strings(contents)
	source := strings.Join(contents, "\n")
	sourceHash := contentHash(source)

	if source == "" {
		return domain.LayerSummary{
			TenantID:   tenantID,
			Layer:      layer,
			Depth:      depth,
			Content:    "",
			SourceHash: sourceHash,
		}, nil
	}

	budget := depthTokenBudget[depth]
	if budget == 0 {
		budget = depthTokenBudget[domain.DepthParagraph]
	}

	summary, tokenCount, err := g.summarizerFor(layer).Summarize(ctx, source, budget)
	if err != nil {
		return domain.LayerSummary{}, domain.NewError(domain.CodeProviderError, "summarization failed").WithCause(err)
	}

	return domain.LayerSummary{
		TenantID:   tenantID,
		Layer:      layer,
		Depth:      depth,
		Content:    summary,
		TokenCount: tokenCount,
		SourceHash: sourceHash,
	}, nil
}

func contentHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
