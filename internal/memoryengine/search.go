package memoryengine

import (
	"context"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/wisbric/stratum/internal/domain"
	"github.com/wisbric/stratum/internal/policy"
	"github.com/wisbric/stratum/internal/vectorindex"
)

// SearchInput is the request shape for Search.
type SearchInput struct {
	Query       string
	Identifiers domain.Identifiers
	K           int
	Threshold   float64
	Filter      vectorindex.Filter
}

// SearchHit pairs a ranked vector match with the layer it was found at.
type SearchHit struct {
	ID       string
	Layer    domain.Layer
	Score    float64
	Content  string
	Metadata map[string]any
}

// Search fans out across every layer the caller's identifiers make
// accessible, then merges results by the precedence rule in §4.5:
// narrowest layer wins first, ties broken by similarity score, with
// near-duplicate content (cosine similarity >= DedupeSimilarity)
// collapsed to the higher-precedence hit.
func (e *Engine) Search(ctx context.Context, tc *domain.TenantContext, in SearchInput) ([]SearchHit, []domain.Warning, error) {
	if err := requireContext(tc); err != nil {
		return nil, nil, err
	}
	if len(in.Query) > 8*1024 {
		return nil, nil, domain.NewError(domain.CodeQueryTooLong, "query exceeds maximum length")
	}

	k := in.K
	if k <= 0 {
		k = e.cfg.DefaultSearchK
	}
	if k > e.cfg.MaxSearchK {
		k = e.cfg.MaxSearchK
	}
	threshold := in.Threshold
	if threshold <= 0 {
		threshold = e.cfg.DefaultThreshold
	}

	vec, err := e.embed(ctx, in.Query)
	if err != nil {
		return nil, nil, err
	}

	layers := domain.AccessibleLayers(in.Identifiers)
	if len(layers) == 0 {
		return nil, nil, domain.NewError(domain.CodeMissingIdentifier, "no accessible layers for supplied identifiers")
	}

	results := make([]layerResult, len(layers))
	var warnings []domain.Warning

	g, gctx := errgroup.WithContext(ctx)
	for i, layer := range layers {
		i, layer := i, layer
		g.Go(func() error {
			filter := vectorindex.Filter{"layer": string(layer)}
			for key, val := range in.Filter {
				filter[key] = val
			}
			hits, searchErr := e.vectors.Search(gctx, tc.TenantID, vectorindex.SearchRequest{
				Vector:    vec,
				K:         k,
				Filter:    filter,
				Threshold: threshold,
			})
			if searchErr != nil {
				// A single layer's backend failure degrades the overall
				// search rather than aborting it — §7 composed-error model.
				warnings = append(warnings, domain.Warning{
					Code:    string(domain.CodeProviderError),
					Message: "layer " + string(layer) + " search failed: " + searchErr.Error(),
				})
				return nil
			}
			results[i] = layerResult{layer: layer, hits: hits}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, classifyVectorErr(err)
	}

	merged := e.mergeByPrecedence(ctx, tc.TenantID, results, e.cfg.DedupeSimilarity)
	if len(merged) > k {
		merged = merged[:k]
	}

	hydrated := make([]SearchHit, 0, len(merged))
	for _, m := range merged {
		hydrated = append(hydrated, SearchHit{
			ID:       m.ID,
			Layer:    m.layer,
			Score:    m.Score,
			Content:  m.content,
			Metadata: m.Metadata,
		})
	}

	filtered := filterByPolicy(tc, e.policyEn, hydrated)
	return filtered, warnings, nil
}

// SearchLayer runs a vector search scoped to exactly one layer, with no
// precedence-merge step — the building block `DecompositionExecutor`'s
// `SearchLayer` action (§4.6) composes on top of, as distinct from the
// narrowest-wins multi-layer fan-out `Search` performs.
func (e *Engine) SearchLayer(ctx context.Context, tc *domain.TenantContext, layer domain.Layer, query string, k int, threshold float64) ([]SearchHit, error) {
	if err := requireContext(tc); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = e.cfg.DefaultSearchK
	}
	if threshold <= 0 {
		threshold = e.cfg.DefaultThreshold
	}

	vec, err := e.embed(ctx, query)
	if err != nil {
		return nil, err
	}

	hits, err := e.vectors.Search(ctx, tc.TenantID, vectorindex.SearchRequest{
		Vector:    vec,
		K:         k,
		Filter:    vectorindex.Filter{"layer": string(layer)},
		Threshold: threshold,
	})
	if err != nil {
		return nil, classifyVectorErr(err)
	}

	out := make([]SearchHit, 0, len(hits))
	for _, h := range hits {
		node, nodeErr := e.graph.GetNode(ctx, tc.TenantID, h.ID)
		content := ""
		if nodeErr == nil && node != nil {
			content, _ = node.Properties["content"].(string)
		}
		out = append(out, SearchHit{ID: h.ID, Layer: layer, Score: h.Score, Content: content, Metadata: h.Metadata})
	}

	return filterByPolicy(tc, e.policyEn, out), nil
}

type layerResult struct {
	layer domain.Layer
	hits  []vectorindex.SearchResult
}

type scoredHit struct {
	vectorindex.SearchResult
	layer   domain.Layer
	content string
}

// mergeByPrecedence walks layers narrowest-first, keeping the first
// (highest-precedence) occurrence of each content-equivalent hit and
// dropping subsequent near-duplicates from wider layers. Each hit's
// content is hydrated once here (reused for the caller's SearchHit) so
// isNearDuplicate's cosine-similarity fallback has something to
// compare against without a second graph round-trip.
func (e *Engine) mergeByPrecedence(ctx context.Context, tenantID string, results []layerResult, dedupeThreshold float64) []scoredHit {
	seen := make([]scoredHit, 0)
	for _, lr := range results {
		for _, hit := range lr.hits {
			content := e.hydrateContent(ctx, tenantID, hit.ID)
			if e.isNearDuplicate(ctx, hit, content, seen, dedupeThreshold) {
				continue
			}
			seen = append(seen, scoredHit{SearchResult: hit, layer: lr.layer, content: content})
		}
	}
	sort.SliceStable(seen, func(i, j int) bool {
		oi, oj := seen[i].layer.Ordinal(), seen[j].layer.Ordinal()
		if oi != oj {
			return oi < oj
		}
		return seen[i].Score > seen[j].Score
	})
	return seen
}

func (e *Engine) hydrateContent(ctx context.Context, tenantID, id string) string {
	if e.graph == nil {
		return ""
	}
	node, err := e.graph.GetNode(ctx, tenantID, id)
	if err != nil || node == nil {
		return ""
	}
	content, _ := node.Properties["content"].(string)
	return content
}

// isNearDuplicate reports whether hit is a duplicate of something
// already in seen: exact id match, an identical metadata content_hash
// (the fast path set at write time), or — when neither is available or
// conclusive — cosine similarity between the two hits' embeddings at or
// above threshold (spec §4.5/§8 testable property 3). Embeddings are
// pulled through Engine.embed, so identical content never re-embeds.
func (e *Engine) isNearDuplicate(ctx context.Context, hit vectorindex.SearchResult, content string, seen []scoredHit, threshold float64) bool {
	hitHash := contentHashOf(hit.Metadata, content)

	var hitVec []float32
	for _, s := range seen {
		if s.ID == hit.ID {
			return true
		}

		seenHash := contentHashOf(s.Metadata, s.content)
		if hitHash != "" && seenHash != "" && hitHash == seenHash {
			return true
		}

		if content == "" || s.content == "" {
			continue
		}
		if hitVec == nil {
			v, err := e.embed(ctx, content)
			if err != nil {
				return false
			}
			hitVec = v
		}
		seenVec, err := e.embed(ctx, s.content)
		if err != nil {
			continue
		}
		if cosineSimilarity(hitVec, seenVec) >= threshold {
			return true
		}
	}
	return false
}

// contentHashOf prefers the hash persisted in metadata at write time,
// falling back to computing one from hydrated content.
func contentHashOf(metadata map[string]any, content string) string {
	if metadata != nil {
		if h, _ := metadata["content_hash"].(string); h != "" {
			return h
		}
	}
	if content == "" {
		return ""
	}
	return normalizedHash(content)
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// filterByPolicy drops hits the tenant's active policy set forbids
// surfacing to this principal (§4.3 read-path filtering).
func filterByPolicy(tc *domain.TenantContext, engine *policy.Engine, hits []SearchHit) []SearchHit {
	if engine == nil {
		return hits
	}
	out := make([]SearchHit, 0, len(hits))
	for _, h := range hits {
		evalCtx := policy.EvalContext{Operation: "read", Layer: h.Layer, PrincipalID: tc.PrincipalID, Content: h.Content}
		blocked := false
		for _, v := range engine.CheckConstraints(tc.TenantID, evalCtx) {
			if v.Severity == domain.SeverityBlock {
				blocked = true
				break
			}
		}
		if !blocked {
			out = append(out, h)
		}
	}
	return out
}
