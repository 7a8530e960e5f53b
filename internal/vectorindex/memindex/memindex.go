// Package memindex is an in-process reference vector backend: exact
// brute-force k-NN over a map keyed by tenant, used for tests and for
// the "memindex" configuration value in development.
package memindex

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/wisbric/stratum/internal/vectorindex"
)

// Index is a goroutine-safe, in-memory vectorindex.Index. Isolation is
// by construction: each tenant gets its own map bucket, never shared
// with another tenant's vectors.
type Index struct {
	mu       sync.RWMutex
	byTenant map[string]map[string]vectorindex.Record
	dim      int
}

// New creates an empty in-memory index accepting vectors of width dim.
func New(dim int) *Index {
	return &Index{
		byTenant: make(map[string]map[string]vectorindex.Record),
		dim:      dim,
	}
}

func (idx *Index) BackendName() string { return "memindex" }

func (idx *Index) HealthCheck(ctx context.Context) error { return nil }

func (idx *Index) Capabilities(ctx context.Context) (vectorindex.Capabilities, error) {
	return vectorindex.Capabilities{
		MaxDimensions:     idx.dim,
		MetadataFilter:    true,
		HybridSearch:      false,
		BatchUpsert:       true,
		SupportedMetrics:  []vectorindex.DistanceMetric{vectorindex.MetricCosine, vectorindex.MetricL2},
		IsolationStrategy: vectorindex.IsolationPerTenantCollection,
	}, nil
}

func (idx *Index) Upsert(ctx context.Context, tenantID string, records []vectorindex.Record) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	bucket, ok := idx.byTenant[tenantID]
	if !ok {
		bucket = make(map[string]vectorindex.Record)
		idx.byTenant[tenantID] = bucket
	}
	for _, rec := range records {
		if len(rec.Vector) != idx.dim {
			return &vectorindex.InvalidBackendConfigError{
				Backend: "memindex",
				Reason:  "vector width mismatch",
			}
		}
		bucket[rec.ID] = rec
	}
	return nil
}

func (idx *Index) Search(ctx context.Context, tenantID string, req vectorindex.SearchRequest) ([]vectorindex.SearchResult, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	bucket := idx.byTenant[tenantID]
	results := make([]vectorindex.SearchResult, 0, len(bucket))

	for _, rec := range bucket {
		if !matchesFilter(rec.Metadata, req.Filter) {
			continue
		}
		score := cosineSimilarity(req.Vector, rec.Vector)
		if score < req.Threshold {
			continue
		}
		results = append(results, vectorindex.SearchResult{ID: rec.ID, Score: score, Metadata: rec.Metadata})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if req.K > 0 && len(results) > req.K {
		results = results[:req.K]
	}
	return results, nil
}

func (idx *Index) Delete(ctx context.Context, tenantID string, ids []string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	bucket := idx.byTenant[tenantID]
	for _, id := range ids {
		delete(bucket, id)
	}
	return nil
}

func (idx *Index) Get(ctx context.Context, tenantID string, id string) (*vectorindex.Record, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	rec, ok := idx.byTenant[tenantID][id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func matchesFilter(metadata map[string]any, filter vectorindex.Filter) bool {
	for k, v := range filter {
		if metadata[k] != v {
			return false
		}
	}
	return true
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

var _ vectorindex.Index = (*Index)(nil)
