// Package vectorindex implements C1: a capability-typed abstraction over
// pluggable dense-vector backends, with uniform retry, circuit-breaking,
// and observability wrapping every backend call.
package vectorindex

import (
	"context"
)

// DistanceMetric is a supported similarity measure.
type DistanceMetric string

const (
	MetricCosine         DistanceMetric = "cosine"
	MetricL2             DistanceMetric = "l2"
	MetricInnerProduct   DistanceMetric = "inner_product"
)

// Capabilities describes what a backend supports, so MemoryEngine and
// the façade can degrade gracefully instead of calling unsupported
// operations.
type Capabilities struct {
	MaxDimensions       int
	MetadataFilter      bool
	HybridSearch        bool
	BatchUpsert         bool
	SupportedMetrics    []DistanceMetric
	IsolationStrategy   IsolationStrategy
}

// IsolationStrategy is how a backend keeps one tenant's vectors from
// being queryable alongside another's (spec §4.1).
type IsolationStrategy string

const (
	IsolationPerTenantCollection IsolationStrategy = "per_tenant_collection"
	IsolationMetadataFiltered    IsolationStrategy = "metadata_filtered"
	IsolationProviderNative      IsolationStrategy = "provider_native"
)

// Record is a single vector to upsert: an id, its embedding, and
// metadata carried alongside for filtering and hydration.
type Record struct {
	ID       string
	Vector   []float32
	Metadata map[string]any
}

// Filter restricts search to records whose metadata matches every
// key/value pair (exact-match only; backends may support richer filters
// but this is the portable subset the engine relies on).
type Filter map[string]any

// SearchResult is one ranked hit.
type SearchResult struct {
	ID       string
	Score    float64
	Metadata map[string]any
}

// SearchRequest bundles a k-NN query, honoring spec §4.1's
// search(tenant, vector, k, filter, threshold, hybrid?) contract.
type SearchRequest struct {
	Vector    []float32
	K         int
	Filter    Filter
	Threshold float64
	Hybrid    bool
	SparseVector map[string]float64 // used only when Hybrid is set
}

// Index is the capability-typed interface every vector backend
// implements. All operations are tenant-scoped; backends are
// responsible for ensuring one tenant's vectors are never returned by
// another tenant's query (per-collection, provider-native, or
// metadata-filtered isolation — see Capabilities.IsolationStrategy).
type Index interface {
	HealthCheck(ctx context.Context) error
	Capabilities(ctx context.Context) (Capabilities, error)
	Upsert(ctx context.Context, tenantID string, records []Record) error
	Search(ctx context.Context, tenantID string, req SearchRequest) ([]SearchResult, error)
	Delete(ctx context.Context, tenantID string, ids []string) error
	Get(ctx context.Context, tenantID string, id string) (*Record, error)
}

