// Package pineconeidx implements the VectorIndex backend against the
// Pinecone REST API over a plain net/http client: no Pinecone Go SDK
// is used here because none is attested anywhere in this project's
// dependency corpus. Each tenant gets its own namespace within a
// shared index, giving provider-native isolation.
package pineconeidx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/wisbric/stratum/internal/vectorindex"
)

// Config configures the Pinecone backend.
type Config struct {
	BaseURL   string // the index's per-deployment host, e.g. https://my-index-abc123.svc.region.pinecone.io
	APIKey    string
	Dimension int
	Timeout   time.Duration
}

// Index implements vectorindex.Index against a Pinecone index.
type Index struct {
	cfg  Config
	http *http.Client
}

// New constructs a Pinecone-backed Index.
func New(cfg Config) (*Index, error) {
	if cfg.BaseURL == "" {
		return nil, &vectorindex.InvalidBackendConfigError{Backend: "pinecone", Reason: "base URL is required"}
	}
	if cfg.APIKey == "" {
		return nil, &vectorindex.InvalidBackendConfigError{Backend: "pinecone", Reason: "API key is required"}
	}
	if cfg.Dimension < 64 || cfg.Dimension > 4096 {
		return nil, &vectorindex.InvalidBackendConfigError{Backend: "pinecone", Reason: "dimension must be in [64, 4096]"}
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Index{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}, nil
}

func (idx *Index) BackendName() string { return "pinecone" }

// namespace maps a tenant to its Pinecone namespace within the shared index.
func (idx *Index) namespace(tenantID string) string { return tenantID }

func (idx *Index) do(ctx context.Context, path string, body any) (*http.Response, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, idx.cfg.BaseURL+path, bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Api-Key", idx.cfg.APIKey)
	req.Header.Set("X-Pinecone-API-Version", "2024-07")

	resp, err := idx.http.Do(req)
	if err != nil {
		return nil, &vectorindex.ProviderError{Backend: "pinecone", Op: "POST " + path, Cause: err}
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		defer resp.Body.Close()
		after := 1 * time.Second
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if d, err := time.ParseDuration(ra + "s"); err == nil {
				after = d
			}
		}
		return nil, &vectorindex.RateLimitedError{Backend: "pinecone", After: after}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, &vectorindex.ProviderError{Backend: "pinecone", Op: "POST " + path, Cause: fmt.Errorf("status %d", resp.StatusCode)}
	}

	return resp, nil
}

func (idx *Index) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, idx.cfg.BaseURL+"/describe_index_stats", nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Api-Key", idx.cfg.APIKey)
	resp, err := idx.http.Do(req)
	if err != nil {
		return &vectorindex.ProviderError{Backend: "pinecone", Op: "health_check", Cause: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &vectorindex.ProviderError{Backend: "pinecone", Op: "health_check", Cause: fmt.Errorf("status %d", resp.StatusCode)}
	}
	return nil
}

func (idx *Index) Capabilities(ctx context.Context) (vectorindex.Capabilities, error) {
	return vectorindex.Capabilities{
		MaxDimensions:     idx.cfg.Dimension,
		MetadataFilter:    true,
		HybridSearch:      false,
		BatchUpsert:       true,
		SupportedMetrics:  []vectorindex.DistanceMetric{vectorindex.MetricCosine, vectorindex.MetricL2, vectorindex.MetricInnerProduct},
		IsolationStrategy: vectorindex.IsolationProviderNative,
	}, nil
}

type pineconeVector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (idx *Index) Upsert(ctx context.Context, tenantID string, records []vectorindex.Record) error {
	vectors := make([]pineconeVector, len(records))
	for i, rec := range records {
		vectors[i] = pineconeVector{ID: rec.ID, Values: rec.Vector, Metadata: rec.Metadata}
	}

	resp, err := idx.do(ctx, "/vectors/upsert", map[string]any{
		"vectors":   vectors,
		"namespace": idx.namespace(tenantID),
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

type pineconeQueryResponse struct {
	Matches []struct {
		ID       string         `json:"id"`
		Score    float64        `json:"score"`
		Metadata map[string]any `json:"metadata"`
	} `json:"matches"`
}

func (idx *Index) Search(ctx context.Context, tenantID string, req vectorindex.SearchRequest) ([]vectorindex.SearchResult, error) {
	body := map[string]any{
		"vector":          req.Vector,
		"topK":            req.K,
		"namespace":       idx.namespace(tenantID),
		"includeMetadata": true,
	}
	if len(req.Filter) > 0 {
		filter := make(map[string]any, len(req.Filter))
		for k, v := range req.Filter {
			filter[k] = map[string]any{"$eq": v}
		}
		body["filter"] = filter
	}

	resp, err := idx.do(ctx, "/query", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var qr pineconeQueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		return nil, &vectorindex.ProviderError{Backend: "pinecone", Op: "search decode", Cause: err}
	}

	results := make([]vectorindex.SearchResult, 0, len(qr.Matches))
	for _, m := range qr.Matches {
		if m.Score < req.Threshold {
			continue
		}
		results = append(results, vectorindex.SearchResult{ID: m.ID, Score: m.Score, Metadata: m.Metadata})
	}
	return results, nil
}

func (idx *Index) Delete(ctx context.Context, tenantID string, ids []string) error {
	resp, err := idx.do(ctx, "/vectors/delete", map[string]any{
		"ids":       ids,
		"namespace": idx.namespace(tenantID),
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

type pineconeFetchResponse struct {
	Vectors map[string]struct {
		ID       string         `json:"id"`
		Values   []float32      `json:"values"`
		Metadata map[string]any `json:"metadata"`
	} `json:"vectors"`
}

func (idx *Index) Get(ctx context.Context, tenantID string, id string) (*vectorindex.Record, error) {
	url := fmt.Sprintf("%s/vectors/fetch?ids=%s&namespace=%s", idx.cfg.BaseURL, id, idx.namespace(tenantID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Api-Key", idx.cfg.APIKey)

	resp, err := idx.http.Do(req)
	if err != nil {
		return nil, &vectorindex.ProviderError{Backend: "pinecone", Op: "get", Cause: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &vectorindex.ProviderError{Backend: "pinecone", Op: "get", Cause: fmt.Errorf("status %d", resp.StatusCode)}
	}

	var fr pineconeFetchResponse
	if err := json.NewDecoder(resp.Body).Decode(&fr); err != nil {
		return nil, &vectorindex.ProviderError{Backend: "pinecone", Op: "get decode", Cause: err}
	}

	v, ok := fr.Vectors[id]
	if !ok {
		return nil, nil
	}
	return &vectorindex.Record{ID: v.ID, Vector: v.Values, Metadata: v.Metadata}, nil
}

var _ vectorindex.Index = (*Index)(nil)
