// Package qdrant implements the VectorIndex backend for Qdrant's REST
// API: one collection per tenant (per_tenant_collection isolation),
// addressed over a plain net/http client.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/wisbric/stratum/internal/vectorindex"
)

// Config configures the Qdrant backend.
type Config struct {
	BaseURL   string
	APIKey    string
	Dimension int
	Timeout   time.Duration
}

// Index implements vectorindex.Index against Qdrant's REST API.
type Index struct {
	cfg  Config
	http *http.Client
}

// New constructs a Qdrant-backed Index. Returns InvalidBackendConfigError
// if the base URL is empty or the dimension is out of [64, 4096].
func New(cfg Config) (*Index, error) {
	if cfg.BaseURL == "" {
		return nil, &vectorindex.InvalidBackendConfigError{Backend: "qdrant", Reason: "base URL is required"}
	}
	if cfg.Dimension < 64 || cfg.Dimension > 4096 {
		return nil, &vectorindex.InvalidBackendConfigError{Backend: "qdrant", Reason: "dimension must be in [64, 4096]"}
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Index{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}, nil
}

func (idx *Index) BackendName() string { return "qdrant" }

// collectionName returns the per-tenant collection, enforcing isolation
// strategy (a) from spec §4.1.
func (idx *Index) collectionName(tenantID string) string {
	return "tenant_" + tenantID
}

func (idx *Index) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader *bytes.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(buf)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, idx.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if idx.cfg.APIKey != "" {
		req.Header.Set("api-key", idx.cfg.APIKey)
	}

	resp, err := idx.http.Do(req)
	if err != nil {
		return nil, &vectorindex.ProviderError{Backend: "qdrant", Op: method + " " + path, Cause: err}
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		defer resp.Body.Close()
		after := 1 * time.Second
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if d, err := time.ParseDuration(ra + "s"); err == nil {
				after = d
			}
		}
		return nil, &vectorindex.RateLimitedError{Backend: "qdrant", After: after}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, &vectorindex.ProviderError{Backend: "qdrant", Op: method + " " + path, Cause: fmt.Errorf("status %d", resp.StatusCode)}
	}

	return resp, nil
}

func (idx *Index) HealthCheck(ctx context.Context) error {
	resp, err := idx.do(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

func (idx *Index) Capabilities(ctx context.Context) (vectorindex.Capabilities, error) {
	return vectorindex.Capabilities{
		MaxDimensions:     idx.cfg.Dimension,
		MetadataFilter:    true,
		HybridSearch:      true,
		BatchUpsert:       true,
		SupportedMetrics:  []vectorindex.DistanceMetric{vectorindex.MetricCosine, vectorindex.MetricL2, vectorindex.MetricInnerProduct},
		IsolationStrategy: vectorindex.IsolationPerTenantCollection,
	}, nil
}

// ensureCollection creates the tenant's collection if absent.
func (idx *Index) ensureCollection(ctx context.Context, tenantID string) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     idx.cfg.Dimension,
			"distance": "Cosine",
		},
	}
	resp, err := idx.do(ctx, http.MethodPut, "/collections/"+idx.collectionName(tenantID), body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

type qdrantPoint struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload,omitempty"`
}

func (idx *Index) Upsert(ctx context.Context, tenantID string, records []vectorindex.Record) error {
	if err := idx.ensureCollection(ctx, tenantID); err != nil {
		return err
	}

	points := make([]qdrantPoint, len(records))
	for i, rec := range records {
		points[i] = qdrantPoint{ID: rec.ID, Vector: rec.Vector, Payload: rec.Metadata}
	}

	resp, err := idx.do(ctx, http.MethodPut, "/collections/"+idx.collectionName(tenantID)+"/points", map[string]any{"points": points})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

type qdrantQueryRequest struct {
	Query          []float32      `json:"query"`
	Limit          int            `json:"limit"`
	ScoreThreshold *float64       `json:"score_threshold,omitempty"`
	WithPayload    bool           `json:"with_payload"`
	Filter         map[string]any `json:"filter,omitempty"`
}

type qdrantQueryResponse struct {
	Result struct {
		Points []qdrantResultPoint `json:"points"`
	} `json:"result"`
}

type qdrantResultPoint struct {
	ID      any            `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

func toQdrantFilter(filter vectorindex.Filter) map[string]any {
	if len(filter) == 0 {
		return nil
	}
	must := make([]map[string]any, 0, len(filter))
	for k, v := range filter {
		must = append(must, map[string]any{"key": k, "match": map[string]any{"value": v}})
	}
	return map[string]any{"must": must}
}

func (idx *Index) Search(ctx context.Context, tenantID string, req vectorindex.SearchRequest) ([]vectorindex.SearchResult, error) {
	var thr *float64
	if req.Threshold > 0 {
		thr = &req.Threshold
	}

	body := qdrantQueryRequest{
		Query:          req.Vector,
		Limit:          req.K,
		ScoreThreshold: thr,
		WithPayload:    true,
		Filter:         toQdrantFilter(req.Filter),
	}

	resp, err := idx.do(ctx, http.MethodPost, "/collections/"+idx.collectionName(tenantID)+"/points/query", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var qr qdrantQueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		return nil, &vectorindex.ProviderError{Backend: "qdrant", Op: "search decode", Cause: err}
	}

	results := make([]vectorindex.SearchResult, len(qr.Result.Points))
	for i, p := range qr.Result.Points {
		results[i] = vectorindex.SearchResult{ID: fmt.Sprintf("%v", p.ID), Score: p.Score, Metadata: p.Payload}
	}
	return results, nil
}

func (idx *Index) Delete(ctx context.Context, tenantID string, ids []string) error {
	resp, err := idx.do(ctx, http.MethodPost, "/collections/"+idx.collectionName(tenantID)+"/points/delete", map[string]any{"points": ids})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

func (idx *Index) Get(ctx context.Context, tenantID string, id string) (*vectorindex.Record, error) {
	resp, err := idx.do(ctx, http.MethodGet, "/collections/"+idx.collectionName(tenantID)+"/points/"+id, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out struct {
		Result struct {
			ID      any            `json:"id"`
			Vector  []float32      `json:"vector"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &vectorindex.ProviderError{Backend: "qdrant", Op: "get decode", Cause: err}
	}
	if out.Result.Vector == nil {
		return nil, nil
	}
	return &vectorindex.Record{ID: id, Vector: out.Result.Vector, Metadata: out.Result.Payload}, nil
}

var _ vectorindex.Index = (*Index)(nil)
