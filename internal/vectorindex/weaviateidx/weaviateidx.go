// Package weaviateidx implements the VectorIndex backend against
// Weaviate, using one class per tenant for per_tenant_collection
// isolation.
package weaviateidx

import (
	"context"
	"fmt"

	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/wisbric/stratum/internal/vectorindex"
)

// Config configures the Weaviate backend.
type Config struct {
	Host      string
	Scheme    string
	APIKey    string
	Dimension int
}

// Index implements vectorindex.Index against a Weaviate cluster.
type Index struct {
	client    *weaviate.Client
	dimension int
}

// New constructs a Weaviate-backed Index.
func New(cfg Config) (*Index, error) {
	if cfg.Host == "" {
		return nil, &vectorindex.InvalidBackendConfigError{Backend: "weaviate", Reason: "host is required"}
	}
	if cfg.Dimension < 64 || cfg.Dimension > 4096 {
		return nil, &vectorindex.InvalidBackendConfigError{Backend: "weaviate", Reason: "dimension must be in [64, 4096]"}
	}

	wcfg := weaviate.Config{Host: cfg.Host, Scheme: cfg.Scheme}
	if cfg.APIKey != "" {
		wcfg.AuthConfig = weaviate.AuthApiKey{Value: cfg.APIKey}
	}

	client, err := weaviate.NewClient(wcfg)
	if err != nil {
		return nil, &vectorindex.InvalidBackendConfigError{Backend: "weaviate", Reason: err.Error()}
	}

	return &Index{client: client, dimension: cfg.Dimension}, nil
}

func (idx *Index) BackendName() string { return "weaviate" }

// className maps a tenant to its Weaviate class name. Class names must
// start with an uppercase letter.
func (idx *Index) className(tenantID string) string {
	return "Tenant_" + sanitize(tenantID)
}

func sanitize(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
		} else {
			out = append(out, '_')
		}
	}
	return string(out)
}

func (idx *Index) HealthCheck(ctx context.Context) error {
	live, err := idx.client.Misc().LiveChecker().Do(ctx)
	if err != nil {
		return &vectorindex.ProviderError{Backend: "weaviate", Op: "health_check", Cause: err}
	}
	if !live {
		return &vectorindex.ProviderError{Backend: "weaviate", Op: "health_check", Cause: fmt.Errorf("not live")}
	}
	return nil
}

func (idx *Index) Capabilities(ctx context.Context) (vectorindex.Capabilities, error) {
	return vectorindex.Capabilities{
		MaxDimensions:     idx.dimension,
		MetadataFilter:    true,
		HybridSearch:      true,
		BatchUpsert:       true,
		SupportedMetrics:  []vectorindex.DistanceMetric{vectorindex.MetricCosine, vectorindex.MetricL2, vectorindex.MetricInnerProduct},
		IsolationStrategy: vectorindex.IsolationPerTenantCollection,
	}, nil
}

func (idx *Index) ensureClass(ctx context.Context, tenantID string) error {
	class := idx.className(tenantID)
	exists, err := idx.client.Schema().ClassExistenceChecker().WithClassName(class).Do(ctx)
	if err != nil {
		return &vectorindex.ProviderError{Backend: "weaviate", Op: "schema check", Cause: err}
	}
	if exists {
		return nil
	}
	err = idx.client.Schema().ClassCreator().WithClass(&models.Class{Class: class, Vectorizer: "none"}).Do(ctx)
	if err != nil {
		return &vectorindex.ProviderError{Backend: "weaviate", Op: "schema create", Cause: err}
	}
	return nil
}

func (idx *Index) Upsert(ctx context.Context, tenantID string, records []vectorindex.Record) error {
	if err := idx.ensureClass(ctx, tenantID); err != nil {
		return err
	}
	class := idx.className(tenantID)

	batcher := idx.client.Batch().ObjectsBatcher()
	for _, rec := range records {
		batcher = batcher.WithObjects(newDataObject(class, rec))
	}
	resp, err := batcher.Do(ctx)
	if err != nil {
		return &vectorindex.ProviderError{Backend: "weaviate", Op: "upsert", Cause: err}
	}
	for _, r := range resp {
		if r.Result != nil && r.Result.Errors != nil && len(r.Result.Errors.Error) > 0 {
			return &vectorindex.ProviderError{Backend: "weaviate", Op: "upsert", Cause: fmt.Errorf("%v", r.Result.Errors.Error)}
		}
	}
	return nil
}

func (idx *Index) Search(ctx context.Context, tenantID string, req vectorindex.SearchRequest) ([]vectorindex.SearchResult, error) {
	class := idx.className(tenantID)

	nearVector := (&graphql.NearVectorArgumentBuilder{}).WithVector(req.Vector)
	if req.Threshold > 0 {
		nearVector = nearVector.WithCertainty(float32(req.Threshold))
	}

	fields := []graphql.Field{
		{Name: "_additional", Fields: []graphql.Field{{Name: "id"}, {Name: "certainty"}}},
	}

	builder := idx.client.GraphQL().Get().
		WithClassName(class).
		WithNearVector(nearVector).
		WithLimit(req.K).
		WithFields(fields...)

	if len(req.Filter) > 0 {
		builder = builder.WithWhere(buildWhereFilter(req.Filter))
	}

	resp, err := builder.Do(ctx)
	if err != nil {
		return nil, &vectorindex.ProviderError{Backend: "weaviate", Op: "search", Cause: err}
	}
	if len(resp.Errors) > 0 {
		return nil, &vectorindex.ProviderError{Backend: "weaviate", Op: "search", Cause: fmt.Errorf("%v", resp.Errors)}
	}

	return parseSearchResults(resp, class)
}

func (idx *Index) Delete(ctx context.Context, tenantID string, ids []string) error {
	class := idx.className(tenantID)
	for _, id := range ids {
		if err := idx.client.Data().Deleter().WithClassName(class).WithID(id).Do(ctx); err != nil {
			return &vectorindex.ProviderError{Backend: "weaviate", Op: "delete", Cause: err}
		}
	}
	return nil
}

func (idx *Index) Get(ctx context.Context, tenantID string, id string) (*vectorindex.Record, error) {
	class := idx.className(tenantID)
	objs, err := idx.client.Data().ObjectsGetter().WithClassName(class).WithID(id).WithVector().Do(ctx)
	if err != nil {
		return nil, &vectorindex.ProviderError{Backend: "weaviate", Op: "get", Cause: err}
	}
	if len(objs) == 0 {
		return nil, nil
	}
	return objectToRecord(objs[0]), nil
}

func buildWhereFilter(filter vectorindex.Filter) *filters.WhereBuilder {
	var builder *filters.WhereBuilder
	for k, v := range filter {
		clause := filters.Where().WithPath([]string{k}).WithOperator(filters.Equal).WithValueText(fmt.Sprintf("%v", v))
		if builder == nil {
			builder = clause
		} else {
			builder = filters.Where().WithOperator(filters.And).WithOperands([]*filters.WhereBuilder{builder, clause})
		}
	}
	return builder
}

var _ vectorindex.Index = (*Index)(nil)
