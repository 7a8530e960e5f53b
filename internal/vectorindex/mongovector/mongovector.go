// Package mongovector implements the VectorIndex backend against
// MongoDB Atlas Vector Search, storing each tenant's records in its own
// collection and querying with the $vectorSearch aggregation stage.
package mongovector

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/wisbric/stratum/internal/vectorindex"
)

// Config configures the MongoDB backend.
type Config struct {
	Database     string
	IndexName    string // name of the Atlas Search vector index
	Dimension    int
	NumCandidates int
}

// Index implements vectorindex.Index against MongoDB Atlas Vector Search.
type Index struct {
	client    *mongo.Client
	db        *mongo.Database
	cfg       Config
}

type document struct {
	ID       string         `bson:"_id"`
	Vector   []float32      `bson:"vector"`
	Metadata map[string]any `bson:"metadata"`
}

// New constructs a MongoDB-backed Index from an already-connected client.
func New(client *mongo.Client, cfg Config) (*Index, error) {
	if cfg.Database == "" {
		return nil, &vectorindex.InvalidBackendConfigError{Backend: "mongovector", Reason: "database is required"}
	}
	if cfg.Dimension < 64 || cfg.Dimension > 4096 {
		return nil, &vectorindex.InvalidBackendConfigError{Backend: "mongovector", Reason: "dimension must be in [64, 4096]"}
	}
	if cfg.IndexName == "" {
		cfg.IndexName = "vector_index"
	}
	if cfg.NumCandidates == 0 {
		cfg.NumCandidates = 100
	}
	return &Index{client: client, db: client.Database(cfg.Database), cfg: cfg}, nil
}

func (idx *Index) BackendName() string { return "mongovector" }

// collectionName maps a tenant to its own collection, giving
// per_tenant_collection isolation.
func (idx *Index) collectionName(tenantID string) string {
	return "tenant_" + tenantID + "_vectors"
}

func (idx *Index) HealthCheck(ctx context.Context) error {
	if err := idx.client.Ping(ctx, nil); err != nil {
		return &vectorindex.ProviderError{Backend: "mongovector", Op: "health_check", Cause: err}
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
		IsolationStrategy: vectorindex.IsolationPerTenantCollection,
	}, nil
}

func (idx *Index) Upsert(ctx context.Context, tenantID string, records []vectorindex.Record) error {
	coll := idx.db.Collection(idx.collectionName(tenantID))

	models := make([]mongo.WriteModel, len(records))
	for i, rec := range records {
		doc := document{ID: rec.ID, Vector: rec.Vector, Metadata: rec.Metadata}
		models[i] = mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": rec.ID}).
			SetReplacement(doc).
			SetUpsert(true)
	}

	if _, err := coll.BulkWrite(ctx, models); err != nil {
		return &vectorindex.ProviderError{Backend: "mongovector", Op: "upsert", Cause: err}
	}
	return nil
}

func (idx *Index) Search(ctx context.Context, tenantID string, req vectorindex.SearchRequest) ([]vectorindex.SearchResult, error) {
	coll := idx.db.Collection(idx.collectionName(tenantID))

	vectorSearchStage := bson.M{
		"index":         idx.cfg.IndexName,
		"path":          "vector",
		"queryVector":   req.Vector,
		"numCandidates": idx.cfg.NumCandidates,
		"limit":         req.K,
	}
	if len(req.Filter) > 0 {
		filter := bson.M{}
		for k, v := range req.Filter {
			filter["metadata."+k] = v
		}
		vectorSearchStage["filter"] = filter
	}

	pipeline := mongo.Pipeline{
		{{Key: "$vectorSearch", Value: vectorSearchStage}},
		{{Key: "$project", Value: bson.M{
			"_id":      1,
			"metadata": 1,
			"score":    bson.M{"$meta": "vectorSearchScore"},
		}}},
	}

	cursor, err := coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, &vectorindex.ProviderError{Backend: "mongovector", Op: "search", Cause: err}
	}
	defer cursor.Close(ctx)

	var results []vectorindex.SearchResult
	for cursor.Next(ctx) {
		var row struct {
			ID       string         `bson:"_id"`
			Metadata map[string]any `bson:"metadata"`
			Score    float64        `bson:"score"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, &vectorindex.ProviderError{Backend: "mongovector", Op: "search decode", Cause: err}
		}
		if row.Score < req.Threshold {
			continue
		}
		results = append(results, vectorindex.SearchResult{ID: row.ID, Score: row.Score, Metadata: row.Metadata})
	}
	if err := cursor.Err(); err != nil {
		return nil, &vectorindex.ProviderError{Backend: "mongovector", Op: "search cursor", Cause: err}
	}
	return results, nil
}

func (idx *Index) Delete(ctx context.Context, tenantID string, ids []string) error {
	coll := idx.db.Collection(idx.collectionName(tenantID))
	anyIDs := make([]any, len(ids))
	for i, id := range ids {
		anyIDs[i] = id
	}
	if _, err := coll.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": anyIDs}}); err != nil {
		return &vectorindex.ProviderError{Backend: "mongovector", Op: "delete", Cause: err}
	}
	return nil
}

func (idx *Index) Get(ctx context.Context, tenantID string, id string) (*vectorindex.Record, error) {
	coll := idx.db.Collection(idx.collectionName(tenantID))
	var doc document
	err := coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, &vectorindex.ProviderError{Backend: "mongovector", Op: "get", Cause: err}
	}
	return &vectorindex.Record{ID: doc.ID, Vector: doc.Vector, Metadata: doc.Metadata}, nil
}

var _ vectorindex.Index = (*Index)(nil)
