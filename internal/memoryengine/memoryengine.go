// Package memoryengine implements C5: the façade-internal orchestrator
// for memory add/search/get/update/delete/list/promote, owning all
// writes to VectorIndex and GraphStore.
package memoryengine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wisbric/stratum/internal/domain"
	"github.com/wisbric/stratum/internal/embedding"
	"github.com/wisbric/stratum/internal/graphstore"
	"github.com/wisbric/stratum/internal/policy"
	"github.com/wisbric/stratum/internal/vectorindex"
)

// Config configures an Engine.
type Config struct {
	MaxContentLength   int
	DefaultSearchK     int
	MaxSearchK         int
	DefaultThreshold   float64
	DedupeSimilarity   float64 // §4.5 precedence-merge dedupe, default 0.95
	PromotionThreshold float64
	PromoteImportant   bool
}

// DefaultConfig returns spec-mandated defaults.
func DefaultConfig() Config {
	return Config{
		MaxContentLength:   32 * 1024,
		DefaultSearchK:     10,
		MaxSearchK:         100,
		DefaultThreshold:   0.7,
		DedupeSimilarity:   0.95,
		PromotionThreshold: 0.8,
		PromoteImportant:   true,
	}
}

// Engine is the MemoryEngine. It exclusively owns writes to the vector
// index and graph store; the façade owns the transactional boundary
// across components.
type Engine struct {
	vectors  vectorindex.Index
	graph    *graphstore.Store
	policyEn *policy.Engine
	embedder embedding.Embedder
	cfg      Config

	embedCacheMu sync.Mutex
	embedCache   map[string][]float32 // normalized content hash -> embedding
}

// New constructs a MemoryEngine.
func New(vectors vectorindex.Index, graph *graphstore.Store, policyEngine *policy.Engine, embedder embedding.Embedder, cfg Config) *Engine {
	return &Engine{
		vectors:    vectors,
		graph:      graph,
		policyEn:   policyEngine,
		embedder:   embedder,
		cfg:        cfg,
		embedCache: make(map[string][]float32),
	}
}

// requireContext validates a TenantContext is present and internally
// consistent before any I/O, per invariants 2 and 7.
func requireContext(tc *domain.TenantContext) error {
	if tc == nil {
		return domain.NewError(domain.CodeMissingTenantContext, "tenant context is required")
	}
	if tc.TenantID == "" {
		return domain.NewError(domain.CodeInvalidTenantContext, "tenant context missing tenant id")
	}
	if !tc.WithinDelegationDepth() {
		return domain.NewError(domain.CodeUnauthorized, "delegation depth exceeds configured maximum").
			WithDetails(map[string]any{"depth": tc.Depth(), "max_depth": tc.MaxDepth})
	}
	return nil
}

func normalizedHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// embed returns content's embedding, reusing a cached vector for
// identical normalized content to avoid duplicate embedder calls.
func (e *Engine) embed(ctx context.Context, content string) ([]float32, error) {
	key := normalizedHash(content)

	e.embedCacheMu.Lock()
	if v, ok := e.embedCache[key]; ok {
		e.embedCacheMu.Unlock()
		return v, nil
	}
	e.embedCacheMu.Unlock()

	vec, err := e.embedder.Embed(ctx, content)
	if err != nil {
		return nil, domain.NewError(domain.CodeEmbeddingFailed, "embedding generation failed").WithCause(err)
	}

	e.embedCacheMu.Lock()
	e.embedCache[key] = vec
	e.embedCacheMu.Unlock()

	return vec, nil
}

// AddInput is the request shape for Add.
type AddInput struct {
	Layer       domain.Layer
	Identifiers domain.Identifiers
	Content     string
	Metadata    domain.MemoryMetadata
	Entities    []domain.GraphNode
	EntityEdges []domain.GraphEdge
}

// Add validates, embeds, and transactionally writes a new MemoryEntry.
func (e *Engine) Add(ctx context.Context, tc *domain.TenantContext, in AddInput) (*domain.MemoryEntry, error) {
	if err := requireContext(tc); err != nil {
		return nil, err
	}
	if err := domain.RequireIdentifiers(in.Layer, in.Identifiers); err != nil {
		return nil, wrapIdentifierError(err)
	}
	if len(in.Content) > e.cfg.MaxContentLength {
		return nil, domain.NewError(domain.CodeContentTooLong, "content exceeds maximum length").
			WithDetails(map[string]any{"limit": e.cfg.MaxContentLength})
	}

	evalCtx := policy.EvalContext{Operation: "write", Layer: in.Layer, PrincipalID: tc.PrincipalID, Content: in.Content}
	if err := e.policyEn.ValidateWrite(tc.TenantID, evalCtx); err != nil {
		return nil, domain.NewError(domain.CodePolicyViolation, err.Error()).WithCause(err)
	}

	vec, err := e.embed(ctx, in.Content)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	entry := &domain.MemoryEntry{
		ID:          uuid.New().String(),
		TenantID:    tc.TenantID,
		Layer:       in.Layer,
		Identifiers: in.Identifiers,
		Content:     in.Content,
		Embedding:   vec,
		Metadata:    in.Metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	memNode := domain.GraphNode{
		ID:       entry.ID,
		TenantID: tc.TenantID,
		Kind:     "memory",
		Label:    string(in.Layer),
		Properties: map[string]any{
			"content":      in.Content,
			"layer":        string(in.Layer),
			"created_at":   now.Format(time.RFC3339),
			"access_count": float64(0),
		},
	}

	if err := e.graph.AddMemory(ctx, tc.TenantID, graphstore.AddMemoryTx{
		MemoryNode:  memNode,
		Entities:    in.Entities,
		EntityEdges: in.EntityEdges,
	}); err != nil {
		return nil, domain.NewError(domain.CodeProviderError, "graph write failed").WithCause(err)
	}

	if err := e.vectors.Upsert(ctx, tc.TenantID, []vectorindex.Record{{
		ID:     entry.ID,
		Vector: vec,
		Metadata: map[string]any{
			"layer":        string(in.Layer),
			"content_hash": normalizedHash(in.Content),
		},
	}}); err != nil {
		// Invariant 4: the graph write already committed, so a failed
		// vector upsert must be compensated rather than left dangling.
		if cErr := e.graph.DeleteMemoryCascade(ctx, tc.TenantID, entry.ID); cErr != nil {
			return nil, classifyVectorErr(err).(*domain.Error).WithDetails(map[string]any{
				"compensation_failed": cErr.Error(),
			})
		}
		return nil, classifyVectorErr(err)
	}

	return entry, nil
}

// Get retrieves a single memory by id, scoped to tenant. Returns nil,
// nil (not an error) if the id does not exist or belongs to another
// tenant — cross-tenant reads must never reveal existence.
func (e *Engine) Get(ctx context.Context, tc *domain.TenantContext, id string) (*domain.MemoryEntry, error) {
	if err := requireContext(tc); err != nil {
		return nil, err
	}

	rec, err := e.vectors.Get(ctx, tc.TenantID, id)
	if err != nil {
		return nil, classifyVectorErr(err)
	}
	if rec == nil {
		return nil, nil
	}

	node, err := e.graph.GetNode(ctx, tc.TenantID, id)
	if err != nil || node == nil {
		return nil, nil
	}

	content, _ := node.Properties["content"].(string)
	return &domain.MemoryEntry{
		ID:        id,
		TenantID:  tc.TenantID,
		Layer:     domain.Layer(node.Label),
		Content:   content,
		Embedding: rec.Vector,
	}, nil
}

// List returns every memory within maxHops of anchorID in the graph,
// scoped to tenant — the graph-traversal counterpart to vector Search,
// used by DrillDown decomposition actions (§4.6) rather than top-level
// semantic queries.
func (e *Engine) List(ctx context.Context, tc *domain.TenantContext, anchorID string, maxHops int) ([]domain.MemoryEntry, error) {
	if err := requireContext(tc); err != nil {
		return nil, err
	}

	nodes, err := e.graph.Neighbors(ctx, tc.TenantID, anchorID, maxHops)
	if err != nil {
		return nil, domain.NewError(domain.CodeProviderError, "graph neighbor expansion failed").WithCause(err)
	}

	entries := make([]domain.MemoryEntry, 0, len(nodes))
	for _, n := range nodes {
		if n.Kind != "memory" {
			continue
		}
		content, _ := n.Properties["content"].(string)
		entries = append(entries, domain.MemoryEntry{
			ID:       n.ID,
			TenantID: tc.TenantID,
			Layer:    domain.Layer(n.Label),
			Content:  content,
		})
	}
	return entries, nil
}

// UpdateInput is the request shape for Update.
type UpdateInput struct {
	Content       *string // nil means no content change
	MetadataPatch map[string]any
}

// Update re-embeds on content change; a metadata-only change
// shallow-merges without re-embedding.
func (e *Engine) Update(ctx context.Context, tc *domain.TenantContext, id string, in UpdateInput) error {
	if err := requireContext(tc); err != nil {
		return err
	}

	if in.Content == nil {
		// Metadata-only: bump updated_at via graph node properties merge.
		node, err := e.graph.GetNode(ctx, tc.TenantID, id)
		if err != nil || node == nil {
			return domain.NewError(domain.CodeMemoryNotFound, "memory not found")
		}
		for k, v := range in.MetadataPatch {
			node.Properties[k] = v
		}
		node.Properties["updated_at"] = time.Now().UTC()
		return e.graph.AddMemory(ctx, tc.TenantID, graphstore.AddMemoryTx{MemoryNode: *node})
	}

	node, err := e.graph.GetNode(ctx, tc.TenantID, id)
	if err != nil || node == nil {
		return domain.NewError(domain.CodeMemoryNotFound, "memory not found")
	}

	vec, err := e.embed(ctx, *in.Content)
	if err != nil {
		return err
	}
	// Upsert replaces the full record, so the layer tag and content hash
	// set at Add time must be re-supplied here or per-layer Search
	// filtering silently breaks on the next update.
	if err := e.vectors.Upsert(ctx, tc.TenantID, []vectorindex.Record{{
		ID:     id,
		Vector: vec,
		Metadata: map[string]any{
			"layer":        node.Label,
			"content_hash": normalizedHash(*in.Content),
		},
	}}); err != nil {
		return classifyVectorErr(err)
	}

	node.Properties["content"] = *in.Content
	node.Properties["updated_at"] = time.Now().UTC()
	return e.graph.AddMemory(ctx, tc.TenantID, graphstore.AddMemoryTx{MemoryNode: *node})
}

// Delete is idempotent: deleting a missing id still returns success.
// Cascades to the graph per §4.2.
func (e *Engine) Delete(ctx context.Context, tc *domain.TenantContext, id string) error {
	if err := requireContext(tc); err != nil {
		return err
	}
	if err := e.vectors.Delete(ctx, tc.TenantID, []string{id}); err != nil {
		return classifyVectorErr(err)
	}
	return e.graph.DeleteMemoryCascade(ctx, tc.TenantID, id)
}

func wrapIdentifierError(err error) error {
	if _, ok := err.(*domain.InvalidLayerError); ok {
		return domain.NewError(domain.CodeInvalidLayer, err.Error())
	}
	return domain.NewError(domain.CodeMissingIdentifier, err.Error())
}

func classifyVectorErr(err error) error {
	switch err.(type) {
	case *vectorindex.RateLimitedError:
		return domain.NewError(domain.CodeRateLimited, err.Error()).WithCause(err)
	case *vectorindex.BackendCircuitOpenError:
		return domain.NewError(domain.CodeBackendCircuitOpen, err.Error()).WithCause(err)
	case *vectorindex.InvalidBackendConfigError:
		return domain.NewError(domain.CodeConfigurationError, err.Error()).WithCause(err)
	default:
		return domain.NewError(domain.CodeProviderError, "vector backend error").WithCause(err)
	}
}
