// Package embedding declares the external-collaborator interfaces
// MemoryEngine consumes for turning content into vectors and layers
// into summaries, plus plain net/http implementations of both
// (HTTPEmbedder, HTTPSummarizer). No LLM provider SDK is used.
package embedding

import "context"

// Embedder turns text content into a dense vector. Implementations are
// expected to return EmbeddingFailed-classified errors (retryable) on
// transient provider failure.
type Embedder interface {
	Embed(ctx context.Context, content string) ([]float32, error)
	Dimension() int
}

// Summarizer produces layer summary content within tokenBudget. It is
// not told the layer; choosing a cheaper summarizer for lower-priority
// layers is left to the caller (SummaryGenerator).
type Summarizer interface {
	Summarize(ctx context.Context, content string, tokenBudget int) (summary string, tokenCount int, err error)
}
