package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPConfig configures HTTPEmbedder against an OpenAI-compatible
// embeddings endpoint, reached over a plain net/http client — spec §1
// places LLM provider SDKs out of scope, so no vendor SDK is imported
// here, matching the same plain-HTTP approach the pineconeidx/qdrant
// VectorIndex backends take toward their own providers.
type HTTPConfig struct {
	Endpoint  string
	APIKey    string
	Model     string
	Dimension int
	Timeout   time.Duration
}

// HTTPEmbedder implements Embedder over an HTTP embeddings endpoint.
type HTTPEmbedder struct {
	cfg  HTTPConfig
	http *http.Client
}

// NewHTTPEmbedder constructs an HTTPEmbedder.
func NewHTTPEmbedder(cfg HTTPConfig) (*HTTPEmbedder, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("embedding: endpoint is required")
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = 768
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &HTTPEmbedder{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}, nil
}

func (e *HTTPEmbedder) Dimension() int { return e.cfg.Dimension }

type embedRequest struct {
	Model string `json:"model,omitempty"`
	Input string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed posts content to the configured embeddings endpoint and returns
// the first returned vector.
func (e *HTTPEmbedder) Embed(ctx context.Context, content string) ([]float32, error) {
	buf, err := json.Marshal(embedRequest{Model: e.cfg.Model, Input: content})
	if err != nil {
		return nil, fmt.Errorf("encoding embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.Endpoint, bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("building embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	}

	resp, err := e.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling embedding endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("embedding endpoint returned status %d", resp.StatusCode)
	}

	var er embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, fmt.Errorf("decoding embedding response: %w", err)
	}
	if len(er.Data) == 0 {
		return nil, fmt.Errorf("embedding endpoint returned no vectors")
	}

	return er.Data[0].Embedding, nil
}

var _ Embedder = (*HTTPEmbedder)(nil)
