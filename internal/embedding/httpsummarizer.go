package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// SummarizerConfig configures HTTPSummarizer against an OpenAI-compatible
// chat-completions endpoint, reached over plain net/http for the same
// out-of-scope-SDK reason HTTPEmbedder is.
type SummarizerConfig struct {
	Endpoint string
	APIKey   string
	Model    string // cheaper tier model, selected per layer by the caller
	Timeout  time.Duration
}

// HTTPSummarizer implements Summarizer over an HTTP chat-completions endpoint.
type HTTPSummarizer struct {
	cfg  SummarizerConfig
	http *http.Client
}

// NewHTTPSummarizer constructs an HTTPSummarizer.
func NewHTTPSummarizer(cfg SummarizerConfig) (*HTTPSummarizer, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("embedding: summarizer endpoint is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 20 * time.Second
	}
	return &HTTPSummarizer{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}, nil
}

type summarizeRequest struct {
	Model     string  `json:"model,omitempty"`
	Prompt    string  `json:"prompt"`
	MaxTokens int     `json:"max_tokens"`
}

type summarizeResponse struct {
	Choices []struct {
		Text string `json:"text"`
	} `json:"choices"`
	Usage struct {
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Summarize posts content to the configured completions endpoint bounded
// by tokenBudget and returns the generated summary.
func (s *HTTPSummarizer) Summarize(ctx context.Context, content string, tokenBudget int) (string, int, error) {
	buf, err := json.Marshal(summarizeRequest{Model: s.cfg.Model, Prompt: content, MaxTokens: tokenBudget})
	if err != nil {
		return "", 0, fmt.Errorf("encoding summarize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, bytes.NewReader(buf))
	if err != nil {
		return "", 0, fmt.Errorf("building summarize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("calling summarize endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", 0, fmt.Errorf("summarize endpoint returned status %d", resp.StatusCode)
	}

	var sr summarizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return "", 0, fmt.Errorf("decoding summarize response: %w", err)
	}
	if len(sr.Choices) == 0 {
		return "", 0, fmt.Errorf("summarize endpoint returned no choices")
	}

	return sr.Choices[0].Text, sr.Usage.CompletionTokens, nil
}

var _ Summarizer = (*HTTPSummarizer)(nil)
