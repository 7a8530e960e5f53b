package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewHTTPSummarizer_RequiresEndpoint(t *testing.T) {
	if _, err := NewHTTPSummarizer(SummarizerConfig{}); err == nil {
		t.Fatal("expected error for empty endpoint")
	}
}

func TestHTTPSummarizer_Summarize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req summarizeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req.MaxTokens != 50 {
			t.Errorf("max_tokens = %d, want 50", req.MaxTokens)
		}
		resp := summarizeResponse{}
		resp.Choices = []struct {
			Text string `json:"text"`
		}{{Text: "a short summary"}}
		resp.Usage.CompletionTokens = 4
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	s, err := NewHTTPSummarizer(SummarizerConfig{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	summary, tokens, err := s.Summarize(context.Background(), "some long source text", 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary != "a short summary" {
		t.Errorf("summary = %q", summary)
	}
	if tokens != 4 {
		t.Errorf("tokens = %d, want 4", tokens)
	}
}

func TestHTTPSummarizer_Summarize_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(summarizeResponse{})
	}))
	defer srv.Close()

	s, err := NewHTTPSummarizer(SummarizerConfig{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := s.Summarize(context.Background(), "source", 50); err == nil {
		t.Fatal("expected error for empty choices response")
	}
}
