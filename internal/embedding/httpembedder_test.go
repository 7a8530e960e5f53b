package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewHTTPEmbedder_RequiresEndpoint(t *testing.T) {
	if _, err := NewHTTPEmbedder(HTTPConfig{}); err == nil {
		t.Fatal("expected error for empty endpoint")
	}
}

func TestNewHTTPEmbedder_Defaults(t *testing.T) {
	e, err := NewHTTPEmbedder(HTTPConfig{Endpoint: "http://example.invalid"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Dimension() != 768 {
		t.Errorf("dimension = %d, want 768", e.Dimension())
	}
}

func TestHTTPEmbedder_Embed(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req.Input != "hello" {
			t.Errorf("input = %q, want hello", req.Input)
		}
		json.NewEncoder(w).Encode(embedResponse{
			Data: []struct {
				Embedding []float32 `json:"embedding"`
			}{{Embedding: []float32{0.1, 0.2, 0.3}}},
		})
	}))
	defer srv.Close()

	e, err := NewHTTPEmbedder(HTTPConfig{Endpoint: srv.URL, APIKey: "secret", Dimension: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	vec, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 3 || vec[0] != 0.1 {
		t.Errorf("vec = %v, want [0.1 0.2 0.3]", vec)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("authorization = %q, want Bearer secret", gotAuth)
	}
}

func TestHTTPEmbedder_Embed_NoVectors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(embedResponse{})
	}))
	defer srv.Close()

	e, err := NewHTTPEmbedder(HTTPConfig{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := e.Embed(context.Background(), "hello"); err == nil {
		t.Fatal("expected error for empty vector response")
	}
}

func TestHTTPEmbedder_Embed_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	e, err := NewHTTPEmbedder(HTTPConfig{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := e.Embed(context.Background(), "hello"); err == nil {
		t.Fatal("expected error for 500 status")
	}
}
