package app

import (
	"context"
	"testing"

	"github.com/wisbric/stratum/internal/config"
	"github.com/wisbric/stratum/internal/vectorindex"
)

func TestContainsQueryDetectsExistingQueryString(t *testing.T) {
	if !containsQuery("postgres://host/db?sslmode=disable") {
		t.Error("expected query string to be detected")
	}
}

func TestContainsQueryReportsNoneWhenAbsent(t *testing.T) {
	if containsQuery("postgres://host/db") {
		t.Error("expected no query string to be detected")
	}
}

func TestBuildVectorBackendRejectsUnknownBackend(t *testing.T) {
	cfg := &config.Config{VectorBackend: "not-a-real-backend"}

	_, err := buildVectorBackend(context.Background(), cfg, nil)
	if err == nil {
		t.Fatal("expected error for unknown backend")
	}
	if _, ok := err.(*vectorindex.InvalidBackendConfigError); !ok {
		t.Errorf("expected *vectorindex.InvalidBackendConfigError, got %T", err)
	}
}

func TestBuildVectorBackendDefaultsToMemindex(t *testing.T) {
	cfg := &config.Config{VectorBackend: "", VectorDimension: 8}

	idx, err := buildVectorBackend(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idx == nil {
		t.Fatal("expected a non-nil memindex backend")
	}
}
