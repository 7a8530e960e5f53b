package memoryengine

import (
	"testing"

	"github.com/wisbric/stratum/internal/domain"
	"github.com/wisbric/stratum/internal/vectorindex"
)

func TestRequireContextRejectsNilContext(t *testing.T) {
	if err := requireContext(nil); domain.CodeOf(err) != domain.CodeMissingTenantContext {
		t.Errorf("expected CodeMissingTenantContext, got %v", err)
	}
}

func TestRequireContextRejectsEmptyTenantID(t *testing.T) {
	err := requireContext(&domain.TenantContext{})
	if domain.CodeOf(err) != domain.CodeInvalidTenantContext {
		t.Errorf("expected CodeInvalidTenantContext, got %v", err)
	}
}

func TestRequireContextRejectsExcessiveDelegationDepth(t *testing.T) {
	tc := &domain.TenantContext{
		TenantID:        "t1",
		MaxDepth:        1,
		DelegationChain: []domain.Principal{{ID: "a"}, {ID: "b"}},
	}
	err := requireContext(tc)
	if domain.CodeOf(err) != domain.CodeUnauthorized {
		t.Errorf("expected CodeUnauthorized for excessive delegation depth, got %v", err)
	}
}

func TestRequireContextAcceptsValidContext(t *testing.T) {
	tc := &domain.TenantContext{TenantID: "t1", MaxDepth: 3}
	if err := requireContext(tc); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestWrapIdentifierErrorClassifiesInvalidLayer(t *testing.T) {
	err := wrapIdentifierError(&domain.InvalidLayerError{Layer: "bogus"})
	if domain.CodeOf(err) != domain.CodeInvalidLayer {
		t.Errorf("expected CodeInvalidLayer, got %v", err)
	}
}

func TestWrapIdentifierErrorClassifiesMissingIdentifier(t *testing.T) {
	err := wrapIdentifierError(&domain.MissingIdentifierError{Layer: domain.LayerUser, Field: "userId"})
	if domain.CodeOf(err) != domain.CodeMissingIdentifier {
		t.Errorf("expected CodeMissingIdentifier, got %v", err)
	}
}

func TestClassifyVectorErrMapsRateLimited(t *testing.T) {
	err := classifyVectorErr(&vectorindex.RateLimitedError{Backend: "memindex"})
	if domain.CodeOf(err) != domain.CodeRateLimited {
		t.Errorf("expected CodeRateLimited, got %v", err)
	}
}

func TestNormalizedHashIsStableAndContentSensitive(t *testing.T) {
	if normalizedHash("hello") != normalizedHash("hello") {
		t.Error("expected identical content to hash identically")
	}
	if normalizedHash("hello") == normalizedHash("world") {
		t.Error("expected different content to hash differently")
	}
}
