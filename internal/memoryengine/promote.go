package memoryengine

import (
	"context"
	"math"
	"time"

	"github.com/wisbric/stratum/internal/domain"
	"github.com/wisbric/stratum/internal/policy"
)

// importanceWeightRecency and importanceWeightFrequency implement the
// promotion-score formula from SPEC_FULL §7 decision 1:
// importance = 0.6*recency + 0.4*frequency.
const (
	importanceWeightRecency   = 0.6
	importanceWeightFrequency = 0.4
	frequencyNormalizer       = 50.0 // access count saturating at this count scores 1.0
	recencyHalfLife           = 14 * 24 * time.Hour
)

// ImportanceScore computes a memory's promotion-eligibility score from
// its access recency and frequency.
func ImportanceScore(meta domain.MemoryMetadata, now time.Time) float64 {
	recency := 0.0
	if meta.LastAccessedAt != nil {
		age := now.Sub(*meta.LastAccessedAt)
		if age < 0 {
			age = 0
		}
		recency = halfLifeDecay(age, recencyHalfLife)
	}

	frequency := float64(meta.AccessCount) / frequencyNormalizer
	if frequency > 1 {
		frequency = 1
	}

	return importanceWeightRecency*recency + importanceWeightFrequency*frequency
}

func halfLifeDecay(age, halfLife time.Duration) float64 {
	if halfLife <= 0 {
		return 0
	}
	return math.Pow(0.5, float64(age)/float64(halfLife))
}

// PromoteInput is the request shape for Promote.
type PromoteInput struct {
	ID         string
	FromLayer  domain.Layer
	ToLayer    domain.Layer
	Sensitive  bool
	Private    bool
}

// PromoteResult reports the outcome of a promotion attempt.
type PromoteResult struct {
	Promoted bool
	Reason   policy.PromotionBlockReason
	Redacted string
}

// Promote copies a memory's content to the wider ToLayer, redacting PII and
// gating on sensitivity/privacy per §4.3's promotion path. The
// source memory is left untouched; promotion creates a new entry at
// ToLayer rather than moving the original, so demotion and history
// remain possible.
func (e *Engine) Promote(ctx context.Context, tc *domain.TenantContext, in PromoteInput, identifiers domain.Identifiers, content string) (*PromoteResult, error) {
	if err := requireContext(tc); err != nil {
		return nil, err
	}
	if in.ToLayer.Ordinal() <= in.FromLayer.Ordinal() {
		return nil, domain.NewError(domain.CodeInvalidLayer, "promotion target layer must be wider than source layer")
	}

	allowed, reason := policy.CheckPromotionGate(in.Sensitive, in.Private)
	if !allowed {
		return &PromoteResult{Promoted: false, Reason: reason}, nil
	}

	redacted := policy.Redact(content)

	evalCtx := pPolicyCtx(tc, in.ToLayer, redacted)
	if err := e.policyEn.ValidateWrite(tc.TenantID, evalCtx); err != nil {
		return nil, domain.NewError(domain.CodePolicyViolation, err.Error()).WithCause(err)
	}

	if _, err := e.Add(ctx, tc, AddInput{
		Layer:       in.ToLayer,
		Identifiers: identifiers,
		Content:     redacted,
		Metadata: domain.MemoryMetadata{
			Source:           "promotion:" + in.ID,
			KnowledgePointer: in.ID,
		},
	}); err != nil {
		return nil, err
	}

	return &PromoteResult{Promoted: true, Redacted: redacted}, nil
}

func pPolicyCtx(tc *domain.TenantContext, layer domain.Layer, content string) policy.EvalContext {
	return policy.EvalContext{Operation: "promote", Layer: layer, PrincipalID: tc.PrincipalID, Content: content}
}
