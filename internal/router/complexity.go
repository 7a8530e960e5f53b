package router

import (
	"regexp"
	"strings"

	"github.com/wisbric/stratum/internal/domain"
)

var (
	aggregationKeywords = regexp.MustCompile(`(?i)\b(across|all|summarize|summarise|overall|total|every)\b`)
	comparisonKeywords  = regexp.MustCompile(`(?i)\b(compare|versus|vs\.?|difference|differs?|better|worse|than)\b`)
)

// ComplexityRouter computes the §4.6 weighted complexity score and
// decides whether a query should take the standard search path or be
// handed to the DecompositionExecutor.
type ComplexityRouter struct {
	cfg Config
}

// NewComplexityRouter constructs a ComplexityRouter.
func NewComplexityRouter(cfg Config) *ComplexityRouter {
	return &ComplexityRouter{cfg: cfg}
}

// Score computes a complexity score in [0, 1] for query, given the
// layers the caller's identifiers make accessible.
func (r *ComplexityRouter) Score(query string, identifiers domain.Identifiers) float64 {
	layers := domain.AccessibleLayers(identifiers)

	multiLayer := 0.0
	if len(layers) > 1 {
		// Scales toward 1 as more layers are simultaneously accessible,
		// saturating at 4 distinct layers.
		multiLayer = clampUnit(float64(len(layers)-1) / 3.0)
	}

	aggregation := 0.0
	if aggregationKeywords.MatchString(query) {
		aggregation = 1.0
	}

	comparison := 0.0
	if comparisonKeywords.MatchString(query) {
		comparison = 1.0
	}

	length := lengthStructureSignal(query)

	score := r.cfg.WeightMultiLayer*multiLayer +
		r.cfg.WeightAggregation*aggregation +
		r.cfg.WeightComparison*comparison +
		r.cfg.WeightLength*length

	return clampUnit(score)
}

// lengthStructureSignal scores a query's length and clause structure —
// longer, multi-clause queries ("X, and also Y, compared to Z") read as
// more complex than a short lookup.
func lengthStructureSignal(query string) float64 {
	words := len(strings.Fields(query))
	lengthScore := clampUnit(float64(words) / 40.0)

	clauses := strings.Count(query, ",") + strings.Count(query, ";") + strings.Count(query, " and ")
	structureScore := clampUnit(float64(clauses) / 3.0)

	return clampUnit(0.6*lengthScore + 0.4*structureScore)
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Route reports whether score warrants decomposition.
func (r *ComplexityRouter) Route(score float64) (decompose bool) {
	return score >= r.cfg.Threshold
}
