// Package router implements C6: the complexity-routed retrieval layer
// — ComplexityRouter, DecompositionExecutor, and PolicyTrainer — that
// decides between a standard vector search and an internal, multi-step
// decomposition, transparently to the caller (spec §4.6 invariant 8).
package router

import "time"

// Config bundles the tunables §4.6 marks "configurable per tenant".
type Config struct {
	Threshold float64 // routing threshold, default 0.30

	WeightMultiLayer  float64
	WeightAggregation float64
	WeightComparison  float64
	WeightLength      float64

	MaxHops           int // default 3
	GlobalQueryBudget int // default 50
	RelevanceFloor    float64

	MinTrajectoriesForUpdate int // default 20
	RewardAlpha              float64
	RewardBeta               float64
	LearningRate             float64

	ActionBudget time.Duration // per-action wall-time budget
}

// DefaultConfig returns the spec-mandated defaults.
func DefaultConfig() Config {
	return Config{
		Threshold:                0.30,
		WeightMultiLayer:         0.30,
		WeightAggregation:        0.25,
		WeightComparison:         0.25,
		WeightLength:             0.20,
		MaxHops:                  3,
		GlobalQueryBudget:        50,
		RelevanceFloor:           0.5,
		MinTrajectoriesForUpdate: 20,
		RewardAlpha:              1.0,
		RewardBeta:               0.3,
		LearningRate:             0.1,
		ActionBudget:             3 * time.Second,
	}
}
