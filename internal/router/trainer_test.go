package router

import "testing"

func TestRewardClampsToUnitRange(t *testing.T) {
	trainer := &PolicyTrainer{cfg: Config{RewardAlpha: 1.0, RewardBeta: 0.3}}

	if r := trainer.Reward(1.0, 0); r != 1.0 {
		t.Errorf("expected max reward 1.0 for success with no token cost, got %f", r)
	}
	if r := trainer.Reward(0.0, 100000); r != -1.0 {
		t.Errorf("expected reward clamped to -1.0 for huge token cost, got %f", r)
	}
}

func TestRewardPenalizesTokenCost(t *testing.T) {
	trainer := &PolicyTrainer{cfg: Config{RewardAlpha: 1.0, RewardBeta: 0.3}}

	cheap := trainer.Reward(1.0, 100)
	expensive := trainer.Reward(1.0, 5000)
	if expensive >= cheap {
		t.Errorf("expected higher token cost to reduce reward: cheap=%f expensive=%f", cheap, expensive)
	}
}

func TestDecayExplorationNeverGoesBelowFloor(t *testing.T) {
	rate := 0.1
	for i := 0; i < 1000; i++ {
		rate = decayExploration(rate, 1)
	}
	if rate < 0.01 {
		t.Errorf("expected exploration rate floor of 0.01, got %f", rate)
	}
}

func TestDecayExplorationMonotonicallyDecreasesAboveFloor(t *testing.T) {
	next := decayExploration(0.5, 1)
	if next >= 0.5 {
		t.Errorf("expected decay to reduce rate, got %f from 0.5", next)
	}
}

func TestNewStateHasInitializedMaps(t *testing.T) {
	s := newState()
	if s.Weights == nil || s.Counters == nil {
		t.Error("expected newState to initialize both maps")
	}
	if s.ExplorationRate != 0.1 {
		t.Errorf("expected default exploration rate 0.1, got %f", s.ExplorationRate)
	}
}
