package router

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wisbric/stratum/internal/domain"
	"github.com/wisbric/stratum/internal/tenant"
)

// State is the persisted trainer state for one tenant, per §4.6:
// "{weights, baseline, counters, exploration_rate}".
type State struct {
	Weights         map[string]float64 `json:"weights"`
	Baseline        float64            `json:"baseline"`
	Counters        map[string]int     `json:"counters"`
	ExplorationRate float64            `json:"exploration_rate"`
}

func newState() State {
	return State{
		Weights:         make(map[string]float64),
		Counters:        make(map[string]int),
		ExplorationRate: 0.1,
	}
}

// PolicyTrainer accumulates completed trajectories and, once enough
// have landed, applies a policy-gradient update to per-action weights,
// persisting the result to the tenant-scoped `trainer_state` table.
type PolicyTrainer struct {
	pool    *pgxpool.Pool
	cfg     Config
	pending map[string][]domain.Trajectory // tenantID -> buffered trajectories
	state   map[string]State
}

// NewPolicyTrainer constructs a PolicyTrainer over pool.
func NewPolicyTrainer(pool *pgxpool.Pool, cfg Config) *PolicyTrainer {
	return &PolicyTrainer{
		pool:    pool,
		cfg:     cfg,
		pending: make(map[string][]domain.Trajectory),
		state:   make(map[string]State),
	}
}

// Reward computes r = α·success − β·token_cost, clamped to [-1, 1],
// per §4.6's reward formula. success is in [0, 1] (1.0 for "result
// used", 0.5 for "query refined", 0.0 for "result ignored").
func (t *PolicyTrainer) Reward(success float64, tokenCost int) float64 {
	r := t.cfg.RewardAlpha*success - t.cfg.RewardBeta*float64(tokenCost)/1000.0
	if r < -1 {
		return -1
	}
	if r > 1 {
		return 1
	}
	return r
}

// Record buffers a completed trajectory (with its reward already set)
// and triggers a weight update once MinTrajectoriesForUpdate have
// accumulated for the tenant.
func (t *PolicyTrainer) Record(ctx context.Context, trajectory domain.Trajectory) error {
	t.pending[trajectory.TenantID] = append(t.pending[trajectory.TenantID], trajectory)

	if len(t.pending[trajectory.TenantID]) < t.cfg.MinTrajectoriesForUpdate {
		return nil
	}

	return t.update(ctx, trajectory.TenantID)
}

// update applies one policy-gradient step with a baseline over the
// buffered trajectories, then persists and clears the buffer.
func (t *PolicyTrainer) update(ctx context.Context, tenantID string) error {
	trajectories := t.pending[tenantID]
	state, ok := t.state[tenantID]
	if !ok {
		loaded, err := t.Load(ctx, tenantID)
		if err != nil {
			return err
		}
		state = loaded
	}

	meanReward := 0.0
	for _, traj := range trajectories {
		meanReward += traj.Reward
	}
	meanReward /= float64(len(trajectories))

	// Baseline-subtracted policy-gradient update: each action's weight
	// moves toward trajectories whose reward beat the running baseline,
	// satisfying reward monotonicity (spec invariant 9) for a fixed
	// action sequence.
	for _, traj := range trajectories {
		advantage := traj.Reward - state.Baseline
		for _, action := range traj.Actions {
			state.Weights[action.Name] += t.cfg.LearningRate * advantage
			state.Counters[action.Name]++
		}
	}

	state.Baseline += t.cfg.LearningRate * (meanReward - state.Baseline)
	state.ExplorationRate = decayExploration(state.ExplorationRate, len(trajectories))

	if err := t.Persist(ctx, tenantID, state); err != nil {
		return err
	}

	t.state[tenantID] = state
	delete(t.pending, tenantID)
	return nil
}

func decayExploration(current float64, trajectoryCount int) float64 {
	decayed := current * 0.98
	if decayed < 0.01 {
		return 0.01
	}
	_ = trajectoryCount
	return decayed
}

// Load reads a tenant's trainer state, returning a fresh default State
// (see newState) if none has been persisted yet.
func (t *PolicyTrainer) Load(ctx context.Context, tenantID string) (State, error) {
	state := newState()

	err := tenant.WithSchema(ctx, t.pool, tenant.SchemaName(tenantID), func(ctx context.Context, conn *pgxpool.Conn) error {
		var weightsRaw, countersRaw []byte
		row := conn.QueryRow(ctx,
			`SELECT weights, baseline, counters, exploration_rate FROM trainer_state WHERE tenant_id = $1`,
			tenantID,
		)
		if err := row.Scan(&weightsRaw, &state.Baseline, &countersRaw, &state.ExplorationRate); err != nil {
			return err
		}
		if err := json.Unmarshal(weightsRaw, &state.Weights); err != nil {
			return fmt.Errorf("decoding trainer weights: %w", err)
		}
		return json.Unmarshal(countersRaw, &state.Counters)
	})
	if err != nil {
		// No persisted row yet is the common cold-start case — the
		// caller trains from the default state rather than erroring.
		return newState(), nil
	}

	return state, nil
}

// Persist upserts a tenant's trainer state.
func (t *PolicyTrainer) Persist(ctx context.Context, tenantID string, state State) error {
	weightsRaw, err := json.Marshal(state.Weights)
	if err != nil {
		return fmt.Errorf("encoding trainer weights: %w", err)
	}
	countersRaw, err := json.Marshal(state.Counters)
	if err != nil {
		return fmt.Errorf("encoding trainer counters: %w", err)
	}

	return tenant.WithSchema(ctx, t.pool, tenant.SchemaName(tenantID), func(ctx context.Context, conn *pgxpool.Conn) error {
		_, err := conn.Exec(ctx, `
			INSERT INTO trainer_state (tenant_id, weights, baseline, counters, exploration_rate, updated_at)
			VALUES ($1, $2, $3, $4, $5, now())
			ON CONFLICT (tenant_id) DO UPDATE SET
				weights = EXCLUDED.weights,
				baseline = EXCLUDED.baseline,
				counters = EXCLUDED.counters,
				exploration_rate = EXCLUDED.exploration_rate,
				updated_at = now()`,
			tenantID, weightsRaw, state.Baseline, countersRaw, state.ExplorationRate,
		)
		return err
	})
}
