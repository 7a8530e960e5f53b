// Package resilience provides the cross-cutting reliability primitives
// (C8) every backend-facing component wraps its calls with: circuit
// breaking, retry with exponential backoff, and Redis-backed distributed
// locks.
package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
)

// CircuitState mirrors gobreaker's three-state machine.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateHalfOpen
	StateOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned by Execute when the breaker has tripped.
// Callers map this to domain.CodeBackendCircuitOpen.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitConfig configures a CircuitBreaker. Defaults match spec §4.1:
// opens after 5 failures within 60s, half-open probe after 30s.
type CircuitConfig struct {
	MaxFailures   int
	Interval      time.Duration
	Timeout       time.Duration
	OnStateChange func(name string, from, to CircuitState)
}

// DefaultCircuitConfig returns the spec-mandated vector backend circuit
// breaker thresholds.
func DefaultCircuitConfig() CircuitConfig {
	return CircuitConfig{
		MaxFailures: 5,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
	}
}

// CircuitBreaker wraps gobreaker.CircuitBreaker with a name for
// telemetry and a fixed Execute(ctx, fn) signature.
type CircuitBreaker struct {
	name string
	gb   *gobreaker.CircuitBreaker[any]
}

// NewCircuitBreaker creates a named circuit breaker (name is typically
// "{component}:{tenant}" or "{backend}").
func NewCircuitBreaker(name string, cfg CircuitConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	maxFailures := uint32(cfg.MaxFailures)
	settings := gobreaker.Settings{
		Name:     name,
		Interval: cfg.Interval,
		Timeout:  cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
	}
	if cfg.OnStateChange != nil {
		settings.OnStateChange = func(n string, from, to gobreaker.State) {
			cfg.OnStateChange(n, CircuitState(from), CircuitState(to))
		}
	}

	return &CircuitBreaker{name: name, gb: gobreaker.NewCircuitBreaker[any](settings)}
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() CircuitState {
	return CircuitState(cb.gb.State())
}

// Execute runs fn with circuit-breaker protection. fn should itself
// honor ctx cancellation/deadlines.
func (cb *CircuitBreaker) Execute(_ context.Context, fn func() error) error {
	_, err := cb.gb.Execute(func() (any, error) {
		return nil, fn()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return ErrCircuitOpen
		}
		return err
	}
	return nil
}
