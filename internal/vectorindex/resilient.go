package vectorindex

import (
	"context"
	"time"

	"github.com/wisbric/stratum/internal/resilience"
	"github.com/wisbric/stratum/internal/telemetry"
)

// Resilient wraps any Index backend with the retry, circuit-breaker, and
// observability behavior spec §4.1 requires of every backend call:
// 3-attempt exponential backoff (1s..30s, x2) and a breaker that opens
// after 5 failures in 60s, half-opens after 30s.
type Resilient struct {
	backend string
	inner   Index
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
}

// NewResilient wraps inner, labeling metrics and the circuit breaker
// with backend.
func NewResilient(backend string, inner Index) *Resilient {
	return &Resilient{
		backend: backend,
		inner:   inner,
		breaker: resilience.NewCircuitBreaker("vectorindex:"+backend, resilience.DefaultCircuitConfig()),
		retry:   resilience.DefaultRetryConfig(),
	}
}

func (r *Resilient) call(ctx context.Context, op string, fn func() error) error {
	start := time.Now()

	err := r.breaker.Execute(ctx, func() error {
		return resilience.Retry(ctx, r.retry, fn)
	})

	telemetry.VectorBackendOperationDuration.WithLabelValues(r.backend, op).Observe(float64(time.Since(start).Milliseconds()))

	status := "ok"
	if err != nil {
		status = "error"
		code := "unknown"
		switch {
		case errIs[*InvalidBackendConfigError](err):
			code = "invalid_backend_config"
		case errIs[*RateLimitedError](err):
			code = "rate_limited"
		case errIs[*ProviderError](err):
			code = "provider_error"
		default:
			if err == resilience.ErrCircuitOpen {
				code = "circuit_open"
				err = &BackendCircuitOpenError{Backend: r.backend}
			}
		}
		telemetry.VectorBackendErrors.WithLabelValues(r.backend, code).Inc()
	}
	telemetry.VectorBackendOperationTotal.WithLabelValues(r.backend, op, status).Inc()

	return err
}

func errIs[T error](err error) bool {
	_, ok := err.(T)
	return ok
}

func (r *Resilient) HealthCheck(ctx context.Context) error {
	return r.call(ctx, "health_check", func() error { return r.inner.HealthCheck(ctx) })
}

func (r *Resilient) Capabilities(ctx context.Context) (Capabilities, error) {
	var caps Capabilities
	err := r.call(ctx, "capabilities", func() error {
		var innerErr error
		caps, innerErr = r.inner.Capabilities(ctx)
		return innerErr
	})
	return caps, err
}

func (r *Resilient) Upsert(ctx context.Context, tenantID string, records []Record) error {
	return r.call(ctx, "upsert", func() error { return r.inner.Upsert(ctx, tenantID, records) })
}

func (r *Resilient) Search(ctx context.Context, tenantID string, req SearchRequest) ([]SearchResult, error) {
	var results []SearchResult
	err := r.call(ctx, "search", func() error {
		var innerErr error
		results, innerErr = r.inner.Search(ctx, tenantID, req)
		return innerErr
	})
	return results, err
}

func (r *Resilient) Delete(ctx context.Context, tenantID string, ids []string) error {
	return r.call(ctx, "delete", func() error { return r.inner.Delete(ctx, tenantID, ids) })
}

func (r *Resilient) Get(ctx context.Context, tenantID string, id string) (*Record, error) {
	var rec *Record
	err := r.call(ctx, "get", func() error {
		var innerErr error
		rec, innerErr = r.inner.Get(ctx, tenantID, id)
		return innerErr
	})
	return rec, err
}

var _ Index = (*Resilient)(nil)
