package geospatial

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/site-screener/internal/resilience"
)

// GuardedStore wraps a SpatialStore with a circuit breaker so a failing
// spatial backend fails evaluations fast instead of stacking timeouts.
type GuardedStore struct {
	inner SpatialStore
	cb    *resilience.CircuitBreaker
}

// NewGuardedStore wraps inner. A zero threshold or timeout uses the
// breaker defaults.
func NewGuardedStore(inner SpatialStore, failureThreshold int, resetTimeout time.Duration) *GuardedStore {
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		FailureThreshold: failureThreshold,
		ResetTimeout:     resetTimeout,
		OnStateChange: func(from, to resilience.CircuitState) {
			zap.L().Warn("geo: spatial store circuit state change",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return &GuardedStore{inner: inner, cb: cb}
}

// Nearest implements SpatialStore.
func (g *GuardedStore) Nearest(ctx context.Context, q NearestQuery) ([]Feature, error) {
	return resilience.ExecuteVal(ctx, g.cb, func(ctx context.Context) ([]Feature, error) {
		return g.inner.Nearest(ctx, q)
	})
}

// State reports the breaker state.
func (g *GuardedStore) State() resilience.CircuitState {
	return g.cb.State()
}
