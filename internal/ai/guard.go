package ai

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/boq-extractor/internal/resilience"
)

// GuardOptions configures per-provider throttling and health tracking.
type GuardOptions struct {
	RequestsPerMinute int
	Breakers          *resilience.ServiceBreakers
}

// guard throttles and circuit-breaks calls to one provider. A provider
// without a key is never available.
type guard struct {
	name    string
	key     string
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
}

func newGuard(name, key string, opts GuardOptions) guard {
	limit := rate.Inf
	if opts.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(opts.RequestsPerMinute))
	}
	var cb *resilience.CircuitBreaker
	if opts.Breakers != nil {
		cb = opts.Breakers.Get(name)
	} else {
		cb = resilience.NewCircuitBreaker(resilience.ProviderBreakerConfig(name, 0, 0))
	}
	return guard{
		name:    name,
		key:     key,
		limiter: rate.NewLimiter(limit, 1),
		breaker: cb,
	}
}

func (g guard) available() bool {
	return g.key != "" && g.breaker.Allows()
}

// call waits for the limiter and runs fn through the breaker.
func (g guard) call(ctx context.Context, fn func(ctx context.Context) (string, error)) (string, error) {
	return resilience.ExecuteVal(ctx, g.breaker, func(ctx context.Context) (string, error) {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", eris.Wrapf(err, "ai: %s rate limit", g.name)
		}
		return fn(ctx)
	})
}
