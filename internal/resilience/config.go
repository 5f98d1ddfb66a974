package resilience

import (
	"time"

	"go.uber.org/zap"
)

// ProviderBreakerConfig builds the breaker config for a named provider.
// Cancellation does not trip the breaker and transitions are logged.
func ProviderBreakerConfig(name string, failureThreshold, resetTimeoutSecs int) CircuitBreakerConfig {
	cfg := DefaultCircuitBreakerConfig()
	if failureThreshold > 0 {
		cfg.FailureThreshold = failureThreshold
	}
	if resetTimeoutSecs > 0 {
		cfg.ResetTimeout = time.Duration(resetTimeoutSecs) * time.Second
	}
	cfg.ShouldTrip = func(err error) bool { return err != nil && !IsCanceled(err) }
	cfg.OnStateChange = func(from, to CircuitState) {
		zap.L().Warn("resilience: provider circuit changed",
			zap.String("provider", name),
			zap.Stringer("from", from),
			zap.Stringer("to", to),
		)
	}
	return cfg
}
