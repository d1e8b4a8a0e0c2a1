package llm

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// BreakerClient wraps a client with a circuit breaker so a dead backend fails
// fast and callers move straight to their fallback path.
type BreakerClient struct {
	inner   LLMClient
	breaker *CircuitBreaker
	logger  *zap.Logger
}

// NewBreakerClient wraps inner with a breaker built from cfg.
func NewBreakerClient(inner LLMClient, cfg CircuitBreakerConfig, logger *zap.Logger) *BreakerClient {
	return &BreakerClient{
		inner:   inner,
		breaker: NewCircuitBreaker(cfg),
		logger:  logger.Named("llm-breaker"),
	}
}

// Generate forwards to the wrapped client unless the circuit is open.
// Caller cancellation is not counted as a backend failure.
func (b *BreakerClient) Generate(ctx context.Context, instructions, input string, mode Mode) (string, error) {
	if allowed, err := b.breaker.Allow(); !allowed {
		return "", NewErrorWithContext(ErrorTypeEndpoint, "circuit open", false, err,
			b.inner.GetModel(), b.inner.GetEndpoint(), 0)
	}

	text, err := b.inner.Generate(ctx, instructions, input, mode)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		if b.breaker.RecordFailure() {
			b.logger.Warn("Generation circuit opened",
				zap.Int("consecutive_failures", b.breaker.ConsecutiveFailures()),
				zap.String("model", b.inner.GetModel()))
		}
		return "", err
	}

	if b.breaker.RecordSuccess() {
		b.logger.Info("Generation circuit closed", zap.String("model", b.inner.GetModel()))
	}
	return text, nil
}

// GetModel returns the wrapped client's model.
func (b *BreakerClient) GetModel() string {
	return b.inner.GetModel()
}

// GetEndpoint returns the wrapped client's endpoint.
func (b *BreakerClient) GetEndpoint() string {
	return b.inner.GetEndpoint()
}

// State reports the breaker state, used by the health check.
func (b *BreakerClient) State() CircuitState {
	return b.breaker.State()
}
