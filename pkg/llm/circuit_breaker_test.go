package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCircuitBreaker_TripsAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: 3, ResetAfter: 30 * time.Second})

	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, CircuitClosed, cb.State())

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())
	assert.Equal(t, 3, cb.ConsecutiveFailures())

	allowed, err := cb.Allow()
	assert.False(t, allowed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker open")
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: 3, ResetAfter: time.Second})

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()

	assert.Equal(t, 0, cb.ConsecutiveFailures())
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_HalfOpen(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: 1, ResetAfter: 10 * time.Millisecond})
	cb.RecordFailure()
	require.Equal(t, CircuitOpen, cb.State())

	time.Sleep(20 * time.Millisecond)

	allowed, err := cb.Allow()
	assert.True(t, allowed)
	assert.NoError(t, err)
	assert.Equal(t, CircuitHalfOpen, cb.State())

	// A second request while the probe is in flight is rejected.
	allowed, err = cb.Allow()
	assert.False(t, allowed)
	assert.ErrorContains(t, err, "half-open")

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitBreaker_HalfOpenSuccessCloses(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: 1, ResetAfter: 10 * time.Millisecond})
	cb.RecordFailure()
	time.Sleep(20 * time.Millisecond)

	allowed, _ := cb.Allow()
	require.True(t, allowed)
	cb.RecordSuccess()

	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitState_String(t *testing.T) {
	assert.Equal(t, "closed", CircuitClosed.String())
	assert.Equal(t, "open", CircuitOpen.String())
	assert.Equal(t, "half-open", CircuitHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(99).String())
}

func TestCircuitBreaker_ConcurrentAccess(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: 1000, ResetAfter: time.Second})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = cb.Allow()
			cb.RecordFailure()
			_ = cb.State()
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, cb.ConsecutiveFailures())
}

func TestBreakerClient_FailsFastWhenOpen(t *testing.T) {
	mock := NewFailingMockLLMClient(errors.New("503 service unavailable"))
	client := NewBreakerClient(mock, CircuitBreakerConfig{Threshold: 2, ResetAfter: time.Minute}, zap.NewNop())

	for i := 0; i < 2; i++ {
		_, err := client.Generate(context.Background(), "sys", "in", ModePlain)
		require.Error(t, err)
	}
	assert.Equal(t, CircuitOpen, client.State())

	_, err := client.Generate(context.Background(), "sys", "in", ModePlain)
	require.Error(t, err)
	assert.Equal(t, ErrorTypeEndpoint, GetErrorType(err))
	assert.Equal(t, int64(2), mock.GenerateCalls.Load(), "open circuit must not reach the backend")
}

func TestBreakerClient_CancellationDoesNotTrip(t *testing.T) {
	mock := NewFailingMockLLMClient(context.Canceled)
	client := NewBreakerClient(mock, CircuitBreakerConfig{Threshold: 1, ResetAfter: time.Minute}, zap.NewNop())

	_, err := client.Generate(context.Background(), "sys", "in", ModePlain)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, CircuitClosed, client.State())
}

func TestBreakerClient_PassesThroughSuccess(t *testing.T) {
	mock := NewMockLLMClient()
	mock.GenerateFunc = func(_ context.Context, _, input string, mode Mode) (string, error) {
		return "echo:" + input + ":" + string(mode), nil
	}
	client := NewBreakerClient(mock, DefaultCircuitBreakerConfig(), zap.NewNop())

	text, err := client.Generate(context.Background(), "sys", "hello", ModeSearch)
	require.NoError(t, err)
	assert.Equal(t, "echo:hello:search", text)
	assert.Equal(t, "mock-model", client.GetModel())
}

func TestCircuitBreaker_FailedProbeRestartsWait(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: 2, ResetAfter: time.Minute})
	cb.now = func() time.Time { return clock }

	cb.RecordFailure()
	assert.True(t, cb.RecordFailure(), "second failure opens the circuit")

	clock = clock.Add(61 * time.Second)
	allowed, _ := cb.Allow()
	require.True(t, allowed)
	assert.True(t, cb.RecordFailure(), "failed probe re-opens the circuit")

	clock = clock.Add(30 * time.Second)
	allowed, err := cb.Allow()
	assert.False(t, allowed)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.ErrorContains(t, err, "retry in 30s")

	clock = clock.Add(31 * time.Second)
	allowed, _ = cb.Allow()
	require.True(t, allowed)
	assert.True(t, cb.RecordSuccess(), "probe success reports recovery")
	assert.False(t, cb.RecordSuccess())
}

func TestNewCircuitBreaker_ClampsThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: 0, ResetAfter: time.Minute})
	assert.True(t, cb.RecordFailure())
	assert.Equal(t, CircuitOpen, cb.State())
}
