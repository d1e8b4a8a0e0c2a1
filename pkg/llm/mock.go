package llm

import (
	"context"
	"sync"
	"sync/atomic"
)

// MockLLMClient is a configurable mock for testing generation consumers.
// Set GenerateFunc to control behavior in tests.
type MockLLMClient struct {
	// GenerateFunc is called when Generate is invoked.
	// If nil, returns an empty string and nil error.
	GenerateFunc func(ctx context.Context, instructions, input string, mode Mode) (string, error)

	// Model is returned by GetModel. Defaults to "mock-model".
	Model string

	// Endpoint is returned by GetEndpoint. Defaults to "http://mock-endpoint".
	Endpoint string

	// Call tracking for verification
	GenerateCalls atomic.Int64

	mu     sync.Mutex
	inputs []string
	modes  []Mode
}

// NewMockLLMClient creates a new mock with sensible defaults.
func NewMockLLMClient() *MockLLMClient {
	return &MockLLMClient{
		Model:    "mock-model",
		Endpoint: "http://mock-endpoint",
	}
}

// NewFailingMockLLMClient returns a mock whose every call fails with err.
func NewFailingMockLLMClient(err error) *MockLLMClient {
	m := NewMockLLMClient()
	m.GenerateFunc = func(context.Context, string, string, Mode) (string, error) {
		return "", err
	}
	return m
}

// Generate implements LLMClient.
func (m *MockLLMClient) Generate(ctx context.Context, instructions, input string, mode Mode) (string, error) {
	m.GenerateCalls.Add(1)
	m.mu.Lock()
	m.inputs = append(m.inputs, input)
	m.modes = append(m.modes, mode)
	m.mu.Unlock()

	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, instructions, input, mode)
	}
	return "", nil
}

// Inputs returns the input of every call in order.
func (m *MockLLMClient) Inputs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.inputs...)
}

// Modes returns the mode of every call in order.
func (m *MockLLMClient) Modes() []Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Mode(nil), m.modes...)
}

// GetModel implements LLMClient.
func (m *MockLLMClient) GetModel() string {
	if m.Model == "" {
		return "mock-model"
	}
	return m.Model
}

// GetEndpoint implements LLMClient.
func (m *MockLLMClient) GetEndpoint() string {
	if m.Endpoint == "" {
		return "http://mock-endpoint"
	}
	return m.Endpoint
}

var _ LLMClient = (*MockLLMClient)(nil)
