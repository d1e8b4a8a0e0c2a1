package llm

import (
	"context"
	"fmt"
	"time"
)

// TestResult contains the outcome of a gateway connectivity check.
type TestResult struct {
	Success        bool      `json:"success"`
	Message        string    `json:"message"`
	Model          string    `json:"model"`
	ErrorType      ErrorType `json:"error_type,omitempty"`
	ResponseTimeMs int64     `json:"response_time_ms,omitempty"`
}

// ConnectionTester checks that the generation gateway answers.
// This interface enables mocking in tests.
type ConnectionTester interface {
	Test(ctx context.Context) *TestResult
}

type connectionTester struct {
	client  LLMClient
	timeout time.Duration
}

// NewConnectionTester creates a tester for client.
func NewConnectionTester(client LLMClient) ConnectionTester {
	return &connectionTester{client: client, timeout: 30 * time.Second}
}

// Test sends a minimal prompt and reports latency or a categorized failure.
func (t *connectionTester) Test(ctx context.Context) *TestResult {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	model := t.client.GetModel()
	start := time.Now()

	_, err := t.client.Generate(ctx, "You are a connectivity check.", "Say 'ok' and nothing else.", ModePlain)
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		return &TestResult{
			Message:        categorizeError(err),
			Model:          model,
			ErrorType:      GetErrorType(err),
			ResponseTimeMs: elapsed,
		}
	}

	return &TestResult{
		Success:        true,
		Message:        fmt.Sprintf("LLM connection successful (model: %s, %dms)", model, elapsed),
		Model:          model,
		ResponseTimeMs: elapsed,
	}
}

func categorizeError(err error) string {
	switch GetErrorType(err) {
	case ErrorTypeAuth:
		return "LLM: Invalid API key"
	case ErrorTypeModel:
		return "LLM: Model not found"
	case ErrorTypeEndpoint:
		return fmt.Sprintf("LLM: Endpoint unavailable - %s", ClassifyError(err).Message)
	case ErrorTypeEmpty:
		return "LLM: Empty response"
	}
	return fmt.Sprintf("LLM: %s", err.Error())
}

var _ ConnectionTester = (*connectionTester)(nil)
