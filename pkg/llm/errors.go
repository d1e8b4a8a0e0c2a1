package llm

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// ErrorType indicates which part of the gateway configuration caused the error.
type ErrorType string

const (
	ErrorTypeNone     ErrorType = ""
	ErrorTypeEndpoint ErrorType = "endpoint"
	ErrorTypeAuth     ErrorType = "auth"
	ErrorTypeModel    ErrorType = "model"
	ErrorTypeEmpty    ErrorType = "empty_response"
	ErrorTypeUnknown  ErrorType = "unknown"
)

// Error represents a structured generation gateway error with classification.
type Error struct {
	Type       ErrorType
	Message    string
	Retryable  bool
	Cause      error
	StatusCode int
	Model      string
	Endpoint   string
}

// Error implements the error interface.
// Only the endpoint host is included so query strings and paths never leak.
func (e *Error) Error() string {
	parts := []string{string(e.Type)}

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", e.StatusCode))
	}
	if e.Model != "" {
		parts = append(parts, fmt.Sprintf("model=%s", e.Model))
	}
	if host := endpointHost(e.Endpoint); host != "" {
		parts = append(parts, fmt.Sprintf("endpoint=%s", host))
	}

	parts = append(parts, e.Message)

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", strings.Join(parts, " "), e.Cause)
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable lets the retry package check retryability without importing llm.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// NewError creates a new structured error.
func NewError(errType ErrorType, message string, retryable bool, cause error) *Error {
	return &Error{
		Type:      errType,
		Message:   message,
		Retryable: retryable,
		Cause:     cause,
	}
}

// NewErrorWithContext creates a new structured error with model and endpoint context.
func NewErrorWithContext(errType ErrorType, message string, retryable bool, cause error, model, endpoint string, statusCode int) *Error {
	return &Error{
		Type:       errType,
		Message:    message,
		Retryable:  retryable,
		Cause:      cause,
		Model:      model,
		Endpoint:   endpoint,
		StatusCode: statusCode,
	}
}

// ClassifyError maps a backend error onto an ErrorType. Structured errors pass
// through unchanged.
func ClassifyError(err error) *Error {
	if err == nil {
		return nil
	}

	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr
	}

	status := statusCodeOf(err)
	lower := strings.ToLower(err.Error())
	for _, rule := range classificationRules {
		if rule.match(err, status, lower) {
			e := NewError(rule.errType, rule.message, rule.retryable, err)
			e.StatusCode = status
			return e
		}
	}

	e := NewError(ErrorTypeUnknown, "llm error", false, err)
	e.StatusCode = status
	return e
}

type classificationRule struct {
	errType   ErrorType
	message   string
	retryable bool
	match     func(err error, status int, lower string) bool
}

func containsAny(s string, fragments ...string) bool {
	for _, f := range fragments {
		if strings.Contains(s, f) {
			return true
		}
	}
	return false
}

// First match wins.
var classificationRules = []classificationRule{
	{ErrorTypeEndpoint, "request timeout", true, func(err error, _ int, _ string) bool {
		return errors.Is(err, context.DeadlineExceeded)
	}},
	{ErrorTypeEndpoint, "request canceled", false, func(err error, _ int, _ string) bool {
		return errors.Is(err, context.Canceled)
	}},
	{ErrorTypeAuth, "authentication failed", false, func(_ error, status int, lower string) bool {
		return status == 401 || status == 403 || containsAny(lower, "unauthorized", "invalid api key", "invalid x-api-key")
	}},
	{ErrorTypeModel, "model not found", false, func(_ error, _ int, lower string) bool {
		return strings.Contains(lower, "model") && containsAny(lower, "not found", "does not exist")
	}},
	{ErrorTypeEndpoint, "endpoint not found", false, func(_ error, status int, _ string) bool {
		return status == 404
	}},
	{ErrorTypeEndpoint, "connection failed", true, func(_ error, _ int, lower string) bool {
		return containsAny(lower, "connection refused", "no such host")
	}},
	{ErrorTypeEndpoint, "request timeout", true, func(_ error, _ int, lower string) bool {
		return containsAny(lower, "timeout", "deadline exceeded")
	}},
	{ErrorTypeUnknown, "rate limited", true, func(_ error, status int, lower string) bool {
		return status == 429 || strings.Contains(lower, "rate limit")
	}},
	{ErrorTypeEndpoint, "provider overloaded", true, func(_ error, status int, lower string) bool {
		return status == 529 || strings.Contains(lower, "overloaded")
	}},
	{ErrorTypeEndpoint, "server error", true, func(_ error, status int, _ string) bool {
		return status >= 500
	}},
}

var knownStatusCodes = []int{400, 401, 403, 404, 429, 500, 502, 503, 504, 529}

// statusCodeOf reads the HTTP status from OpenAI-compatible client errors and
// otherwise looks for a known status code in the message.
func statusCodeOf(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		return reqErr.HTTPStatusCode
	}

	msg := err.Error()
	for _, code := range knownStatusCodes {
		if strings.Contains(msg, strconv.Itoa(code)) {
			return code
		}
	}
	return 0
}

// IsRetryable returns true if the error is a retryable gateway error.
func IsRetryable(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Retryable
	}
	return false
}

// GetErrorType extracts the ErrorType from an error.
func GetErrorType(err error) ErrorType {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type
	}
	return ErrorTypeUnknown
}

func endpointHost(endpoint string) string {
	if endpoint == "" {
		return ""
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Host
}
