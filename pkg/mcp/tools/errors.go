package tools

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ekaya-inc/ekaya-accounts/pkg/apperrors"
)

// ErrorResponse is a structured error returned as a tool result, so the
// calling agent sees actionable details instead of a protocol error.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// NewErrorResult creates a tool result containing a structured error.
// Use it for errors the caller can fix (bad parameters, unknown ids).
// System failures such as a lost database connection stay Go errors.
func NewErrorResult(code, message string) *mcp.CallToolResult {
	return NewErrorResultWithDetails(code, message, nil)
}

// NewErrorResultWithDetails creates an error result with additional context.
func NewErrorResultWithDetails(code, message string, details any) *mcp.CallToolResult {
	jsonBytes, _ := json.Marshal(ErrorResponse{
		Error:   true,
		Code:    code,
		Message: message,
		Details: details,
	})
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}

// serviceError converts a service error into a tool result when it is
// actionable, or returns it unchanged for the MCP layer to report.
// notFoundCode names the missing resource, e.g. "account_not_found".
func serviceError(err error, notFoundCode string) (*mcp.CallToolResult, error) {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return NewErrorResult(notFoundCode, err.Error()), nil
	case errors.Is(err, apperrors.ErrInvalidInput):
		return NewErrorResult("invalid_parameters", err.Error()), nil
	case errors.Is(err, apperrors.ErrConflict):
		return NewErrorResult("conflict", err.Error()), nil
	default:
		return nil, err
	}
}

func trimString(s string) string {
	return strings.TrimSpace(s)
}
