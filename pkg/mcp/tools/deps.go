// Package tools provides the MCP tools of the account intelligence service.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-accounts/pkg/services"
)

// ScopeProvider attaches a pooled database connection to ctx.
// *database.ScopeProvider implements it.
type ScopeProvider interface {
	WithScope(ctx context.Context) (context.Context, func(), error)
}

// ToolDeps contains the services the MCP tools call.
type ToolDeps struct {
	Scopes           ScopeProvider
	FactService      services.ExternalFactService
	RelevanceService services.RelevanceService
	InterviewService services.InterviewService
	PlanService      services.PlanService
	QuestionService  services.QuestionService
	Conversations    services.ConversationStore
	Logger           *zap.Logger
}

// RegisterAll registers every account tool on s.
func RegisterAll(s *server.MCPServer, deps *ToolDeps) {
	RegisterFactTools(s, deps)
	RegisterHistoryTools(s, deps)
	RegisterInterviewTools(s, deps)
	RegisterPlanTools(s, deps)
	RegisterQuestionTools(s, deps)
}

// acquire returns a context holding a database connection for one tool call.
func acquire(ctx context.Context, deps *ToolDeps) (context.Context, func(), error) {
	scoped, cleanup, err := deps.Scopes.WithScope(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to acquire database connection: %w", err)
	}
	return scoped, cleanup, nil
}

// requireUUID reads a required UUID argument. The returned result is non-nil
// when the argument is missing or malformed.
func requireUUID(req mcp.CallToolRequest, name string) (uuid.UUID, *mcp.CallToolResult) {
	raw, err := req.RequireString(name)
	if err != nil {
		return uuid.Nil, NewErrorResult("invalid_parameters", fmt.Sprintf("%s is required", name))
	}
	id, err := uuid.Parse(trimString(raw))
	if err != nil {
		return uuid.Nil, NewErrorResult("invalid_parameters", fmt.Sprintf("%s must be a UUID", name))
	}
	return id, nil
}

// objectArg returns an object-valued argument, or nil when absent.
func objectArg(req mcp.CallToolRequest, name string) map[string]any {
	obj, _ := req.GetArguments()[name].(map[string]any)
	return obj
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}
