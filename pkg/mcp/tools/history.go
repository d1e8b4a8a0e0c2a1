package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// RegisterHistoryTools registers the relevance and change-detection tools.
func RegisterHistoryTools(s *server.MCPServer, deps *ToolDeps) {
	registerRelevantHistoryTool(s, deps)
	registerDetectChangesTool(s, deps)
}

func registerRelevantHistoryTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"get_relevant_history",
		mcp.WithDescription(
			"Rank an account's earlier answers by relevance to a new question. "+
				"Uses the generation gateway and falls back to keyword overlap; returns at most five items.",
		),
		mcp.WithString("account_id", mcp.Required(), mcp.Description("Account UUID")),
		mcp.WithString("current_question", mcp.Required(), mcp.Description("The question about to be asked")),
		mcp.WithObject("context", mcp.Description("Optional hints passed to the ranking prompt")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		accountID, errResult := requireUUID(req, "account_id")
		if errResult != nil {
			return errResult, nil
		}
		question, err := req.RequireString("current_question")
		if err != nil || trimString(question) == "" {
			return NewErrorResult("invalid_parameters", "current_question is required"), nil
		}

		scoped, cleanup, err := acquire(ctx, deps)
		if err != nil {
			return nil, err
		}
		defer cleanup()

		history, err := deps.RelevanceService.RelevantHistory(scoped, accountID, question, objectArg(req, "context"))
		if err != nil {
			return serviceError(err, "account_not_found")
		}
		return jsonResult(history)
	})
}

func registerDetectChangesTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"detect_changes",
		mcp.WithDescription(
			"Compare new facts about an account against the structured data already recorded in its history. "+
				"Returns the changes and suggested follow-ups; identical data yields empty lists.",
		),
		mcp.WithString("account_id", mcp.Required(), mcp.Description("Account UUID")),
		mcp.WithObject("new_data", mcp.Required(), mcp.Description("New structured facts, e.g. {\"key_contacts\": [...]}")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		accountID, errResult := requireUUID(req, "account_id")
		if errResult != nil {
			return errResult, nil
		}
		newData := objectArg(req, "new_data")
		if newData == nil {
			return NewErrorResult("invalid_parameters", "new_data must be an object"), nil
		}

		scoped, cleanup, err := acquire(ctx, deps)
		if err != nil {
			return nil, err
		}
		defer cleanup()

		report, err := deps.RelevanceService.DetectChanges(scoped, accountID, newData)
		if err != nil {
			return serviceError(err, "account_not_found")
		}
		return jsonResult(report)
	})
}
