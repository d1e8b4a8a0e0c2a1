package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// RegisterQuestionTools registers the question catalog tools.
func RegisterQuestionTools(s *server.MCPServer, deps *ToolDeps) {
	registerQuestionProgressTool(s, deps)
	registerQuestionFlowTool(s, deps)
}

func registerQuestionProgressTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"get_question_progress",
		mcp.WithDescription("Report which core interview questions an account has answered and the completion rate."),
		mcp.WithString("account_id", mcp.Required(), mcp.Description("Account UUID")),
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

		scoped, cleanup, err := acquire(ctx, deps)
		if err != nil {
			return nil, err
		}
		defer cleanup()

		progress, err := deps.QuestionService.Progress(scoped, accountID)
		if err != nil {
			return serviceError(err, "account_not_found")
		}
		return jsonResult(progress)
	})
}

func registerQuestionFlowTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"get_question_flow",
		mcp.WithDescription("Return the recommended interview flow: its phases, questions, and estimated time."),
		mcp.WithString(
			"flow_type",
			mcp.Description("comprehensive (default), quick, or focused"),
			mcp.Enum("comprehensive", "quick", "focused"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(deps.QuestionService.Flow(req.GetString("flow_type", "comprehensive")))
	})
}
