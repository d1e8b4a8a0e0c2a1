package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-accounts/pkg/models"
)

// RegisterInterviewTools registers the guided interview tools. Interview state
// lives in the conversation store between calls.
func RegisterInterviewTools(s *server.MCPServer, deps *ToolDeps) {
	registerStartInterviewTool(s, deps)
	registerContinueInterviewTool(s, deps)
	registerEndInterviewTool(s, deps)
}

func registerStartInterviewTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"start_interview",
		mcp.WithDescription(
			"Start a guided interview about an account on a seed question. "+
				"Returns the conversation with its opening question; pass conversation_id to continue_interview.",
		),
		mcp.WithString("account_id", mcp.Required(), mcp.Description("Account UUID")),
		mcp.WithString("question", mcp.Required(), mcp.Description("Seed question, e.g. 'Key Contacts: Who are the decision makers?'")),
		mcp.WithObject("context", mcp.Description("Optional hints for the opening question")),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		accountID, errResult := requireUUID(req, "account_id")
		if errResult != nil {
			return errResult, nil
		}
		question, err := req.RequireString("question")
		if err != nil || trimString(question) == "" {
			return NewErrorResult("invalid_parameters", "question is required"), nil
		}

		scoped, cleanup, err := acquire(ctx, deps)
		if err != nil {
			return nil, err
		}
		defer cleanup()

		conv, err := deps.InterviewService.Start(scoped, accountID, question, objectArg(req, "context"))
		if err != nil {
			return serviceError(err, "account_not_found")
		}
		deps.Conversations.Put(conv)

		deps.Logger.Debug("Interview started via MCP",
			zap.String("account_id", accountID.String()),
			zap.String("conversation_id", conv.ID))
		return jsonResult(conv)
	})
}

func registerContinueInterviewTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"continue_interview",
		mcp.WithDescription("Record the interviewee's reply and return the conversation with the next follow-up question."),
		mcp.WithString("account_id", mcp.Required(), mcp.Description("Account UUID")),
		mcp.WithString("conversation_id", mcp.Required(), mcp.Description("ID returned by start_interview")),
		mcp.WithString("user_message", mcp.Required(), mcp.Description("The interviewee's reply")),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		conv, errResult := storedConversation(req, deps)
		if errResult != nil {
			return errResult, nil
		}
		message, err := req.RequireString("user_message")
		if err != nil {
			return NewErrorResult("invalid_parameters", "user_message is required"), nil
		}

		scoped, cleanup, err := acquire(ctx, deps)
		if err != nil {
			return nil, err
		}
		defer cleanup()

		conv, err = deps.InterviewService.Continue(scoped, conv, message)
		if err != nil {
			return serviceError(err, "conversation_not_found")
		}
		deps.Conversations.Put(conv)
		return jsonResult(conv)
	})
}

func registerEndInterviewTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"end_interview",
		mcp.WithDescription(
			"End an interview: summarize it, extract structured data, and store it as one interaction in the account's history.",
		),
		mcp.WithString("account_id", mcp.Required(), mcp.Description("Account UUID")),
		mcp.WithString("conversation_id", mcp.Required(), mcp.Description("ID returned by start_interview")),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		conv, errResult := storedConversation(req, deps)
		if errResult != nil {
			return errResult, nil
		}

		scoped, cleanup, err := acquire(ctx, deps)
		if err != nil {
			return nil, err
		}
		defer cleanup()

		result, err := deps.InterviewService.End(scoped, conv)
		if err != nil {
			return serviceError(err, "conversation_not_found")
		}
		deps.Conversations.Delete(conv.ID)
		return jsonResult(result)
	})
}

// storedConversation loads the conversation named by the request and checks
// that it belongs to the requested account.
func storedConversation(req mcp.CallToolRequest, deps *ToolDeps) (*models.Conversation, *mcp.CallToolResult) {
	accountID, errResult := requireUUID(req, "account_id")
	if errResult != nil {
		return nil, errResult
	}
	id, err := req.RequireString("conversation_id")
	if err != nil {
		return nil, NewErrorResult("invalid_parameters", "conversation_id is required")
	}

	conv, ok := deps.Conversations.Get(trimString(id))
	if !ok || conv.AccountID != accountID {
		return nil, NewErrorResultWithDetails("conversation_not_found",
			"no active interview with that id; start a new one with start_interview",
			map[string]any{"conversation_id": id, "account_id": accountID})
	}
	return conv, nil
}

