package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-accounts/pkg/providers"
)

// RegisterFactTools registers the external fact tools.
func RegisterFactTools(s *server.MCPServer, deps *ToolDeps) {
	registerFetchExternalFactTool(s, deps)
	registerCollectExternalFactsTool(s, deps)
	registerGetExternalFactsTool(s, deps)
}

func registerFetchExternalFactTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"fetch_external_fact",
		mcp.WithDescription(
			"Fetch one kind of external information about an account through the provider chain "+
				"(web search, tool gateway, agent gateway, plain generation) and store it. "+
				"When every provider fails a placeholder is stored and exhausted is true.",
		),
		mcp.WithString("account_id", mcp.Required(), mcp.Description("Account UUID")),
		mcp.WithString(
			"info_type",
			mcp.Required(),
			mcp.Description("One of company_profile, news, market_info"),
			mcp.Enum("company_profile", "news", "market_info"),
		),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		accountID, errResult := requireUUID(req, "account_id")
		if errResult != nil {
			return errResult, nil
		}
		infoType := trimString(req.GetString("info_type", ""))
		tasks, ok := providers.TasksFor(infoType)
		if !ok || infoType == "" || infoType == "all" {
			return NewErrorResult("invalid_parameters",
				fmt.Sprintf("info_type %q must be one of company_profile, news, market_info", infoType)), nil
		}

		scoped, cleanup, err := acquire(ctx, deps)
		if err != nil {
			return nil, err
		}
		defer cleanup()

		outcome, err := deps.FactService.Fetch(scoped, accountID, tasks[0])
		if err != nil {
			return serviceError(err, "account_not_found")
		}
		return jsonResult(outcome)
	})
}

func registerCollectExternalFactsTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"collect_external_facts",
		mcp.WithDescription(
			"Collect external information about an account concurrently and store one fact per type. "+
				"info_type defaults to all.",
		),
		mcp.WithString("account_id", mcp.Required(), mcp.Description("Account UUID")),
		mcp.WithString(
			"info_type",
			mcp.Description("all (default), company_profile, news, or market_info"),
			mcp.Enum("all", "company_profile", "news", "market_info"),
		),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		accountID, errResult := requireUUID(req, "account_id")
		if errResult != nil {
			return errResult, nil
		}
		infoType := trimString(req.GetString("info_type", "all"))
		tasks, ok := providers.TasksFor(infoType)
		if !ok {
			return NewErrorResult("invalid_parameters", fmt.Sprintf("unknown info_type %q", infoType)), nil
		}

		scoped, cleanup, err := acquire(ctx, deps)
		if err != nil {
			return nil, err
		}
		defer cleanup()

		result, err := deps.FactService.Collect(scoped, accountID, tasks)
		if err != nil {
			return serviceError(err, "account_not_found")
		}

		deps.Logger.Debug("Collected external facts via MCP",
			zap.String("account_id", accountID.String()),
			zap.Int("exhausted", len(result.Exhausted)))
		return jsonResult(result)
	})
}

func registerGetExternalFactsTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"get_external_facts",
		mcp.WithDescription("Return every stored external fact for an account, keyed by fact type."),
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

		facts, err := deps.FactService.Facts(scoped, accountID)
		if err != nil {
			return serviceError(err, "account_not_found")
		}
		return jsonResult(struct {
			AccountID string `json:"account_id"`
			Facts     any    `json:"facts"`
			Count     int    `json:"count"`
		}{AccountID: accountID.String(), Facts: facts, Count: len(facts)})
	})
}
