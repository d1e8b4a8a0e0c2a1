package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ekaya-inc/ekaya-accounts/pkg/models"
)

// RegisterPlanTools registers the strategic plan tools.
func RegisterPlanTools(s *server.MCPServer, deps *ToolDeps) {
	registerGeneratePlanTool(s, deps)
	registerGetPlanTool(s, deps)
	registerUpdatePlanTool(s, deps)
	registerArchivePlansTool(s, deps)
}

func registerGeneratePlanTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"generate_plan",
		mcp.WithDescription(
			"Write a strategic customer plan from the account's profile, external facts, and interview history. "+
				"The plan is stored as a draft; a template is used if generation fails.",
		),
		mcp.WithString("account_id", mcp.Required(), mcp.Description("Account UUID")),
		mcp.WithString("title", mcp.Description("Plan title; defaults to '<company> Strategic Customer Plan'")),
		mcp.WithString("description", mcp.Description("Extra requirements for the plan")),
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

		scoped, cleanup, err := acquire(ctx, deps)
		if err != nil {
			return nil, err
		}
		defer cleanup()

		plan, err := deps.PlanService.Generate(scoped, accountID,
			trimString(req.GetString("title", "")), req.GetString("description", ""))
		if err != nil {
			return serviceError(err, "account_not_found")
		}
		return jsonResult(plan)
	})
}

func registerGetPlanTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"get_plan",
		mcp.WithDescription("Return a plan with its content and change log."),
		mcp.WithString("plan_id", mcp.Required(), mcp.Description("Plan UUID")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		planID, errResult := requireUUID(req, "plan_id")
		if errResult != nil {
			return errResult, nil
		}

		scoped, cleanup, err := acquire(ctx, deps)
		if err != nil {
			return nil, err
		}
		defer cleanup()

		plan, err := deps.PlanService.Get(scoped, planID)
		if err != nil {
			return serviceError(err, "plan_not_found")
		}
		return jsonResult(plan)
	})
}

func registerUpdatePlanTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"update_plan",
		mcp.WithDescription("Update a plan's title, content, or status. Every update is appended to the plan's change log."),
		mcp.WithString("plan_id", mcp.Required(), mcp.Description("Plan UUID")),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("content", mcp.Description("New Markdown content")),
		mcp.WithString("status", mcp.Description("New status"), mcp.Enum("draft", "completed", "archived")),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		planID, errResult := requireUUID(req, "plan_id")
		if errResult != nil {
			return errResult, nil
		}

		var update models.PlanUpdate
		args := req.GetArguments()
		if v, ok := args["title"].(string); ok {
			update.Title = &v
		}
		if v, ok := args["content"].(string); ok {
			update.Content = &v
		}
		if v, ok := args["status"].(string); ok {
			status := models.PlanStatus(v)
			update.Status = &status
		}
		if err := update.Validate(); err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}

		scoped, cleanup, err := acquire(ctx, deps)
		if err != nil {
			return nil, err
		}
		defer cleanup()

		plan, err := deps.PlanService.Update(scoped, planID, update)
		if err != nil {
			return serviceError(err, "plan_not_found")
		}
		return jsonResult(plan)
	})
}

func registerArchivePlansTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"archive_plans",
		mcp.WithDescription("Archive every plan of an account except the newest keep_latest (default 3). Plans are never deleted."),
		mcp.WithString("account_id", mcp.Required(), mcp.Description("Account UUID")),
		mcp.WithNumber("keep_latest", mcp.Description("How many of the newest plans to keep unarchived")),
		mcp.WithReadOnlyHintAnnotation(false),
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

		result, err := deps.PlanService.ArchiveOld(scoped, accountID, int(req.GetFloat("keep_latest", 0)))
		if err != nil {
			return serviceError(err, "account_not_found")
		}
		return jsonResult(result)
	})
}
