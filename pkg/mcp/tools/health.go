package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// DatabasePinger reports database reachability.
type DatabasePinger interface {
	Ping(ctx context.Context) error
}

type healthResult struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Database string `json:"database"`
}

// RegisterHealthTool adds a health check tool reporting version and database state.
// db may be nil.
func RegisterHealthTool(s *server.MCPServer, version string, db DatabasePinger) {
	tool := mcp.NewTool(
		"health",
		mcp.WithDescription("Returns server health status, version, and database reachability"),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result := healthResult{Status: "ok", Version: version, Database: "unconfigured"}
		if db != nil {
			result.Database = "ok"
			if err := db.Ping(ctx); err != nil {
				result.Status = "degraded"
				result.Database = "unreachable"
			}
		}
		return jsonResult(result)
	})
}
