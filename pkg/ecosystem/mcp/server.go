package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewServer builds the MCP server and registers the pipespec tool set.
func NewServer(version string) *server.MCPServer {
	s := server.NewMCPServer(
		"pipespec",
		version,
		server.WithToolCapabilities(true),
	)

	s.AddTool(
		mcp.NewTool("pipespec_run",
			mcp.WithDescription("Run feature scenarios against a pipeline engine and report the verdict"),
			mcp.WithString("features", mcp.Required(), mcp.Description("Feature file or directory to run")),
			mcp.WithString("engine", mcp.Description("Pipeline engine (defaults to sim)")),
			mcp.WithString("tags", mcp.Description("Scenario tag filter expression")),
		),
		HandleRun,
	)

	s.AddTool(
		mcp.NewTool("pipespec_vet",
			mcp.WithDescription("Check feature steps against the vocabulary without running them"),
			mcp.WithString("features", mcp.Required(), mcp.Description("Feature file or directory to vet")),
		),
		HandleVet,
	)

	s.AddTool(
		mcp.NewTool("pipespec_steps",
			mcp.WithDescription("List the step vocabulary as markdown"),
		),
		HandleSteps,
	)

	s.AddTool(
		mcp.NewTool("pipespec_schema",
			mcp.WithDescription("Export the configuration JSON Schema"),
		),
		HandleSchema,
	)

	return s
}
