package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/pipelab/pipespec/pkg/backend"
	"github.com/pipelab/pipespec/pkg/backend/sim"
	"github.com/pipelab/pipespec/pkg/config"
	"github.com/pipelab/pipespec/pkg/harness"
	"github.com/pipelab/pipespec/pkg/phrase"
)

// HandleRun implements the pipespec_run MCP tool.
func HandleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	features, _ := args["features"].(string)
	if features == "" {
		return errorResult("features argument is required"), nil
	}

	engineName, _ := args["engine"].(string)
	engine, err := newEngine(engineName)
	if err != nil {
		return errorResult(err.Error()), nil
	}

	cfg := config.Default()
	cfg.Format = "progress" // compact output for agents
	if tags, _ := args["tags"].(string); tags != "" {
		cfg.Tags = tags
	}

	var out bytes.Buffer
	suite := harness.NewSuite(harness.SuiteOptions{
		Config: cfg,
		Engine: engine,
		Output: &out,
		Paths:  []string{features},
	})
	code := suite.Run()

	response := map[string]any{
		"passed":    code == 0,
		"exit_code": code,
		"engine":    engine.Name(),
	}
	if out.Len() > 0 {
		response["output"] = out.String()
	}

	data, _ := json.MarshalIndent(response, "", "  ")

	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(string(data))},
		IsError: code != 0,
	}, nil
}

// HandleVet implements the pipespec_vet MCP tool.
func HandleVet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	features, _ := args["features"].(string)
	if features == "" {
		return errorResult("features argument is required"), nil
	}

	problems, err := harness.VetPaths([]string{features})
	if err != nil {
		return errorResult(err.Error()), nil
	}
	if len(problems) == 0 {
		return textResult("✓ all steps belong to the vocabulary"), nil
	}

	lines := make([]string, 0, len(problems))
	for _, p := range problems {
		lines = append(lines, p.String())
	}
	return errorResult(strings.Join(lines, "\n")), nil
}

// HandleSteps implements the pipespec_steps MCP tool.
func HandleSteps(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return textResult(phrase.Markdown()), nil
}

// HandleSchema implements the pipespec_schema MCP tool.
func HandleSchema(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := config.GenerateJSONSchema()
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(string(data)), nil
}

// newEngine resolves an engine by name; sim is the only engine compiled
// in.
func newEngine(name string) (backend.Engine, error) {
	switch name {
	case "", "sim":
		return sim.New(), nil
	default:
		return nil, fmt.Errorf("unknown engine %q (available: sim)", name)
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(msg),
		},
		IsError: true,
	}
}
