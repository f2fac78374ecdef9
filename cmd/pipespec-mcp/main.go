// Package main provides the pipespec-mcp binary, an MCP stdio server
// that exposes the runner to AI agents.
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/pipelab/pipespec/pkg/ecosystem/mcp"
)

var version = "dev"

func main() {
	if err := server.ServeStdio(mcp.NewServer(version)); err != nil {
		fmt.Fprintf(os.Stderr, "pipespec-mcp: %v\n", err)
		os.Exit(1)
	}
}
