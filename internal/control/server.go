// Package control exposes a running application over the Model Context
// Protocol, so agents can inspect and drive its services.
package control

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"sight/pkg/logging"
)

const serverName = "sight"

// NewServer creates an MCP server offering the tools of a.
func NewServer(a Application, version string) *server.MCPServer {
	s := server.NewMCPServer(
		serverName,
		version,
		server.WithToolCapabilities(true),
	)

	tools := NewTools(a)
	var serverTools []server.ServerTool
	for _, tool := range tools.GetTools() {
		serverTools = append(serverTools, serverTool(tool, tools))
	}
	s.AddTools(serverTools...)
	return s
}

func serverTool(tool mcp.Tool, tools *Tools) server.ServerTool {
	return server.ServerTool{
		Tool: tool,
		Handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			logging.Debug("Control", "Calling tool %s", tool.Name)
			result, err := tools.Handle(ctx, tool.Name, req)
			if err != nil {
				logging.Error("Control", err, "Tool %s failed", tool.Name)
				return mcp.NewToolResultError(err.Error()), nil
			}
			return result, nil
		},
	}
}

// ServeStdio serves s on stdin and stdout until the input closes.
func ServeStdio(s *server.MCPServer) error {
	logging.Info("Control", "Serving MCP tools on stdio")
	return server.ServeStdio(s)
}
