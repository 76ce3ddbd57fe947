// Package mcpserver exposes the research capabilities as Model Context Protocol
// tools, so external agents can call the same adapters the control loop uses.
// Calls are routed through the capability dispatcher and keep its error shape.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"researchcopilot/pkg/logx"
	"researchcopilot/pkg/tools"
	"researchcopilot/pkg/version"
)

// ServerName is advertised during the MCP handshake.
const ServerName = "research-copilot"

// Dispatcher runs one capability request.
type Dispatcher interface {
	Dispatch(ctx context.Context, req tools.Request) tools.Result
}

// Server wraps an MCP server whose tools are the registered capabilities.
type Server struct {
	dispatcher Dispatcher
	mcpServer  *server.MCPServer
	logger     *logx.Logger
}

// NewServer registers one MCP tool per descriptor.
func NewServer(dispatcher Dispatcher, descriptors []tools.Descriptor) *Server {
	s := &Server{
		dispatcher: dispatcher,
		mcpServer:  server.NewMCPServer(ServerName, version.Version, server.WithToolCapabilities(false)),
		logger:     logx.NewLogger("mcp-server"),
	}
	for i := range descriptors {
		desc := &descriptors[i]
		tool := mcp.NewToolWithRawSchema(desc.Name, desc.Description, desc.RawInputSchema())
		s.mcpServer.AddTool(tool, s.handler(desc.Name))
	}
	s.logger.Info("Registered %d MCP tools", len(descriptors))
	return s
}

// ServeStdio serves JSON-RPC on stdin/stdout until the client disconnects.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) handler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return s.call(ctx, name, request.GetArguments()), nil
	}
}

// call dispatches one tool invocation. Failures are reported in-band as tool
// errors carrying the dispatcher's error payload.
func (s *Server) call(ctx context.Context, name string, args map[string]any) *mcp.CallToolResult {
	if args == nil {
		args = map[string]any{}
	}
	result := s.dispatcher.Dispatch(ctx, tools.Request{Name: name, Input: args})

	data, err := json.Marshal(tools.ErrorPayload(result))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode %s result: %v", name, err))
	}
	if !result.OK {
		s.logger.Warn("MCP call %s failed: %s", name, result.Error.Message)
		return mcp.NewToolResultError(string(data))
	}
	return mcp.NewToolResultText(string(data))
}
