package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"researchcopilot/pkg/config"
	"researchcopilot/pkg/logx"
	"researchcopilot/pkg/version"
)

// MCP session phase deadlines.
const (
	mcpInitializeTimeout = 4 * time.Second
	mcpListToolsTimeout  = 6 * time.Second
	mcpCallTimeout       = 10 * time.Second
)

// preferredSearchTools are tried in order before any tool whose name contains "search".
//
//nolint:gochecknoglobals // read-only lookup table
var preferredSearchTools = []string{"search", "tavily-search", "web_search"}

// MCPSearchProvider implements SearchProvider over a remote MCP server reached via SSE.
// Each search opens and closes its own session.
type MCPSearchProvider struct {
	url    string
	logger *logx.Logger
}

// NewMCPSearchProvider creates a provider for the SSE endpoint at url.
func NewMCPSearchProvider(url string) *MCPSearchProvider {
	return &MCPSearchProvider{url: url, logger: logx.NewLogger("web_search_mcp")}
}

// Name returns the provider name.
func (p *MCPSearchProvider) Name() string {
	return config.SearchBackendMCP
}

// Search runs one MCP session: initialize, list tools, call the search tool.
func (p *MCPSearchProvider) Search(ctx context.Context, q *SearchQuery) ([]SearchHit, string, error) {
	if p.url == "" {
		return nil, p.Name(), permanent("tavily_mcp", fmt.Errorf("%w: %s is not set", ErrNotConfigured, config.EnvTavilyMCPURL))
	}

	c, err := client.NewSSEMCPClient(p.url)
	if err != nil {
		return nil, p.Name(), permanent("tavily_mcp", fmt.Errorf("create client: %w", err))
	}
	defer func() { _ = c.Close() }()

	if err := c.Start(ctx); err != nil {
		return nil, p.Name(), transportError("tavily_mcp", fmt.Errorf("connect: %w", err))
	}

	// Servers that skip the handshake still answer tool calls.
	initCtx, cancelInit := context.WithTimeout(ctx, mcpInitializeTimeout)
	_, err = c.Initialize(initCtx, initializeRequest())
	cancelInit()
	if err != nil {
		p.logger.Debug("initialize ignored: %v", err)
	}

	listCtx, cancelList := context.WithTimeout(ctx, mcpListToolsTimeout)
	listed, err := c.ListTools(listCtx, mcp.ListToolsRequest{})
	cancelList()
	if err != nil {
		return nil, p.Name(), mcpPhaseError("list_tools", err)
	}

	names := make([]string, 0, len(listed.Tools))
	for i := range listed.Tools {
		names = append(names, listed.Tools[i].Name)
	}
	toolName, err := pickSearchTool(names)
	if err != nil {
		return nil, p.Name(), permanent("tavily_mcp", err)
	}

	callCtx, cancelCall := context.WithTimeout(ctx, mcpCallTimeout)
	defer cancelCall()
	result, err := c.CallTool(callCtx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: toolName, Arguments: mcpSearchArguments(q)},
	})
	if err != nil {
		return nil, p.Name(), mcpPhaseError("call_tool", err)
	}
	if result.IsError {
		return nil, p.Name(), permanent("tavily_mcp", fmt.Errorf("tool %s reported an error: %s", toolName, toolResultText(result)))
	}

	return hitsFromRecords(parseMCPToolResult(ctx, result)), p.Name(), nil
}

func initializeRequest() mcp.InitializeRequest {
	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: "research-copilot", Version: version.Version}
	return req
}

func mcpSearchArguments(q *SearchQuery) map[string]any {
	args := map[string]any{
		"query":       q.Query,
		"max_results": q.MaxResults,
	}
	if q.Days > 0 {
		args["days"] = q.Days
	}
	if len(q.IncludeDomains) > 0 {
		args["include_domains"] = q.IncludeDomains
	}
	if len(q.ExcludeDomains) > 0 {
		args["exclude_domains"] = q.ExcludeDomains
	}
	return args
}

// mcpPhaseError turns a session failure into a transient error, naming the phase on timeout.
func mcpPhaseError(phase string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("tavily MCP timed out during %s (check network/VPN/firewall): %w", phase, err)
	}
	return transportError("tavily_mcp", err)
}

// pickSearchTool chooses the search tool among the names an MCP server exposes.
func pickSearchTool(names []string) (string, error) {
	for _, want := range preferredSearchTools {
		for _, name := range names {
			if name == want {
				return name, nil
			}
		}
	}
	for _, name := range names {
		if strings.Contains(strings.ToLower(name), "search") {
			return name, nil
		}
	}
	return "", fmt.Errorf("no search-like tool exposed by MCP server; available: [%s]", strings.Join(names, ", "))
}

// parseMCPToolResult normalizes a tool result into {url,title,content,score} records.
// Structured content is tried first, then each text block is parsed as JSON; text that
// is not a known layout becomes a single record carrying the raw text.
func parseMCPToolResult(ctx context.Context, result *mcp.CallToolResult) []map[string]any {
	if result.StructuredContent != nil {
		if doc, err := roundTrip(result.StructuredContent); err == nil {
			if match, ok := searchShapes.match(ctx, "tavily_mcp", doc); ok {
				return match.Records
			}
		}
	}

	var out []map[string]any
	for _, content := range result.Content {
		text, ok := mcp.AsTextContent(content)
		if !ok || text.Text == "" {
			continue
		}
		var doc any
		if err := json.Unmarshal([]byte(text.Text), &doc); err == nil {
			if match, ok := searchShapes.match(ctx, "tavily_mcp", doc); ok {
				out = append(out, match.Records...)
				continue
			}
		}
		out = append(out, map[string]any{"url": "", "title": "", "content": text.Text, "score": 0.0})
	}
	return out
}

func toolResultText(result *mcp.CallToolResult) string {
	var parts []string
	for _, content := range result.Content {
		if text, ok := mcp.AsTextContent(content); ok {
			parts = append(parts, text.Text)
		}
	}
	return strings.Join(parts, " ")
}

func roundTrip(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return doc, nil
}
