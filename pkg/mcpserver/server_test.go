package mcpserver

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"researchcopilot/pkg/tools"
)

type recordingDispatcher struct {
	requests []tools.Request
	result   tools.Result
}

func (d *recordingDispatcher) Dispatch(_ context.Context, req tools.Request) tools.Result {
	d.requests = append(d.requests, req)
	return d.result
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", res.Content[0])
	return text.Text
}

func TestCall_Success(t *testing.T) {
	d := &recordingDispatcher{result: tools.Result{OK: true, Payload: map[string]any{"results": []any{}}}}
	s := NewServer(d, nil)

	res := s.call(context.Background(), "web_search", map[string]any{"q": "apollo"})
	assert.False(t, res.IsError)
	assert.JSONEq(t, `{"results":[]}`, resultText(t, res))

	require.Len(t, d.requests, 1)
	assert.Equal(t, "web_search", d.requests[0].Name)
	assert.Equal(t, "apollo", d.requests[0].Input["q"])
}

func TestCall_FailureIsToolError(t *testing.T) {
	d := &recordingDispatcher{result: tools.Result{Error: &tools.ErrorInfo{
		Kind:    tools.KindInvalidInput,
		Message: "missing properties: [\"q\"]",
	}}}
	s := NewServer(d, nil)

	res := s.call(context.Background(), "web_search", nil)
	assert.True(t, res.IsError)

	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &payload))
	assert.Equal(t, "InvalidInput", payload["kind"])
	assert.Contains(t, payload["error"], "missing properties")

	require.Len(t, d.requests, 1)
	assert.NotNil(t, d.requests[0].Input)
}

func TestNewServer_ListsRegisteredCapabilities(t *testing.T) {
	provider := tools.NewProvider(&tools.Deps{})
	s := NewServer(&recordingDispatcher{}, provider.List())

	ctx := context.Background()
	s.MCPServer().HandleMessage(ctx, json.RawMessage(
		`{"jsonrpc":"2.0","id":0,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"test","version":"1"}}}`))
	msg := s.MCPServer().HandleMessage(ctx, json.RawMessage(
		`{"jsonrpc":"2.0","id":1,"method":"tools/list","params":{}}`))
	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var resp struct {
		Result struct {
			Tools []struct {
				Name        string         `json:"name"`
				InputSchema map[string]any `json:"inputSchema"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(data, &resp))

	names := map[string]bool{}
	for _, tool := range resp.Result.Tools {
		names[tool.Name] = true
		assert.Equal(t, "object", tool.InputSchema["type"], tool.Name)
	}
	for _, want := range provider.Names() {
		assert.True(t, names[want], "missing tool %s", want)
	}
}
