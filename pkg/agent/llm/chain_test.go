package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLLMClient struct {
	completeFunc func(context.Context, CompletionRequest) (CompletionResponse, error)
}

func (m *mockLLMClient) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	return m.completeFunc(ctx, req)
}

func (m *mockLLMClient) GetModelName() string { return "mock-model" }

func suffix(tag string) Middleware {
	return func(next LLMClient) LLMClient {
		return WrapClient(
			func(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
				resp, err := next.Complete(ctx, req)
				if err != nil {
					return resp, err
				}
				resp.Content += ":" + tag
				return resp, nil
			},
			next.GetModelName,
		)
	}
}

func TestChainOrder(t *testing.T) {
	base := &mockLLMClient{completeFunc: func(_ context.Context, _ CompletionRequest) (CompletionResponse, error) {
		return CompletionResponse{Content: "base"}, nil
	}}

	// Innermost middleware appends first.
	client := Chain(base, suffix("outer"), suffix("inner"))
	resp, err := client.Complete(context.Background(), NewCompletionRequest([]CompletionMessage{NewUserMessage("q")}))

	require.NoError(t, err)
	assert.Equal(t, "base:inner:outer", resp.Content)
	assert.Equal(t, "mock-model", client.GetModelName())
}

func TestChainNoMiddleware(t *testing.T) {
	base := &mockLLMClient{completeFunc: func(_ context.Context, _ CompletionRequest) (CompletionResponse, error) {
		return CompletionResponse{}, errors.New("down")
	}}

	client := Chain(base)
	_, err := client.Complete(context.Background(), CompletionRequest{})
	assert.EqualError(t, err, "down")
}

func TestNewCompletionRequestDefaults(t *testing.T) {
	req := NewCompletionRequest([]CompletionMessage{NewSystemMessage("sys"), NewToolMessage("web_search", "{}")})

	assert.Equal(t, DefaultMaxTokens, req.MaxTokens)
	assert.InDelta(t, TemperatureDefault, req.Temperature, 0.0001)
	assert.Equal(t, RoleTool, req.Messages[1].Role)
	assert.Equal(t, "[web_search result]\n{}", ToolMessageText(req.Messages[1]))
}

func TestLLMConfigValidate(t *testing.T) {
	cfg := LLMConfig{Provider: "ollama", ModelName: "mistral", MaxTokens: 512, Temperature: 0.2}
	assert.NoError(t, cfg.Validate())

	cfg.Provider = "openai"
	assert.Error(t, cfg.Validate(), "hosted providers need a key")

	cfg.APIKey = "sk-test"
	cfg.Temperature = 3
	assert.Error(t, cfg.Validate())
}
