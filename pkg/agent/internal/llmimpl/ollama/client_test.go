package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ollama/ollama/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"researchcopilot/pkg/agent/llm"
	"researchcopilot/pkg/agent/llmerrors"
)

func TestNewOllamaClientWithModel(t *testing.T) {
	tests := []struct {
		name     string
		hostURL  string
		wantHost string
	}{
		{name: "valid host", hostURL: "http://localhost:11434", wantHost: "http://localhost:11434"},
		{name: "custom host", hostURL: "http://192.168.1.100:11434", wantHost: "http://192.168.1.100:11434"},
		{name: "invalid URL falls back to default", hostURL: "not-a-valid-url", wantHost: DefaultHost},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewOllamaClientWithModel(tt.hostURL, "mistral", DefaultOptions())
			require.NotNil(t, client)
			assert.Equal(t, "mistral", client.GetModelName())
			assert.Equal(t, tt.wantHost, client.Host())
		})
	}
}

func TestConvertMessagesToOllama(t *testing.T) {
	_, err := convertMessagesToOllama(nil)
	assert.Error(t, err)

	msgs, err := convertMessagesToOllama([]llm.CompletionMessage{
		llm.NewSystemMessage("directive"),
		llm.NewUserMessage("question"),
		llm.NewAssistantMessage(`{"tool":"web_search","input":{"query":"q"}}`),
		llm.NewToolMessage("web_search", `{"results":[]}`),
	})
	require.NoError(t, err)
	require.Len(t, msgs, 4)

	assert.Equal(t, "system", msgs[0].Role)
	assert.Equal(t, "user", msgs[1].Role)
	assert.Equal(t, "assistant", msgs[2].Role)
	assert.Equal(t, "tool", msgs[3].Role)
	assert.Equal(t, "web_search", msgs[3].ToolName)
	assert.Empty(t, msgs[1].ToolName)
}

func TestGetStopReason(t *testing.T) {
	tests := []struct {
		resp api.ChatResponse
		want string
	}{
		{api.ChatResponse{Done: false}, "incomplete"},
		{api.ChatResponse{Done: true, DoneReason: "stop"}, "end_turn"},
		{api.ChatResponse{Done: true}, "end_turn"},
		{api.ChatResponse{Done: true, DoneReason: "length"}, "max_tokens"},
		{api.ChatResponse{Done: true, DoneReason: "load"}, "load"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, getStopReason(&tt.resp))
	}
}

func TestClassifyError(t *testing.T) {
	assert.NoError(t, classifyError(nil))

	tests := []struct {
		err  error
		want llmerrors.ErrorType
	}{
		{errors.New("dial tcp: connection refused"), llmerrors.ErrorTypeTransient},
		{errors.New(`model "mistral" not found, try pulling it first`), llmerrors.ErrorTypeBadPrompt},
		{errors.New("i/o timeout"), llmerrors.ErrorTypeTransient},
		{errors.New("something odd"), llmerrors.ErrorTypeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, llmerrors.TypeOf(classifyError(tt.err)))
		})
	}
}

func TestCompleteSendsOptionsAndReadsUsage(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"mistral","message":{"role":"assistant","content":"FINAL: Voyager 1"},"done":true,"done_reason":"stop","prompt_eval_count":42,"eval_count":7}`))
	}))
	defer server.Close()

	seed := 7
	opts := DefaultOptions()
	opts.Seed = &seed
	client := NewOllamaClientWithModel(server.URL, "mistral", opts)

	resp, err := client.Complete(context.Background(), llm.NewCompletionRequest([]llm.CompletionMessage{
		llm.NewUserMessage("farthest probe?"),
	}))
	require.NoError(t, err)

	assert.Equal(t, "FINAL: Voyager 1", resp.Content)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, 42, resp.PromptTokens)
	assert.Equal(t, 7, resp.CompletionTokens)

	assert.Equal(t, "mistral", captured["model"])
	assert.Equal(t, false, captured["stream"])
	options, ok := captured["options"].(map[string]any)
	require.True(t, ok)
	assert.InDelta(t, 4096, options["num_ctx"], 0)
	assert.InDelta(t, 512, options["num_predict"], 0)
	assert.InDelta(t, 0.2, options["temperature"], 0.0001)
	assert.InDelta(t, 0.9, options["top_p"], 0.0001)
	assert.InDelta(t, 40, options["top_k"], 0)
	assert.InDelta(t, 1.1, options["repeat_penalty"], 0.0001)
	assert.InDelta(t, 7, options["seed"], 0)
}

func TestCompleteWithoutSeedOmitsIt(t *testing.T) {
	client := NewOllamaClientWithModel(DefaultHost, "mistral", DefaultOptions())
	opts := client.requestOptions(llm.CompletionRequest{MaxTokens: 10})
	_, hasSeed := opts["seed"]
	assert.False(t, hasSeed)
}

func TestCompleteServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model 'nope' not found"}`))
	}))
	defer server.Close()

	client := NewOllamaClientWithModel(server.URL, "nope", DefaultOptions())
	_, err := client.Complete(context.Background(), llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("q")}))

	require.Error(t, err)
	assert.Equal(t, llmerrors.ErrorTypeBadPrompt, llmerrors.TypeOf(err))
}
