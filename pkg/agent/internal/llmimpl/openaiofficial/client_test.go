package openaiofficial

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"researchcopilot/pkg/agent/llm"
	"researchcopilot/pkg/agent/llmerrors"
)

func TestNewOfficialClientWithModel(t *testing.T) {
	assert.Equal(t, "gpt-4.1", NewOfficialClientWithModel("sk-test", "gpt-4.1", "").GetModelName())
	assert.Equal(t, DefaultModel, NewOfficialClientWithModel("sk-test", "", "").GetModelName())
}

func TestFlattenMessages(t *testing.T) {
	instructions, input := flattenMessages([]llm.CompletionMessage{
		llm.NewSystemMessage("be brief"),
		llm.NewUserMessage("q"),
		llm.NewAssistantMessage(`{"tool":"web_search","input":{}}`),
		llm.NewToolMessage("web_search", "[]"),
	})

	assert.Equal(t, "be brief", instructions)
	assert.Equal(t, "User: q\n\nAssistant: {\"tool\":\"web_search\",\"input\":{}}\n\n[web_search result]\n[]", input)
}

func TestCompleteAgainstResponsesAPI(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/responses", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "resp_1", "object": "response", "created_at": 1, "model": "gpt-4o-mini", "status": "completed",
			"output": [{"type": "message", "id": "msg_1", "role": "assistant", "status": "completed",
				"content": [{"type": "output_text", "text": "FINAL: 42", "annotations": []}]}],
			"usage": {"input_tokens": 11, "output_tokens": 3, "total_tokens": 14}
		}`))
	}))
	defer server.Close()

	client := NewOfficialClientWithModel("sk-test", "gpt-4o-mini", server.URL)
	resp, err := client.Complete(context.Background(), llm.NewCompletionRequest([]llm.CompletionMessage{
		llm.NewSystemMessage("directive"),
		llm.NewUserMessage("answer?"),
	}))
	require.NoError(t, err)

	assert.Equal(t, "FINAL: 42", resp.Content)
	assert.Equal(t, 11, resp.PromptTokens)
	assert.Equal(t, 3, resp.CompletionTokens)
	assert.Equal(t, "directive", captured["instructions"])
	assert.Equal(t, "User: answer?", captured["input"])
	assert.Equal(t, "gpt-4o-mini", captured["model"])
}

func TestCompleteClassifiesAuthFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"message": "Incorrect API key provided", "type": "invalid_request_error"}}`))
	}))
	defer server.Close()

	client := NewOfficialClientWithModel("bad", "gpt-4o-mini", server.URL)
	_, err := client.Complete(context.Background(), llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("q")}))

	require.Error(t, err)
	assert.Equal(t, llmerrors.ErrorTypeAuth, llmerrors.TypeOf(err))
}

func TestCompleteRejectsEmptyInput(t *testing.T) {
	client := NewOfficialClientWithModel("sk-test", "", "http://127.0.0.1:0")
	_, err := client.Complete(context.Background(), llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewSystemMessage("only")}))
	assert.Equal(t, llmerrors.ErrorTypeBadPrompt, llmerrors.TypeOf(err))
}
