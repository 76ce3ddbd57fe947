package google

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/genai"

	"researchcopilot/pkg/agent/llm"
)

// TestNewGeminiClientWithModel tests client creation with custom model.
func TestNewGeminiClientWithModel(t *testing.T) {
	client := NewGeminiClientWithModel("test-api-key", "gemini-2.5-pro", "")
	if client == nil {
		t.Fatal("expected client, got nil")
	}

	var _ llm.LLMClient = client
	if got := client.GetModelName(); got != "gemini-2.5-pro" {
		t.Errorf("expected model %q, got %q", "gemini-2.5-pro", got)
	}
	if got := NewGeminiClientWithModel("k", "", "").GetModelName(); got != DefaultModel {
		t.Errorf("expected default model, got %q", got)
	}
}

// TestConvertMessagesToGemini tests message conversion logic.
func TestConvertMessagesToGemini(t *testing.T) {
	tests := []struct {
		name             string
		messages         []llm.CompletionMessage
		expectSystem     string
		expectContentLen int
		expectErr        bool
	}{
		{name: "empty messages", messages: nil, expectErr: true},
		{
			name:      "only system",
			messages:  []llm.CompletionMessage{{Role: llm.RoleSystem, Content: "x"}},
			expectErr: true,
		},
		{
			name: "system message extracted",
			messages: []llm.CompletionMessage{
				{Role: llm.RoleSystem, Content: "You are helpful"},
				{Role: llm.RoleUser, Content: "Hello"},
			},
			expectSystem:     "You are helpful",
			expectContentLen: 1,
		},
		{
			name: "tool outcome becomes user content",
			messages: []llm.CompletionMessage{
				{Role: llm.RoleUser, Content: "q"},
				{Role: llm.RoleAssistant, Content: "call"},
				{Role: llm.RoleTool, Name: "ntrs_search", Content: "[]"},
			},
			expectContentLen: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			contents, system, err := convertMessagesToGemini(tt.messages)
			if tt.expectErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if system != tt.expectSystem {
				t.Errorf("expected system %q, got %q", tt.expectSystem, system)
			}
			if len(contents) != tt.expectContentLen {
				t.Errorf("expected %d contents, got %d", tt.expectContentLen, len(contents))
			}
		})
	}
}

func TestConvertMessagesRoles(t *testing.T) {
	contents, _, err := convertMessagesToGemini([]llm.CompletionMessage{
		{Role: llm.RoleUser, Content: "q"},
		{Role: llm.RoleAssistant, Content: "call"},
		{Role: llm.RoleTool, Name: "ntrs_search", Content: "[]"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if contents[1].Role != genai.RoleModel {
		t.Errorf("assistant should map to model, got %q", contents[1].Role)
	}
	if contents[2].Role != genai.RoleUser || contents[2].Parts[0].Text != "[ntrs_search result]\n[]" {
		t.Errorf("unexpected tool content %+v", contents[2])
	}
}

func TestGetStopReason(t *testing.T) {
	tests := []struct {
		reason genai.FinishReason
		want   string
	}{
		{genai.FinishReasonStop, "end_turn"},
		{genai.FinishReasonMaxTokens, "max_tokens"},
		{genai.FinishReasonSafety, "safety"},
	}
	for _, tt := range tests {
		result := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{FinishReason: tt.reason}}}
		if got := getStopReason(result); got != tt.want {
			t.Errorf("%s: expected %q, got %q", tt.reason, tt.want, got)
		}
	}
	if got := getStopReason(&genai.GenerateContentResponse{}); got != "incomplete" {
		t.Errorf("expected incomplete, got %q", got)
	}
}

func TestCompleteAgainstGenerateContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "models/gemini-2.5-flash:generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"FINAL: Cassini"}]},"finishReason":"STOP"}],
			"usageMetadata":{"promptTokenCount":12,"candidatesTokenCount":3}}`))
	}))
	defer server.Close()

	client := NewGeminiClientWithModel("key", "", server.URL)
	resp, err := client.Complete(context.Background(), llm.NewCompletionRequest([]llm.CompletionMessage{
		llm.NewSystemMessage("directive"),
		llm.NewUserMessage("Saturn orbiter?"),
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "FINAL: Cassini" || resp.StopReason != "end_turn" {
		t.Errorf("unexpected response %+v", resp)
	}
	if resp.PromptTokens != 12 || resp.CompletionTokens != 3 {
		t.Errorf("unexpected usage %+v", resp)
	}
}
