// Package openaiofficial provides an OpenAI reasoning engine using the official OpenAI Go package.
package openaiofficial

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"researchcopilot/pkg/agent/llm"
	"researchcopilot/pkg/agent/llmerrors"
)

// DefaultModel is used when no model is configured for the openai provider.
const DefaultModel = "gpt-4o-mini"

// OfficialClient wraps the official OpenAI Go client to implement llm.LLMClient.
//
//nolint:govet // Simple struct, field alignment not critical
type OfficialClient struct {
	client openai.Client
	model  string
}

// NewOfficialClientWithModel creates an OpenAI client. baseURL may be empty.
// SDK retries are disabled; the retry middleware owns that concern.
func NewOfficialClientWithModel(apiKey, model, baseURL string) *OfficialClient {
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = DefaultModel
	}
	return &OfficialClient{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

// Complete implements the llm.LLMClient interface using the Responses API.
//
//nolint:gocritic // 80 bytes is reasonable for interface compliance
func (o *OfficialClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	instructions, inputText := flattenMessages(in.Messages)
	if inputText == "" {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, "no input messages")
	}

	params := responses.ResponseNewParams{
		Model:           o.model,
		MaxOutputTokens: openai.Int(int64(in.MaxTokens)),
		Temperature:     openai.Float(float64(in.Temperature)),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(inputText)},
	}
	if instructions != "" {
		params.Instructions = openai.String(instructions)
	}

	resp, err := o.client.Responses.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(llmerrors.Classify(err), err,
			fmt.Sprintf("OpenAI Responses API failed: %v", err))
	}
	if resp == nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "empty response from OpenAI Responses API")
	}

	stop := "end_turn"
	if resp.IncompleteDetails.Reason == "max_output_tokens" {
		stop = "max_tokens"
	}

	return llm.CompletionResponse{
		Content:          resp.OutputText(),
		StopReason:       stop,
		PromptTokens:     int(resp.Usage.InputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
	}, nil
}

// GetModelName returns the model name for this client.
func (o *OfficialClient) GetModelName() string {
	return o.model
}

// flattenMessages splits the system directive into instructions and renders the
// rest as labelled text, since the Responses input here is a single string.
func flattenMessages(messages []llm.CompletionMessage) (instructions, input string) {
	var system []string
	var sb strings.Builder
	for i := range messages {
		msg := &messages[i]
		switch msg.Role {
		case llm.RoleSystem:
			system = append(system, msg.Content)
		case llm.RoleUser:
			fmt.Fprintf(&sb, "User: %s\n\n", msg.Content)
		case llm.RoleAssistant:
			fmt.Fprintf(&sb, "Assistant: %s\n\n", msg.Content)
		case llm.RoleTool:
			fmt.Fprintf(&sb, "%s\n\n", llm.ToolMessageText(*msg))
		}
	}
	return strings.Join(system, "\n\n"), strings.TrimSpace(sb.String())
}
