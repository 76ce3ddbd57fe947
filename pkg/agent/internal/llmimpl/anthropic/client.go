// Package anthropic provides the Anthropic Claude reasoning engine.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"researchcopilot/pkg/agent/llm"
	"researchcopilot/pkg/agent/llmerrors"
)

// DefaultModel is used when no model is configured for the anthropic provider.
const DefaultModel = "claude-sonnet-4-5"

// ClaudeClient wraps the Anthropic API client to implement llm.LLMClient.
//
//nolint:govet // Simple client struct, logical grouping preferred
type ClaudeClient struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewClaudeClientWithModel creates a Claude client. baseURL may be empty.
// SDK retries are disabled; the retry middleware owns that concern.
func NewClaudeClientWithModel(apiKey, model, baseURL string) *ClaudeClient {
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = DefaultModel
	}
	return &ClaudeClient{
		client: anthropic.NewClient(opts...),
		model:  anthropic.Model(model),
	}
}

// ensureAlternation prepares messages for Anthropic API requirements.
//  1. Extracts system messages to the top-level system parameter
//  2. Renders capability outcomes as user text
//  3. Merges consecutive non-assistant messages into single user messages
//  4. Validates strict user/assistant alternation ending with a user message
func ensureAlternation(messages []llm.CompletionMessage) (systemPrompt string, alternating []llm.CompletionMessage, err error) {
	if len(messages) == 0 {
		return "", nil, fmt.Errorf("message list cannot be empty")
	}

	var systemParts []string
	var pending []string
	flush := func() {
		if len(pending) > 0 {
			alternating = append(alternating, llm.NewUserMessage(strings.Join(pending, "\n\n")))
			pending = nil
		}
	}

	for i := range messages {
		msg := &messages[i]
		switch msg.Role {
		case llm.RoleSystem:
			systemParts = append(systemParts, msg.Content)
		case llm.RoleAssistant:
			flush()
			alternating = append(alternating, *msg)
		case llm.RoleTool:
			pending = append(pending, llm.ToolMessageText(*msg))
		default:
			pending = append(pending, msg.Content)
		}
	}
	flush()

	if len(alternating) == 0 {
		return "", nil, fmt.Errorf("must have at least one non-system message")
	}
	for i := range alternating {
		if i == 0 && alternating[i].Role != llm.RoleUser {
			return "", nil, fmt.Errorf("first message must be user role, got: %s", alternating[i].Role)
		}
		if i > 0 && alternating[i].Role == alternating[i-1].Role {
			return "", nil, fmt.Errorf("alternation violation at index %d: consecutive %s messages", i, alternating[i].Role)
		}
	}
	if last := alternating[len(alternating)-1]; last.Role != llm.RoleUser {
		return "", nil, fmt.Errorf("last message must be user role, got: %s", last.Role)
	}

	return strings.Join(systemParts, "\n\n"), alternating, nil
}

// Complete implements the llm.LLMClient interface.
//
//nolint:gocritic // CompletionRequest passed by value to match interface
func (c *ClaudeClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	systemPrompt, alternating, err := ensureAlternation(in.Messages)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, fmt.Sprintf("message alternation error: %v", err))
	}

	messages := make([]anthropic.MessageParam, 0, len(alternating))
	for i := range alternating {
		msg := &alternating[i]
		block := anthropic.NewTextBlock(msg.Content)
		if msg.Role == llm.RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}

	params := anthropic.MessageNewParams{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   int64(in.MaxTokens),
		Temperature: anthropic.Float(float64(in.Temperature)),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}
	if resp == nil || len(resp.Content) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "received empty or nil response from Claude API")
	}

	var text strings.Builder
	for i := range resp.Content {
		if block := &resp.Content[i]; block.Type == "text" {
			text.WriteString(block.AsText().Text)
		}
	}

	return llm.CompletionResponse{
		Content:          text.String(),
		StopReason:       string(resp.StopReason),
		PromptTokens:     int(resp.Usage.InputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
	}, nil
}

// GetModelName returns the model name for this client.
func (c *ClaudeClient) GetModelName() string {
	return string(c.model)
}

// classifyError maps Anthropic SDK errors to our structured error types.
func classifyError(err error) *llmerrors.Error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		code := apiErr.StatusCode
		switch {
		case code == 401 || code == 403:
			return llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeAuth, code, "authentication failed - check API key")
		case code == 429:
			return llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeRateLimit, code, "rate limit exceeded")
		case code == 400 || code == 404:
			return llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeBadPrompt, code, "bad request - check model and parameters")
		case code >= 500:
			return llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeTransient, code, "server error")
		}
	}
	return llmerrors.NewErrorWithCause(llmerrors.Classify(err), err, fmt.Sprintf("Claude API error: %v", err))
}
