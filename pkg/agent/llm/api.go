// Package llm defines the reasoning-engine contract used by the agent loop.
package llm

import (
	"context"
	"fmt"
)

// CompletionRole represents the role of a message in a conversation.
type CompletionRole string

const (
	// RoleSystem carries the fixed directive that precedes the transcript.
	RoleSystem CompletionRole = "system"
	// RoleUser indicates a message from the human user.
	RoleUser CompletionRole = "user"
	// RoleAssistant indicates a message produced by the reasoning engine.
	RoleAssistant CompletionRole = "assistant"
	// RoleTool carries a capability result or error back to the engine.
	RoleTool CompletionRole = "tool"
)

// TemperatureDefault keeps research answers focused while avoiding repetition loops.
const TemperatureDefault = 0.2

// DefaultMaxTokens bounds a single reasoning-engine reply.
const DefaultMaxTokens = 512

// CompletionMessage represents a message in a completion request.
type CompletionMessage struct {
	Role    CompletionRole
	Content string
	// Name is the capability that produced a RoleTool message.
	Name string
}

// CompletionRequest represents a request to generate a completion.
type CompletionRequest struct {
	Messages    []CompletionMessage
	MaxTokens   int
	Temperature float32
}

// CompletionResponse represents a response from a completion request.
type CompletionResponse struct {
	Content    string
	StopReason string
	// Token usage as reported by the provider, zero when unavailable.
	PromptTokens     int
	CompletionTokens int
}

// LLMClient is the single invoke-with-message-history interface the loop relies on.
type LLMClient interface { //nolint:revive // established name across providers
	// Complete sends the ordered messages and returns one text reply.
	Complete(ctx context.Context, in CompletionRequest) (CompletionResponse, error)

	// GetModelName returns the model name for this client.
	GetModelName() string
}

// NewCompletionRequest creates a completion request with default limits.
func NewCompletionRequest(messages []CompletionMessage) CompletionRequest {
	return CompletionRequest{
		Messages:    messages,
		MaxTokens:   DefaultMaxTokens,
		Temperature: TemperatureDefault,
	}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) CompletionMessage {
	return CompletionMessage{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) CompletionMessage {
	return CompletionMessage{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) CompletionMessage {
	return CompletionMessage{Role: RoleAssistant, Content: content}
}

// NewToolMessage creates a message carrying a capability outcome.
func NewToolMessage(name, content string) CompletionMessage {
	return CompletionMessage{Role: RoleTool, Name: name, Content: content}
}

// ToolMessageText renders a tool message for providers without a tool role.
func ToolMessageText(msg CompletionMessage) string {
	return fmt.Sprintf("[%s result]\n%s", msg.Name, msg.Content)
}

// LLMConfig is the provider-independent part of client configuration.
type LLMConfig struct { //nolint:revive // established name across providers
	Provider    string
	ModelName   string
	APIKey      string
	BaseURL     string
	MaxTokens   int
	Temperature float32
}

// Validate validates the LLM configuration.
func (c *LLMConfig) Validate() error {
	if c.ModelName == "" {
		return fmt.Errorf("model name cannot be empty")
	}
	if c.Provider != "ollama" && c.APIKey == "" {
		return fmt.Errorf("API key cannot be empty for provider %q", c.Provider)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max tokens must be positive")
	}
	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return fmt.Errorf("temperature must be between 0.0 and 2.0")
	}
	return nil
}
