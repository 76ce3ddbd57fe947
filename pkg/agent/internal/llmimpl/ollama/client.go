// Package ollama provides the Ollama reasoning engine, the default local backend.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"researchcopilot/pkg/agent/llm"
	"researchcopilot/pkg/agent/llmerrors"
)

// DefaultHost is used when the configured host cannot be parsed.
const DefaultHost = "http://localhost:11434"

// Options are the sampling settings sent with every chat request.
type Options struct {
	NumCtx        int
	TopP          float64
	TopK          int
	RepeatPenalty float64
	// Seed is applied only when non-nil.
	Seed *int
}

// DefaultOptions returns the sampling settings used for research answers.
func DefaultOptions() Options {
	return Options{
		NumCtx:        4096,
		TopP:          0.9,
		TopK:          40,
		RepeatPenalty: 1.1,
	}
}

// Client wraps the Ollama API client to implement llm.LLMClient.
type Client struct {
	client  *api.Client
	model   string
	hostURL string
	options Options
}

// NewOllamaClientWithModel creates an Ollama client for the given host and model.
func NewOllamaClientWithModel(hostURL, model string, opts Options) *Client {
	parsedURL, err := url.Parse(hostURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		parsedURL, _ = url.Parse(DefaultHost)
	}

	return &Client{
		client:  api.NewClient(parsedURL, http.DefaultClient),
		model:   model,
		hostURL: parsedURL.String(),
		options: opts,
	}
}

// Complete implements the llm.LLMClient interface.
//
//nolint:gocritic // CompletionRequest size acceptable for interface consistency
func (o *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	messages, err := convertMessagesToOllama(in.Messages)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, fmt.Sprintf("message conversion error: %v", err))
	}

	stream := false
	req := &api.ChatRequest{
		Model:    o.model,
		Messages: messages,
		Stream:   &stream,
		Options:  o.requestOptions(in),
	}

	var response api.ChatResponse
	err = o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		response = resp
		return nil
	})
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}

	return llm.CompletionResponse{
		Content:          response.Message.Content,
		StopReason:       getStopReason(&response),
		PromptTokens:     response.PromptEvalCount,
		CompletionTokens: response.EvalCount,
	}, nil
}

// GetModelName returns the model name for this client.
func (o *Client) GetModelName() string {
	return o.model
}

// Host returns the normalized server URL.
func (o *Client) Host() string {
	return o.hostURL
}

//nolint:gocritic // CompletionRequest size acceptable
func (o *Client) requestOptions(in llm.CompletionRequest) map[string]any {
	opts := map[string]any{
		"temperature":    in.Temperature,
		"num_predict":    in.MaxTokens,
		"num_ctx":        o.options.NumCtx,
		"top_p":          o.options.TopP,
		"top_k":          o.options.TopK,
		"repeat_penalty": o.options.RepeatPenalty,
	}
	if o.options.Seed != nil {
		opts["seed"] = *o.options.Seed
	}
	return opts
}

// convertMessagesToOllama converts our message format to Ollama's.
// Capability outcomes use Ollama's native "tool" role.
func convertMessagesToOllama(messages []llm.CompletionMessage) ([]api.Message, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("message list cannot be empty")
	}

	result := make([]api.Message, 0, len(messages))
	for i := range messages {
		msg := &messages[i]
		ollamaMsg := api.Message{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
		if msg.Role == llm.RoleTool {
			ollamaMsg.ToolName = msg.Name
		}
		result = append(result, ollamaMsg)
	}
	return result, nil
}

// getStopReason converts Ollama's done_reason to our stop reason format.
func getStopReason(resp *api.ChatResponse) string {
	if !resp.Done {
		return "incomplete"
	}

	switch resp.DoneReason {
	case "stop", "":
		return "end_turn"
	case "length":
		return "max_tokens"
	default:
		return resp.DoneReason
	}
}

// classifyError converts Ollama errors to our error types.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "connection refused"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, fmt.Sprintf("Ollama server not reachable: %v", err))
	case strings.Contains(errStr, "model") && strings.Contains(errStr, "not found"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, fmt.Sprintf("Ollama model not found: %v", err))
	case strings.Contains(errStr, "context canceled"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeUnknown, err, fmt.Sprintf("request canceled: %v", err))
	case strings.Contains(errStr, "timeout"), strings.Contains(errStr, "deadline exceeded"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, fmt.Sprintf("request timeout: %v", err))
	default:
		return llmerrors.NewErrorWithCause(llmerrors.Classify(err), err, fmt.Sprintf("Ollama API error: %v", err))
	}
}
