// Package validation provides reply validation middleware for reasoning-engine clients.
package validation

import (
	"context"
	"strings"

	"researchcopilot/pkg/agent/llm"
	"researchcopilot/pkg/logx"
)

// GuidanceMessage is appended when the engine returns a blank reply.
const GuidanceMessage = "Your previous reply was empty. Reply with a single JSON tool call or a FINAL: answer."

// EmptyResponseValidator re-asks the engine once when a reply is blank.
type EmptyResponseValidator struct {
	logger *logx.Logger
}

// NewEmptyResponseValidator creates a validator.
func NewEmptyResponseValidator() *EmptyResponseValidator {
	return &EmptyResponseValidator{logger: logx.NewLogger("empty-response-validator")}
}

// Middleware retries a blank reply once with a guidance message appended.
// A second blank reply is returned as-is; the loop treats it as a final answer.
func (v *EmptyResponseValidator) Middleware() llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				resp, err := next.Complete(ctx, req)
				if err != nil || strings.TrimSpace(resp.Content) != "" {
					return resp, err //nolint:wrapcheck // pass-through
				}

				v.logger.WithSession(ctx).Warn("⚠️ Empty reply from %s, retrying once with guidance", next.GetModelName())

				retryReq := req
				retryReq.Messages = append(append([]llm.CompletionMessage(nil), req.Messages...), llm.NewUserMessage(GuidanceMessage))
				return next.Complete(ctx, retryReq)
			},
			next.GetModelName,
		)
	}
}
