package retry

import (
	"context"
	"errors"

	"researchcopilot/pkg/agent/llm"
	"researchcopilot/pkg/agent/llmerrors"
)

// Middleware retries reasoning-engine calls according to policy.
// Exhausted retries surface as llmerrors.ErrorTypeServiceUnavailable.
func Middleware(policy *Policy) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				resp, err := Do(ctx, policy, func(ctx context.Context, _ int) (llm.CompletionResponse, error) {
					return next.Complete(ctx, req)
				})
				var exhausted *ExhaustedError
				if errors.As(err, &exhausted) {
					return llm.CompletionResponse{}, llmerrors.NewServiceUnavailableError(exhausted.Err, exhausted.Attempts)
				}
				return resp, err
			},
			next.GetModelName,
		)
	}
}
