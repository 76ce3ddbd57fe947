// Package timeout bounds each reasoning-engine request with its own deadline.
package timeout

import (
	"context"
	"time"

	"researchcopilot/pkg/agent/llm"
)

// Middleware gives every Complete call a fresh timeout derived from the caller's context.
// A zero or negative duration disables the bound.
func Middleware(duration time.Duration) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		if duration <= 0 {
			return next
		}
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				timeoutCtx, cancel := context.WithTimeout(ctx, duration)
				defer cancel()
				return next.Complete(timeoutCtx, req)
			},
			next.GetModelName,
		)
	}
}
