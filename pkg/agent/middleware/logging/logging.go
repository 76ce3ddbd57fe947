// Package logging provides debug logging middleware for reasoning-engine clients.
package logging

import (
	"context"
	"time"

	"researchcopilot/pkg/agent/llm"
	"researchcopilot/pkg/agent/llmerrors"
	"researchcopilot/pkg/logx"
)

const promptPreviewChars = 2000

// Middleware logs every request and reply under the "llm" debug domain,
// and failures at error level.
func Middleware() llm.Middleware {
	logger := logx.NewLogger("llm-middleware")

	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				if logx.IsDebugEnabledForDomain("llm") {
					for i := range req.Messages {
						msg := &req.Messages[i]
						logx.Debug(ctx, "llm", "→ [%d] %s: %s", i, msg.Role, llmerrors.SanitizePrompt(msg.Content, promptPreviewChars))
					}
				}

				start := time.Now()
				resp, err := next.Complete(ctx, req)
				if err != nil {
					logger.WithSession(ctx).Error("❌ %s failed after %s: %v", next.GetModelName(), time.Since(start).Round(time.Millisecond), err)
					return resp, err //nolint:wrapcheck // pass-through
				}

				logx.Debug(ctx, "llm", "← %s (%s, stop=%s): %s", next.GetModelName(),
					time.Since(start).Round(time.Millisecond), resp.StopReason, llmerrors.SanitizePrompt(resp.Content, promptPreviewChars))
				return resp, nil
			},
			next.GetModelName,
		)
	}
}
