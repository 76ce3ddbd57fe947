package metrics

import (
	"context"
	"errors"
	"strings"
	"time"

	"researchcopilot/pkg/agent/llm"
	"researchcopilot/pkg/agent/llmerrors"
	"researchcopilot/pkg/logx"
	"researchcopilot/pkg/utils"
)

// UsageExtractor returns prompt and completion token counts for a finished request.
type UsageExtractor func(req llm.CompletionRequest, resp llm.CompletionResponse) (promptTokens, completionTokens int)

// DefaultUsageExtractor prefers provider-reported usage and counts with tiktoken otherwise.
func DefaultUsageExtractor(req llm.CompletionRequest, resp llm.CompletionResponse) (promptTokens, completionTokens int) {
	if resp.PromptTokens > 0 || resp.CompletionTokens > 0 {
		return resp.PromptTokens, resp.CompletionTokens
	}

	var prompt strings.Builder
	for i := range req.Messages {
		prompt.WriteString(req.Messages[i].Content)
		prompt.WriteByte('\n')
	}
	return utils.CountTokensSimple(prompt.String()), utils.CountTokensSimple(resp.Content)
}

// Middleware records latency, token usage and failures of reasoning-engine calls.
func Middleware(recorder Recorder, usageExtractor UsageExtractor, logger *logx.Logger) llm.Middleware {
	if usageExtractor == nil {
		usageExtractor = DefaultUsageExtractor
	}

	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				start := time.Now()
				model := next.GetModelName()

				resp, err := next.Complete(ctx, req)
				duration := time.Since(start)

				var promptTokens, completionTokens int
				if err == nil {
					promptTokens, completionTokens = usageExtractor(req, resp)
				}

				recorder.ObserveRequest(model, promptTokens, completionTokens, err == nil, getErrorType(err), duration)

				if logger != nil {
					status := "success"
					if err != nil {
						status = "error"
					}
					logger.WithSession(ctx).Info("🎯 LLM Request: model=%s tokens=%d+%d status=%s duration=%dms",
						model, promptTokens, completionTokens, status, duration.Milliseconds())
				}

				return resp, err //nolint:wrapcheck // pass-through
			},
			next.GetModelName,
		)
	}
}

// getErrorType labels errors for metrics.
func getErrorType(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return llmerrors.TypeOf(err).String()
	}
}
