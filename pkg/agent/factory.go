package agent

import (
	"fmt"

	"researchcopilot/pkg/agent/internal/llmimpl/anthropic"
	"researchcopilot/pkg/agent/internal/llmimpl/google"
	"researchcopilot/pkg/agent/internal/llmimpl/ollama"
	"researchcopilot/pkg/agent/internal/llmimpl/openaiofficial"
	"researchcopilot/pkg/agent/llm"
	"researchcopilot/pkg/agent/middleware/logging"
	"researchcopilot/pkg/agent/middleware/metrics"
	"researchcopilot/pkg/agent/middleware/resilience/retry"
	"researchcopilot/pkg/agent/middleware/resilience/timeout"
	"researchcopilot/pkg/agent/middleware/validation"
	"researchcopilot/pkg/config"
	"researchcopilot/pkg/logx"
)

// LLMClientFactory creates reasoning-engine clients with properly configured middleware chains.
type LLMClientFactory struct {
	config          config.Config
	metricsRecorder metrics.Recorder
	logger          *logx.Logger
}

// NewLLMClientFactory creates a factory. A nil recorder disables metrics.
func NewLLMClientFactory(cfg config.Config, recorder metrics.Recorder) *LLMClientFactory {
	if recorder == nil {
		recorder = metrics.Nop()
	}
	return &LLMClientFactory{
		config:          cfg,
		metricsRecorder: recorder,
		logger:          logx.NewLogger("llm-factory"),
	}
}

// CreateClient creates the configured client with the full middleware chain.
func (f *LLMClientFactory) CreateClient() (llm.LLMClient, error) {
	rawClient, err := f.createRawClient()
	if err != nil {
		return nil, err
	}

	retryPolicy := retry.NewPolicy(retry.Config{
		MaxAttempts:   f.config.Retry.MaxAttempts,
		InitialDelay:  f.config.Retry.InitialDelay,
		MaxDelay:      f.config.Retry.MaxDelay,
		BackoffFactor: f.config.Retry.BackoffFactor,
		Jitter:        true,
	}, nil) // Use default classifier

	// Metrics -> Logging -> Retry -> EmptyResponse -> Timeout -> RawClient
	client := llm.Chain(rawClient,
		metrics.Middleware(f.metricsRecorder, nil, f.logger),
		logging.Middleware(),
		retry.Middleware(retryPolicy),
		validation.NewEmptyResponseValidator().Middleware(),
		timeout.Middleware(f.config.Agent.RequestTimeout),
	)

	f.logger.Info("🤖 Using %s model %s", f.config.LLM.Provider, client.GetModelName())
	return client, nil
}

// createRawClient builds the provider client without middleware.
func (f *LLMClientFactory) createRawClient() (llm.LLMClient, error) {
	c := f.config.LLM
	switch c.Provider {
	case config.ProviderOllama, "":
		return ollama.NewOllamaClientWithModel(c.BaseURL, c.Model, ollama.Options{
			NumCtx:        c.NumCtx,
			TopP:          c.TopP,
			TopK:          c.TopK,
			RepeatPenalty: c.RepeatPenalty,
			Seed:          c.Seed,
		}), nil
	case config.ProviderOpenAI:
		return openaiofficial.NewOfficialClientWithModel(c.APIKey, c.Model, c.BaseURL), nil
	case config.ProviderAnthropic:
		return anthropic.NewClaudeClientWithModel(c.APIKey, c.Model, c.BaseURL), nil
	case config.ProviderGoogle:
		return google.NewGeminiClientWithModel(c.APIKey, c.Model, c.BaseURL), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", c.Provider)
	}
}
