package agent

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"researchcopilot/pkg/agent/llm"
	"researchcopilot/pkg/agent/middleware/metrics"
	"researchcopilot/pkg/config"
)

func ollamaConfig(baseURL string) config.Config {
	cfg := config.Default()
	cfg.LLM.BaseURL = baseURL
	cfg.Retry.InitialDelay = time.Millisecond
	cfg.Retry.MaxDelay = time.Millisecond
	return cfg
}

func TestCreateClient_OllamaChain(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/api/chat", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"mistral","message":{"role":"assistant","content":"FINAL: ok"},"done":true,"done_reason":"stop","prompt_eval_count":12,"eval_count":3}`))
	}))
	defer srv.Close()

	reg := prometheus.NewRegistry()
	recorder := metrics.NewPrometheusRecorder(reg)
	client, err := NewLLMClientFactory(ollamaConfig(srv.URL), recorder).CreateClient()
	require.NoError(t, err)
	assert.Equal(t, "mistral", client.GetModelName())

	resp, err := client.Complete(context.Background(), llm.NewCompletionRequest([]llm.CompletionMessage{
		llm.NewSystemMessage("directive"), llm.NewUserMessage("q"),
	}))
	require.NoError(t, err)
	assert.Equal(t, "FINAL: ok", resp.Content)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, testutil.CollectAndCount(reg, "llm_requests_total"))
}

func TestCreateClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"overloaded"}`))
	}))
	defer srv.Close()

	client, err := NewLLMClientFactory(ollamaConfig(srv.URL), nil).CreateClient()
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("q")}))
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCreateClient_Providers(t *testing.T) {
	for _, provider := range []string{config.ProviderOpenAI, config.ProviderAnthropic, config.ProviderGoogle} {
		cfg := config.Default()
		cfg.LLM.Provider = provider
		cfg.LLM.Model = "some-model"
		cfg.LLM.APIKey = "key"
		client, err := NewLLMClientFactory(cfg, nil).CreateClient()
		require.NoError(t, err, provider)
		assert.Equal(t, "some-model", client.GetModelName(), provider)
	}

	cfg := config.Default()
	cfg.LLM.Provider = "mystery"
	_, err := NewLLMClientFactory(cfg, nil).CreateClient()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported provider")
}
