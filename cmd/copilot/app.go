package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"researchcopilot/pkg/agent"
	"researchcopilot/pkg/agent/middleware/metrics"
	"researchcopilot/pkg/agent/toolloop"
	"researchcopilot/pkg/cache"
	"researchcopilot/pkg/config"
	"researchcopilot/pkg/embed"
	"researchcopilot/pkg/logx"
	"researchcopilot/pkg/tools"
)

type asker interface {
	Ask(ctx context.Context, question string, maxSteps int) (*toolloop.Outcome, error)
}

// capabilities is the registry-backed half of the runtime. The mcp and tools
// commands need only this part.
type capabilities struct {
	provider   *tools.Provider
	dispatcher *tools.Dispatcher
	closers    []io.Closer
}

// app is the fully wired runtime: capabilities plus the reasoning engine and loop.
type app struct {
	*capabilities
	registry *prometheus.Registry
	recorder metrics.Recorder
	loop     *toolloop.ToolLoop
}

var logger = logx.NewLogger("copilot")

// newCapabilities wires the adapters' shared dependencies from cfg. The fetch
// cache and the embedder are optional; failures to set them up are logged and
// the affected capability degrades.
func newCapabilities(ctx context.Context, cfg *config.Config, recorder metrics.Recorder) *capabilities {
	c := &capabilities{}
	deps := tools.DepsFromConfig(cfg)
	deps.OpenIndex = tools.OpenKnowledgeIndex

	if cfg.Cache.RedisURL != "" {
		store, err := cache.New(ctx, cfg.Cache.RedisURL, cache.WithTTL(cfg.Cache.TTL))
		if err != nil {
			logger.Warn("⚠️ Fetch cache disabled: %v", err)
		} else {
			deps.Cache = store
			c.closers = append(c.closers, store)
		}
	}

	embedder, err := embed.New(cfg)
	if err != nil {
		logger.Warn("⚠️ rag_retrieve disabled: %v", err)
	} else {
		deps.Embedder = embedder
	}

	c.provider = tools.NewProvider(deps)
	c.dispatcher = tools.NewDispatcher(c.provider, recorder)
	return c
}

// Close releases the cache connection.
func (c *capabilities) Close() {
	for _, closer := range c.closers {
		if err := closer.Close(); err != nil {
			logger.Warn("close failed: %v", err)
		}
	}
}

// newApp builds the complete runtime for cfg.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	registry := prometheus.NewRegistry()
	recorder := metrics.NewPrometheusRecorder(registry)

	client, err := agent.NewLLMClientFactory(*cfg, recorder).CreateClient()
	if err != nil {
		return nil, fmt.Errorf("failed to create reasoning engine client: %w", err)
	}

	caps := newCapabilities(ctx, cfg, recorder)
	prompt, err := toolloop.LoadSystemPrompt(cfg.Agent.PromptFile, caps.dispatcher.Names())
	if err != nil {
		caps.Close()
		return nil, err
	}

	loop := toolloop.New(client, caps.dispatcher, logx.NewLogger("toolloop"),
		toolloop.WithSystemPrompt(prompt),
		toolloop.WithMetrics(recorder),
		toolloop.WithSampling(cfg.LLM.MaxTokens, cfg.LLM.Temperature),
	)
	return &app{
		capabilities: caps,
		registry:     registry,
		recorder:     recorder,
		loop:         loop,
	}, nil
}

// writeMetrics writes the text exposition of every collected metric to path.
// An empty path is a no-op.
func (a *app) writeMetrics(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create metrics file: %w", err)
	}
	defer f.Close()
	return writeExposition(f, a.registry)
}

func writeExposition(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("failed to encode metric %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
