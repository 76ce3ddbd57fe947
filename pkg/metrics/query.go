// Package metrics reads back the copilot's own metrics from a Prometheus server
// that scrapes `copilot serve`.
package metrics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// TokenUsage is the token consumption of one model, or of all models.
type TokenUsage struct {
	Model            string `json:"model,omitempty"`
	PromptTokens     int64  `json:"prompt_tokens"`
	CompletionTokens int64  `json:"completion_tokens"`
	TotalTokens      int64  `json:"total_tokens"`
}

// CapabilityUsage counts dispatches of one capability by outcome ("ok" or an error kind).
type CapabilityUsage struct {
	Capability string           `json:"capability"`
	Outcomes   map[string]int64 `json:"outcomes"`
}

// UsageReport aggregates a time window of interactions.
type UsageReport struct {
	Window       time.Duration     `json:"window"`
	Runs         map[string]int64  `json:"runs"`
	Models       []TokenUsage      `json:"models"`
	Total        TokenUsage        `json:"total"`
	Capabilities []CapabilityUsage `json:"capabilities"`
}

// QueryService provides methods to query metrics from Prometheus.
type QueryService struct {
	queryAPI v1.API
}

// NewQueryService creates a new metrics query service.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}
	return &QueryService{queryAPI: v1.NewAPI(client)}, nil
}

// Usage builds the report for the window ending now.
func (q *QueryService) Usage(ctx context.Context, window time.Duration) (*UsageReport, error) {
	report := &UsageReport{Window: window, Runs: map[string]int64{}}
	rng := model.Duration(window).String()

	runs, err := q.vector(ctx, fmt.Sprintf(`sum by (reason) (increase(agent_runs_total[%s]))`, rng))
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	for _, s := range runs {
		report.Runs[string(s.Metric["reason"])] = int64(s.Value)
	}

	tokens, err := q.vector(ctx, fmt.Sprintf(`sum by (model, type) (increase(llm_tokens_total[%s]))`, rng))
	if err != nil {
		return nil, fmt.Errorf("failed to query tokens: %w", err)
	}
	byModel := map[string]*TokenUsage{}
	for _, s := range tokens {
		name := string(s.Metric["model"])
		usage, ok := byModel[name]
		if !ok {
			usage = &TokenUsage{Model: name}
			byModel[name] = usage
		}
		switch s.Metric["type"] {
		case "prompt":
			usage.PromptTokens += int64(s.Value)
		case "completion":
			usage.CompletionTokens += int64(s.Value)
		}
	}
	for _, usage := range byModel {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
		report.Models = append(report.Models, *usage)
		report.Total.PromptTokens += usage.PromptTokens
		report.Total.CompletionTokens += usage.CompletionTokens
	}
	report.Total.TotalTokens = report.Total.PromptTokens + report.Total.CompletionTokens
	sort.Slice(report.Models, func(i, j int) bool { return report.Models[i].Model < report.Models[j].Model })

	dispatches, err := q.vector(ctx, fmt.Sprintf(`sum by (capability, outcome) (increase(capability_dispatch_total[%s]))`, rng))
	if err != nil {
		return nil, fmt.Errorf("failed to query capability dispatches: %w", err)
	}
	byCapability := map[string]map[string]int64{}
	for _, s := range dispatches {
		name := string(s.Metric["capability"])
		if byCapability[name] == nil {
			byCapability[name] = map[string]int64{}
		}
		byCapability[name][string(s.Metric["outcome"])] += int64(s.Value)
	}
	for name, outcomes := range byCapability {
		report.Capabilities = append(report.Capabilities, CapabilityUsage{Capability: name, Outcomes: outcomes})
	}
	sort.Slice(report.Capabilities, func(i, j int) bool {
		return report.Capabilities[i].Capability < report.Capabilities[j].Capability
	})

	return report, nil
}

// vector runs an instant query and returns its samples. Non-vector results are empty.
func (q *QueryService) vector(ctx context.Context, query string) (model.Vector, error) {
	result, _, err := q.queryAPI.Query(ctx, query, time.Now())
	if err != nil {
		return nil, err
	}
	if vector, ok := result.(model.Vector); ok {
		return vector, nil
	}
	return nil, nil
}
