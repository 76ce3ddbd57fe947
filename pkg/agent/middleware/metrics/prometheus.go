package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder implements the Recorder interface using Prometheus metrics.
type PrometheusRecorder struct {
	requestsTotal      *prometheus.CounterVec
	tokensTotal        *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	capabilityTotal    *prometheus.CounterVec
	capabilityDuration *prometheus.HistogramVec
	runsTotal          *prometheus.CounterVec
	runSteps           prometheus.Histogram
}

// NewPrometheusRecorder registers the collectors with reg (prometheus.DefaultRegisterer when nil).
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusRecorder{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_requests_total",
				Help: "Total number of reasoning-engine requests by model and status",
			},
			[]string{"model", "status", "error_type"},
		),
		tokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_tokens_total",
				Help: "Total number of tokens used in reasoning-engine requests",
			},
			[]string{"model", "type"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llm_request_duration_seconds",
				Help:    "Duration of reasoning-engine requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model"},
		),
		capabilityTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capability_dispatch_total",
				Help: "Capability dispatches by name and outcome",
			},
			[]string{"capability", "outcome"},
		),
		capabilityDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "capability_dispatch_duration_seconds",
				Help:    "Duration of capability dispatches in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"capability"},
		),
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_runs_total",
				Help: "Finished interactions by termination reason",
			},
			[]string{"reason"},
		),
		runSteps: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "agent_run_steps",
				Help:    "Capability dispatches per interaction",
				Buckets: []float64{0, 1, 2, 3, 4, 5, 6, 8, 10, 15, 20},
			},
		),
	}
}

// ObserveRequest records metrics for a completed reasoning-engine request.
func (p *PrometheusRecorder) ObserveRequest(model string, promptTokens, completionTokens int, success bool, errorType string, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	p.requestsTotal.WithLabelValues(model, status, errorType).Inc()

	if success {
		p.tokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
		p.tokensTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}

	p.requestDuration.WithLabelValues(model).Observe(duration.Seconds())
}

// ObserveCapability records one capability dispatch.
func (p *PrometheusRecorder) ObserveCapability(name, outcome string, duration time.Duration) {
	p.capabilityTotal.WithLabelValues(name, outcome).Inc()
	p.capabilityDuration.WithLabelValues(name).Observe(duration.Seconds())
}

// ObserveRun records a finished interaction.
func (p *PrometheusRecorder) ObserveRun(steps int, reason string) {
	p.runsTotal.WithLabelValues(reason).Inc()
	p.runSteps.Observe(float64(steps))
}

