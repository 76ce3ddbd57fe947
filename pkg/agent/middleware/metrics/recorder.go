// Package metrics records reasoning-engine and capability activity.
package metrics

import "time"

// Recorder defines the interface for recording agent metrics.
type Recorder interface {
	// ObserveRequest records a completed reasoning-engine request.
	ObserveRequest(model string, promptTokens, completionTokens int, success bool, errorType string, duration time.Duration)

	// ObserveCapability records one dispatch; outcome is "ok" or an error kind.
	ObserveCapability(name, outcome string, duration time.Duration)

	// ObserveRun records a finished interaction; reason is "final_answer", "step_budget" or "llm_error".
	ObserveRun(steps int, reason string)
}

// NoopRecorder implements Recorder with no-op behavior for when metrics are disabled.
type NoopRecorder struct{}

// Nop returns a no-op metrics recorder that discards all metrics.
func Nop() Recorder {
	return &NoopRecorder{}
}

// ObserveRequest does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveRequest(_ string, _, _ int, _ bool, _ string, _ time.Duration) {}

// ObserveCapability does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveCapability(_, _ string, _ time.Duration) {}

// ObserveRun does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveRun(_ int, _ string) {}
