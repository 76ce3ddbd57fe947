package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"researchcopilot/pkg/agent/middleware/metrics"
	"researchcopilot/pkg/agent/middleware/resilience/retry"
	"researchcopilot/pkg/logx"
	"researchcopilot/pkg/transcript"
)

// unnamedCapability labels the outcome turn of a request with a blank name.
const unnamedCapability = "unknown"

// Dispatcher executes capability requests against a provider. It never retries;
// adapters own their retry budget.
type Dispatcher struct {
	provider *Provider
	metrics  metrics.Recorder
	logger   *logx.Logger
}

// NewDispatcher creates a dispatcher. A nil recorder disables metrics.
func NewDispatcher(provider *Provider, recorder metrics.Recorder) *Dispatcher {
	if recorder == nil {
		recorder = metrics.Nop()
	}
	return &Dispatcher{
		provider: provider,
		metrics:  recorder,
		logger:   logx.NewLogger("dispatcher"),
	}
}

// Names returns the capability names the dispatcher can execute.
func (d *Dispatcher) Names() []string {
	return d.provider.Names()
}

// Dispatch runs one request and converts every failure into a structured result.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Result {
	start := time.Now()
	result := d.dispatch(ctx, req)

	outcome := "ok"
	if !result.OK {
		outcome = string(result.Error.Kind)
	}
	d.metrics.ObserveCapability(req.Name, outcome, time.Since(start))
	return result
}

func (d *Dispatcher) dispatch(ctx context.Context, req Request) Result {
	desc, ok := d.provider.Descriptor(req.Name)
	if !ok {
		return failure(KindUnknownCapability, fmt.Sprintf("Unknown tool: %s", req.Name), "")
	}

	input, err := desc.ValidateInput(req.Input)
	if err != nil {
		return failure(KindInvalidInput, err.Error(), "")
	}

	capability, err := d.provider.Get(req.Name)
	if err != nil {
		return failure(KindCapabilityFailure, err.Error(), CausePermanentUpstream)
	}

	payload, err := capability.Invoke(ctx, input)
	if err != nil {
		d.logger.Warn("capability %s failed: %v", req.Name, err)
		return failure(KindCapabilityFailure, err.Error(), classifyCause(err))
	}
	return Result{OK: true, Payload: payload}
}

// Execute dispatches req and appends exactly one outcome turn to tr.
func (d *Dispatcher) Execute(ctx context.Context, tr *transcript.Transcript, req Request) Result {
	if req.CallID == "" {
		req.CallID = transcript.NewCallID()
	}
	logx.Debug(ctx, "dispatch", "executing %s (call %s)", req.Name, req.CallID)

	result := d.Dispatch(ctx, req)
	label := req.Name
	if strings.TrimSpace(label) == "" {
		label = unnamedCapability
	}
	if err := tr.AppendOutcome(label, req.CallID, ErrorPayload(result), !result.OK); err != nil {
		// The payload could not be encoded; record the encoding failure instead so
		// the turn count stays at one per dispatch.
		result = failure(KindCapabilityFailure, err.Error(), CausePermanentUpstream)
		if err := tr.AppendOutcome(label, req.CallID, ErrorPayload(result), true); err != nil {
			d.logger.Error("failed to record outcome of %s: %v", label, err)
		}
	}
	return result
}

// ErrorPayload returns the transcript payload for a result: the capability output
// on success, or an {"error", "kind", "cause"} object on failure.
func ErrorPayload(r Result) any {
	if r.OK {
		return r.Payload
	}
	payload := map[string]string{
		"error": r.Error.Message,
		"kind":  string(r.Error.Kind),
	}
	if r.Error.Cause != "" {
		payload["cause"] = r.Error.Cause
	}
	return payload
}

func failure(kind ErrorKind, message, cause string) Result {
	return Result{Error: &ErrorInfo{Kind: kind, Message: message, Cause: cause}}
}

// classifyCause preserves whether an adapter gave up on a transient or a permanent failure.
func classifyCause(err error) string {
	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		return CauseTransientUpstream
	}
	var upstream *UpstreamError
	if errors.As(err, &upstream) && upstream.Kind == UpstreamTransient {
		return CauseTransientUpstream
	}
	return CausePermanentUpstream
}
