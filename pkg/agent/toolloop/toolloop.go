// Package toolloop runs the research agent's control loop: ask the reasoning
// engine what to do next, execute the requested capability, repeat until the
// engine answers or the step budget runs out.
package toolloop

import (
	"context"
	"fmt"
	"time"

	"researchcopilot/pkg/agent/llm"
	"researchcopilot/pkg/agent/middleware/metrics"
	"researchcopilot/pkg/logx"
	"researchcopilot/pkg/tools"
	"researchcopilot/pkg/transcript"
)

// DefaultMaxSteps bounds capability executions per interaction.
const DefaultMaxSteps = 6

// Executor runs one capability request and appends exactly one outcome turn.
// *tools.Dispatcher implements it.
type Executor interface {
	Names() []string
	Execute(ctx context.Context, tr *transcript.Transcript, req tools.Request) tools.Result
}

// Decision is the routing result after a step.
type Decision int

const (
	// DecisionStop ends the run.
	DecisionStop Decision = iota
	// DecisionExecute runs the pending request.
	DecisionExecute
)

func (d Decision) String() string {
	if d == DecisionExecute {
		return "execute"
	}
	return "stop"
}

// LoopState is the state threaded through one run. Pending is non-nil only
// between a step that parsed a tool call and the execution of that call.
type LoopState struct {
	Transcript *transcript.Transcript
	StepCount  int
	MaxSteps   int
	Pending    *tools.Request
}

// NewState starts an interaction with the user's question.
func NewState(question string, maxSteps int) *LoopState {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	return &LoopState{Transcript: transcript.NewWithQuestion(question), MaxSteps: maxSteps}
}

// ToolLoop drives the reasoning engine against a capability executor.
// It holds no per-interaction state and may serve concurrent runs.
type ToolLoop struct {
	llmClient    llm.LLMClient
	executor     Executor
	logger       *logx.Logger
	metrics      metrics.Recorder
	systemPrompt string
	maxTokens    int
	temperature  float32
}

// Option configures a ToolLoop.
type Option func(*ToolLoop)

// WithSystemPrompt overrides the rendered default directive.
func WithSystemPrompt(prompt string) Option {
	return func(tl *ToolLoop) {
		if prompt != "" {
			tl.systemPrompt = prompt
		}
	}
}

// WithMetrics records run outcomes on recorder.
func WithMetrics(recorder metrics.Recorder) Option {
	return func(tl *ToolLoop) {
		if recorder != nil {
			tl.metrics = recorder
		}
	}
}

// WithSampling sets the per-request token limit and temperature.
func WithSampling(maxTokens int, temperature float32) Option {
	return func(tl *ToolLoop) {
		if maxTokens > 0 {
			tl.maxTokens = maxTokens
		}
		tl.temperature = temperature
	}
}

// New creates a ToolLoop. A nil logger uses the "toolloop" component.
func New(llmClient llm.LLMClient, executor Executor, logger *logx.Logger, opts ...Option) *ToolLoop {
	if logger == nil {
		logger = logx.NewLogger("toolloop")
	}
	tl := &ToolLoop{
		llmClient:   llmClient,
		executor:    executor,
		logger:      logger,
		metrics:     metrics.Nop(),
		maxTokens:   llm.DefaultMaxTokens,
		temperature: llm.TemperatureDefault,
	}
	var names []string
	if executor != nil {
		names = executor.Names()
	}
	tl.systemPrompt = RenderSystemPrompt(DefaultSystemPrompt, names)
	for _, opt := range opts {
		opt(tl)
	}
	return tl
}

// SystemPrompt returns the directive sent before the transcript.
func (tl *ToolLoop) SystemPrompt() string {
	return tl.systemPrompt
}

// Step asks the engine for the next action, appends the reply verbatim as an
// assistant turn and sets state.Pending from it. Engine failures are returned
// unchanged in the chain; malformed replies are not errors.
func (tl *ToolLoop) Step(ctx context.Context, state *LoopState) error {
	state.Pending = nil

	messages := make([]llm.CompletionMessage, 0, state.Transcript.Len()+1)
	messages = append(messages, llm.NewSystemMessage(tl.systemPrompt))
	messages = append(messages, state.Transcript.Messages()...)

	req := llm.NewCompletionRequest(messages)
	req.MaxTokens = tl.maxTokens
	req.Temperature = tl.temperature

	tl.logger.WithSession(ctx).Info("🔄 Starting LLM call to model '%s' with %d messages (step %d/%d)",
		tl.llmClient.GetModelName(), len(messages), state.StepCount+1, state.MaxSteps)

	start := time.Now()
	resp, err := tl.llmClient.Complete(ctx, req)
	if err != nil {
		tl.logger.WithSession(ctx).Error("❌ LLM call failed after %.3gs: %v", time.Since(start).Seconds(), err)
		return fmt.Errorf("LLM completion failed: %w", err)
	}

	state.Transcript.AppendAssistant(resp.Content)

	reply := ParseReply(resp.Content)
	switch reply.Kind {
	case ReplyToolCall:
		call := reply.Request
		state.Pending = &call
		logx.Debug(ctx, "toolloop", "reply is a call to %s", call.Name)
	case ReplyUnparseable:
		tl.logger.WithSession(ctx).Warn("⚠️ Reply looked like a tool call but was not (%s); treating it as the answer", reply.Reason)
	case ReplyFinalAnswer:
		logx.Debug(ctx, "toolloop", "reply is a final answer (%d chars)", len(reply.Text))
	}
	return nil
}

// Route decides what follows a step. The step budget is checked before the
// pending request, so a call proposed on the last allowed step is dropped.
func Route(state *LoopState) Decision {
	if state.StepCount >= state.MaxSteps {
		return DecisionStop
	}
	if state.Pending == nil {
		return DecisionStop
	}
	return DecisionExecute
}

// execute dispatches the pending request and clears it.
func (tl *ToolLoop) execute(ctx context.Context, state *LoopState) {
	req := *state.Pending
	state.Pending = nil
	req.CallID = transcript.NewCallID()

	start := time.Now()
	result := tl.executor.Execute(ctx, state.Transcript, req)
	state.StepCount++

	if result.OK {
		tl.logger.WithSession(ctx).Info("Tool %s completed in %.3fs", req.Name, time.Since(start).Seconds())
	} else {
		tl.logger.WithSession(ctx).Warn("Tool %s failed after %.3fs: %s: %s",
			req.Name, time.Since(start).Seconds(), result.Error.Kind, result.Error.Message)
	}
}

// Run alternates Step and execution until Route says stop. The step budget is
// the only liveness guard; callers bound wall-clock time through ctx.
// A reasoning-engine failure ends the run and is returned alongside an
// OutcomeLLMError outcome.
func (tl *ToolLoop) Run(ctx context.Context, state *LoopState) (*Outcome, error) {
	if state == nil || state.Transcript == nil || state.MaxSteps <= 0 {
		return nil, ErrInvalidState
	}
	if tl.executor == nil {
		return nil, ErrNoExecutor
	}
	ctx = logx.WithSessionID(ctx, state.Transcript.ID())

	for {
		if err := tl.Step(ctx, state); err != nil {
			return tl.finish(ctx, state, OutcomeLLMError, err), err
		}
		if Route(state) == DecisionStop {
			break
		}
		tl.execute(ctx, state)
	}

	kind := OutcomeFinalAnswer
	if state.Pending != nil {
		tl.logger.WithSession(ctx).Warn("⚠️ Step budget (%d) reached; dropping request for %s", state.MaxSteps, state.Pending.Name)
		kind = OutcomeStepBudget
	}
	return tl.finish(ctx, state, kind, nil), nil
}

// Ask runs a fresh interaction for question.
func (tl *ToolLoop) Ask(ctx context.Context, question string, maxSteps int) (*Outcome, error) {
	return tl.Run(ctx, NewState(question, maxSteps))
}

func (tl *ToolLoop) finish(ctx context.Context, state *LoopState, kind OutcomeKind, err error) *Outcome {
	tl.metrics.ObserveRun(state.StepCount, kind.Reason())

	out := &Outcome{Kind: kind, Steps: state.StepCount, Transcript: state.Transcript, Err: err}
	if turn, ok := state.Transcript.LastAssistant(); ok {
		out.Answer = turn.Content
	}
	tl.logger.WithSession(ctx).Info("✅ Run finished: %s after %d step(s), %s", kind, state.StepCount, state.Transcript.Summary())
	return out
}
