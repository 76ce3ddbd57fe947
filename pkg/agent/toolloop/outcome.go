package toolloop

import (
	"fmt"

	"researchcopilot/pkg/transcript"
)

// OutcomeKind categorizes how a run ended.
type OutcomeKind int

const (
	// OutcomeFinalAnswer indicates the engine stopped requesting capabilities.
	// This includes replies that could not be parsed as a tool call.
	OutcomeFinalAnswer OutcomeKind = iota

	// OutcomeStepBudget indicates the step budget was exhausted while the engine
	// still wanted a capability. The pending request was dropped.
	OutcomeStepBudget

	// OutcomeLLMError indicates the reasoning engine failed. Err holds the cause.
	OutcomeLLMError
)

// String returns human-readable name for OutcomeKind.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeFinalAnswer:
		return "FinalAnswer"
	case OutcomeStepBudget:
		return "StepBudget"
	case OutcomeLLMError:
		return "LLMError"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", k)
	}
}

// Reason returns the metrics label for the outcome.
func (k OutcomeKind) Reason() string {
	switch k {
	case OutcomeFinalAnswer:
		return "final_answer"
	case OutcomeStepBudget:
		return "step_budget"
	case OutcomeLLMError:
		return "llm_error"
	default:
		return "unknown"
	}
}

// Outcome is the result of one run.
//
//nolint:govet // Field order optimized for readability over memory alignment
type Outcome struct {
	Kind OutcomeKind

	// Answer is the content of the last assistant turn, empty if there is none.
	Answer string

	// Steps is the number of capability executions performed.
	Steps int

	// Transcript is the full conversation, including the failed step for OutcomeLLMError.
	Transcript *transcript.Transcript

	// Err is non-nil only for OutcomeLLMError.
	Err error
}
