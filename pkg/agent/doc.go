// Package agent builds the reasoning-engine client the research loop talks to.
//
// The package structure is:
//   - llm: the provider-independent client contract and middleware chaining
//   - llmerrors: typed reasoning-engine errors
//   - middleware/...: metrics, logging, retry, timeout and reply validation
//   - toolloop: the control loop alternating engine turns and capability calls
//
// Provider implementations are kept private under internal/llmimpl.
package agent
