// Package transcript holds the append-only conversation record of one interaction.
package transcript

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"researchcopilot/pkg/agent/llm"
	"researchcopilot/pkg/utils"
)

// Role identifies who produced a turn.
type Role string

const (
	// RoleUser is the human question.
	RoleUser Role = "user"
	// RoleAssistant is a reasoning-engine reply, verbatim.
	RoleAssistant Role = "assistant"
	// RoleCapabilityResult carries a successful capability payload.
	RoleCapabilityResult Role = "capability-result"
	// RoleCapabilityError carries a structured capability failure.
	RoleCapabilityError Role = "capability-error"
)

// ErrInvalidTurn is returned when a turn violates the role rules.
var ErrInvalidTurn = errors.New("invalid turn")

// Turn is one immutable entry of the transcript.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	// Capability is set on capability-result and capability-error turns.
	Capability string    `json:"capability,omitempty"`
	CallID     string    `json:"call_id,omitempty"`
	At         time.Time `json:"at"`
}

// Transcript is the ordered turn sequence. Safe for concurrent readers;
// the control loop is its only writer.
type Transcript struct {
	mu    sync.RWMutex
	id    string
	turns []Turn
}

// New creates an empty transcript with a fresh session id.
func New() *Transcript {
	return &Transcript{id: uuid.NewString()}
}

// NewWithQuestion creates a transcript whose first turn is the user question.
func NewWithQuestion(question string) *Transcript {
	t := New()
	t.AppendUser(question)
	return t
}

// NewCallID returns an identifier correlating a capability request with its outcome.
func NewCallID() string {
	return uuid.NewString()
}

// ID returns the session id of this interaction.
func (t *Transcript) ID() string {
	return t.id
}

// Append validates and appends a turn. A zero timestamp is filled in.
func (t *Transcript) Append(turn Turn) error {
	switch turn.Role {
	case RoleUser, RoleAssistant:
	case RoleCapabilityResult, RoleCapabilityError:
		if turn.Capability == "" {
			return fmt.Errorf("%w: %s turn without capability name", ErrInvalidTurn, turn.Role)
		}
	default:
		return fmt.Errorf("%w: unknown role %q", ErrInvalidTurn, turn.Role)
	}
	if turn.At.IsZero() {
		turn.At = time.Now().UTC()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.turns = append(t.turns, turn)
	return nil
}

// AppendUser appends a user turn.
func (t *Transcript) AppendUser(content string) {
	_ = t.Append(Turn{Role: RoleUser, Content: content})
}

// AppendAssistant appends a reasoning-engine reply verbatim.
func (t *Transcript) AppendAssistant(content string) {
	_ = t.Append(Turn{Role: RoleAssistant, Content: content})
}

// AppendOutcome appends a capability outcome, JSON-encoding payload.
// isError selects the capability-error role.
func (t *Transcript) AppendOutcome(capability, callID string, payload any, isError bool) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s outcome: %w", capability, err)
	}
	role := RoleCapabilityResult
	if isError {
		role = RoleCapabilityError
	}
	return t.Append(Turn{Role: role, Content: string(data), Capability: capability, CallID: callID})
}

// Turns returns a copy of all turns in conversation order.
func (t *Transcript) Turns() []Turn {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Turn, len(t.turns))
	copy(out, t.turns)
	return out
}

// Len returns the number of turns.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.turns)
}

// Last returns the most recent turn.
func (t *Transcript) Last() (Turn, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.turns) == 0 {
		return Turn{}, false
	}
	return t.turns[len(t.turns)-1], true
}

// LastAssistant returns the most recent assistant turn, which is the answer of a finished run.
func (t *Transcript) LastAssistant() (Turn, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for i := len(t.turns) - 1; i >= 0; i-- {
		if t.turns[i].Role == RoleAssistant {
			return t.turns[i], true
		}
	}
	return Turn{}, false
}

// Messages renders the transcript as reasoning-engine messages.
// Capability outcomes use the tool role named after the capability.
func (t *Transcript) Messages() []llm.CompletionMessage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]llm.CompletionMessage, 0, len(t.turns))
	for i := range t.turns {
		turn := &t.turns[i]
		switch turn.Role {
		case RoleUser:
			out = append(out, llm.NewUserMessage(turn.Content))
		case RoleAssistant:
			out = append(out, llm.NewAssistantMessage(turn.Content))
		case RoleCapabilityResult, RoleCapabilityError:
			out = append(out, llm.NewToolMessage(turn.Capability, turn.Content))
		}
	}
	return out
}

// CountTokens estimates the token footprint of the transcript.
func (t *Transcript) CountTokens() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	total := 0
	for i := range t.turns {
		total += utils.CountTokensSimple(t.turns[i].Content)
	}
	return total
}

// Summary returns a brief description of the transcript state.
func (t *Transcript) Summary() string {
	turns := t.Turns()
	if len(turns) == 0 {
		return "Empty transcript"
	}

	counts := make(map[Role]int)
	for i := range turns {
		counts[turns[i].Role]++
	}
	parts := make([]string, 0, len(counts))
	for role, n := range counts {
		parts = append(parts, fmt.Sprintf("%s: %d", role, n))
	}
	sort.Strings(parts)

	return fmt.Sprintf("%d turns (%d tokens) - %s", len(turns), t.CountTokens(), strings.Join(parts, ", "))
}
