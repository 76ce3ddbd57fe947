package transcript

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"researchcopilot/pkg/agent/llm"
)

func TestNewWithQuestion(t *testing.T) {
	tr := NewWithQuestion("What did Voyager 2 find at Neptune?")

	require.Equal(t, 1, tr.Len())
	first, ok := tr.Last()
	require.True(t, ok)
	assert.Equal(t, RoleUser, first.Role)
	assert.False(t, first.At.IsZero())

	_, err := uuid.Parse(tr.ID())
	assert.NoError(t, err)
}

func TestAppendRejectsInvalidTurns(t *testing.T) {
	tr := New()

	err := tr.Append(Turn{Role: "system", Content: "x"})
	assert.True(t, errors.Is(err, ErrInvalidTurn))

	err = tr.Append(Turn{Role: RoleCapabilityResult, Content: "{}"})
	assert.True(t, errors.Is(err, ErrInvalidTurn))

	assert.Equal(t, 0, tr.Len())
}

func TestTurnsReturnsCopy(t *testing.T) {
	tr := NewWithQuestion("q")
	turns := tr.Turns()
	turns[0].Content = "mutated"

	again := tr.Turns()
	assert.Equal(t, "q", again[0].Content)
}

func TestAppendOutcome(t *testing.T) {
	tr := NewWithQuestion("q")
	callID := NewCallID()

	require.NoError(t, tr.AppendOutcome("web_search", callID, map[string]any{"results": []any{}}, false))
	require.NoError(t, tr.AppendOutcome("web_fetch", "", map[string]string{"kind": "InvalidInput"}, true))

	turns := tr.Turns()
	require.Len(t, turns, 3)
	assert.Equal(t, RoleCapabilityResult, turns[1].Role)
	assert.Equal(t, "web_search", turns[1].Capability)
	assert.Equal(t, callID, turns[1].CallID)
	assert.JSONEq(t, `{"results":[]}`, turns[1].Content)
	assert.Equal(t, RoleCapabilityError, turns[2].Role)

	assert.Error(t, tr.AppendOutcome("web_search", "", func() {}, false), "unencodable payload")
	assert.Equal(t, 3, tr.Len())
}

func TestLastAssistant(t *testing.T) {
	tr := NewWithQuestion("q")
	_, ok := tr.LastAssistant()
	assert.False(t, ok)

	tr.AppendAssistant(`{"tool":"web_search","input":{"q":"x"}}`)
	require.NoError(t, tr.AppendOutcome("web_search", "", []string{}, false))
	tr.AppendAssistant("FINAL: answer")
	require.NoError(t, tr.AppendOutcome("web_search", "", []string{}, false))

	last, ok := tr.LastAssistant()
	require.True(t, ok)
	assert.Equal(t, "FINAL: answer", last.Content)
}

func TestMessages(t *testing.T) {
	tr := NewWithQuestion("q")
	tr.AppendAssistant("call")
	require.NoError(t, tr.AppendOutcome("ntrs_search", "id", map[string]int{"total": 0}, false))

	msgs := tr.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, llm.RoleUser, msgs[0].Role)
	assert.Equal(t, llm.RoleAssistant, msgs[1].Role)
	assert.Equal(t, llm.RoleTool, msgs[2].Role)
	assert.Equal(t, "ntrs_search", msgs[2].Name)
}

func TestSummaryAndTokens(t *testing.T) {
	assert.Equal(t, "Empty transcript", New().Summary())

	tr := NewWithQuestion("How far is Voyager 1 from Earth?")
	tr.AppendAssistant("FINAL: far")

	assert.Positive(t, tr.CountTokens())
	assert.Contains(t, tr.Summary(), "2 turns")
	assert.Contains(t, tr.Summary(), "assistant: 1, user: 1")
}

func TestTurnJSON(t *testing.T) {
	tr := NewWithQuestion("q")
	data, err := json.Marshal(tr.Turns())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"role":"user"`)
	assert.NotContains(t, string(data), "capability")
}
