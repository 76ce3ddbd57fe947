package toolloop

import (
	"bytes"
	"encoding/json"
	"strings"

	"researchcopilot/pkg/tools"
)

// ReplyKind tags how a reasoning-engine reply was interpreted.
type ReplyKind int

const (
	// ReplyFinalAnswer is free text ending the interaction.
	ReplyFinalAnswer ReplyKind = iota
	// ReplyToolCall is a well-formed {"tool": ..., "input": {...}} object.
	ReplyToolCall
	// ReplyUnparseable looked like a tool call but was not one. It ends the
	// interaction exactly like a final answer.
	ReplyUnparseable
)

// String returns a human-readable name for ReplyKind.
func (k ReplyKind) String() string {
	switch k {
	case ReplyFinalAnswer:
		return "FinalAnswer"
	case ReplyToolCall:
		return "ToolCall"
	case ReplyUnparseable:
		return "Unparseable"
	default:
		return "ReplyKind(?)"
	}
}

// Reply is the parsed form of one reasoning-engine reply.
type Reply struct {
	Kind ReplyKind
	// Request is set only for ReplyToolCall.
	Request tools.Request
	// Text is the trimmed reply.
	Text string
	// Reason explains a ReplyUnparseable classification.
	Reason string
}

// ParseReply classifies reply text. A reply is a tool call only when it is a
// single JSON object with exactly the keys "tool" (a string) and "input" (an
// object). Parsing never fails.
func ParseReply(text string) Reply {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") {
		return Reply{Kind: ReplyFinalAnswer, Text: trimmed}
	}
	unparseable := func(reason string) Reply {
		return Reply{Kind: ReplyUnparseable, Text: trimmed, Reason: reason}
	}

	dec := json.NewDecoder(strings.NewReader(trimmed))
	var fields map[string]json.RawMessage
	if err := dec.Decode(&fields); err != nil {
		return unparseable("malformed JSON: " + err.Error())
	}
	if rest := strings.TrimSpace(trimmed[dec.InputOffset():]); rest != "" {
		return unparseable("trailing content after JSON object")
	}
	if len(fields) != 2 {
		return unparseable("expected exactly the keys tool and input")
	}
	rawTool, okTool := fields["tool"]
	rawInput, okInput := fields["input"]
	if !okTool || !okInput {
		return unparseable("expected exactly the keys tool and input")
	}

	var name string
	if err := json.Unmarshal(rawTool, &name); err != nil {
		return unparseable("tool must be a string")
	}
	if !bytes.HasPrefix(bytes.TrimSpace(rawInput), []byte("{")) {
		return unparseable("input must be an object")
	}
	input, err := decodeObject(rawInput)
	if err != nil {
		return unparseable("input must be an object")
	}

	return Reply{
		Kind:    ReplyToolCall,
		Request: tools.Request{Name: name, Input: input},
		Text:    trimmed,
	}
}

// decodeObject decodes a JSON object keeping numbers as float64, the same
// representation schema validation sees for HTTP and MCP inputs.
func decodeObject(raw json.RawMessage) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err //nolint:wrapcheck // classified by caller
	}
	return obj, nil
}
