package toolloop

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ToolNamesPlaceholder is replaced with the comma-separated capability names.
const ToolNamesPlaceholder = "{tool_names}"

// DefaultSystemPrompt is used when no prompt file is configured or present.
const DefaultSystemPrompt = `You are a research copilot.
You can call one tool at a time from this set: {tool_names}.

TO CALL A TOOL: reply with ONLY this JSON (no prose):
{ "tool": "<name>", "input": { ... } }

WHEN YOU ARE READY TO ANSWER:
FINAL:
<concise answer>

CITATIONS:
- <title or host> - <url or source>
`

// RenderSystemPrompt substitutes the capability names into template.
func RenderSystemPrompt(template string, names []string) string {
	return strings.ReplaceAll(template, ToolNamesPlaceholder, strings.Join(names, ", "))
}

// LoadSystemPrompt reads the directive template at path and renders it.
// An empty path or a missing file yields the rendered DefaultSystemPrompt.
func LoadSystemPrompt(path string, names []string) (string, error) {
	if path == "" {
		return RenderSystemPrompt(DefaultSystemPrompt, names), nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return RenderSystemPrompt(DefaultSystemPrompt, names), nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read prompt file %s: %w", path, err)
	}
	template := strings.TrimSpace(string(data))
	if template == "" {
		return RenderSystemPrompt(DefaultSystemPrompt, names), nil
	}
	return RenderSystemPrompt(template, names), nil
}
