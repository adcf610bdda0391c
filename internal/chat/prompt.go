package chat

import (
	"fmt"
	"strings"

	"github.com/mcpchat/mcpchat/internal/mcp"
)

// SystemPrompt generates the assistant system message from the session's
// tool registry. It is prepended when the caller asks for it or when the
// conversation carries no system message of its own.
func SystemPrompt(registry *mcp.Registry) string {
	var b strings.Builder

	b.WriteString("You are a helpful assistant with access to external tools. ")
	b.WriteString("Use them when a task requires information or actions you cannot produce yourself.\n")

	descs := registry.Descriptors()
	if len(descs) > 0 {
		b.WriteString("\nAvailable tools:\n")
		for _, desc := range descs {
			line := desc.Name
			if desc.Description != "" {
				line = fmt.Sprintf("%s: %s", desc.Name, desc.Description)
			}
			b.WriteString("- " + line + "\n")
		}
	}

	b.WriteString(`
Guidelines:
- Break complex tasks into smaller steps and verify assumptions as you go.
- Start with simple tool calls and build on their results.
- When a tool call fails, read the error carefully and adjust your approach instead of repeating it.
- Explain your reasoning and share what you found; make reasonable assumptions when the request is ambiguous.`)

	return b.String()
}
