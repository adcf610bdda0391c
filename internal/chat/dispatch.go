package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/mcpchat/mcpchat/internal/mcp"
)

// ToolOutcome is the dispatch result fed back to the model as a tool message.
type ToolOutcome struct {
	Content string
	IsError bool
}

// Dispatch resolves a model-issued tool call against the registry and
// executes it on the owning connection. Every failure mode, including an
// unknown tool name, folds into an error-flagged outcome: one bad tool call
// must never abort the conversation loop.
func Dispatch(ctx context.Context, tc schema.ToolCall, registry *mcp.Registry) ToolOutcome {
	name := strings.TrimSpace(tc.Function.Name)
	if name == "" {
		return ToolOutcome{Content: "Error: tool call without a tool name", IsError: true}
	}

	desc, ok := registry.Lookup(name)
	if !ok {
		return ToolOutcome{
			Content: fmt.Sprintf("Error: tool %q is not available in this session", name),
			IsError: true,
		}
	}

	args, err := normalizeArgs(tc.Function.Arguments)
	if err != nil {
		return ToolOutcome{Content: "Error: " + err.Error(), IsError: true}
	}

	result, err := desc.Conn.Invoke(ctx, name, args)
	if err != nil {
		return ToolOutcome{Content: "Error: " + err.Error(), IsError: true}
	}

	content := strings.TrimSpace(result.Content)
	if content == "" {
		content = "(no output)"
	}
	return ToolOutcome{Content: content}
}

func normalizeArgs(raw string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return json.RawMessage(`{}`), nil
	}
	if !json.Valid([]byte(trimmed)) {
		return nil, fmt.Errorf("invalid tool arguments json: %s", trimmed)
	}
	return json.RawMessage(trimmed), nil
}
