package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/mcpchat/mcpchat/internal/config"
	"github.com/mcpchat/mcpchat/internal/mcp"
)

// CompletionError wraps a Completion Service failure. It aborts the current
// Run call only; the session and the conversation so far stay usable.
type CompletionError struct {
	Err error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("completion failed: %v", e.Err)
}

func (e *CompletionError) Unwrap() error { return e.Err }

// ErrRoundLimit is returned when the model keeps emitting tool calls past
// the configured maximum number of rounds.
var ErrRoundLimit = errors.New("tool round limit exceeded")

// Completer is the Completion Service boundary: given a conversation and the
// available tool schemas, it returns either final text or tool calls.
type Completer interface {
	Complete(ctx context.Context, msgs []*schema.Message, tools []*schema.ToolInfo) (*schema.Message, error)
}

// Engine drives the conversation loop: request a completion, execute the
// tool calls it contains, feed the results back, repeat until the model
// answers in plain text.
type Engine struct {
	completer Completer
	registry  *mcp.Registry
	maxRounds int
	sysPrompt bool

	OnToolStart  func(name, args string)
	OnToolFinish func(name, result string, err error)
}

// NewEngine builds an engine over a completer and a session's tool registry.
func NewEngine(completer Completer, registry *mcp.Registry, cfg config.ChatConfig) *Engine {
	maxRounds := cfg.MaxRounds
	if maxRounds <= 0 {
		maxRounds = 20
	}
	return &Engine{
		completer: completer,
		registry:  registry,
		maxRounds: maxRounds,
		sysPrompt: cfg.SystemPrompt,
	}
}

// Run extends the conversation until the model produces a final answer.
// Tool calls within a round are dispatched in the order the model emitted
// them, and round N+1 never starts before round N's results are appended.
// The returned slice is always the conversation as extended so far, even
// when an error is returned.
func (e *Engine) Run(ctx context.Context, msgs []*schema.Message) ([]*schema.Message, error) {
	conversation := append([]*schema.Message(nil), msgs...)
	if e.sysPrompt && !hasSystemMessage(conversation) {
		sys := schema.SystemMessage(SystemPrompt(e.registry))
		conversation = append([]*schema.Message{sys}, conversation...)
	}

	tools := e.registry.ToolInfos()

	for round := 0; round < e.maxRounds; round++ {
		resp, err := e.completer.Complete(ctx, conversation, tools)
		if err != nil {
			return conversation, &CompletionError{Err: err}
		}

		if len(resp.ToolCalls) == 0 {
			conversation = append(conversation, schema.AssistantMessage(resp.Content, nil))
			return conversation, nil
		}

		conversation = append(conversation, resp)

		for _, tc := range resp.ToolCalls {
			outcome := e.execute(ctx, tc)
			conversation = append(conversation, &schema.Message{
				Role:       schema.Tool,
				Content:    outcome.Content,
				ToolCallID: tc.ID,
			})
		}
	}

	return conversation, fmt.Errorf("%w after %d rounds", ErrRoundLimit, e.maxRounds)
}

func (e *Engine) execute(ctx context.Context, tc schema.ToolCall) ToolOutcome {
	name := tc.Function.Name
	args := tc.Function.Arguments

	if e.OnToolStart != nil {
		e.OnToolStart(name, args)
	}

	start := time.Now()
	outcome := Dispatch(ctx, tc, e.registry)
	duration := time.Since(start)

	slog.Info("tool dispatched",
		"tool", name,
		"duration_ms", duration.Milliseconds(),
		"success", !outcome.IsError,
	)

	if e.OnToolFinish != nil {
		var err error
		if outcome.IsError {
			err = errors.New(outcome.Content)
		}
		e.OnToolFinish(name, outcome.Content, err)
	}
	return outcome
}

func hasSystemMessage(msgs []*schema.Message) bool {
	for _, msg := range msgs {
		if msg != nil && msg.Role == schema.System {
			return true
		}
	}
	return false
}
