package chat

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/cloudwego/eino/schema"
	"github.com/mcpchat/mcpchat/internal/history"
)

// Reply is one answered message: the assistant's final text and the number
// of tool calls dispatched on the way there.
type Reply struct {
	Text      string
	ToolCalls int
}

// Service answers user messages against persistent per-session history.
// It serializes runs: the engine issues one completion at a time and the
// underlying connections expect one outstanding request each.
type Service struct {
	engine *Engine
	store  *history.Store
	mu     sync.Mutex
}

// NewService wires an engine to a conversation store.
func NewService(engine *Engine, store *history.Store) *Service {
	return &Service{engine: engine, store: store}
}

// Send appends the user message to the session's history, runs the
// conversation loop and persists the outcome. History is saved even when the
// run fails partway so recovered tool results are not lost.
func (s *Service) Send(ctx context.Context, sessionID, message string) (Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.store.GetOrCreate(sessionID)
	conv.Append(string(schema.User), message, "")

	updated, runErr := s.engine.Run(ctx, conv.Schema())

	before := conv.Len()
	conv.Extend(updated)
	if err := s.store.Save(conv); err != nil {
		slog.Warn("failed to persist conversation", "session", sessionID, "error", err)
	}

	if runErr != nil {
		return Reply{}, runErr
	}

	reply := Reply{Text: lastAssistantText(updated)}
	for _, msg := range conv.Messages[before:] {
		if msg.Role == string(schema.Tool) {
			reply.ToolCalls++
		}
	}
	return reply, nil
}

func lastAssistantText(msgs []*schema.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i] != nil && msgs[i].Role == schema.Assistant {
			return strings.TrimSpace(msgs[i].Content)
		}
	}
	return ""
}
