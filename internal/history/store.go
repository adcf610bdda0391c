package history

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"
)

// Message is the persisted shape of one conversation entry.
type Message struct {
	Role       string            `json:"role"`
	Content    string            `json:"content"`
	ToolCallID string            `json:"tool_call_id,omitempty"`
	ToolCalls  []schema.ToolCall `json:"tool_calls,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// Conversation is one session's message history.
type Conversation struct {
	Key      string
	Messages []*Message
	mu       sync.RWMutex
}

// Append adds one message.
func (c *Conversation) Append(role, content, toolCallID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Messages = append(c.Messages, &Message{
		Role:       role,
		Content:    content,
		ToolCallID: toolCallID,
		Timestamp:  time.Now(),
	})
}

// Schema converts the history into engine messages.
func (c *Conversation) Schema() []*schema.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*schema.Message, 0, len(c.Messages))
	for _, msg := range c.Messages {
		out = append(out, &schema.Message{
			Role:       schema.RoleType(msg.Role),
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
			ToolCalls:  msg.ToolCalls,
		})
	}
	return out
}

// Extend appends the tail of an engine conversation that is not yet stored.
// A system message the engine injected at position zero is skipped rather
// than persisted, so the prompt is rebuilt from the live tool registry on
// every run.
func (c *Conversation) Extend(msgs []*schema.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	offset := 0
	if len(msgs) > len(c.Messages) &&
		msgs[0] != nil && msgs[0].Role == schema.System &&
		(len(c.Messages) == 0 || c.Messages[0].Role != string(schema.System)) {
		offset = 1
	}

	for i := len(c.Messages) + offset; i < len(msgs); i++ {
		msg := msgs[i]
		if msg == nil {
			continue
		}
		c.Messages = append(c.Messages, &Message{
			Role:       string(msg.Role),
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
			ToolCalls:  msg.ToolCalls,
			Timestamp:  time.Now(),
		})
	}
}

// Len returns the stored message count.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.Messages)
}

// Store keeps conversations in memory and persists them as JSONL files.
type Store struct {
	dir           string
	conversations map[string]*Conversation
	mu            sync.RWMutex
}

// NewStore creates a store rooted at baseDir.
func NewStore(baseDir string) *Store {
	dir := filepath.Join(baseDir, "conversations")
	os.MkdirAll(dir, 0755)
	return &Store{
		dir:           dir,
		conversations: make(map[string]*Conversation),
	}
}

// GetOrCreate returns the conversation for a session key, loading it from
// disk the first time.
func (s *Store) GetOrCreate(key string) *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conv, ok := s.conversations[key]; ok {
		return conv
	}

	conv := &Conversation{Key: key}
	s.loadFromDisk(conv)
	s.conversations[key] = conv
	return conv
}

// Save persists a conversation to disk.
func (s *Store) Save(conv *Conversation) error {
	conv.mu.RLock()
	defer conv.mu.RUnlock()

	if len(conv.Messages) == 0 {
		return nil
	}

	path := s.conversationPath(conv.Key)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, msg := range conv.Messages {
		if err := enc.Encode(msg); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) loadFromDisk(conv *Conversation) {
	path := s.conversationPath(conv.Key)
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var msg Message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err == nil {
			conv.Messages = append(conv.Messages, &msg)
		}
	}
}

func (s *Store) conversationPath(key string) string {
	safeKey := strings.NewReplacer(":", "_", "/", "_", "\\", "_").Replace(key)
	return filepath.Join(s.dir, safeKey+".jsonl")
}
