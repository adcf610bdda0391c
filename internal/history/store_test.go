package history

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cloudwego/eino/schema"
)

func TestStore_SaveAndReload(t *testing.T) {
	dir := t.TempDir()

	store := NewStore(dir)
	conv := store.GetOrCreate("alpha")
	conv.Append("user", "hello", "")
	conv.Append("assistant", "hi there", "")
	if err := store.Save(conv); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	// A fresh store reads the same conversation back from disk.
	reloaded := NewStore(dir).GetOrCreate("alpha")
	if reloaded.Len() != 2 {
		t.Fatalf("expected 2 messages after reload, got %d", reloaded.Len())
	}
	if reloaded.Messages[1].Content != "hi there" {
		t.Fatalf("unexpected reloaded content: %q", reloaded.Messages[1].Content)
	}
}

func TestStore_GetOrCreateReturnsSameConversation(t *testing.T) {
	store := NewStore(t.TempDir())

	a := store.GetOrCreate("s")
	a.Append("user", "one", "")
	b := store.GetOrCreate("s")

	if b.Len() != 1 {
		t.Fatal("expected the same conversation instance")
	}
}

func TestConversation_ExtendSkipsInjectedSystem(t *testing.T) {
	conv := &Conversation{Key: "s"}
	conv.Append("user", "question", "")

	updated := []*schema.Message{
		schema.SystemMessage("injected prompt"),
		schema.UserMessage("question"),
		schema.AssistantMessage("answer", nil),
	}
	conv.Extend(updated)

	if conv.Len() != 2 {
		t.Fatalf("expected 2 messages, got %d", conv.Len())
	}
	if conv.Messages[1].Role != "assistant" || conv.Messages[1].Content != "answer" {
		t.Fatalf("unexpected appended message: %+v", conv.Messages[1])
	}
}

func TestConversation_ExtendKeepsStoredSystem(t *testing.T) {
	conv := &Conversation{Key: "s"}
	conv.Append("system", "persistent prompt", "")
	conv.Append("user", "question", "")

	updated := []*schema.Message{
		schema.SystemMessage("persistent prompt"),
		schema.UserMessage("question"),
		schema.AssistantMessage("answer", nil),
	}
	conv.Extend(updated)

	if conv.Len() != 3 {
		t.Fatalf("expected 3 messages, got %d", conv.Len())
	}
}

func TestConversation_SchemaRoundTripsToolCalls(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	conv := store.GetOrCreate("tools")
	conv.Extend([]*schema.Message{
		schema.AssistantMessage("", []schema.ToolCall{
			{ID: "c1", Function: schema.FunctionCall{Name: "read_file", Arguments: `{"path":"a"}`}},
		}),
	})
	if err := store.Save(conv); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	msgs := NewStore(dir).GetOrCreate("tools").Schema()
	if len(msgs) != 1 || len(msgs[0].ToolCalls) != 1 {
		t.Fatalf("tool calls lost in round trip: %+v", msgs)
	}
	if msgs[0].ToolCalls[0].Function.Name != "read_file" {
		t.Fatalf("unexpected tool call: %+v", msgs[0].ToolCalls[0])
	}
}

func TestStore_SanitizesSessionKeys(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	conv := store.GetOrCreate("a/b:c")
	conv.Append("user", "x", "")
	if err := store.Save(conv); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "conversations", "a_b_c.jsonl")); err != nil {
		t.Fatalf("expected sanitized file name: %v", err)
	}
}
