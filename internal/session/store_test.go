package session

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/quillmd/quill/internal/llm"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCreateAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess := &Session{Provider: "anthropic", Model: "claude-sonnet-4-5", Summary: "hello"}
	if err := store.Create(ctx, sess); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if sess.ID == "" {
		t.Fatal("Create should allocate an id")
	}

	got, err := store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil {
		t.Fatal("session not found")
	}
	if got.Provider != "anthropic" || got.Summary != "hello" {
		t.Errorf("unexpected session: %+v", got)
	}
	if got.Status != StatusActive {
		t.Errorf("Status = %q, want active", got.Status)
	}
}

func TestGetMissing(t *testing.T) {
	store := newTestStore(t)
	got, err := store.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != nil {
		t.Error("expected nil for missing session")
	}
}

func TestMessagesRoundTripToolParts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess := &Session{Provider: "mock", Model: "m"}
	if err := store.Create(ctx, sess); err != nil {
		t.Fatal(err)
	}

	call := llm.ToolCall{ID: "t1", Name: "read_file", Arguments: json.RawMessage(`{"file_path":"a.md"}`)}
	assistant := llm.Message{
		Role: llm.RoleAssistant,
		Parts: []llm.Part{
			{Type: llm.PartText, Text: "checking"},
			{Type: llm.PartToolCall, ToolCall: &call},
		},
	}

	for i, msg := range []llm.Message{llm.UserText("hi"), assistant, llm.ToolResultMessage("t1", "read_file", "contents")} {
		if err := store.AddMessage(ctx, sess.ID, NewMessage(sess.ID, msg, i)); err != nil {
			t.Fatalf("AddMessage %d failed: %v", i, err)
		}
	}

	messages, err := store.GetMessages(ctx, sess.ID, 0, 0)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(messages))
	}

	restored := messages[1].ToLLMMessage()
	if restored.Role != llm.RoleAssistant || len(restored.Parts) != 2 {
		t.Fatalf("unexpected assistant message: %+v", restored)
	}
	tc := restored.Parts[1].ToolCall
	if tc == nil || tc.ID != "t1" || tc.Name != "read_file" {
		t.Errorf("tool call did not round-trip: %+v", tc)
	}
	if string(tc.Arguments) != `{"file_path":"a.md"}` {
		t.Errorf("arguments = %s", tc.Arguments)
	}

	result := messages[2].ToLLMMessage().Parts[0].ToolResult
	if result == nil || result.Content != "contents" {
		t.Errorf("tool result did not round-trip: %+v", result)
	}
}

func TestAddMessageAutoSequence(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess := &Session{Provider: "mock", Model: "m"}
	if err := store.Create(ctx, sess); err != nil {
		t.Fatal(err)
	}

	for _, text := range []string{"one", "two", "three"} {
		msg := NewMessage(sess.ID, llm.UserText(text), -1)
		if err := store.AddMessage(ctx, sess.ID, msg); err != nil {
			t.Fatalf("AddMessage failed: %v", err)
		}
	}

	messages, err := store.GetMessages(ctx, sess.ID, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	for i, msg := range messages {
		if msg.Sequence != i {
			t.Errorf("message %d has sequence %d", i, msg.Sequence)
		}
	}
	if messages[2].TextContent != "three" {
		t.Errorf("order wrong: %q", messages[2].TextContent)
	}
}

func TestUpdateMetricsAndStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess := &Session{Provider: "mock", Model: "m"}
	if err := store.Create(ctx, sess); err != nil {
		t.Fatal(err)
	}

	if err := store.UpdateMetrics(ctx, sess.ID, 2, 3, 100, 50); err != nil {
		t.Fatalf("UpdateMetrics failed: %v", err)
	}
	if err := store.UpdateMetrics(ctx, sess.ID, 1, 0, 10, 5); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateStatus(ctx, sess.ID, StatusComplete); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	got, err := store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.LLMTurns != 3 || got.ToolCalls != 3 || got.InputTokens != 110 || got.OutputTokens != 55 {
		t.Errorf("metrics not accumulated: %+v", got)
	}
	if got.Status != StatusComplete {
		t.Errorf("Status = %q", got.Status)
	}
}

func TestListAndDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := &Session{Provider: "mock", Model: "m", Summary: "first"}
	second := &Session{Provider: "mock", Model: "m", Summary: "second"}
	for _, s := range []*Session{first, second} {
		if err := store.Create(ctx, s); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.AddMessage(ctx, second.ID, NewMessage(second.ID, llm.UserText("hi"), -1)); err != nil {
		t.Fatal(err)
	}

	summaries, err := store.List(ctx, 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(summaries))
	}
	if summaries[0].ID != second.ID {
		t.Error("most recently updated session should come first")
	}
	if summaries[0].MessageCount != 1 {
		t.Errorf("MessageCount = %d", summaries[0].MessageCount)
	}

	if err := store.Delete(ctx, first.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := store.Delete(ctx, first.ID); err == nil {
		t.Error("second delete should fail")
	}
}

func TestTruncateSummary(t *testing.T) {
	if got := TruncateSummary("  hello\nworld"); got != "hello" {
		t.Errorf("got %q", got)
	}
	long := ""
	for i := 0; i < 30; i++ {
		long += "abcde"
	}
	if got := TruncateSummary(long); len(got) != 100 {
		t.Errorf("len = %d", len(got))
	}
}
