package llm_test

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/quillmd/quill/internal/llm"
)

func assistantWithCall(id, name, args string) llm.Message {
	call := llm.ToolCall{ID: id, Name: name, Arguments: json.RawMessage(args)}
	return llm.Message{
		Role:  llm.RoleAssistant,
		Parts: []llm.Part{{Type: llm.PartToolCall, ToolCall: &call}},
	}
}

func TestBuildWindowKeepsSystemBeyondTurnLimit(t *testing.T) {
	history := []llm.Message{llm.SystemText("persona")}
	for _, text := range []string{"one", "two", "three", "four"} {
		history = append(history, llm.UserText(text))
	}

	window := llm.BuildWindow(history, llm.WindowConfig{MaxTurns: 2})
	if len(window) != 3 {
		t.Fatalf("window has %d messages, want 3", len(window))
	}
	if window[0].Role != llm.RoleSystem {
		t.Error("system message dropped")
	}
	if window[1].Parts[0].Text != "three" || window[2].Parts[0].Text != "four" {
		t.Errorf("wrong turns kept: %+v", window[1:])
	}
}

func TestBuildWindowDropsOrphanToolResult(t *testing.T) {
	history := []llm.Message{
		llm.UserText("hi"),
		llm.ToolResultMessage("gone", "lookup", "result for a call outside the window"),
		llm.AssistantText("ok"),
	}

	window := llm.BuildWindow(history, llm.WindowConfig{})
	for _, msg := range window {
		if msg.Role == llm.RoleTool {
			t.Errorf("orphan tool result survived: %+v", msg)
		}
	}
	if len(window) != 2 {
		t.Errorf("window has %d messages, want 2", len(window))
	}
}

func TestBuildWindowConvertsDanglingCallToText(t *testing.T) {
	history := []llm.Message{
		llm.UserText("hi"),
		assistantWithCall("c9", "lookup", `{}`),
	}

	window := llm.BuildWindow(history, llm.WindowConfig{})
	if len(window) != 2 {
		t.Fatalf("window has %d messages", len(window))
	}
	part := window[1].Parts[0]
	if part.Type != llm.PartText {
		t.Fatalf("dangling call not converted: %+v", part)
	}
	if !strings.Contains(part.Text, "c9") || !strings.Contains(part.Text, "lookup") {
		t.Errorf("marker text = %q", part.Text)
	}
}

func TestBuildWindowTruncatesOldToolResults(t *testing.T) {
	long := strings.Repeat("r", 40)
	history := []llm.Message{
		llm.UserText("hi"),
		assistantWithCall("c1", "read", `{}`),
		llm.ToolResultMessage("c1", "read", long),
		assistantWithCall("c2", "read", `{}`),
		llm.ToolResultMessage("c2", "read", long),
	}

	window := llm.BuildWindow(history, llm.WindowConfig{ToolResultLimit: 10})

	old := window[2].Parts[0].ToolResult
	want := long[:10] + "\n[output truncated]"
	if old.Content != want {
		t.Errorf("old result = %q, want %q", old.Content, want)
	}
	latest := window[4].Parts[0].ToolResult
	if latest.Content != long {
		t.Errorf("latest tool turn must stay verbatim, got %q", latest.Content)
	}
}

func TestBuildWindowTruncatesOldToolArgs(t *testing.T) {
	bigArgs := `{"content":"` + strings.Repeat("a", 50) + `"}`
	history := []llm.Message{
		llm.UserText("hi"),
		assistantWithCall("c1", "write", bigArgs),
		llm.ToolResultMessage("c1", "write", "ok"),
		assistantWithCall("c2", "write", bigArgs),
		llm.ToolResultMessage("c2", "write", "ok"),
	}

	window := llm.BuildWindow(history, llm.WindowConfig{ToolArgLimit: 20})

	old := window[1].Parts[0].ToolCall
	if string(old.Arguments) != `{"note":"arguments truncated"}` {
		t.Errorf("old args = %s", old.Arguments)
	}
	latest := window[3].Parts[0].ToolCall
	if string(latest.Arguments) != bigArgs {
		t.Errorf("latest round args must stay intact, got %s", latest.Arguments)
	}
}

func TestBuildWindowStripsOldImages(t *testing.T) {
	img := llm.ImageData{MimeType: "image/png", Base64: "aGVsbG8="}
	history := []llm.Message{
		llm.UserImage("first", img),
		llm.UserImage("second", img),
		llm.UserImage("third", img),
	}

	window := llm.BuildWindow(history, llm.WindowConfig{ImageTurns: 2})

	// Oldest image replaced by a marker; the two recent ones survive.
	var stripped, kept int
	for _, msg := range window {
		for _, part := range msg.Parts {
			switch {
			case part.Type == llm.PartImage:
				kept++
			case part.Type == llm.PartText && strings.Contains(part.Text, "image omitted"):
				stripped++
			}
		}
	}
	if kept != 2 || stripped != 1 {
		t.Errorf("kept %d images, stripped %d; want 2/1", kept, stripped)
	}
	if window[0].Parts[1].Type == llm.PartImage {
		t.Error("oldest turn kept its image")
	}
}

func TestBuildWindowIdempotent(t *testing.T) {
	long := strings.Repeat("r", 40)
	history := []llm.Message{
		llm.SystemText("sys"),
		llm.UserText("hi"),
		assistantWithCall("c1", "read", `{"big":"`+strings.Repeat("a", 40)+`"}`),
		llm.ToolResultMessage("c1", "read", long),
		assistantWithCall("c2", "read", `{}`),
		llm.ToolResultMessage("c2", "read", long),
		llm.AssistantText("done"),
	}
	cfg := llm.WindowConfig{MaxTurns: 10, ToolResultLimit: 10, ToolArgLimit: 20, ImageTurns: 1}

	once := llm.BuildWindow(history, cfg)
	twice := llm.BuildWindow(once, cfg)
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("window changed on re-application:\nonce:  %+v\ntwice: %+v", once, twice)
	}
}

func TestBuildWindowDoesNotMutateInput(t *testing.T) {
	long := strings.Repeat("r", 40)
	history := []llm.Message{
		llm.UserText("hi"),
		assistantWithCall("c1", "read", `{}`),
		llm.ToolResultMessage("c1", "read", long),
		assistantWithCall("c2", "read", `{}`),
		llm.ToolResultMessage("c2", "read", long),
	}

	llm.BuildWindow(history, llm.WindowConfig{ToolResultLimit: 10})

	if history[2].Parts[0].ToolResult.Content != long {
		t.Error("BuildWindow mutated the input history")
	}
}
