package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/quillmd/quill/internal/llm"
	"github.com/quillmd/quill/internal/testutil"
)

func TestDispatcherUnknownTool(t *testing.T) {
	d := llm.NewDispatcher(llm.NewToolRegistry(), time.Second, 0)
	result := d.Execute(context.Background(), llm.ToolCall{ID: "c1", Name: "ghost"})
	if !result.IsError || !strings.Contains(result.Content, "unknown tool") {
		t.Errorf("result = %+v", result)
	}
}

func TestDispatcherMalformedArguments(t *testing.T) {
	tool := testutil.NewMockTool("echo", "ran")
	registry := llm.NewToolRegistry()
	registry.Register(tool)

	d := llm.NewDispatcher(registry, time.Second, 0)
	result := d.Execute(context.Background(), llm.ToolCall{
		ID: "c1", Name: "echo", Arguments: json.RawMessage(`{"a":`),
	})
	if !result.IsError {
		t.Error("expected error result")
	}
	if tool.InvocationCount() != 0 {
		t.Error("tool must not run on malformed arguments")
	}
}

func TestDispatcherToolErrorBecomesResult(t *testing.T) {
	tool := testutil.NewMockToolFn("fail", func(ctx context.Context, args json.RawMessage) (string, error) {
		return "", errors.New("disk on fire")
	})
	registry := llm.NewToolRegistry()
	registry.Register(tool)

	d := llm.NewDispatcher(registry, time.Second, 0)
	result := d.Execute(context.Background(), llm.ToolCall{ID: "c1", Name: "fail"})
	if !result.IsError {
		t.Error("expected error result")
	}
	if !strings.Contains(result.Content, "fail") || !strings.Contains(result.Content, "disk on fire") {
		t.Errorf("content = %q", result.Content)
	}
}

func TestDispatcherResultCeiling(t *testing.T) {
	big := strings.Repeat("x", 50)
	tool := testutil.NewMockTool("read", big)
	registry := llm.NewToolRegistry()
	registry.Register(tool)

	d := llm.NewDispatcher(registry, time.Second, 10)
	result := d.Execute(context.Background(), llm.ToolCall{ID: "c1", Name: "read"})
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Content)
	}
	want := big[:10] + "\n[output truncated]"
	if result.Content != want {
		t.Errorf("content = %q, want %q", result.Content, want)
	}
}

func TestDispatcherExternalTimeout(t *testing.T) {
	tool := testutil.NewMockToolFn("slow", func(ctx context.Context, args json.RawMessage) (string, error) {
		select {
		case <-time.After(time.Second):
			return "too late", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	})
	registry := llm.NewToolRegistry()
	registry.RegisterExternal(tool)

	d := llm.NewDispatcher(registry, 20*time.Millisecond, 0)
	result := d.Execute(context.Background(), llm.ToolCall{ID: "c1", Name: "slow"})
	if !result.IsError || !strings.Contains(result.Content, "timed out") {
		t.Errorf("result = %+v", result)
	}
}

func TestDispatcherAbortBeatsTimeout(t *testing.T) {
	tool := testutil.NewMockToolFn("slow", func(ctx context.Context, args json.RawMessage) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	registry := llm.NewToolRegistry()
	registry.RegisterExternal(tool)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	d := llm.NewDispatcher(registry, 10*time.Second, 0)
	result := d.Execute(ctx, llm.ToolCall{ID: "c1", Name: "slow"})
	if !result.IsError || result.Content != "cancelled" {
		t.Errorf("result = %+v, want cancelled", result)
	}
}

func TestDispatcherInternalIgnoresTimeout(t *testing.T) {
	tool := testutil.NewMockToolFn("editor_op", func(ctx context.Context, args json.RawMessage) (string, error) {
		time.Sleep(30 * time.Millisecond)
		return "done", nil
	})
	registry := llm.NewToolRegistry()
	registry.Register(tool) // internal: runs inline, no deadline

	d := llm.NewDispatcher(registry, time.Millisecond, 0)
	result := d.Execute(context.Background(), llm.ToolCall{ID: "c1", Name: "editor_op"})
	if result.IsError || result.Content != "done" {
		t.Errorf("result = %+v", result)
	}
}

func TestDispatcherRedirect(t *testing.T) {
	target := testutil.NewMockTool("replace_editor_content", "replaced")
	registry := llm.NewToolRegistry()
	registry.Register(target)

	d := llm.NewDispatcher(registry, time.Second, 0)
	d.SetRedirect(func(call llm.ToolCall) (llm.ToolCall, bool) {
		if call.Name == "write_file" {
			call.Name = "replace_editor_content"
			return call, true
		}
		return call, false
	})

	result := d.Execute(context.Background(), llm.ToolCall{
		ID: "c1", Name: "write_file", Arguments: json.RawMessage(`{"content":"x"}`),
	})
	if result.IsError || result.Content != "replaced" {
		t.Errorf("result = %+v", result)
	}
	if target.InvocationCount() != 1 {
		t.Error("redirect target not invoked")
	}
}
