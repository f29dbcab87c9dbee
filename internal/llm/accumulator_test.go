package llm

import (
	"encoding/json"
	"testing"
)

func TestAccumulatorAssemblesFragments(t *testing.T) {
	acc := newToolCallAccumulator()
	acc.Start(0, ToolCall{ID: "c1", Name: "read"})
	acc.Append(0, `{"file_path":`)
	acc.Append(0, `"a.md"}`)

	call, ok := acc.Finish(0)
	if !ok {
		t.Fatal("Finish returned false for a started block")
	}
	if call.ID != "c1" || call.Name != "read" {
		t.Errorf("call = %+v", call)
	}
	if string(call.Arguments) != `{"file_path":"a.md"}` {
		t.Errorf("arguments = %s", call.Arguments)
	}
}

func TestAccumulatorFallbackArguments(t *testing.T) {
	acc := newToolCallAccumulator()
	acc.Start(1, ToolCall{ID: "c1", Name: "read", Arguments: json.RawMessage(`{"whole":true}`)})

	call, _ := acc.Finish(1)
	if string(call.Arguments) != `{"whole":true}` {
		t.Errorf("arguments = %s", call.Arguments)
	}
}

func TestAccumulatorDeltasOverrideFallback(t *testing.T) {
	acc := newToolCallAccumulator()
	acc.Start(0, ToolCall{ID: "c1", Name: "read", Arguments: json.RawMessage(`{"stale":1}`)})
	acc.Append(0, `{"fresh":2}`)

	call, _ := acc.Finish(0)
	if string(call.Arguments) != `{"fresh":2}` {
		t.Errorf("arguments = %s", call.Arguments)
	}
}

func TestAccumulatorFinishWithoutStart(t *testing.T) {
	acc := newToolCallAccumulator()
	acc.Append(3, `{"ignored":true}`)
	if _, ok := acc.Finish(3); ok {
		t.Error("Finish should fail for an unstarted block")
	}
}

func TestAccumulatorPending(t *testing.T) {
	acc := newToolCallAccumulator()
	acc.Start(0, ToolCall{ID: "a", Name: "x"})
	acc.Start(1, ToolCall{ID: "b", Name: "y"})
	if acc.Pending() != 2 {
		t.Errorf("Pending = %d", acc.Pending())
	}
	acc.Finish(0)
	if acc.Pending() != 1 {
		t.Errorf("Pending after Finish = %d", acc.Pending())
	}
	// A block cut off by a broken stream never finishes; it just stays
	// pending until the accumulator is discarded.
	if _, ok := acc.Finish(0); ok {
		t.Error("double Finish should fail")
	}
}
