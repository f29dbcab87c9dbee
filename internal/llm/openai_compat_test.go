package llm

import "testing"

func compatCall(index int, id, name, args string) oaiToolCall {
	call := oaiToolCall{Index: index, ID: id}
	call.Function.Name = name
	call.Function.Arguments = args
	return call
}

func TestCompatToolStateAssemblesFragments(t *testing.T) {
	state := newCompatToolState()
	state.Add([]oaiToolCall{compatCall(0, "c1", "lookup", "")})
	state.Add([]oaiToolCall{compatCall(0, "", "", `{"q":`)})
	state.Add([]oaiToolCall{compatCall(0, "", "", `"go"}`)})

	calls := state.Calls()
	if len(calls) != 1 {
		t.Fatalf("got %d calls, want 1", len(calls))
	}
	if calls[0].ID != "c1" || calls[0].Name != "lookup" {
		t.Errorf("call = %+v", calls[0])
	}
	if string(calls[0].Arguments) != `{"q":"go"}` {
		t.Errorf("arguments = %s", calls[0].Arguments)
	}
}

func TestCompatToolStateDropsTruncatedArguments(t *testing.T) {
	state := newCompatToolState()
	state.Add([]oaiToolCall{compatCall(0, "c1", "lookup", `{"q":"go"}`)})
	state.Add([]oaiToolCall{compatCall(1, "c2", "lookup", `{"q":"unfini`)})

	// The second call's stream ended mid-arguments; only the complete
	// call survives.
	calls := state.Calls()
	if len(calls) != 1 {
		t.Fatalf("got %d calls, want 1", len(calls))
	}
	if calls[0].ID != "c1" {
		t.Errorf("kept call %q, want c1", calls[0].ID)
	}
}

func TestCompatToolStateKeepsEmptyArguments(t *testing.T) {
	state := newCompatToolState()
	state.Add([]oaiToolCall{compatCall(0, "c1", "get_editor_content", "")})

	calls := state.Calls()
	if len(calls) != 1 {
		t.Fatalf("got %d calls, want 1", len(calls))
	}
	if len(calls[0].Arguments) != 0 {
		t.Errorf("arguments = %q, want empty", calls[0].Arguments)
	}
}
