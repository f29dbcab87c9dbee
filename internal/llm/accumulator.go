package llm

import (
	"encoding/json"
	"strings"
)

// toolCallAccumulator assembles streamed tool-call fragments keyed by
// content-block index. A call becomes visible only when its block stops;
// fragments whose block never stops are discarded with the accumulator.
type toolCallAccumulator struct {
	calls    map[int64]ToolCall
	fallback map[int64]json.RawMessage
	partial  map[int64]*strings.Builder
}

func newToolCallAccumulator() *toolCallAccumulator {
	return &toolCallAccumulator{
		calls:    make(map[int64]ToolCall),
		fallback: make(map[int64]json.RawMessage),
		partial:  make(map[int64]*strings.Builder),
	}
}

// Start registers a tool-use block. Any arguments already present on the
// start event are kept as a fallback in case no deltas follow.
func (a *toolCallAccumulator) Start(index int64, call ToolCall) {
	if len(call.Arguments) > 0 {
		a.fallback[index] = call.Arguments
	}
	call.Arguments = nil
	a.calls[index] = call
}

func (a *toolCallAccumulator) Append(index int64, partial string) {
	if partial == "" {
		return
	}
	builder := a.partial[index]
	if builder == nil {
		builder = &strings.Builder{}
		a.partial[index] = builder
	}
	builder.WriteString(partial)
}

// Finish finalizes the call for index. Returns false when no tool-use block
// was started there (e.g. a text block stopping).
func (a *toolCallAccumulator) Finish(index int64) (ToolCall, bool) {
	call, ok := a.calls[index]
	if !ok {
		return ToolCall{}, false
	}
	if builder := a.partial[index]; builder != nil && builder.Len() > 0 {
		call.Arguments = json.RawMessage(builder.String())
	} else if fallback, ok := a.fallback[index]; ok {
		call.Arguments = fallback
	}
	delete(a.calls, index)
	delete(a.partial, index)
	delete(a.fallback, index)
	return call, true
}

// Pending reports how many started blocks have not finished. Used to detect
// fragments cut off by a truncated or failed stream.
func (a *toolCallAccumulator) Pending() int {
	return len(a.calls)
}
