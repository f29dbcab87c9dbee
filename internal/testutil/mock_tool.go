package testutil

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/quillmd/quill/internal/llm"
)

// MockTool is a configurable tool for testing.
type MockTool struct {
	SpecData  llm.ToolSpec
	ExecuteFn func(ctx context.Context, args json.RawMessage) (string, error)

	mu          sync.Mutex
	invocations []MockToolInvocation
}

// MockToolInvocation records a single tool invocation.
type MockToolInvocation struct {
	Args   json.RawMessage
	Result string
	Error  error
}

// Spec implements llm.Tool.
func (m *MockTool) Spec() llm.ToolSpec {
	return m.SpecData
}

// Execute implements llm.Tool.
func (m *MockTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var result string
	var err error
	if m.ExecuteFn != nil {
		result, err = m.ExecuteFn(ctx, args)
	}
	m.mu.Lock()
	m.invocations = append(m.invocations, MockToolInvocation{Args: args, Result: result, Error: err})
	m.mu.Unlock()
	return result, err
}

// NewMockTool creates a mock tool with the given name that returns a fixed
// result.
func NewMockTool(name, result string) *MockTool {
	return &MockTool{
		SpecData: llm.ToolSpec{
			Name:        name,
			Description: "Mock tool: " + name,
			Schema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		ExecuteFn: func(ctx context.Context, args json.RawMessage) (string, error) {
			return result, nil
		},
	}
}

// NewMockToolFn creates a mock tool backed by a custom execute function.
func NewMockToolFn(name string, fn func(ctx context.Context, args json.RawMessage) (string, error)) *MockTool {
	tool := NewMockTool(name, "")
	tool.ExecuteFn = fn
	return tool
}

// InvocationCount returns the number of times the tool was invoked.
func (m *MockTool) InvocationCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.invocations)
}

// Invocations returns a copy of the recorded invocations.
func (m *MockTool) Invocations() []MockToolInvocation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockToolInvocation(nil), m.invocations...)
}

// LastArgs returns the arguments from the last invocation, or nil.
func (m *MockTool) LastArgs() json.RawMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.invocations) == 0 {
		return nil
	}
	return m.invocations[len(m.invocations)-1].Args
}
