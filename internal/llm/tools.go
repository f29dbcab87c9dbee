package llm

import (
	"context"
	"encoding/json"
)

// Tool is a capability the model can invoke. Execute returns the textual
// result fed back to the model; a non-nil error becomes an error tool
// result, never a run failure.
type Tool interface {
	Spec() ToolSpec
	Execute(ctx context.Context, args json.RawMessage) (string, error)
}

// ToolRegistry resolves tool names. Internal tools always shadow external
// ones; external tools shadow each other in registration order (first one
// wins). The available set is fixed once a run snapshots Specs.
type ToolRegistry struct {
	tools    map[string]Tool
	order    []string
	internal map[string]bool
}

func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools:    make(map[string]Tool),
		internal: make(map[string]bool),
	}
}

// Register adds an internal tool, replacing any same-named tool.
func (r *ToolRegistry) Register(tool Tool) {
	name := tool.Spec().Name
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = tool
	r.internal[name] = true
}

// RegisterExternal adds an externally provided tool. Returns false when the
// name is already taken (internal priority, then first registration wins).
func (r *ToolRegistry) RegisterExternal(tool Tool) bool {
	name := tool.Spec().Name
	if _, exists := r.tools[name]; exists {
		return false
	}
	r.order = append(r.order, name)
	r.tools[name] = tool
	return true
}

func (r *ToolRegistry) Get(name string) (Tool, bool) {
	tool, ok := r.tools[name]
	return tool, ok
}

// IsInternal reports whether name resolves to a built-in capability.
func (r *ToolRegistry) IsInternal(name string) bool {
	return r.internal[name]
}

// Specs returns tool specs in registration order.
func (r *ToolRegistry) Specs() []ToolSpec {
	specs := make([]ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		specs = append(specs, r.tools[name].Spec())
	}
	return specs
}

func (r *ToolRegistry) Len() int { return len(r.tools) }
