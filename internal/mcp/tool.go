package mcp

import (
	"context"
	"encoding/json"

	"github.com/quillmd/quill/internal/llm"
)

// MCPTool wraps an MCP server tool as an llm.Tool.
type MCPTool struct {
	manager  *Manager
	toolSpec ToolSpec
}

// NewMCPTool creates a new MCP tool wrapper.
func NewMCPTool(manager *Manager, spec ToolSpec) *MCPTool {
	return &MCPTool{manager: manager, toolSpec: spec}
}

// Spec returns the tool specification for the model.
func (t *MCPTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        t.toolSpec.Name,
		Description: t.toolSpec.Description,
		Schema:      t.toolSpec.Schema,
	}
}

// Execute invokes the tool on its MCP server.
func (t *MCPTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	return t.manager.CallTool(ctx, t.toolSpec.Name, args)
}

// RegisterMCPTools registers all running MCP tools into the registry as
// external tools: built-ins keep priority on name conflicts.
func RegisterMCPTools(manager *Manager, registry *llm.ToolRegistry) int {
	registered := 0
	for _, spec := range manager.AllTools() {
		if registry.RegisterExternal(NewMCPTool(manager, spec)) {
			registered++
		}
	}
	return registered
}
