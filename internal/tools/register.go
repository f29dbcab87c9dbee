package tools

import (
	"github.com/quillmd/quill/internal/editor"
	"github.com/quillmd/quill/internal/llm"
)

// RegisterBuiltins adds the built-in tool set to the registry. Built-ins are
// internal: they run inline without the external tool timeout and shadow any
// external tool registered under the same name.
func RegisterBuiltins(registry *llm.ToolRegistry, ed *editor.Editor, workspaceRoot string) {
	limits := DefaultOutputLimits()
	registry.Register(NewGetEditorContentTool(ed))
	registry.Register(NewReplaceEditorContentTool(ed))
	registry.Register(NewReadFileTool(limits))
	registry.Register(NewWriteFileTool())
	registry.Register(NewListFilesTool(workspaceRoot))
}
