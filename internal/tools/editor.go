package tools

import (
	"context"
	"encoding/json"

	"github.com/quillmd/quill/internal/editor"
	"github.com/quillmd/quill/internal/llm"
)

const (
	GetEditorContentToolName     = "get_editor_content"
	ReplaceEditorContentToolName = "replace_editor_content"
)

// GetEditorContentTool returns the open document to the model.
type GetEditorContentTool struct {
	editor *editor.Editor
}

func NewGetEditorContentTool(ed *editor.Editor) *GetEditorContentTool {
	return &GetEditorContentTool{editor: ed}
}

func (t *GetEditorContentTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        GetEditorContentToolName,
		Description: "Get the full content of the document currently open in the editor.",
		Schema: map[string]interface{}{
			"type":                 "object",
			"properties":           map[string]interface{}{},
			"additionalProperties": false,
		},
	}
}

func (t *GetEditorContentTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	path, content := t.editor.Snapshot()
	if path == "" && content == "" {
		return "No document is currently open in the editor.", nil
	}
	return content, nil
}

// ReplaceEditorContentTool rewrites the open document in place.
type ReplaceEditorContentTool struct {
	editor *editor.Editor
}

func NewReplaceEditorContentTool(ed *editor.Editor) *ReplaceEditorContentTool {
	return &ReplaceEditorContentTool{editor: ed}
}

// ReplaceEditorContentArgs are the arguments for replace_editor_content.
type ReplaceEditorContentArgs struct {
	Content string `json:"content"`
}

func (t *ReplaceEditorContentTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        ReplaceEditorContentToolName,
		Description: "Replace the entire content of the document currently open in the editor.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"content": map[string]interface{}{
					"type":        "string",
					"description": "The new document content",
				},
			},
			"required":             []string{"content"},
			"additionalProperties": false,
		},
	}
}

func (t *ReplaceEditorContentTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a ReplaceEditorContentArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return formatToolError(NewToolError(ErrInvalidParams, err.Error())), nil
	}
	warning := WarnUnknownParams(args, []string{"content"})
	t.editor.SetContent(a.Content)
	return warning + "Editor content replaced.", nil
}

// EditorRedirect returns a dispatcher hook that reroutes write_file calls
// aimed at the open document to replace_editor_content, so the in-memory
// document and the file on disk cannot diverge mid-turn.
func EditorRedirect(ed *editor.Editor) llm.RedirectFunc {
	return func(call llm.ToolCall) (llm.ToolCall, bool) {
		if call.Name != WriteFileToolName {
			return call, false
		}
		var a WriteFileArgs
		if err := json.Unmarshal(call.Arguments, &a); err != nil {
			return call, false
		}
		if !ed.IsOpenPath(a.FilePath) {
			return call, false
		}
		rewritten, err := json.Marshal(ReplaceEditorContentArgs{Content: a.Content})
		if err != nil {
			return call, false
		}
		call.Name = ReplaceEditorContentToolName
		call.Arguments = rewritten
		return call, true
	}
}
