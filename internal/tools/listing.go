package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/quillmd/quill/internal/llm"
)

const ListFilesToolName = "list_files"

const defaultListDepth = 3

// ListFilesTool renders a markdown tree of the workspace. Only directories
// and markdown files are listed; hidden entries and common build output
// directories are skipped.
type ListFilesTool struct {
	root string
}

// NewListFilesTool creates a list_files tool rooted at root. An empty root
// means the current working directory.
func NewListFilesTool(root string) *ListFilesTool {
	return &ListFilesTool{root: root}
}

// ListFilesArgs are the arguments for list_files.
type ListFilesArgs struct {
	Path  string `json:"path,omitempty"`
	Depth int    `json:"depth,omitempty"`
}

func (t *ListFilesTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        ListFilesToolName,
		Description: "List markdown documents and folders as a tree. Hidden files and build directories are skipped.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Directory to list (default: workspace root)",
				},
				"depth": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum directory depth (default: 3)",
				},
			},
			"additionalProperties": false,
		},
	}
}

func (t *ListFilesTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a ListFilesArgs
	if len(args) > 0 {
		if err := json.Unmarshal(args, &a); err != nil {
			return formatToolError(NewToolError(ErrInvalidParams, err.Error())), nil
		}
	}

	root := a.Path
	if root == "" {
		root = t.root
	}
	if root == "" {
		root = "."
	}
	depth := a.Depth
	if depth <= 0 {
		depth = defaultListDepth
	}

	entries, err := listDir(root, 0, depth)
	if err != nil {
		if os.IsNotExist(err) {
			return formatToolError(NewToolError(ErrFileNotFound, root)), nil
		}
		return formatToolError(NewToolErrorf(ErrExecutionFailed, "list error: %v", err)), nil
	}
	if len(entries) == 0 {
		return "No markdown documents found.", nil
	}

	var sb strings.Builder
	renderTree(&sb, entries, 0)
	return strings.TrimSuffix(sb.String(), "\n"), nil
}

type fileEntry struct {
	name     string
	isDir    bool
	children []fileEntry
}

// skippedEntry reports names never worth listing or descending into.
func skippedEntry(name string) bool {
	return strings.HasPrefix(name, ".") || name == "node_modules" || name == "target"
}

func isMarkdown(name string) bool {
	return strings.HasSuffix(name, ".md") || strings.HasSuffix(name, ".markdown")
}

func listDir(path string, currentDepth, maxDepth int) ([]fileEntry, error) {
	dirEntries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}

	var result []fileEntry
	for _, entry := range dirEntries {
		name := entry.Name()
		if skippedEntry(name) {
			continue
		}
		isDir := entry.IsDir()
		if !isDir && !isMarkdown(name) {
			continue
		}

		var children []fileEntry
		if isDir && currentDepth < maxDepth {
			children, err = listDir(filepath.Join(path, name), currentDepth+1, maxDepth)
			if err != nil {
				continue
			}
		}
		result = append(result, fileEntry{name: name, isDir: isDir, children: children})
	}

	// Directories first, then files, both case-insensitively alphabetical.
	sort.Slice(result, func(i, j int) bool {
		if result[i].isDir != result[j].isDir {
			return result[i].isDir
		}
		return strings.ToLower(result[i].name) < strings.ToLower(result[j].name)
	})
	return result, nil
}

func renderTree(sb *strings.Builder, entries []fileEntry, indent int) {
	prefix := strings.Repeat("  ", indent)
	for _, entry := range entries {
		if entry.isDir {
			fmt.Fprintf(sb, "%s- %s/\n", prefix, entry.name)
			renderTree(sb, entry.children, indent+1)
		} else {
			fmt.Fprintf(sb, "%s- %s\n", prefix, entry.name)
		}
	}
}
