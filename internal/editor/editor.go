package editor

import (
	"path/filepath"
	"sync"
)

// Editor is the engine-facing surface of the open document. The engine and
// its tools are the single writer; observers read snapshots.
type Editor struct {
	mu      sync.RWMutex
	path    string
	content string
	version int
}

func New() *Editor {
	return &Editor{}
}

// Open replaces the current document with the given path and content.
func (e *Editor) Open(path, content string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.path = path
	e.content = content
	e.version++
}

// SetContent replaces the document body, keeping the open path.
func (e *Editor) SetContent(content string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.content = content
	e.version++
}

// Path returns the path of the open document, or "" when nothing is open.
func (e *Editor) Path() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.path
}

// Content returns the document body.
func (e *Editor) Content() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.content
}

// Snapshot returns path and content as one consistent read.
func (e *Editor) Snapshot() (path, content string) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.path, e.content
}

// Version increments on every mutation, letting observers detect change.
func (e *Editor) Version() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.version
}

// IsOpenPath reports whether path refers to the open document. Both sides
// are resolved to absolute form, so a bare "draft.md" from the model matches
// an open path stored absolutely.
func (e *Editor) IsOpenPath(path string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.path == "" || path == "" {
		return false
	}
	return canonicalPath(path) == canonicalPath(e.path)
}

// canonicalPath resolves against the working directory; when that fails the
// cleaned path still lets same-form arguments match.
func canonicalPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}
