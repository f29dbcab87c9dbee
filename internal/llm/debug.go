package llm

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DebugLogger records requests and events to a per-conversation JSONL file.
// A nil *DebugLogger is valid and logs nothing.
type DebugLogger struct {
	conversationID string
	path           string
	mu             sync.Mutex
	file           *os.File
	writer         *bufio.Writer
	closeOnce      sync.Once
	closed         bool
}

type debugLogEntry struct {
	Timestamp      string `json:"timestamp"`
	ConversationID string `json:"conversation_id"`
	Type           string `json:"type"`
}

type debugRequestEntry struct {
	debugLogEntry
	Round    int            `json:"round"`
	Provider string         `json:"provider"`
	Model    string         `json:"model"`
	Messages []debugMessage `json:"messages"`
	Tools    []string       `json:"tools,omitempty"`
}

type debugMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type debugEventEntry struct {
	debugLogEntry
	EventType string `json:"event_type"`
	Data      any    `json:"data,omitempty"`
}

// NewDebugLogger opens a JSONL trace under baseDir. Log files older than
// seven days are cleaned up on open.
func NewDebugLogger(baseDir, conversationID string) (*DebugLogger, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, err
	}
	_ = cleanupOldLogs(baseDir, 7*24*time.Hour)

	path := filepath.Join(baseDir, conversationID+".jsonl")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, err
	}
	return &DebugLogger{
		conversationID: conversationID,
		path:           path,
		file:           file,
		writer:         bufio.NewWriter(file),
	}, nil
}

// Path returns the log file location.
func (l *DebugLogger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// LogRequest records the outbound window for one model-call round.
func (l *DebugLogger) LogRequest(round int, provider, model string, req Request) {
	if l == nil {
		return
	}
	toolNames := make([]string, 0, len(req.Tools))
	for _, spec := range req.Tools {
		toolNames = append(toolNames, spec.Name)
	}
	entry := debugRequestEntry{
		debugLogEntry: debugLogEntry{
			Timestamp:      time.Now().UTC().Format(time.RFC3339Nano),
			ConversationID: l.conversationID,
			Type:           "request",
		},
		Round:    round,
		Provider: provider,
		Model:    req.Model,
		Messages: convertDebugMessages(req.Messages),
		Tools:    toolNames,
	}
	if entry.Model == "" {
		entry.Model = model
	}
	l.writeEntry(entry)
	l.Flush()
}

// LogEvent records one stream event.
func (l *DebugLogger) LogEvent(event Event) {
	if l == nil {
		return
	}
	entry := debugEventEntry{
		debugLogEntry: debugLogEntry{
			Timestamp:      time.Now().UTC().Format(time.RFC3339Nano),
			ConversationID: l.conversationID,
			Type:           "event",
		},
		EventType: string(event.Type),
	}

	switch event.Type {
	case EventTextDelta:
		entry.Data = map[string]string{"text": event.Text}
	case EventToolCall:
		if event.Tool != nil {
			entry.Data = map[string]any{
				"id":        event.Tool.ID,
				"name":      event.Tool.Name,
				"arguments": event.Tool.Arguments,
			}
		}
	case EventToolExecStart, EventToolExecEnd:
		data := map[string]any{
			"tool_call_id": event.ToolCallID,
			"tool_name":    event.ToolName,
		}
		if event.Type == EventToolExecEnd {
			data["success"] = event.ToolSuccess
			output := event.ToolOutput
			if len(output) > 500 {
				output = output[:500] + "...[truncated]"
			}
			if output != "" {
				data["output"] = output
			}
		}
		entry.Data = data
	case EventUsage:
		if event.Use != nil {
			entry.Data = map[string]int{
				"input_tokens":        event.Use.InputTokens,
				"output_tokens":       event.Use.OutputTokens,
				"cached_input_tokens": event.Use.CachedInputTokens,
			}
		}
	case EventDone:
		entry.Data = map[string]string{"stop": string(event.Stop), "outcome": string(event.Outcome)}
	case EventError:
		if event.Err != nil {
			entry.Data = map[string]string{"error": event.Err.Error()}
		}
	}

	l.writeEntry(entry)
	if event.Type == EventDone {
		l.Flush()
	}
}

// Close flushes and closes the log file. Idempotent.
func (l *DebugLogger) Close() error {
	if l == nil {
		return nil
	}
	var closeErr error
	l.closeOnce.Do(func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.file == nil {
			return
		}
		if err := l.writer.Flush(); err != nil {
			closeErr = err
		}
		if err := l.file.Close(); err != nil && closeErr == nil {
			closeErr = err
		}
		l.closed = true
	})
	return closeErr
}

func (l *DebugLogger) writeEntry(entry any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	l.writer.Write(data)
	l.writer.WriteString("\n")
}

func (l *DebugLogger) Flush() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed && l.writer != nil {
		l.writer.Flush()
	}
}

func convertDebugMessages(messages []Message) []debugMessage {
	result := make([]debugMessage, len(messages))
	for i, msg := range messages {
		result[i] = debugMessage{Role: string(msg.Role), Content: convertDebugParts(msg.Parts)}
	}
	return result
}

func convertDebugParts(parts []Part) any {
	if len(parts) == 1 && parts[0].Type == PartText {
		return parts[0].Text
	}
	result := make([]map[string]any, 0, len(parts))
	for _, part := range parts {
		dp := map[string]any{"type": string(part.Type)}
		switch part.Type {
		case PartText:
			dp["text"] = part.Text
		case PartImage:
			if part.Image != nil {
				dp["image"] = map[string]any{"mime_type": part.Image.MimeType, "len": len(part.Image.Base64)}
			}
		case PartToolCall:
			if part.ToolCall != nil {
				dp["tool_call"] = map[string]any{"id": part.ToolCall.ID, "name": part.ToolCall.Name, "arguments": part.ToolCall.Arguments}
			}
		case PartToolResult:
			if part.ToolResult != nil {
				dp["tool_result"] = map[string]any{"id": part.ToolResult.ID, "name": part.ToolResult.Name, "content": part.ToolResult.Content, "is_error": part.ToolResult.IsError}
			}
		}
		result = append(result, dp)
	}
	return result
}

// cleanupOldLogs removes JSONL files older than maxAge.
func cleanupOldLogs(baseDir string, maxAge time.Duration) error {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".jsonl" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			_ = os.Remove(filepath.Join(baseDir, entry.Name()))
		}
	}
	return nil
}
