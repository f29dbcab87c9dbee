package llm

import (
	"context"
	"encoding/json"
	"time"
)

// Provider adapts one vendor wire format to the unified request/response
// model. Complete buffers the whole reply; Stream yields incremental events.
type Provider interface {
	Name() string
	Kind() ProviderKind
	Capabilities() Capabilities
	Complete(ctx context.Context, req Request) (*Response, error)
	Stream(ctx context.Context, req Request) (Stream, error)
}

// ProviderKind selects a wire format.
type ProviderKind string

const (
	KindAnthropic    ProviderKind = "anthropic"
	KindOpenAI       ProviderKind = "openai"
	KindGemini       ProviderKind = "gemini"
	KindOpenAICompat ProviderKind = "openai-compat"
)

// Capabilities describe optional provider features.
type Capabilities struct {
	ToolCalls bool
	Images    bool
}

// Stream yields events until io.EOF.
type Stream interface {
	Recv() (Event, error)
	Close() error
}

// Request represents a single model call.
type Request struct {
	Model           string
	Messages        []Message
	Tools           []ToolSpec
	MaxOutputTokens int
	Temperature     float32
	Debug           bool
}

// StopReason reports why the model stopped emitting.
type StopReason string

const (
	StopEnd     StopReason = "end"      // natural end of turn
	StopToolUse StopReason = "tool_use" // stopped to request tool execution
	StopLength  StopReason = "length"   // output token budget exhausted
)

// Response is a fully buffered model reply.
type Response struct {
	Text       string
	ToolCalls  []ToolCall
	StopReason StopReason
	Usage      *Usage
}

// Role identifies a message role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// PartType identifies a message content part.
type PartType string

const (
	PartText       PartType = "text"
	PartToolCall   PartType = "tool_call"
	PartToolResult PartType = "tool_result"
	PartImage      PartType = "image"
)

// Message holds a role with structured parts.
type Message struct {
	Role      Role
	Parts     []Part
	CreatedAt time.Time
}

// Part represents a single content part.
type Part struct {
	Type       PartType
	Text       string
	ToolCall   *ToolCall
	ToolResult *ToolResult
	Image      *ImageData
}

// ImageData is inline base64 image content.
type ImageData struct {
	MimeType string
	Base64   string
}

// ToolSpec describes a callable tool.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]interface{}
}

// ToolCall is a model-requested tool invocation.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// ToolResult is the output from executing a tool call.
type ToolResult struct {
	ID      string
	Name    string
	Content string
	IsError bool // true if this result represents a tool execution error
}

// EventType describes streaming events.
type EventType string

const (
	EventTextDelta     EventType = "text_delta"
	EventToolCall      EventType = "tool_call"
	EventToolExecStart EventType = "tool_exec_start" // emitted when tool execution begins
	EventToolExecEnd   EventType = "tool_exec_end"   // emitted when tool execution completes
	EventUsage         EventType = "usage"
	EventDone          EventType = "done"
	EventError         EventType = "error"
)

// Event represents a streamed output update.
type Event struct {
	Type        EventType
	Text        string
	Tool        *ToolCall
	ToolCallID  string // for EventToolExecStart/End: unique ID of this invocation
	ToolName    string // for EventToolExecStart/End: name of tool being executed
	ToolSuccess bool   // for EventToolExecEnd: whether execution succeeded
	ToolOutput  string // for EventToolExecEnd: the tool's output
	Stop        StopReason
	Outcome     Outcome // for EventDone: how the run ended
	Use         *Usage
	Err         error
}

// Usage captures token usage if available.
type Usage struct {
	InputTokens       int
	OutputTokens      int
	CachedInputTokens int
}

func (u *Usage) add(other *Usage) {
	if other == nil {
		return
	}
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CachedInputTokens += other.CachedInputTokens
}

func SystemText(text string) Message {
	return Message{
		Role:      RoleSystem,
		Parts:     []Part{{Type: PartText, Text: text}},
		CreatedAt: time.Now(),
	}
}

func UserText(text string) Message {
	return Message{
		Role:      RoleUser,
		Parts:     []Part{{Type: PartText, Text: text}},
		CreatedAt: time.Now(),
	}
}

func AssistantText(text string) Message {
	return Message{
		Role:      RoleAssistant,
		Parts:     []Part{{Type: PartText, Text: text}},
		CreatedAt: time.Now(),
	}
}

func UserImage(text string, image ImageData) Message {
	parts := []Part{{Type: PartImage, Image: &image}}
	if text != "" {
		parts = append([]Part{{Type: PartText, Text: text}}, parts...)
	}
	return Message{Role: RoleUser, Parts: parts, CreatedAt: time.Now()}
}

func ToolResultMessage(id, name, content string) Message {
	return Message{
		Role: RoleTool,
		Parts: []Part{{
			Type: PartToolResult,
			ToolResult: &ToolResult{
				ID:      id,
				Name:    name,
				Content: content,
			},
		}},
		CreatedAt: time.Now(),
	}
}

// ToolErrorMessage creates a tool result message that indicates an error.
// The error is passed back to the model so it can respond gracefully
// instead of failing the whole run.
func ToolErrorMessage(id, name, errorText string) Message {
	return Message{
		Role: RoleTool,
		Parts: []Part{{
			Type: PartToolResult,
			ToolResult: &ToolResult{
				ID:      id,
				Name:    name,
				Content: errorText,
				IsError: true,
			},
		}},
		CreatedAt: time.Now(),
	}
}

// collectText concatenates the text parts of a message.
func collectText(msg Message) string {
	var out string
	for _, part := range msg.Parts {
		if part.Type == PartText {
			out += part.Text
		}
	}
	return out
}

func cloneParts(parts []Part) []Part {
	cloned := make([]Part, 0, len(parts))
	for _, part := range parts {
		clone, ok := clonePart(part)
		if !ok {
			continue
		}
		cloned = append(cloned, clone)
	}
	return cloned
}

func clonePart(part Part) (Part, bool) {
	cloned := part

	switch part.Type {
	case PartImage:
		if part.Image != nil {
			imageCopy := *part.Image
			cloned.Image = &imageCopy
		}
	case PartToolCall:
		if part.ToolCall == nil {
			return Part{}, false
		}
		call := *part.ToolCall
		if len(call.Arguments) > 0 {
			call.Arguments = append([]byte(nil), call.Arguments...)
		}
		cloned.ToolCall = &call

	case PartToolResult:
		if part.ToolResult == nil {
			return Part{}, false
		}
		result := *part.ToolResult
		cloned.ToolResult = &result
	}

	return cloned, true
}

func cloneMessages(messages []Message) []Message {
	cloned := make([]Message, 0, len(messages))
	for _, msg := range messages {
		cloned = append(cloned, Message{
			Role:      msg.Role,
			Parts:     cloneParts(msg.Parts),
			CreatedAt: msg.CreatedAt,
		})
	}
	return cloned
}
