package session

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/quillmd/quill/internal/llm"
)

// Status represents the terminal state of a stored conversation.
type Status string

const (
	StatusActive      Status = "active"
	StatusComplete    Status = "complete"
	StatusError       Status = "error"
	StatusInterrupted Status = "interrupted"
)

// Session is one stored conversation.
type Session struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Summary   string    `json:"summary,omitempty"` // first user message, truncated
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserTurns    int    `json:"user_turns,omitempty"`
	LLMTurns     int    `json:"llm_turns,omitempty"`
	ToolCalls    int    `json:"tool_calls,omitempty"`
	InputTokens  int    `json:"input_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
	Status       Status `json:"status,omitempty"`
}

// Message is one stored conversation message. Parts stores the full
// llm.Message parts as JSON so tool calls and results round-trip exactly.
type Message struct {
	ID          int64      `json:"id"`
	SessionID   string     `json:"session_id"`
	Role        llm.Role   `json:"role"`
	Parts       []llm.Part `json:"parts"`
	TextContent string     `json:"text_content"` // extracted text for display
	CreatedAt   time.Time  `json:"created_at"`
	Sequence    int        `json:"sequence"`
}

// Summary is a lightweight view for listing.
type Summary struct {
	ID           string    `json:"id"`
	Name         string    `json:"name,omitempty"`
	Summary      string    `json:"summary,omitempty"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	MessageCount int       `json:"message_count"`
	Status       Status    `json:"status,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewID returns a fresh session id.
func NewID() string {
	return uuid.NewString()
}

// NewMessage creates a stored Message from an llm.Message. A negative
// sequence asks the store to allocate the next one.
func NewMessage(sessionID string, msg llm.Message, sequence int) *Message {
	m := &Message{
		SessionID: sessionID,
		Role:      msg.Role,
		Parts:     msg.Parts,
		CreatedAt: time.Now(),
		Sequence:  sequence,
	}
	m.TextContent = m.extractTextContent()
	return m
}

func (m *Message) extractTextContent() string {
	var text string
	for _, p := range m.Parts {
		if p.Type == llm.PartText && p.Text != "" {
			if text != "" {
				text += "\n"
			}
			text += p.Text
		}
	}
	return text
}

// ToLLMMessage converts a stored Message back to an llm.Message.
func (m *Message) ToLLMMessage() llm.Message {
	return llm.Message{
		Role:      m.Role,
		Parts:     m.Parts,
		CreatedAt: m.CreatedAt,
	}
}

// PartsJSON serializes the parts for database storage.
func (m *Message) PartsJSON() (string, error) {
	data, err := json.Marshal(m.Parts)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// SetPartsFromJSON deserializes JSON into the Parts field.
func (m *Message) SetPartsFromJSON(data string) error {
	if data == "" {
		m.Parts = nil
		return nil
	}
	return json.Unmarshal([]byte(data), &m.Parts)
}

// TruncateSummary returns the first line of content, truncated to 100 chars.
func TruncateSummary(content string) string {
	content = strings.TrimSpace(content)
	if idx := strings.Index(content, "\n"); idx != -1 {
		content = content[:idx]
	}
	if len(content) > 100 {
		content = content[:97] + "..."
	}
	return content
}
