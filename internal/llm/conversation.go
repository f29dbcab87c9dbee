package llm

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// TurnStatus describes how the latest turn of a conversation ended.
type TurnStatus string

const (
	TurnActive      TurnStatus = "active"
	TurnDone        TurnStatus = "done"
	TurnInterrupted TurnStatus = "interrupted"
	TurnFailed      TurnStatus = "failed"
)

// Conversation owns one message history. It is the single mutation
// authority: every write goes through a method holding the lock and carries
// a generation token, so a superseded or aborted turn cannot corrupt state.
type Conversation struct {
	mu         sync.Mutex
	id         string
	history    []Message
	controller turnController
	status     TurnStatus

	// streamed text accumulated for the in-flight turn, materialized as an
	// assistant message if the turn is aborted mid-stream
	streamed strings.Builder
}

func NewConversation() *Conversation {
	return &Conversation{id: uuid.NewString(), status: TurnDone}
}

// NewConversationWithHistory seeds a conversation, e.g. from the session
// store.
func NewConversationWithHistory(id string, history []Message) *Conversation {
	if id == "" {
		id = uuid.NewString()
	}
	return &Conversation{id: id, history: cloneMessages(history), status: TurnDone}
}

func (c *Conversation) ID() string { return c.id }

// Begin starts a new processing generation, superseding any in-flight one.
// The returned token stamps every mutation of this turn.
func (c *Conversation) Begin(parent context.Context) *Token {
	tok := c.controller.Begin(parent)
	c.mu.Lock()
	c.streamed.Reset()
	c.status = TurnActive
	c.mu.Unlock()
	return tok
}

// Append adds messages to history. Returns false (and mutates nothing) when
// the token is stale.
func (c *Conversation) Append(tok *Token, msgs ...Message) bool {
	if tok == nil || !tok.live() {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, cloneMessages(msgs)...)
	return true
}

// BufferStreamed accumulates streamed assistant text for the in-flight turn
// so an abort can preserve partial output.
func (c *Conversation) BufferStreamed(tok *Token, text string) bool {
	if tok == nil || !tok.live() {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.streamed.WriteString(text)
	return true
}

// TakeStreamed returns the buffered streamed text and clears the buffer.
// Called by the engine once a streamed reply is complete, so the same text
// is not materialized twice on a later abort.
func (c *Conversation) TakeStreamed(tok *Token) string {
	if tok == nil || !tok.live() {
		return ""
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	text := c.streamed.String()
	c.streamed.Reset()
	return text
}

// Abort cancels the in-flight turn: the generation context is cancelled
// (tearing down transport), any buffered streamed text is materialized as an
// assistant message, and the turn is marked interrupted. No-op when nothing
// is in flight.
func (c *Conversation) Abort() bool {
	if !c.controller.Abort() {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if partial := c.streamed.String(); partial != "" {
		c.history = append(c.history, AssistantText(partial))
		c.streamed.Reset()
	}
	c.status = TurnInterrupted
	return true
}

// Finish retires the turn with a terminal status. Stale tokens are ignored.
func (c *Conversation) Finish(tok *Token, status TurnStatus) {
	if tok == nil || !tok.Current() {
		return
	}
	c.mu.Lock()
	if c.status == TurnActive {
		c.status = status
	}
	c.streamed.Reset()
	c.mu.Unlock()
	c.controller.Retire(tok)
}

func (c *Conversation) Status() TurnStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// History returns a copy of the full message history.
func (c *Conversation) History() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneMessages(c.history)
}

func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.history)
}
