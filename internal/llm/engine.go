package llm

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Outcome reports how a run ended.
type Outcome string

const (
	OutcomeFinal      Outcome = "final"       // model produced a final reply
	OutcomeGivenUp    Outcome = "given_up"    // truncation retries exhausted
	OutcomeAborted    Outcome = "aborted"     // user cancelled mid-run
	OutcomeRoundLimit Outcome = "round_limit" // tool loop hit the round ceiling
)

// Config holds the engine tunables. The defaults match the reference
// behavior of the application; all of them are configuration, not contract.
type Config struct {
	MaxRounds         int           // model-call rounds per user turn
	TruncationRetries int           // budget-doubling retries when tools are cut off
	ToolTimeout       time.Duration // per-call ceiling for external tools
	StallWindow       time.Duration // stream idle watchdog
	ToolResultLimit   int           // dispatcher result ceiling
	Window            WindowConfig
}

func DefaultConfig() Config {
	return Config{
		MaxRounds:         10,
		TruncationRetries: 2,
		ToolTimeout:       20 * time.Second,
		StallWindow:       30 * time.Second,
		ToolResultLimit:   8000,
		Window:            DefaultWindowConfig(),
	}
}

// retryBudget is the output budget used on the first truncation retry when
// the request did not set one.
const retryBudget = 8192

const truncationRetryInstruction = "Your previous reply was cut off before the tool call completed. " +
	"Re-issue the tool call directly without repeating the text you already wrote."

// TurnMetrics contains metrics collected during one round.
type TurnMetrics struct {
	InputTokens  int
	OutputTokens int
	ToolCalls    int
}

// TurnCompletedCallback is invoked after each round with the messages it
// produced, for incremental persistence.
type TurnCompletedCallback func(ctx context.Context, round int, messages []Message, metrics TurnMetrics) error

// Engine orchestrates provider calls and tool execution for a conversation.
type Engine struct {
	provider    Provider
	tools       *ToolRegistry
	dispatcher  *Dispatcher
	cfg         Config
	debugLogger *DebugLogger

	onTurnCompleted TurnCompletedCallback
	callbackMu      sync.RWMutex
}

func NewEngine(provider Provider, tools *ToolRegistry, cfg Config) *Engine {
	if tools == nil {
		tools = NewToolRegistry()
	}
	return &Engine{
		provider:   provider,
		tools:      tools,
		dispatcher: NewDispatcher(tools, cfg.ToolTimeout, cfg.ToolResultLimit),
		cfg:        cfg,
	}
}

func (e *Engine) Tools() *ToolRegistry      { return e.tools }
func (e *Engine) Dispatcher() *Dispatcher   { return e.dispatcher }
func (e *Engine) Provider() Provider        { return e.provider }
func (e *Engine) RegisterTool(tool Tool)    { e.tools.Register(tool) }
func (e *Engine) SetDebugLogger(l *DebugLogger) {
	e.debugLogger = l
}

// SetTurnCompletedCallback sets the per-round persistence callback.
// Safe to call while a run is in progress.
func (e *Engine) SetTurnCompletedCallback(cb TurnCompletedCallback) {
	e.callbackMu.Lock()
	e.onTurnCompleted = cb
	e.callbackMu.Unlock()
}

func (e *Engine) getCallback() TurnCompletedCallback {
	e.callbackMu.RLock()
	cb := e.onTurnCompleted
	e.callbackMu.RUnlock()
	return cb
}

// Send starts a new turn: the user message is appended under a fresh
// generation token and the orchestration loop runs in the returned stream.
// A previous in-flight turn is superseded.
func (e *Engine) Send(ctx context.Context, conv *Conversation, msg Message, req Request) (Stream, error) {
	tok := conv.Begin(ctx)
	if !conv.Append(tok, msg) {
		return nil, ErrAborted
	}
	return newEventStream(tok.Context(), func(ctx context.Context, events chan<- Event) error {
		return e.runLoop(ctx, tok, conv, req, events)
	}), nil
}

// Resume re-enters the loop without appending a user message, e.g. after
// loading a conversation whose last turn ended in tool results.
func (e *Engine) Resume(ctx context.Context, conv *Conversation, req Request) (Stream, error) {
	tok := conv.Begin(ctx)
	return newEventStream(tok.Context(), func(ctx context.Context, events chan<- Event) error {
		return e.runLoop(ctx, tok, conv, req, events)
	}), nil
}

func (e *Engine) runLoop(ctx context.Context, tok *Token, conv *Conversation, req Request, events chan<- Event) error {
	// Tool set is fixed for the whole run.
	specs := e.tools.Specs()
	callback := e.getCallback()

	truncationRetries := 0
	maxOutput := req.MaxOutputTokens
	var totalUsage Usage

	for round := 0; round < e.cfg.MaxRounds; round++ {
		window := BuildWindow(conv.History(), e.cfg.Window)

		turnReq := req
		turnReq.Messages = window
		turnReq.Tools = specs
		turnReq.MaxOutputTokens = maxOutput
		e.debugLogger.LogRequest(round, e.provider.Name(), turnReq.Model, turnReq)

		var resp *Response
		var err error
		if round == 0 && !endsWithToolTurn(window) {
			resp, err = e.streamRound(ctx, tok, conv, turnReq, events, &totalUsage)
		} else {
			resp, err = e.provider.Complete(ctx, turnReq)
			if err == nil {
				totalUsage.add(resp.Usage)
			}
		}
		if err != nil {
			return e.finishAfterError(ctx, tok, conv, events, err)
		}

		if resp.StopReason == StopLength && len(resp.ToolCalls) > 0 {
			// The model ran out of budget while asking for tools; the
			// pending calls are unusable. Retry with a doubled budget.
			if truncationRetries >= e.cfg.TruncationRetries {
				if resp.Text != "" {
					conv.TakeStreamed(tok)
					conv.Append(tok, AssistantText(resp.Text))
				}
				conv.Finish(tok, TurnDone)
				trySendEvent(events, Event{Type: EventError, Err: &TruncationExceededError{Attempts: truncationRetries}})
				e.emitDone(ctx, events, OutcomeGivenUp, &totalUsage)
				return nil
			}
			truncationRetries++
			conv.TakeStreamed(tok)
			if resp.Text != "" {
				conv.Append(tok, AssistantText(resp.Text))
			}
			conv.Append(tok, UserText(truncationRetryInstruction))
			if maxOutput <= 0 {
				maxOutput = retryBudget
			} else {
				maxOutput *= 2
			}
			continue
		}

		toolCalls := dedupeToolCalls(ensureToolCallIDs(resp.ToolCalls))

		if len(toolCalls) == 0 {
			conv.TakeStreamed(tok)
			if resp.Text != "" {
				if !conv.Append(tok, AssistantText(resp.Text)) {
					return nil // superseded; drop silently
				}
			}
			if callback != nil && resp.Text != "" {
				metrics := TurnMetrics{InputTokens: totalUsage.InputTokens, OutputTokens: totalUsage.OutputTokens}
				_ = callback(ctx, round, []Message{AssistantText(resp.Text)}, metrics)
			}
			conv.Finish(tok, TurnDone)
			e.emitDone(ctx, events, OutcomeFinal, &totalUsage)
			return nil
		}

		assistantMsg := buildAssistantMessage(resp.Text, toolCalls)
		conv.TakeStreamed(tok)
		if !conv.Append(tok, assistantMsg) {
			return e.finishAfterError(ctx, tok, conv, events, ctx.Err())
		}
		turnMessages := []Message{assistantMsg}

		// Tools run sequentially, in the order the model issued them.
		for _, call := range toolCalls {
			if !sendEvent(ctx, events, Event{Type: EventToolExecStart, ToolCallID: call.ID, ToolName: call.Name}) {
				return e.finishAfterError(ctx, tok, conv, events, ctx.Err())
			}
			result := e.dispatcher.Execute(ctx, call)
			if ctx.Err() != nil {
				return e.finishAfterError(ctx, tok, conv, events, ctx.Err())
			}

			var msg Message
			if result.IsError {
				msg = ToolErrorMessage(call.ID, call.Name, result.Content)
			} else {
				msg = ToolResultMessage(call.ID, call.Name, result.Content)
			}
			if !conv.Append(tok, msg) {
				return e.finishAfterError(ctx, tok, conv, events, ctx.Err())
			}
			turnMessages = append(turnMessages, msg)

			sendEvent(ctx, events, Event{
				Type:        EventToolExecEnd,
				ToolCallID:  call.ID,
				ToolName:    call.Name,
				ToolSuccess: !result.IsError,
				ToolOutput:  result.Content,
			})
		}

		if callback != nil {
			metrics := TurnMetrics{
				InputTokens:  totalUsage.InputTokens,
				OutputTokens: totalUsage.OutputTokens,
				ToolCalls:    len(toolCalls),
			}
			_ = callback(ctx, round, turnMessages, metrics)
		}
		truncationRetries = 0
	}

	conv.Finish(tok, TurnDone)
	e.emitDone(ctx, events, OutcomeRoundLimit, &totalUsage)
	return nil
}

// streamRound runs one streaming model call, forwarding text deltas while
// buffering them for abort recovery, and accumulating tool calls.
func (e *Engine) streamRound(ctx context.Context, tok *Token, conv *Conversation, req Request, events chan<- Event, totalUsage *Usage) (*Response, error) {
	stream, err := e.provider.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	stream = withStallWatchdog(stream, e.cfg.StallWindow)
	defer stream.Close()

	var text strings.Builder
	var calls []ToolCall
	stop := StopEnd

	for {
		event, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Partial text survives a broken stream.
			conv.TakeStreamed(tok)
			if text.Len() > 0 {
				conv.Append(tok, AssistantText(text.String()))
			}
			return nil, err
		}
		e.debugLogger.LogEvent(event)

		switch event.Type {
		case EventTextDelta:
			text.WriteString(event.Text)
			conv.BufferStreamed(tok, event.Text)
			if !sendEvent(ctx, events, event) {
				return nil, ctx.Err()
			}
		case EventToolCall:
			if event.Tool != nil {
				calls = append(calls, *event.Tool)
			}
		case EventUsage:
			totalUsage.add(event.Use)
		case EventDone:
			if event.Stop != "" {
				stop = event.Stop
			}
		case EventError:
			if event.Err != nil {
				conv.TakeStreamed(tok)
				if text.Len() > 0 {
					conv.Append(tok, AssistantText(text.String()))
				}
				return nil, event.Err
			}
		}
	}

	return &Response{Text: text.String(), ToolCalls: calls, StopReason: stop}, nil
}

// finishAfterError closes out a failed or cancelled run. Aborts end the
// stream cleanly with OutcomeAborted (the conversation has already
// materialized partial text); a superseded token ends silently; real errors
// mark the turn failed and propagate.
func (e *Engine) finishAfterError(ctx context.Context, tok *Token, conv *Conversation, events chan<- Event, err error) error {
	if tok.Aborted() {
		trySendEvent(events, Event{Type: EventDone, Outcome: OutcomeAborted})
		return nil
	}
	if !tok.Current() {
		return nil
	}
	if err == nil {
		err = ctx.Err()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		conv.Finish(tok, TurnInterrupted)
		return err
	}
	conv.Finish(tok, TurnFailed)
	return err
}

func (e *Engine) emitDone(ctx context.Context, events chan<- Event, outcome Outcome, usage *Usage) {
	if usage != nil && (usage.InputTokens > 0 || usage.OutputTokens > 0) {
		u := *usage
		sendEvent(ctx, events, Event{Type: EventUsage, Use: &u})
	}
	if !sendEvent(ctx, events, Event{Type: EventDone, Outcome: outcome}) {
		trySendEvent(events, Event{Type: EventDone, Outcome: outcome})
	}
}

// trySendEvent delivers best-effort on a buffered channel, for terminal
// events after the producer context is already cancelled.
func trySendEvent(events chan<- Event, ev Event) {
	select {
	case events <- ev:
	default:
	}
}

func buildAssistantMessage(text string, toolCalls []ToolCall) Message {
	var parts []Part
	if text != "" {
		parts = append(parts, Part{Type: PartText, Text: text})
	}
	for i := range toolCalls {
		call := toolCalls[i]
		parts = append(parts, Part{Type: PartToolCall, ToolCall: &call})
	}
	return Message{Role: RoleAssistant, Parts: parts, CreatedAt: time.Now()}
}

func endsWithToolTurn(messages []Message) bool {
	if len(messages) == 0 {
		return false
	}
	return messages[len(messages)-1].Role == RoleTool
}

func ensureToolCallIDs(calls []ToolCall) []ToolCall {
	for i := range calls {
		if strings.TrimSpace(calls[i].ID) == "" {
			calls[i].ID = "call-" + uuid.NewString()
		}
	}
	return calls
}

func dedupeToolCalls(calls []ToolCall) []ToolCall {
	if len(calls) < 2 {
		return calls
	}
	seen := make(map[string]struct{}, len(calls))
	out := make([]ToolCall, 0, len(calls))
	for _, call := range calls {
		id := strings.TrimSpace(call.ID)
		if id == "" {
			out = append(out, call)
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, call)
	}
	return out
}
