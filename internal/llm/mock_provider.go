package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// MockTurn scripts one model reply for MockProvider.
type MockTurn struct {
	Text      string
	ToolCalls []ToolCall
	Stop      StopReason    // defaults to StopEnd, or StopToolUse when ToolCalls is set
	Err       error         // returned as a stream error instead of a reply
	Delay     time.Duration // simulated latency before any event
}

// MockProvider is a scripted Provider for tests. Each Stream or Complete
// call consumes the next scripted turn and records the request it saw.
type MockProvider struct {
	name string
	caps Capabilities

	mu       sync.Mutex
	turns    []MockTurn
	turnIdx  int
	Requests []Request
}

func NewMockProvider(name string) *MockProvider {
	return &MockProvider{
		name: name,
		caps: Capabilities{ToolCalls: true},
	}
}

func (p *MockProvider) WithCapabilities(caps Capabilities) *MockProvider {
	p.caps = caps
	return p
}

func (p *MockProvider) AddTurn(turn MockTurn) *MockProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.turns = append(p.turns, turn)
	return p
}

func (p *MockProvider) AddTextResponse(text string) *MockProvider {
	return p.AddTurn(MockTurn{Text: text})
}

// AddToolCall scripts a turn that requests one tool call. args is marshalled
// to JSON.
func (p *MockProvider) AddToolCall(id, name string, args any) *MockProvider {
	data, err := json.Marshal(args)
	if err != nil {
		panic(fmt.Sprintf("mock provider: bad tool args: %v", err))
	}
	return p.AddTurn(MockTurn{
		ToolCalls: []ToolCall{{ID: id, Name: name, Arguments: data}},
	})
}

func (p *MockProvider) AddError(err error) *MockProvider {
	return p.AddTurn(MockTurn{Err: err})
}

// Reset clears recorded requests and rewinds the turn script.
func (p *MockProvider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.turnIdx = 0
	p.Requests = nil
}

// CurrentTurn returns the index of the next turn to be consumed.
func (p *MockProvider) CurrentTurn() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.turnIdx
}

func (p *MockProvider) Name() string              { return p.name }
func (p *MockProvider) Kind() ProviderKind        { return "mock" }
func (p *MockProvider) Capabilities() Capabilities { return p.caps }

func (p *MockProvider) nextTurn(req Request) (MockTurn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Requests = append(p.Requests, req)
	if p.turnIdx >= len(p.turns) {
		return MockTurn{}, fmt.Errorf("mock provider %s: no more scripted turns (got %d requests)", p.name, len(p.Requests))
	}
	turn := p.turns[p.turnIdx]
	p.turnIdx++
	return turn, nil
}

func (p *MockProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	turn, err := p.nextTurn(req)
	if err != nil {
		return nil, err
	}
	if turn.Delay > 0 {
		select {
		case <-time.After(turn.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if turn.Err != nil {
		return nil, turn.Err
	}
	return &Response{
		Text:       turn.Text,
		ToolCalls:  turn.ToolCalls,
		StopReason: turn.stopReason(),
		Usage:      &Usage{InputTokens: 10, OutputTokens: 5},
	}, nil
}

func (p *MockProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	turn, err := p.nextTurn(req)
	if err != nil {
		return nil, err
	}

	return newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
		if turn.Delay > 0 {
			select {
			case <-time.After(turn.Delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if turn.Err != nil {
			return turn.Err
		}

		for _, chunk := range chunkText(turn.Text, 10) {
			if !sendEvent(ctx, events, Event{Type: EventTextDelta, Text: chunk}) {
				return ctx.Err()
			}
		}
		for i := range turn.ToolCalls {
			call := turn.ToolCalls[i]
			if !sendEvent(ctx, events, Event{Type: EventToolCall, Tool: &call}) {
				return ctx.Err()
			}
		}
		sendEvent(ctx, events, Event{Type: EventUsage, Use: &Usage{InputTokens: 10, OutputTokens: 5}})
		sendEvent(ctx, events, Event{Type: EventDone, Stop: turn.stopReason()})
		return nil
	}), nil
}

func (t MockTurn) stopReason() StopReason {
	if t.Stop != "" {
		return t.Stop
	}
	if len(t.ToolCalls) > 0 {
		return StopToolUse
	}
	return StopEnd
}

// chunkText splits text into chunks of at most chunkSize bytes, so streamed
// deltas resemble real provider output.
func chunkText(text string, chunkSize int) []string {
	if text == "" {
		return nil
	}
	var chunks []string
	for len(text) > chunkSize {
		chunks = append(chunks, text[:chunkSize])
		text = text[chunkSize:]
	}
	chunks = append(chunks, text)
	return chunks
}
