package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
)

// OpenAICompatProvider implements Provider for OpenAI-compatible chat
// completion servers (Ollama, LM Studio, vLLM, ...). The wire protocol is
// spoken directly over the broker's HTTP client rather than through an SDK,
// so self-hosted endpoints and the auth-injecting transport compose cleanly.
type OpenAICompatProvider struct {
	baseURL string
	model   string
	name    string
	client  *http.Client
}

func NewOpenAICompatProvider(name, model, baseURL string, httpClient *http.Client) *OpenAICompatProvider {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OpenAICompatProvider{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		name:    name,
		client:  httpClient,
	}
}

func (p *OpenAICompatProvider) Name() string {
	return fmt.Sprintf("%s (%s)", p.name, p.model)
}

func (p *OpenAICompatProvider) Kind() ProviderKind { return KindOpenAICompat }

func (p *OpenAICompatProvider) Capabilities() Capabilities {
	return Capabilities{ToolCalls: true}
}

// OpenAI-compatible wire structures.
type oaiChatRequest struct {
	Model       string       `json:"model"`
	Messages    []oaiMessage `json:"messages"`
	Tools       []oaiTool    `json:"tools,omitempty"`
	Temperature *float64     `json:"temperature,omitempty"`
	MaxTokens   *int         `json:"max_tokens,omitempty"`
	Stream      bool         `json:"stream,omitempty"`
}

type oaiMessage struct {
	Role       string        `json:"role"`
	Content    string        `json:"content,omitempty"`
	ToolCalls  []oaiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
}

type oaiTool struct {
	Type     string      `json:"type"`
	Function oaiFunction `json:"function"`
}

type oaiFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

type oaiToolCall struct {
	Index    int    `json:"index,omitempty"`
	ID       string `json:"id,omitempty"`
	Type     string `json:"type,omitempty"`
	Function struct {
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments,omitempty"`
	} `json:"function,omitempty"`
}

type oaiChatResponse struct {
	ID      string       `json:"id"`
	Choices []oaiChoice  `json:"choices"`
	Usage   *oaiUsage    `json:"usage,omitempty"`
	Error   *oaiAPIError `json:"error,omitempty"`
}

type oaiChoice struct {
	Index        int         `json:"index"`
	Message      *oaiMessage `json:"message,omitempty"`
	Delta        *oaiMessage `json:"delta,omitempty"`
	FinishReason string      `json:"finish_reason"`
}

type oaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type oaiAPIError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (p *OpenAICompatProvider) makeChatRequest(ctx context.Context, chatReq oaiChatRequest) (*http.Response, error) {
	body, err := json.Marshal(chatReq)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if chatReq.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	return p.client.Do(httpReq)
}

func (p *OpenAICompatProvider) buildChatRequest(req Request, stream bool) (oaiChatRequest, error) {
	tools, err := buildCompatTools(req.Tools)
	if err != nil {
		return oaiChatRequest{}, err
	}
	chatReq := oaiChatRequest{
		Model:    chooseModel(req.Model, p.model),
		Messages: buildCompatMessages(req.Messages),
		Tools:    tools,
		Stream:   stream,
	}
	if req.Temperature > 0 {
		v := float64(req.Temperature)
		chatReq.Temperature = &v
	}
	if req.MaxOutputTokens > 0 {
		v := req.MaxOutputTokens
		chatReq.MaxTokens = &v
	}
	return chatReq, nil
}

func (p *OpenAICompatProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	chatReq, err := p.buildChatRequest(req, false)
	if err != nil {
		return nil, err
	}
	resp, err := p.makeChatRequest(ctx, chatReq)
	if err != nil {
		return nil, &TransportError{Provider: p.name, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Provider: p.name, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &TransportError{
			Provider:   p.name,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s", strings.TrimSpace(string(body))),
		}
	}

	var chatResp oaiChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, &ProtocolError{Provider: p.name, Detail: "unparseable completion body", Err: err}
	}
	if chatResp.Error != nil {
		return nil, &ProtocolError{Provider: p.name, Detail: chatResp.Error.Message}
	}
	if len(chatResp.Choices) == 0 {
		return nil, &ProtocolError{Provider: p.name, Detail: "no choices in response"}
	}

	choice := chatResp.Choices[0]
	out := &Response{StopReason: mapCompatFinish(choice.FinishReason)}
	if choice.Message != nil {
		out.Text = choice.Message.Content
		for _, call := range choice.Message.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        call.ID,
				Name:      call.Function.Name,
				Arguments: json.RawMessage(call.Function.Arguments),
			})
		}
	}
	if len(out.ToolCalls) > 0 && out.StopReason == StopEnd {
		out.StopReason = StopToolUse
	}
	if chatResp.Usage != nil {
		out.Usage = &Usage{
			InputTokens:  chatResp.Usage.PromptTokens,
			OutputTokens: chatResp.Usage.CompletionTokens,
		}
	}
	return out, nil
}

func (p *OpenAICompatProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	return newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
		chatReq, err := p.buildChatRequest(req, true)
		if err != nil {
			return err
		}
		resp, err := p.makeChatRequest(ctx, chatReq)
		if err != nil {
			return &TransportError{Provider: p.name, Err: err}
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			return &TransportError{
				Provider:   p.name,
				StatusCode: resp.StatusCode,
				Err:        fmt.Errorf("%s", strings.TrimSpace(string(body))),
			}
		}

		parser := newSSEParser(resp.Body)
		toolState := newCompatToolState()
		var lastUsage *Usage
		stop := StopEnd

		for {
			sse, err := parser.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				return &TransportError{Provider: p.name, Err: err}
			}
			if sse.Data == sseDoneMarker {
				break
			}

			var chatResp oaiChatResponse
			if err := json.Unmarshal([]byte(sse.Data), &chatResp); err != nil {
				// Skip keep-alives and junk frames.
				continue
			}
			if sse.Name == "error" || chatResp.Error != nil {
				detail := "unknown error"
				if chatResp.Error != nil {
					detail = chatResp.Error.Message
				}
				return &ProtocolError{Provider: p.name, Detail: detail}
			}

			if chatResp.Usage != nil {
				lastUsage = &Usage{
					InputTokens:  chatResp.Usage.PromptTokens,
					OutputTokens: chatResp.Usage.CompletionTokens,
				}
			}

			for _, choice := range chatResp.Choices {
				if choice.FinishReason != "" {
					stop = mapCompatFinish(choice.FinishReason)
				}
				if choice.Delta == nil {
					continue
				}
				if choice.Delta.Content != "" {
					if !sendEvent(ctx, events, Event{Type: EventTextDelta, Text: choice.Delta.Content}) {
						return ctx.Err()
					}
				}
				if len(choice.Delta.ToolCalls) > 0 {
					toolState.Add(choice.Delta.ToolCalls)
				}
			}
		}

		for _, call := range toolState.Calls() {
			call := call
			if !sendEvent(ctx, events, Event{Type: EventToolCall, Tool: &call}) {
				return ctx.Err()
			}
		}
		if lastUsage != nil {
			sendEvent(ctx, events, Event{Type: EventUsage, Use: lastUsage})
		}
		if stop == StopEnd && toolState.Count() > 0 {
			stop = StopToolUse
		}
		sendEvent(ctx, events, Event{Type: EventDone, Stop: stop})
		return nil
	}), nil
}

func mapCompatFinish(reason string) StopReason {
	switch reason {
	case "tool_calls", "function_call":
		return StopToolUse
	case "length":
		return StopLength
	default:
		return StopEnd
	}
}

func buildCompatMessages(messages []Message) []oaiMessage {
	var result []oaiMessage
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem, RoleUser, RoleAssistant:
			text, toolCalls := splitCompatParts(msg.Parts)
			if msg.Role == RoleAssistant && len(toolCalls) > 0 {
				result = append(result, oaiMessage{
					Role:      "assistant",
					Content:   text,
					ToolCalls: toolCalls,
				})
				continue
			}
			if text == "" {
				continue
			}
			result = append(result, oaiMessage{Role: string(msg.Role), Content: text})
		case RoleTool:
			for _, part := range msg.Parts {
				if part.Type != PartToolResult || part.ToolResult == nil {
					continue
				}
				result = append(result, oaiMessage{
					Role:       "tool",
					Content:    part.ToolResult.Content,
					ToolCallID: part.ToolResult.ID,
				})
			}
		}
	}
	return result
}

func splitCompatParts(parts []Part) (string, []oaiToolCall) {
	var textParts []string
	var toolCalls []oaiToolCall
	for _, part := range parts {
		switch part.Type {
		case PartText:
			if part.Text != "" {
				textParts = append(textParts, part.Text)
			}
		case PartImage:
			// Plain chat-completion servers have no inline image slot.
			textParts = append(textParts, imageStrippedMarker)
		case PartToolCall:
			if part.ToolCall == nil {
				continue
			}
			call := oaiToolCall{ID: part.ToolCall.ID, Type: "function"}
			call.Function.Name = part.ToolCall.Name
			call.Function.Arguments = string(part.ToolCall.Arguments)
			toolCalls = append(toolCalls, call)
		}
	}
	return strings.Join(textParts, ""), toolCalls
}

func buildCompatTools(specs []ToolSpec) ([]oaiTool, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	tools := make([]oaiTool, 0, len(specs))
	for _, spec := range specs {
		schema, err := json.Marshal(spec.Schema)
		if err != nil {
			return nil, fmt.Errorf("marshal tool schema %s: %w", spec.Name, err)
		}
		tools = append(tools, oaiTool{
			Type: "function",
			Function: oaiFunction{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  schema,
			},
		})
	}
	return tools, nil
}

// compatToolState accumulates streamed tool-call fragments by choice index.
type compatToolState struct {
	byIndex map[int]*toolCallState
	order   []int
}

type toolCallState struct {
	id   string
	name string
	args strings.Builder
}

func newCompatToolState() *compatToolState {
	return &compatToolState{byIndex: make(map[int]*toolCallState)}
}

func (s *compatToolState) Add(calls []oaiToolCall) {
	for _, call := range calls {
		idx := call.Index
		state, ok := s.byIndex[idx]
		if !ok {
			state = &toolCallState{}
			s.byIndex[idx] = state
			s.order = append(s.order, idx)
		}
		if call.ID != "" {
			state.id = call.ID
		}
		if call.Function.Name != "" {
			state.name = call.Function.Name
		}
		if call.Function.Arguments != "" {
			state.args.WriteString(call.Function.Arguments)
		}
	}
}

func (s *compatToolState) Count() int { return len(s.byIndex) }

func (s *compatToolState) Calls() []ToolCall {
	if len(s.order) == 0 {
		return nil
	}
	sort.Ints(s.order)
	calls := make([]ToolCall, 0, len(s.order))
	for _, idx := range s.order {
		state := s.byIndex[idx]
		if state == nil || state.name == "" {
			continue
		}
		// A stream cut off mid-arguments leaves a partial JSON fragment;
		// drop the call rather than hand the dispatcher a guess. Empty
		// arguments are fine, zero-parameter tools stream none at all.
		args := state.args.String()
		if args != "" && !json.Valid([]byte(args)) {
			continue
		}
		calls = append(calls, ToolCall{
			ID:        state.id,
			Name:      state.name,
			Arguments: json.RawMessage(args),
		})
	}
	return calls
}
