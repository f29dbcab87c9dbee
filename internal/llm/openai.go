package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIProvider implements Provider over the OpenAI Chat Completions API.
type OpenAIProvider struct {
	client *openai.Client
	name   string
	model  string
}

// NewOpenAIProvider creates an OpenAI provider. The broker-injected
// httpClient supplies authentication.
func NewOpenAIProvider(name, model, baseURL string, httpClient *http.Client) *OpenAIProvider {
	opts := []option.RequestOption{
		option.WithAPIKey("managed-by-broker"),
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return &OpenAIProvider{client: &client, name: name, model: model}
}

func (p *OpenAIProvider) Name() string {
	if p.name != "" {
		return p.name
	}
	return fmt.Sprintf("OpenAI (%s)", p.model)
}

func (p *OpenAIProvider) Kind() ProviderKind { return KindOpenAI }

func (p *OpenAIProvider) Capabilities() Capabilities {
	return Capabilities{ToolCalls: true, Images: true}
}

func (p *OpenAIProvider) buildParams(req Request) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(chooseModel(req.Model, p.model)),
		Messages: buildOpenAIMessages(req.Messages),
	}
	if len(req.Tools) > 0 {
		params.Tools = buildOpenAITools(req.Tools)
	}
	if req.MaxOutputTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxOutputTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(float64(req.Temperature))
	}
	return params
}

func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	completion, err := p.client.Chat.Completions.New(ctx, p.buildParams(req))
	if err != nil {
		return nil, wrapOpenAIErr(err)
	}
	if len(completion.Choices) == 0 {
		return nil, &ProtocolError{Provider: "openai", Detail: "no choices in completion"}
	}

	choice := completion.Choices[0]
	resp := &Response{
		Text:       choice.Message.Content,
		StopReason: mapOpenAIFinish(choice.FinishReason),
	}
	for _, call := range choice.Message.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: json.RawMessage(call.Function.Arguments),
		})
	}
	if len(resp.ToolCalls) > 0 && resp.StopReason == StopEnd {
		resp.StopReason = StopToolUse
	}
	if completion.Usage.TotalTokens > 0 {
		resp.Usage = &Usage{
			InputTokens:       int(completion.Usage.PromptTokens),
			OutputTokens:      int(completion.Usage.CompletionTokens),
			CachedInputTokens: int(completion.Usage.PromptTokensDetails.CachedTokens),
		}
	}
	return resp, nil
}

func (p *OpenAIProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	return newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
		params := p.buildParams(req)
		params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		}

		toolState := newCompatToolState()
		var lastUsage *Usage
		stop := StopEnd

		stream := p.client.Chat.Completions.NewStreaming(ctx, params)
		for stream.Next() {
			chunk := stream.Current()
			if chunk.Usage.TotalTokens > 0 {
				lastUsage = &Usage{
					InputTokens:  int(chunk.Usage.PromptTokens),
					OutputTokens: int(chunk.Usage.CompletionTokens),
				}
			}
			for _, choice := range chunk.Choices {
				if choice.FinishReason != "" {
					stop = mapOpenAIFinish(choice.FinishReason)
				}
				if choice.Delta.Content != "" {
					if !sendEvent(ctx, events, Event{Type: EventTextDelta, Text: choice.Delta.Content}) {
						return ctx.Err()
					}
				}
				for _, tc := range choice.Delta.ToolCalls {
					call := oaiToolCall{Index: int(tc.Index), ID: tc.ID}
					call.Function.Name = tc.Function.Name
					call.Function.Arguments = tc.Function.Arguments
					toolState.Add([]oaiToolCall{call})
				}
			}
		}
		if err := stream.Err(); err != nil {
			return wrapOpenAIErr(err)
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

func mapOpenAIFinish(reason string) StopReason {
	switch reason {
	case "tool_calls", "function_call":
		return StopToolUse
	case "length":
		return StopLength
	default:
		return StopEnd
	}
}

func wrapOpenAIErr(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &TransportError{Provider: "openai", StatusCode: apiErr.StatusCode, Err: err}
	}
	return &TransportError{Provider: "openai", Err: err}
}

func buildOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			if text := collectText(msg); text != "" {
				out = append(out, openai.SystemMessage(text))
			}
		case RoleUser:
			out = append(out, buildOpenAIUserMessage(msg))
		case RoleAssistant:
			text, toolCalls := splitCompatParts(msg.Parts)
			if len(toolCalls) == 0 {
				if text != "" {
					out = append(out, openai.AssistantMessage(text))
				}
				continue
			}
			assistant := openai.ChatCompletionAssistantMessageParam{}
			if text != "" {
				assistant.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
					OfString: openai.String(text),
				}
			}
			for _, call := range toolCalls {
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: call.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      call.Function.Name,
						Arguments: call.Function.Arguments,
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		case RoleTool:
			for _, part := range msg.Parts {
				if part.Type != PartToolResult || part.ToolResult == nil {
					continue
				}
				out = append(out, openai.ToolMessage(part.ToolResult.Content, part.ToolResult.ID))
			}
		}
	}
	return out
}

func buildOpenAIUserMessage(msg Message) openai.ChatCompletionMessageParamUnion {
	if !hasImages(msg) {
		return openai.UserMessage(collectText(msg))
	}
	parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(msg.Parts))
	for _, part := range msg.Parts {
		switch part.Type {
		case PartText:
			if part.Text != "" {
				parts = append(parts, openai.TextContentPart(part.Text))
			}
		case PartImage:
			if part.Image != nil {
				dataURL := fmt.Sprintf("data:%s;base64,%s", part.Image.MimeType, part.Image.Base64)
				parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: dataURL,
				}))
			}
		}
	}
	return openai.UserMessage(parts)
}

func buildOpenAITools(specs []ToolSpec) []openai.ChatCompletionToolParam {
	tools := make([]openai.ChatCompletionToolParam, 0, len(specs))
	for _, spec := range specs {
		fn := openai.FunctionDefinitionParam{
			Name:       spec.Name,
			Parameters: openai.FunctionParameters(spec.Schema),
		}
		if spec.Description != "" {
			fn.Description = openai.String(spec.Description)
		}
		tools = append(tools, openai.ChatCompletionToolParam{Function: fn})
	}
	return tools
}
