package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"google.golang.org/genai"
)

// GeminiProvider implements Provider over the Gemini API.
type GeminiProvider struct {
	name       string
	model      string
	httpClient *http.Client
}

// NewGeminiProvider creates a Gemini provider. The broker-injected httpClient
// supplies authentication; the SDK key is a placeholder.
func NewGeminiProvider(name, model string, httpClient *http.Client) *GeminiProvider {
	return &GeminiProvider{name: name, model: model, httpClient: httpClient}
}

func (p *GeminiProvider) Name() string {
	if p.name != "" {
		return p.name
	}
	return fmt.Sprintf("Gemini (%s)", p.model)
}

func (p *GeminiProvider) Kind() ProviderKind { return KindGemini }

func (p *GeminiProvider) Capabilities() Capabilities {
	return Capabilities{ToolCalls: true, Images: true}
}

// newClient builds a genai client per call; the SDK holds no connection state
// beyond the HTTP client we hand it.
func (p *GeminiProvider) newClient(ctx context.Context) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     "managed-by-broker",
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: p.httpClient,
	})
	if err != nil {
		return nil, &TransportError{Provider: "gemini", Err: err}
	}
	return client, nil
}

func (p *GeminiProvider) buildConfig(req Request) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}
	if system := collectSystemText(req.Messages); system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if len(req.Tools) > 0 {
		config.Tools = buildGeminiTools(req.Tools)
		config.ToolConfig = &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{
				Mode: genai.FunctionCallingConfigModeAuto,
			},
		}
	}
	if req.MaxOutputTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxOutputTokens)
	}
	if req.Temperature > 0 {
		temp := float32(req.Temperature)
		config.Temperature = &temp
	}
	return config
}

func (p *GeminiProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	client, err := p.newClient(ctx)
	if err != nil {
		return nil, err
	}

	model := chooseModel(req.Model, p.model)
	result, err := client.Models.GenerateContent(ctx, model, buildGeminiContents(req.Messages), p.buildConfig(req))
	if err != nil {
		return nil, &TransportError{Provider: "gemini", Err: err}
	}

	resp := &Response{Text: result.Text(), StopReason: StopEnd}
	if len(result.Candidates) > 0 {
		candidate := result.Candidates[0]
		resp.StopReason = mapGeminiFinish(candidate.FinishReason)
		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				if part.FunctionCall == nil {
					continue
				}
				args, err := json.Marshal(part.FunctionCall.Args)
				if err != nil {
					return nil, &ProtocolError{Provider: "gemini", Detail: "unmarshalable function call args", Err: err}
				}
				resp.ToolCalls = append(resp.ToolCalls, ToolCall{
					ID:        part.FunctionCall.ID,
					Name:      part.FunctionCall.Name,
					Arguments: args,
				})
			}
		}
	}
	if len(resp.ToolCalls) > 0 && resp.StopReason == StopEnd {
		resp.StopReason = StopToolUse
	}
	resp.Usage = geminiUsage(result.UsageMetadata)
	return resp, nil
}

func (p *GeminiProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	return newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
		client, err := p.newClient(ctx)
		if err != nil {
			return err
		}

		model := chooseModel(req.Model, p.model)
		contents := buildGeminiContents(req.Messages)
		config := p.buildConfig(req)

		// Function calls arrive whole, not incrementally, so tool-enabled
		// requests use the buffered call and emit the reply as one delta.
		if len(req.Tools) > 0 {
			return p.streamBuffered(ctx, events, client, model, contents, config)
		}

		stop := StopEnd
		var usage *Usage
		for result, err := range client.Models.GenerateContentStream(ctx, model, contents, config) {
			if err != nil {
				return &TransportError{Provider: "gemini", Err: err}
			}
			if text := result.Text(); text != "" {
				if !sendEvent(ctx, events, Event{Type: EventTextDelta, Text: text}) {
					return ctx.Err()
				}
			}
			if len(result.Candidates) > 0 && result.Candidates[0].FinishReason != "" {
				stop = mapGeminiFinish(result.Candidates[0].FinishReason)
			}
			if u := geminiUsage(result.UsageMetadata); u != nil {
				usage = u
			}
		}
		if usage != nil {
			sendEvent(ctx, events, Event{Type: EventUsage, Use: usage})
		}
		sendEvent(ctx, events, Event{Type: EventDone, Stop: stop})
		return nil
	}), nil
}

func (p *GeminiProvider) streamBuffered(ctx context.Context, events chan<- Event, client *genai.Client, model string, contents []*genai.Content, config *genai.GenerateContentConfig) error {
	result, err := client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return &TransportError{Provider: "gemini", Err: err}
	}

	if text := result.Text(); text != "" {
		if !sendEvent(ctx, events, Event{Type: EventTextDelta, Text: text}) {
			return ctx.Err()
		}
	}

	stop := StopEnd
	toolCalls := 0
	if len(result.Candidates) > 0 {
		candidate := result.Candidates[0]
		stop = mapGeminiFinish(candidate.FinishReason)
		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				if part.FunctionCall == nil {
					continue
				}
				args, err := json.Marshal(part.FunctionCall.Args)
				if err != nil {
					return &ProtocolError{Provider: "gemini", Detail: "unmarshalable function call args", Err: err}
				}
				call := ToolCall{
					ID:        part.FunctionCall.ID,
					Name:      part.FunctionCall.Name,
					Arguments: args,
				}
				toolCalls++
				if !sendEvent(ctx, events, Event{Type: EventToolCall, Tool: &call}) {
					return ctx.Err()
				}
			}
		}
	}
	if u := geminiUsage(result.UsageMetadata); u != nil {
		sendEvent(ctx, events, Event{Type: EventUsage, Use: u})
	}
	if stop == StopEnd && toolCalls > 0 {
		stop = StopToolUse
	}
	sendEvent(ctx, events, Event{Type: EventDone, Stop: stop})
	return nil
}

func mapGeminiFinish(reason genai.FinishReason) StopReason {
	switch reason {
	case genai.FinishReasonMaxTokens:
		return StopLength
	default:
		return StopEnd
	}
}

func geminiUsage(meta *genai.GenerateContentResponseUsageMetadata) *Usage {
	if meta == nil {
		return nil
	}
	return &Usage{
		InputTokens:       int(meta.PromptTokenCount),
		OutputTokens:      int(meta.CandidatesTokenCount),
		CachedInputTokens: int(meta.CachedContentTokenCount),
	}
}

func collectSystemText(messages []Message) string {
	var system string
	for _, msg := range messages {
		if msg.Role != RoleSystem {
			continue
		}
		if text := collectText(msg); text != "" {
			if system != "" {
				system += "\n\n"
			}
			system += text
		}
	}
	return system
}

func buildGeminiContents(messages []Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			// Carried via SystemInstruction.
		case RoleUser:
			if content := buildGeminiContent(msg, genai.RoleUser); content != nil {
				contents = append(contents, content)
			}
		case RoleAssistant:
			if content := buildGeminiContent(msg, genai.RoleModel); content != nil {
				contents = append(contents, content)
			}
		case RoleTool:
			if content := buildGeminiToolResultContent(msg); content != nil {
				contents = append(contents, content)
			}
		}
	}
	return contents
}

func buildGeminiContent(msg Message, role genai.Role) *genai.Content {
	var parts []*genai.Part
	for _, part := range msg.Parts {
		switch part.Type {
		case PartText:
			if part.Text != "" {
				parts = append(parts, &genai.Part{Text: part.Text})
			}
		case PartToolCall:
			if part.ToolCall == nil {
				continue
			}
			parts = append(parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{
					ID:   part.ToolCall.ID,
					Name: part.ToolCall.Name,
					Args: toolArgsToMap(part.ToolCall.Arguments),
				},
			})
		case PartImage:
			if part.Image == nil {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(part.Image.Base64)
			if err != nil {
				continue
			}
			parts = append(parts, &genai.Part{
				InlineData: &genai.Blob{MIMEType: part.Image.MimeType, Data: data},
			})
		}
	}
	if len(parts) == 0 {
		return nil
	}
	return &genai.Content{Role: string(role), Parts: parts}
}

func buildGeminiToolResultContent(msg Message) *genai.Content {
	var parts []*genai.Part
	for _, part := range msg.Parts {
		if part.Type != PartToolResult || part.ToolResult == nil {
			continue
		}
		parts = append(parts, &genai.Part{
			FunctionResponse: &genai.FunctionResponse{
				ID:       part.ToolResult.ID,
				Name:     part.ToolResult.Name,
				Response: map[string]any{"output": part.ToolResult.Content},
			},
		})
	}
	if len(parts) == 0 {
		return nil
	}
	return &genai.Content{Role: string(genai.RoleUser), Parts: parts}
}

func buildGeminiTools(specs []ToolSpec) []*genai.Tool {
	declarations := make([]*genai.FunctionDeclaration, 0, len(specs))
	for _, spec := range specs {
		declarations = append(declarations, &genai.FunctionDeclaration{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  schemaToGenai(normalizeSchemaForGemini(spec.Schema)),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

// toolArgsToMap converts raw JSON arguments into the map form the Gemini API
// requires. Malformed arguments degrade to an empty map.
func toolArgsToMap(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil || args == nil {
		return map[string]any{}
	}
	return args
}
