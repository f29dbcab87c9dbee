package llm

import (
	"fmt"
	"strings"
)

// WindowConfig bounds the outbound request window. Zero values disable the
// corresponding rule.
type WindowConfig struct {
	MaxTurns        int // most recent non-system turns to keep
	ToolResultLimit int // max chars for tool results outside the latest tool turn
	ToolArgLimit    int // max chars for tool-call arguments outside the latest round
	ImageTurns      int // image-bearing turns to keep images in
}

func DefaultWindowConfig() WindowConfig {
	return WindowConfig{
		MaxTurns:        40,
		ToolResultLimit: 8000,
		ToolArgLimit:    2000,
		ImageTurns:      2,
	}
}

const (
	resultTruncatedMarker = "\n[output truncated]"
	argsTruncatedMarker   = `{"note":"arguments truncated"}`
	imageStrippedMarker   = "[image omitted from context]"
)

// BuildWindow produces the outbound message window from full history:
// system messages always survive, only the most recent MaxTurns other turns
// are kept, call/result pair integrity is repaired, and older tool results,
// tool-call arguments, and images are shrunk. The input is never mutated and
// re-applying the trim to its own output changes nothing.
func BuildWindow(history []Message, cfg WindowConfig) []Message {
	if len(history) == 0 {
		return nil
	}

	var system, rest []Message
	for _, msg := range history {
		if msg.Role == RoleSystem {
			system = append(system, msg)
		} else {
			rest = append(rest, msg)
		}
	}
	if cfg.MaxTurns > 0 && len(rest) > cfg.MaxTurns {
		rest = rest[len(rest)-cfg.MaxTurns:]
	}

	window := sanitizeToolHistory(append(cloneMessages(system), cloneMessages(rest)...))
	truncateOldToolResults(window, cfg.ToolResultLimit)
	truncateOldToolArgs(window, cfg.ToolArgLimit)
	stripOldImages(window, cfg.ImageTurns)
	return window
}

type toolCallRef struct {
	messageIndex int
	partIndex    int
}

// sanitizeToolHistory removes dangling tool calls and orphan tool results,
// preserving non-tool content while enforcing call/result pair integrity.
// Messages are assumed to be owned by the caller (already cloned).
func sanitizeToolHistory(messages []Message) []Message {
	if len(messages) == 0 {
		return nil
	}

	sanitized := make([]Message, 0, len(messages))
	pendingCalls := make(map[string][]toolCallRef)
	matchedCalls := make(map[int]map[int]bool)

	for _, msg := range messages {
		switch msg.Role {
		case RoleAssistant:
			assistantIndex := len(sanitized)
			parts := make([]Part, 0, len(msg.Parts))

			for _, part := range msg.Parts {
				if part.Type == PartToolCall {
					callID := ""
					if part.ToolCall != nil {
						callID = strings.TrimSpace(part.ToolCall.ID)
					}
					if callID == "" {
						continue
					}
					partIndex := len(parts)
					parts = append(parts, part)
					pendingCalls[callID] = append(pendingCalls[callID], toolCallRef{
						messageIndex: assistantIndex,
						partIndex:    partIndex,
					})
					continue
				}
				parts = append(parts, part)
			}

			if len(parts) > 0 {
				sanitized = append(sanitized, Message{Role: msg.Role, Parts: parts, CreatedAt: msg.CreatedAt})
			}

		case RoleTool:
			parts := make([]Part, 0, len(msg.Parts))

			for _, part := range msg.Parts {
				if part.Type != PartToolResult {
					parts = append(parts, part)
					continue
				}

				resultID := ""
				if part.ToolResult != nil {
					resultID = strings.TrimSpace(part.ToolResult.ID)
				}
				if resultID == "" {
					continue
				}

				refs := pendingCalls[resultID]
				if len(refs) == 0 {
					// Orphan result: its call fell out of the window.
					continue
				}

				ref := refs[0]
				if len(refs) == 1 {
					delete(pendingCalls, resultID)
				} else {
					pendingCalls[resultID] = refs[1:]
				}

				if matchedCalls[ref.messageIndex] == nil {
					matchedCalls[ref.messageIndex] = make(map[int]bool)
				}
				matchedCalls[ref.messageIndex][ref.partIndex] = true

				parts = append(parts, part)
			}

			if len(parts) > 0 {
				sanitized = append(sanitized, Message{Role: msg.Role, Parts: parts, CreatedAt: msg.CreatedAt})
			}

		default:
			sanitized = append(sanitized, msg)
		}
	}

	finalMessages := make([]Message, 0, len(sanitized))
	for msgIndex, msg := range sanitized {
		if msg.Role != RoleAssistant {
			finalMessages = append(finalMessages, msg)
			continue
		}

		matches := matchedCalls[msgIndex]
		parts := make([]Part, 0, len(msg.Parts))
		for partIndex, part := range msg.Parts {
			if part.Type == PartToolCall {
				if matches == nil || !matches[partIndex] {
					// Dangling call with no result in the window. Convert to
					// text so the model still sees what it attempted; silently
					// dropping it causes 400s on strict providers.
					if part.ToolCall != nil {
						text := fmt.Sprintf("[tool call interrupted — id:%s name:%s]",
							part.ToolCall.ID, part.ToolCall.Name)
						parts = append(parts, Part{Type: PartText, Text: text})
					}
					continue
				}
			}
			parts = append(parts, part)
		}

		if len(parts) > 0 {
			finalMessages = append(finalMessages, Message{Role: msg.Role, Parts: parts, CreatedAt: msg.CreatedAt})
		}
	}

	return finalMessages
}

// truncateOldToolResults shrinks tool results above limit everywhere except
// the most recent tool turn, which the model may still need verbatim.
func truncateOldToolResults(messages []Message, limit int) {
	if limit <= 0 {
		return
	}
	lastTool := -1
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleTool {
			lastTool = i
			break
		}
	}
	for i := range messages {
		if i == lastTool || messages[i].Role != RoleTool {
			continue
		}
		for j := range messages[i].Parts {
			result := messages[i].Parts[j].ToolResult
			if result == nil || len(result.Content) <= limit {
				continue
			}
			if strings.HasSuffix(result.Content, resultTruncatedMarker) {
				continue
			}
			result.Content = result.Content[:limit] + resultTruncatedMarker
		}
	}
}

// truncateOldToolArgs replaces oversized tool-call arguments outside the most
// recent assistant tool round with a small marker object.
func truncateOldToolArgs(messages []Message, limit int) {
	if limit <= 0 {
		return
	}
	lastRound := -1
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleAssistant && hasToolCalls(messages[i]) {
			lastRound = i
			break
		}
	}
	for i := range messages {
		if i == lastRound || messages[i].Role != RoleAssistant {
			continue
		}
		for j := range messages[i].Parts {
			call := messages[i].Parts[j].ToolCall
			if call == nil || len(call.Arguments) <= limit {
				continue
			}
			call.Arguments = []byte(argsTruncatedMarker)
		}
	}
}

// stripOldImages drops inline image data from all but the keep most recent
// image-bearing turns, leaving a text marker in place.
func stripOldImages(messages []Message, keep int) {
	if keep <= 0 {
		return
	}
	imageTurns := 0
	for i := len(messages) - 1; i >= 0; i-- {
		if !hasImages(messages[i]) {
			continue
		}
		imageTurns++
		if imageTurns <= keep {
			continue
		}
		for j := range messages[i].Parts {
			if messages[i].Parts[j].Type == PartImage {
				messages[i].Parts[j] = Part{Type: PartText, Text: imageStrippedMarker}
			}
		}
	}
}

func hasToolCalls(msg Message) bool {
	for _, part := range msg.Parts {
		if part.Type == PartToolCall && part.ToolCall != nil {
			return true
		}
	}
	return false
}

func hasImages(msg Message) bool {
	for _, part := range msg.Parts {
		if part.Type == PartImage && part.Image != nil {
			return true
		}
	}
	return false
}
