// Package llm provides the Anthropic Messages API client used for all
// model calls: the tool-orchestration passes and conversation summarization.
package llm

import (
	"log/slog"
	"strings"
)

// LevelTrace is below Debug, used for wire-level payload logging.
const LevelTrace = slog.Level(-8)

// ContentBlock is a single content item in a message. The Type field
// discriminates: "text", "tool_use", "tool_result", and server-tool
// result types the model may emit.
type ContentBlock struct {
	Type      string         `json:"type"`
	Text      string         `json:"text,omitempty"`
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Input     map[string]any `json:"input,omitempty"`
	ToolUseID string         `json:"tool_use_id,omitempty"`
	Content   string         `json:"content,omitempty"` // tool_result payload
	IsError   bool           `json:"is_error,omitempty"`
}

// TextBlock builds a plain text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: "text", Text: text}
}

// ToolResultBlock builds a tool_result block correlated to the
// originating tool_use ID.
func ToolResultBlock(toolUseID, content string, isError bool) ContentBlock {
	return ContentBlock{
		Type:      "tool_result",
		ToolUseID: toolUseID,
		Content:   content,
		IsError:   isError,
	}
}

// Message is one conversation message: a role and ordered content blocks.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// UserText builds a user message with a single text block.
func UserText(text string) Message {
	return Message{Role: "user", Content: []ContentBlock{TextBlock(text)}}
}

// Tool is a tool definition offered to the model. Client and MCP tools
// set Name, Description, and InputSchema. Server tools (executed by the
// API itself, like web search) set Type and optionally MaxUses instead.
type Tool struct {
	Name        string         `json:"name,omitempty"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
	Type        string         `json:"type,omitempty"`
	MaxUses     int            `json:"max_uses,omitempty"`
}

// Request is one Messages API call.
type Request struct {
	Model       string
	MaxTokens   int
	Temperature float64
	System      string
	Messages    []Message
	Tools       []Tool
}

// Response is the model's reply to a blocking request.
type Response struct {
	ID           string
	Content      []ContentBlock
	StopReason   string
	InputTokens  int
	OutputTokens int
}

// Text joins all text blocks in the response content.
func (r *Response) Text() string {
	var b strings.Builder
	for _, block := range r.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return strings.TrimSpace(b.String())
}

// ToolUses returns the tool_use blocks in content order.
func (r *Response) ToolUses() []ContentBlock {
	var uses []ContentBlock
	for _, block := range r.Content {
		if block.Type == "tool_use" {
			uses = append(uses, block)
		}
	}
	return uses
}
