// Package agent contains the agentic control loop, the tool registry and
// dispatcher, and the provider contract for language-model services.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
)

// Tool is the interface implemented by every directly invocable capability.
type Tool interface {
	// Name returns the tool's unique identifier used by the model.
	Name() string

	// Description returns a human-readable description of what the tool does.
	Description() string

	// Schema returns the JSON schema for the tool's parameters.
	Schema() json.RawMessage

	// Execute runs the tool with the given parameters. Tool failures are
	// reported through ToolResult.IsError, not the error return; a non-nil
	// error means the tool could not run at all.
	Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

// ToolResult is the outcome of a tool execution.
type ToolResult struct {
	// Content is the text handed back to the model.
	Content string `json:"content"`

	// Image carries screen captures returned to the model in place of text.
	Image *Image `json:"image,omitempty"`

	// IsError indicates the result describes a failure the model should
	// adapt to rather than successful output.
	IsError bool `json:"is_error,omitempty"`
}

// Image is an encoded image payload produced by a tool.
type Image struct {
	MediaType  string `json:"media_type"`
	DataBase64 string `json:"data_base64"`
}

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ToolCall is a model-issued request to invoke a named capability.
type ToolCall struct {
	// ID correlates this call with its result entry.
	ID string `json:"id"`

	// Name is the capability to invoke.
	Name string `json:"name"`

	// Input holds the structured arguments.
	Input json.RawMessage `json:"input"`
}

// ToolResultEntry answers one ToolCall, correlated by CallID.
type ToolResultEntry struct {
	CallID  string `json:"call_id"`
	Content string `json:"content"`
	Image   *Image `json:"image,omitempty"`
	IsError bool   `json:"is_error,omitempty"`
}

// Message is one entry in the conversation. A user message carries either
// the task text or tool results; an assistant message carries text and/or
// tool calls.
type Message struct {
	Role        Role              `json:"role"`
	Text        string            `json:"text,omitempty"`
	ToolCalls   []ToolCall        `json:"tool_calls,omitempty"`
	ToolResults []ToolResultEntry `json:"tool_results,omitempty"`
}

// ToolSchema describes one catalog entry sent to the model.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// StopReason classifies how the model finished a turn.
type StopReason string

const (
	// StopEndTurn means the model considers the task response complete.
	StopEndTurn StopReason = "end_turn"

	// StopToolUse means the model requested one or more tool calls.
	StopToolUse StopReason = "tool_use"

	// StopOther covers every other stop condition (max tokens, refusals).
	StopOther StopReason = "other"
)

// CompletionRequest is one model-service call: system instructions, the full
// tool catalog, and the conversation so far.
type CompletionRequest struct {
	System      string
	Messages    []Message
	Tools       []ToolSchema
	MaxTokens   int
	Temperature float64
}

// Completion is the model's response for one turn.
type Completion struct {
	StopReason StopReason

	// RawStopReason preserves the provider's own stop value for logging.
	RawStopReason string

	// Text is the concatenation of all free-text content blocks.
	Text string

	// ToolCalls lists requested invocations in the order the model
	// emitted them.
	ToolCalls []ToolCall
}

// LLMProvider is the language-model service contract. One Complete call
// corresponds to one turn.
type LLMProvider interface {
	Name() string
	Complete(ctx context.Context, req *CompletionRequest) (*Completion, error)
}

// ProviderError wraps failures from a model provider with enough context to
// classify them. Provider errors are fatal to the current run.
type ProviderError struct {
	Provider string
	Message  string
	Cause    error
}

func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s provider: %s: %v", e.Provider, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s provider: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}
