package providers

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/haasonsaas/operator/internal/agent"
)

func TestNewAnthropicProviderRequiresKey(t *testing.T) {
	if _, err := NewAnthropicProvider(AnthropicConfig{}, nil); err == nil {
		t.Error("expected error for missing API key")
	}
	if _, err := NewAnthropicProvider(AnthropicConfig{APIKey: "sk-test"}, nil); err != nil {
		t.Errorf("NewAnthropicProvider() error = %v", err)
	}
}

func TestConvertMessages(t *testing.T) {
	msgs := []agent.Message{
		{Role: agent.RoleUser, Text: "list files"},
		{
			Role: agent.RoleAssistant,
			Text: "running ls",
			ToolCalls: []agent.ToolCall{
				{ID: "call_1", Name: "bash", Input: json.RawMessage(`{"command":"ls"}`)},
			},
		},
		{
			Role: agent.RoleUser,
			ToolResults: []agent.ToolResultEntry{
				{CallID: "call_1", Content: "file.txt"},
			},
		},
	}

	converted, err := convertMessages(msgs)
	if err != nil {
		t.Fatalf("convertMessages() error = %v", err)
	}
	if len(converted) != 3 {
		t.Fatalf("got %d messages, want 3", len(converted))
	}
	if string(converted[0].Role) != "user" {
		t.Errorf("role[0] = %q", converted[0].Role)
	}
	if string(converted[1].Role) != "assistant" {
		t.Errorf("role[1] = %q", converted[1].Role)
	}
	if len(converted[1].Content) != 2 {
		t.Errorf("assistant blocks = %d, want text + tool_use", len(converted[1].Content))
	}
}

func TestConvertMessagesRejectsBadToolInput(t *testing.T) {
	msgs := []agent.Message{
		{
			Role:      agent.RoleAssistant,
			ToolCalls: []agent.ToolCall{{ID: "c", Name: "bash", Input: json.RawMessage(`{broken`)}},
		},
	}
	if _, err := convertMessages(msgs); err == nil {
		t.Error("expected error for malformed tool input")
	}
}

func TestConvertToolResultWithImage(t *testing.T) {
	entry := agent.ToolResultEntry{
		CallID: "call_1",
		Image:  &agent.Image{MediaType: "image/png", DataBase64: "aGVsbG8="},
	}
	block := convertToolResult(entry)
	if block.OfToolResult == nil {
		t.Fatal("expected tool result block")
	}
	content := block.OfToolResult.Content
	if len(content) != 1 || content[0].OfImage == nil {
		t.Fatalf("content = %+v, want one image block", content)
	}
	if content[0].OfImage.Source.OfBase64.Data != "aGVsbG8=" {
		t.Errorf("image data = %q", content[0].OfImage.Source.OfBase64.Data)
	}
}

func TestConvertTools(t *testing.T) {
	tools := []agent.ToolSchema{
		{
			Name:        "bash",
			Description: "run a command",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"command":{"type":"string"}}}`),
		},
	}
	converted, err := convertTools(tools)
	if err != nil {
		t.Fatalf("convertTools() error = %v", err)
	}
	if len(converted) != 1 || converted[0].OfTool == nil {
		t.Fatalf("converted = %+v", converted)
	}
	if converted[0].OfTool.Name != "bash" {
		t.Errorf("name = %q", converted[0].OfTool.Name)
	}
}

func TestIsRetryableError(t *testing.T) {
	retryable := []string{
		"429 rate limit exceeded",
		"overloaded_error: Overloaded",
		"received 503 from upstream",
		"i/o timeout",
	}
	for _, msg := range retryable {
		if !isRetryableError(errors.New(msg)) {
			t.Errorf("isRetryableError(%q) = false, want true", msg)
		}
	}
	fatal := []string{
		"401 unauthorized",
		"invalid_request_error: max_tokens required",
	}
	for _, msg := range fatal {
		if isRetryableError(errors.New(msg)) {
			t.Errorf("isRetryableError(%q) = true, want false", msg)
		}
	}
	if isRetryableError(nil) {
		t.Error("nil must not be retryable")
	}
}
