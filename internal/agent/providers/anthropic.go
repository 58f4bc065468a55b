// Package providers contains language-model service implementations of the
// agent.LLMProvider contract.
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/haasonsaas/operator/internal/agent"
	"github.com/haasonsaas/operator/internal/backoff"
)

// AnthropicConfig configures the Anthropic provider.
type AnthropicConfig struct {
	// APIKey is the Anthropic API key. Required.
	APIKey string

	// BaseURL overrides the API endpoint, e.g. for proxies. Optional.
	BaseURL string

	// Model is the model ID used for every request.
	Model string

	// MaxRetries is the number of retry attempts for transient failures.
	MaxRetries int

	// RetryDelay is the initial delay between retries; it grows
	// exponentially with jitter per attempt.
	RetryDelay time.Duration

	// Timeout bounds a single API call.
	Timeout time.Duration
}

// AnthropicProvider implements agent.LLMProvider against the Anthropic
// Messages API. One Complete call is one non-streaming messages.create.
type AnthropicProvider struct {
	client     anthropic.Client
	model      string
	maxRetries int
	backoff    backoff.Policy
	timeout    time.Duration
	logger     *slog.Logger
}

// NewAnthropicProvider creates a provider from config.
func NewAnthropicProvider(config AnthropicConfig, logger *slog.Logger) (*AnthropicProvider, error) {
	if config.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if config.Model == "" {
		config.Model = "claude-sonnet-4-20250514"
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	policy := backoff.DefaultPolicy()
	if config.RetryDelay > 0 {
		policy.Initial = config.RetryDelay
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	options := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if strings.TrimSpace(config.BaseURL) != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}

	return &AnthropicProvider{
		client:     anthropic.NewClient(options...),
		model:      config.Model,
		maxRetries: config.MaxRetries,
		backoff:    policy,
		timeout:    config.Timeout,
		logger:     logger.With("component", "anthropic"),
	}, nil
}

func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Complete sends one turn to the Messages API and classifies the response.
// Transient failures (rate limits, overload, 5xx) are retried with
// exponential backoff up to maxRetries; everything else fails immediately.
func (p *AnthropicProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (*agent.Completion, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, p.wrapError(err)
	}

	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			delay := p.backoff.Delay(attempt)
			p.logger.Warn("retrying model call",
				"attempt", attempt,
				"delay", delay,
				"error", lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, p.wrapError(ctx.Err())
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, p.timeout)
		message, err := p.client.Messages.New(callCtx, *params)
		cancel()
		if err != nil {
			lastErr = err
			if isRetryableError(err) {
				continue
			}
			return nil, p.wrapError(err)
		}
		return p.convertResponse(message), nil
	}
	return nil, p.wrapError(fmt.Errorf("all %d retries exhausted: %w", p.maxRetries, lastErr))
}

func (p *AnthropicProvider) buildParams(req *agent.CompletionRequest) (*anthropic.MessageNewParams, error) {
	messages, err := convertMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	tools, err := convertTools(req.Tools)
	if err != nil {
		return nil, err
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := &anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(maxTokens),
		Messages:  messages,
		Tools:     tools,
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	return params, nil
}

func (p *AnthropicProvider) convertResponse(message *anthropic.Message) *agent.Completion {
	completion := &agent.Completion{
		RawStopReason: string(message.StopReason),
	}

	var textParts []string
	for _, block := range message.Content {
		switch block.Type {
		case "text":
			textParts = append(textParts, block.Text)
		case "tool_use":
			toolUse := block.AsToolUse()
			completion.ToolCalls = append(completion.ToolCalls, agent.ToolCall{
				ID:    toolUse.ID,
				Name:  toolUse.Name,
				Input: toolUse.Input,
			})
		}
	}
	completion.Text = strings.Join(textParts, "\n")

	switch message.StopReason {
	case anthropic.StopReasonEndTurn:
		completion.StopReason = agent.StopEndTurn
	case anthropic.StopReasonToolUse:
		completion.StopReason = agent.StopToolUse
	default:
		completion.StopReason = agent.StopOther
	}
	return completion
}

func convertMessages(messages []agent.Message) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam
	for _, msg := range messages {
		var content []anthropic.ContentBlockParamUnion

		if msg.Text != "" {
			content = append(content, anthropic.NewTextBlock(msg.Text))
		}
		for _, entry := range msg.ToolResults {
			content = append(content, convertToolResult(entry))
		}
		for _, call := range msg.ToolCalls {
			var input map[string]any
			if err := json.Unmarshal(call.Input, &input); err != nil {
				return nil, fmt.Errorf("invalid tool call input: %w", err)
			}
			content = append(content, anthropic.NewToolUseBlock(call.ID, input, call.Name))
		}

		if msg.Role == agent.RoleAssistant {
			result = append(result, anthropic.NewAssistantMessage(content...))
		} else {
			result = append(result, anthropic.NewUserMessage(content...))
		}
	}
	return result, nil
}

func convertToolResult(entry agent.ToolResultEntry) anthropic.ContentBlockParamUnion {
	if entry.Image == nil {
		return anthropic.NewToolResultBlock(entry.CallID, entry.Content, entry.IsError)
	}

	block := anthropic.ToolResultBlockParam{
		ToolUseID: entry.CallID,
		Content: []anthropic.ToolResultBlockParamContentUnion{
			{
				OfImage: &anthropic.ImageBlockParam{
					Source: anthropic.ImageBlockParamSourceUnion{
						OfBase64: &anthropic.Base64ImageSourceParam{
							Data:      entry.Image.DataBase64,
							MediaType: mediaType(entry.Image.MediaType),
						},
					},
				},
			},
		},
	}
	if entry.IsError {
		block.IsError = anthropic.Bool(true)
	}
	return anthropic.ContentBlockParamUnion{OfToolResult: &block}
}

func mediaType(mt string) anthropic.Base64ImageSourceMediaType {
	switch mt {
	case "image/jpeg":
		return anthropic.Base64ImageSourceMediaTypeImageJPEG
	case "image/gif":
		return anthropic.Base64ImageSourceMediaTypeImageGIF
	case "image/webp":
		return anthropic.Base64ImageSourceMediaTypeImageWebP
	default:
		return anthropic.Base64ImageSourceMediaTypeImagePNG
	}
}

func convertTools(tools []agent.ToolSchema) ([]anthropic.ToolUnionParam, error) {
	var result []anthropic.ToolUnionParam
	for _, tool := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(tool.InputSchema, &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", tool.Name, err)
		}

		toolParam := anthropic.ToolUnionParamOfTool(schema, tool.Name)
		if toolParam.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s: missing tool definition", tool.Name)
		}
		toolParam.OfTool.Description = anthropic.String(tool.Description)
		result = append(result, toolParam)
	}
	return result, nil
}

func (p *AnthropicProvider) wrapError(err error) error {
	return &agent.ProviderError{
		Provider: "anthropic",
		Message:  "completion failed",
		Cause:    err,
	}
}

// isRetryableError reports whether the failure is transient. The SDK does
// not expose a stable error taxonomy, so this matches on message text.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"rate limit",
		"rate_limit",
		"overloaded",
		"429",
		"500",
		"502",
		"503",
		"529",
		"timeout",
		"connection reset",
		"temporarily unavailable",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
