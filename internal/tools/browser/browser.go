// Package browser exposes page-level web automation in the compute
// environment.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/haasonsaas/operator/internal/agent"
	"github.com/haasonsaas/operator/internal/compute"
)

const schemaJSON = `{
  "type": "object",
  "properties": {
    "action": {
      "type": "string",
      "enum": ["navigate", "click", "type", "screenshot", "scroll", "get_content", "wait", "go_back", "go_forward", "refresh"],
      "description": "The browser action to perform"
    },
    "params": {
      "type": "object",
      "description": "Parameters for the action"
    }
  },
  "required": ["action"]
}`

const description = `Control a web browser for navigation and interaction.

Actions:
- navigate: Go to a URL. Params: {"url": "https://example.com"}
- click: Click element. Params: {"selector": "button.submit"} or {"x": 100, "y": 200} or {"text": "Click me"}
- type: Type text. Params: {"text": "hello", "selector": "#input"} (selector optional)
- screenshot: Take page screenshot. Params: {"full_page": false}
- scroll: Scroll page. Params: {"direction": "down", "amount": 500}
- get_content: Get page text/HTML. Params: {"text": true, "html": false, "links": false}
- wait: Wait for element or time. Params: {"selector": "#loaded"} or {"seconds": 2}
- go_back: Navigate back. No params.
- go_forward: Navigate forward. No params.
- refresh: Refresh page. No params.`

// Tool proxies browser actions to the compute environment.
type Tool struct {
	client *compute.Client

	// settleDelay is the pause after a successful navigation. Navigation
	// responses do not guarantee render completion, and the screenshots
	// that typically follow depend on it.
	settleDelay time.Duration
}

func New(client *compute.Client, settleDelay time.Duration) *Tool {
	if settleDelay <= 0 {
		settleDelay = time.Second
	}
	return &Tool{client: client, settleDelay: settleDelay}
}

func (t *Tool) Name() string {
	return "browser"
}

func (t *Tool) Description() string {
	return description
}

func (t *Tool) Schema() json.RawMessage {
	return json.RawMessage(schemaJSON)
}

type input struct {
	Action string         `json:"action"`
	Params map[string]any `json:"params"`
}

func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var in input
	if err := json.Unmarshal(params, &in); err != nil {
		return toolError("invalid browser parameters: %v", err)
	}
	if in.Action == "" {
		return toolError("action is required")
	}
	if in.Params == nil {
		in.Params = map[string]any{}
	}

	if in.Action == "navigate" {
		in.Params["wait_until"] = "domcontentloaded"
		if _, found := in.Params["timeout"]; !found {
			in.Params["timeout"] = 30000
		}
	}

	res, err := t.client.Browser(ctx, in.Action, in.Params)
	if err != nil {
		return toolError("browser %s failed: %v", in.Action, err)
	}

	if in.Action == "navigate" {
		select {
		case <-time.After(t.settleDelay):
		case <-ctx.Done():
			return toolError("navigation interrupted: %v", ctx.Err())
		}
	}

	return formatResult(in.Action, res.Data)
}

func formatResult(action string, data json.RawMessage) (*agent.ToolResult, error) {
	if len(data) == 0 {
		return &agent.ToolResult{Content: fmt.Sprintf("Browser action %s completed", action)}, nil
	}

	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err == nil {
		if img, found := payload["image_base64"].(string); found {
			return &agent.ToolResult{
				Content: "Page screenshot captured",
				Image:   &agent.Image{MediaType: "image/png", DataBase64: img},
			}, nil
		}
	}

	pretty, err := json.MarshalIndent(json.RawMessage(data), "", "  ")
	if err != nil {
		pretty = data
	}
	return &agent.ToolResult{Content: string(pretty)}, nil
}

func toolError(format string, args ...any) (*agent.ToolResult, error) {
	return &agent.ToolResult{Content: fmt.Sprintf(format, args...), IsError: true}, nil
}
