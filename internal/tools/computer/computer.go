// Package computer exposes screen, pointer, and keyboard control over the
// compute environment's input surface.
package computer

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
      "enum": ["screenshot", "left_click", "right_click", "double_click", "mouse_move", "left_click_drag", "type", "key", "scroll", "wait"],
      "description": "The action to perform"
    },
    "coordinate": {
      "type": "array",
      "items": {"type": "integer"},
      "minItems": 2,
      "maxItems": 2,
      "description": "[x, y] pixel coordinate for pointer actions"
    },
    "start_coordinate": {
      "type": "array",
      "items": {"type": "integer"},
      "minItems": 2,
      "maxItems": 2,
      "description": "[x, y] drag start coordinate"
    },
    "text": {
      "type": "string",
      "description": "Text to type"
    },
    "key": {
      "type": "string",
      "description": "Key name to press, e.g. Return or Tab"
    },
    "direction": {
      "type": "string",
      "enum": ["up", "down", "left", "right"],
      "description": "Scroll direction"
    },
    "amount": {
      "type": "integer",
      "description": "Scroll amount in wheel units"
    }
  },
  "required": ["action"]
}`

// keyMapping translates model key names to the names the environment's
// input layer expects.
var keyMapping = map[string]string{
	"Return":    "Enter",
	"BackSpace": "Backspace",
	"space":     " ",
}

// scrollUnitPx converts one scroll unit to pixels.
const scrollUnitPx = 100

// Tool drives the desktop backing the session. All actions mutate one
// shared screen, so calls must stay strictly ordered.
type Tool struct {
	client *compute.Client
}

func New(client *compute.Client) *Tool {
	return &Tool{client: client}
}

func (t *Tool) Name() string {
	return "computer"
}

func (t *Tool) Description() string {
	return "Control the screen, mouse, and keyboard: take screenshots, click, type, press keys, and scroll."
}

func (t *Tool) Schema() json.RawMessage {
	return json.RawMessage(schemaJSON)
}

type input struct {
	Action          string `json:"action"`
	Coordinate      []int  `json:"coordinate"`
	StartCoordinate []int  `json:"start_coordinate"`
	Text            string `json:"text"`
	Key             string `json:"key"`
	Direction       string `json:"direction"`
	Amount          int    `json:"amount"`
}

func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var in input
	if err := json.Unmarshal(params, &in); err != nil {
		return toolError("invalid computer parameters: %v", err)
	}

	switch in.Action {
	case "screenshot":
		return t.screenshot(ctx)
	case "mouse_move":
		x, y := coord(in.Coordinate)
		return ok("Moved mouse to (%d, %d)", x, y)
	case "left_click":
		return t.click(ctx, in.Coordinate, "")
	case "right_click":
		return t.click(ctx, in.Coordinate, "right")
	case "double_click":
		return t.doubleClick(ctx, in.Coordinate)
	case "left_click_drag":
		sx, sy := coord(in.StartCoordinate)
		ex, ey := coord(in.Coordinate)
		return ok("Dragged from (%d, %d) to (%d, %d)", sx, sy, ex, ey)
	case "type":
		return t.typeText(ctx, in.Text)
	case "key":
		return t.pressKey(ctx, in.Key)
	case "scroll":
		return t.scroll(ctx, in.Direction, in.Amount)
	case "wait":
		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
			return toolError("wait interrupted: %v", ctx.Err())
		}
		return ok("Waited 1 second")
	default:
		return toolError("unknown computer action: %s", in.Action)
	}
}

func (t *Tool) screenshot(ctx context.Context) (*agent.ToolResult, error) {
	shot, err := t.client.Screenshot(ctx)
	if err != nil {
		return toolError("screenshot failed: %v", err)
	}
	return &agent.ToolResult{
		Content: fmt.Sprintf("Screenshot captured (%dx%d)", shot.Width, shot.Height),
		Image: &agent.Image{
			MediaType:  "image/png",
			DataBase64: shot.ImageBase64,
		},
	}, nil
}

func (t *Tool) click(ctx context.Context, coordinate []int, button string) (*agent.ToolResult, error) {
	x, y := coord(coordinate)
	params := map[string]any{"x": x, "y": y}
	if button != "" {
		params["button"] = button
	}
	if _, err := t.client.Browser(ctx, "click", params); err != nil {
		return toolError("click failed: %v", err)
	}
	if button == "right" {
		return ok("Right clicked at (%d, %d)", x, y)
	}
	return ok("Left clicked at (%d, %d)", x, y)
}

// doubleClick issues two discrete click requests; the input layer has no
// native double-click action.
func (t *Tool) doubleClick(ctx context.Context, coordinate []int) (*agent.ToolResult, error) {
	x, y := coord(coordinate)
	for i := 0; i < 2; i++ {
		if _, err := t.client.Browser(ctx, "click", map[string]any{"x": x, "y": y}); err != nil {
			return toolError("double click failed: %v", err)
		}
	}
	return ok("Double clicked at (%d, %d)", x, y)
}

func (t *Tool) typeText(ctx context.Context, text string) (*agent.ToolResult, error) {
	if _, err := t.client.Browser(ctx, "type", map[string]any{"text": text}); err != nil {
		return toolError("type failed: %v", err)
	}
	preview := text
	if len(preview) > 50 {
		preview = preview[:50] + "..."
	}
	return ok("Typed: %s", preview)
}

func (t *Tool) pressKey(ctx context.Context, key string) (*agent.ToolResult, error) {
	mapped := key
	if m, found := keyMapping[key]; found {
		mapped = m
	}
	// Multi-character names are sent in bracket notation so the input
	// layer treats them as named keys, not literal text.
	payload := mapped
	if len([]rune(mapped)) != 1 {
		payload = fmt.Sprintf("[%s]", mapped)
	}
	if _, err := t.client.Browser(ctx, "type", map[string]any{"text": payload}); err != nil {
		return toolError("key press failed: %v", err)
	}
	return ok("Pressed key: %s", key)
}

func (t *Tool) scroll(ctx context.Context, direction string, amount int) (*agent.ToolResult, error) {
	if direction == "" {
		direction = "down"
	}
	if amount <= 0 {
		amount = 3
	}
	params := map[string]any{
		"direction": direction,
		"amount":    amount * scrollUnitPx,
	}
	if _, err := t.client.Browser(ctx, "scroll", params); err != nil {
		return toolError("scroll failed: %v", err)
	}
	return ok("Scrolled %s", direction)
}

func coord(c []int) (int, int) {
	if len(c) < 2 {
		return 0, 0
	}
	return c[0], c[1]
}

func ok(format string, args ...any) (*agent.ToolResult, error) {
	return &agent.ToolResult{Content: fmt.Sprintf(format, args...)}, nil
}

func toolError(format string, args ...any) (*agent.ToolResult, error) {
	return &agent.ToolResult{Content: fmt.Sprintf(format, args...), IsError: true}, nil
}
