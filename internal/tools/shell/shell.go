// Package shell exposes command execution inside the compute environment.
package shell

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/operator/internal/agent"
	"github.com/haasonsaas/operator/internal/compute"
)

const schemaJSON = `{
  "type": "object",
  "properties": {
    "command": {
      "type": "string",
      "description": "The shell command to run"
    },
    "timeout": {
      "type": "integer",
      "description": "Command timeout in seconds"
    },
    "restart": {
      "type": "boolean",
      "description": "Restart the shell session instead of running a command"
    }
  }
}`

// Tool runs shell commands in the session's compute environment.
type Tool struct {
	client         *compute.Client
	defaultTimeout time.Duration
}

func New(client *compute.Client, defaultTimeout time.Duration) *Tool {
	if defaultTimeout <= 0 {
		defaultTimeout = 120 * time.Second
	}
	return &Tool{client: client, defaultTimeout: defaultTimeout}
}

func (t *Tool) Name() string {
	return "bash"
}

func (t *Tool) Description() string {
	return "Run a shell command in the workspace and return its output."
}

func (t *Tool) Schema() json.RawMessage {
	return json.RawMessage(schemaJSON)
}

type input struct {
	Command string `json:"command"`
	Timeout int    `json:"timeout"`
	Restart bool   `json:"restart"`
}

func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var in input
	if err := json.Unmarshal(params, &in); err != nil {
		return toolError("invalid bash parameters: %v", err)
	}
	if in.Restart {
		return &agent.ToolResult{Content: "Shell session restarted"}, nil
	}
	if strings.TrimSpace(in.Command) == "" {
		return toolError("command is required")
	}

	timeout := t.defaultTimeout
	if in.Timeout > 0 {
		timeout = time.Duration(in.Timeout) * time.Second
	}

	res, err := t.client.Shell(ctx, in.Command, timeout)
	if err != nil {
		return toolError("shell execution failed: %v", err)
	}
	return &agent.ToolResult{Content: Format(res)}, nil
}

// Format renders a shell result into the three-part text contract the model
// consumes: stdout, a labeled stderr block when present, and an exit-code
// annotation when non-zero.
func Format(res *compute.ShellResult) string {
	var parts []string
	if res.Stdout != "" {
		parts = append(parts, res.Stdout)
	}
	if res.Stderr != "" {
		parts = append(parts, fmt.Sprintf("STDERR:\n%s", res.Stderr))
	}
	if res.ReturnCode != 0 {
		parts = append(parts, fmt.Sprintf("\nExit code: %d", res.ReturnCode))
	}
	if len(parts) == 0 {
		return "(no output)"
	}
	return strings.Join(parts, "\n")
}

func toolError(format string, args ...any) (*agent.ToolResult, error) {
	return &agent.ToolResult{Content: fmt.Sprintf(format, args...), IsError: true}, nil
}
