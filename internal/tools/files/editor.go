// Package files exposes workspace file operations: view, create,
// string replacement, and line insertion.
package files

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/haasonsaas/operator/internal/agent"
	"github.com/haasonsaas/operator/internal/compute"
)

const schemaJSON = `{
  "type": "object",
  "properties": {
    "command": {
      "type": "string",
      "enum": ["view", "create", "str_replace", "insert", "undo_edit"],
      "description": "The editor operation to perform"
    },
    "path": {
      "type": "string",
      "description": "Path to the file, relative to the workspace"
    },
    "file_text": {
      "type": "string",
      "description": "Full file content for create"
    },
    "old_str": {
      "type": "string",
      "description": "Exact string to replace; must occur exactly once"
    },
    "new_str": {
      "type": "string",
      "description": "Replacement or inserted text"
    },
    "insert_line": {
      "type": "integer",
      "description": "Line number after which to insert"
    },
    "view_range": {
      "type": "array",
      "items": {"type": "integer"},
      "minItems": 2,
      "maxItems": 2,
      "description": "[start, end] line range for view"
    }
  },
  "required": ["command", "path"]
}`

// Tool edits files in the session workspace through the environment's file
// endpoints.
type Tool struct {
	client   *compute.Client
	resolver *Resolver
}

func New(client *compute.Client, workspaceRoot string) *Tool {
	return &Tool{client: client, resolver: NewResolver(workspaceRoot)}
}

func (t *Tool) Name() string {
	return "str_replace_editor"
}

func (t *Tool) Description() string {
	return "View, create, and edit files in the workspace. str_replace requires the target string to occur exactly once."
}

func (t *Tool) Schema() json.RawMessage {
	return json.RawMessage(schemaJSON)
}

type input struct {
	Command    string `json:"command"`
	Path       string `json:"path"`
	FileText   string `json:"file_text"`
	OldStr     string `json:"old_str"`
	NewStr     string `json:"new_str"`
	InsertLine int    `json:"insert_line"`
	ViewRange  []int  `json:"view_range"`
}

func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var in input
	if err := json.Unmarshal(params, &in); err != nil {
		return toolError("invalid editor parameters: %v", err)
	}

	path, err := t.resolver.Resolve(in.Path)
	if err != nil {
		return toolError("%v", err)
	}

	switch in.Command {
	case "view":
		return t.view(ctx, path, in.ViewRange)
	case "create":
		return t.create(ctx, path, in.FileText)
	case "str_replace":
		return t.strReplace(ctx, path, in.OldStr, in.NewStr)
	case "insert":
		return t.insert(ctx, path, in.InsertLine, in.NewStr)
	case "undo_edit":
		return &agent.ToolResult{Content: "Undo is not supported. Please manually revert changes."}, nil
	default:
		return toolError("unknown editor command: %s", in.Command)
	}
}

func (t *Tool) view(ctx context.Context, path string, viewRange []int) (*agent.ToolResult, error) {
	content, fail := t.read(ctx, path)
	if fail != nil {
		return fail, nil
	}

	lines := strings.Split(content, "\n")
	start, end := 1, len(lines)
	if len(viewRange) == 2 {
		if viewRange[0] > 0 {
			start = viewRange[0]
		}
		if viewRange[1] >= start && viewRange[1] <= len(lines) {
			end = viewRange[1]
		}
		if start > len(lines) {
			return toolError("view range start %d is past end of file (%d lines)", start, len(lines))
		}
	}

	var b strings.Builder
	for i := start; i <= end; i++ {
		fmt.Fprintf(&b, "%4d\t%s", i, lines[i-1])
		if i < end {
			b.WriteByte('\n')
		}
	}
	return &agent.ToolResult{Content: b.String()}, nil
}

func (t *Tool) create(ctx context.Context, path, fileText string) (*agent.ToolResult, error) {
	if err := t.client.FileWrite(ctx, path, fileText); err != nil {
		return toolError("write failed: %v", err)
	}
	return &agent.ToolResult{Content: fmt.Sprintf("Created file: %s", path)}, nil
}

func (t *Tool) strReplace(ctx context.Context, path, oldStr, newStr string) (*agent.ToolResult, error) {
	if oldStr == "" {
		return toolError("old_str is required")
	}
	content, fail := t.read(ctx, path)
	if fail != nil {
		return fail, nil
	}

	count := strings.Count(content, oldStr)
	if count == 0 {
		return toolError("String not found in file:\n%s", oldStr)
	}
	if count > 1 {
		return toolError("String appears %d times. Please provide more context to make it unique.", count)
	}

	updated := strings.Replace(content, oldStr, newStr, 1)
	if err := t.client.FileWrite(ctx, path, updated); err != nil {
		return toolError("write failed: %v", err)
	}
	return &agent.ToolResult{Content: fmt.Sprintf("Successfully replaced text in %s", path)}, nil
}

func (t *Tool) insert(ctx context.Context, path string, insertLine int, newStr string) (*agent.ToolResult, error) {
	content, fail := t.read(ctx, path)
	if fail != nil {
		return fail, nil
	}

	lines := strings.Split(content, "\n")
	switch {
	case insertLine <= 0:
		lines = append([]string{newStr}, lines...)
	case insertLine >= len(lines):
		lines = append(lines, newStr)
	default:
		lines = append(lines[:insertLine], append([]string{newStr}, lines[insertLine:]...)...)
	}

	if err := t.client.FileWrite(ctx, path, strings.Join(lines, "\n")); err != nil {
		return toolError("write failed: %v", err)
	}
	return &agent.ToolResult{Content: fmt.Sprintf("Inserted text at line %d in %s", insertLine, path)}, nil
}

// read fetches the file, converting misses and transport failures into an
// error tool result. A non-nil second return value is the failure to hand
// back to the model.
func (t *Tool) read(ctx context.Context, path string) (string, *agent.ToolResult) {
	content, err := t.client.FileRead(ctx, path)
	if err != nil {
		var nf *compute.FileNotFoundError
		if errors.As(err, &nf) {
			return "", &agent.ToolResult{Content: fmt.Sprintf("File not found: %s", path), IsError: true}
		}
		return "", &agent.ToolResult{Content: fmt.Sprintf("read failed: %v", err), IsError: true}
	}
	return content, nil
}

func toolError(format string, args ...any) (*agent.ToolResult, error) {
	return &agent.ToolResult{Content: fmt.Sprintf(format, args...), IsError: true}, nil
}
