// Package compute provides the HTTP client for an ephemeral compute
// environment's fixed tool surface: shell execution, screenshots,
// pointer/keyboard and browser control, and workspace file access.
package compute

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client talks to one compute environment. An environment is exclusively
// owned by a single session; clients are never shared.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the environment at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the environment address this client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Screenshot captures the current screen.
type Screenshot struct {
	ImageBase64 string `json:"image_base64"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
}

func (c *Client) Screenshot(ctx context.Context) (*Screenshot, error) {
	var out Screenshot
	if err := c.do(ctx, http.MethodGet, "/tools/screenshot", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ShellResult is the raw outcome of a shell command.
type ShellResult struct {
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ReturnCode int    `json:"return_code"`
}

func (c *Client) Shell(ctx context.Context, command string, timeout time.Duration) (*ShellResult, error) {
	req := map[string]any{
		"command": command,
		"timeout": int(timeout.Seconds()),
	}
	var out ShellResult
	if err := c.do(ctx, http.MethodPost, "/tools/bash", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BrowserResult is the environment's response to a browser or input action.
type BrowserResult struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Browser performs one pointer, keyboard, or navigation action.
func (c *Client) Browser(ctx context.Context, action string, params map[string]any) (*BrowserResult, error) {
	req := map[string]any{
		"action": action,
		"params": params,
	}
	var out BrowserResult
	if err := c.do(ctx, http.MethodPost, "/tools/browser", req, &out); err != nil {
		return nil, err
	}
	if out.Status == "error" || out.Error != "" {
		return nil, fmt.Errorf("browser action %s: %s", action, out.Error)
	}
	return &out, nil
}

// FileNotFoundError reports a read of a path that does not exist in the
// environment's workspace.
type FileNotFoundError struct {
	Path string
}

func (e *FileNotFoundError) Error() string {
	return fmt.Sprintf("file not found: %s", e.Path)
}

func (c *Client) FileRead(ctx context.Context, path string) (string, error) {
	req := map[string]any{"path": path}
	var out struct {
		Content string `json:"content"`
	}
	if err := c.do(ctx, http.MethodPost, "/tools/file/read", req, &out); err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return "", &FileNotFoundError{Path: path}
		}
		return "", err
	}
	return out.Content, nil
}

func (c *Client) FileWrite(ctx context.Context, path, content string) error {
	req := map[string]any{"path": path, "content": content}
	return c.do(ctx, http.MethodPost, "/tools/file/write", req, nil)
}

// Health probes the environment's readiness endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// StatusError is a non-2xx response from the environment.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("compute environment returned %d: %s", e.Code, e.Body)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("compute environment request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
