package toolserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultTimeout = 30 * time.Second

// Client wraps one tool server connection. Discovered capabilities are
// cached after Refresh and served from memory.
type Client struct {
	config     *ServerConfig
	httpClient *http.Client
	logger     *slog.Logger

	mu           sync.RWMutex
	capabilities []Capability
}

// NewClient creates a client for the given server.
func NewClient(config *ServerConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := defaultTimeout
	if config.TimeoutSeconds > 0 {
		timeout = time.Duration(config.TimeoutSeconds) * time.Second
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With("server", config.ID),
	}
}

// ID returns the server's registry identifier.
func (c *Client) ID() string {
	return c.config.ID
}

// Refresh fetches the server's capability catalog and caches it.
func (c *Client) Refresh(ctx context.Context) error {
	result, err := c.call(ctx, "tools/list", nil)
	if err != nil {
		return fmt.Errorf("list capabilities: %w", err)
	}

	var listed ListToolsResult
	if err := json.Unmarshal(result, &listed); err != nil {
		return fmt.Errorf("decode capability list: %w", err)
	}

	c.mu.Lock()
	c.capabilities = listed.Tools
	c.mu.Unlock()

	c.logger.Debug("refreshed capabilities", "count", len(listed.Tools))
	return nil
}

// Capabilities returns the cached catalog in discovery order.
func (c *Client) Capabilities() []Capability {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Capability, len(c.capabilities))
	copy(out, c.capabilities)
	return out
}

// Invoke calls one capability by name and returns its result envelope.
func (c *Client) Invoke(ctx context.Context, name string, arguments json.RawMessage) (*CallResult, error) {
	result, err := c.call(ctx, "tools/call", &CallToolParams{Name: name, Arguments: arguments})
	if err != nil {
		return nil, fmt.Errorf("invoke %s: %w", name, err)
	}

	var out CallResult
	if err := json.Unmarshal(result, &out); err != nil {
		return nil, fmt.Errorf("decode call result: %w", err)
	}
	return &out, nil
}

func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	rpcReq := &JSONRPCRequest{
		JSONRPC: "2.0",
		ID:      uuid.New().String(),
		Method:  method,
		Params:  params,
	}
	body, err := json.Marshal(rpcReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range c.config.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned %d", resp.StatusCode)
	}

	var rpcResp JSONRPCResponse
	if err := json.Unmarshal(data, &rpcResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	return rpcResp.Result, nil
}
