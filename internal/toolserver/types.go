// Package toolserver implements discovery and invocation of capabilities
// hosted by remote tool servers. Every server speaks the same two-method
// JSON-RPC contract: tools/list returns the server's catalog, tools/call
// invokes one capability by name.
package toolserver

import (
	"encoding/json"
	"fmt"
)

// ServerConfig describes one remote tool server.
type ServerConfig struct {
	// ID uniquely identifies the server within the registry.
	ID string

	// Name is a human-readable label used in logs.
	Name string

	// URL is the server's JSON-RPC endpoint.
	URL string

	// Enabled controls whether the server participates in discovery.
	Enabled bool

	// TimeoutSeconds bounds each RPC; zero means the default.
	TimeoutSeconds int

	// Headers are added to every request, e.g. for authentication.
	Headers map[string]string
}

// Validate checks the server configuration.
func (c *ServerConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("server id is required")
	}
	if c.Enabled && c.URL == "" {
		return fmt.Errorf("server %s: url is required", c.ID)
	}
	return nil
}

// Capability is one catalog entry advertised by a tool server.
type Capability struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ContentBlock is one element of a call result's content list.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// CallResult is the envelope returned by tools/call.
type CallResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// Text extracts the primary text block from the result.
func (r *CallResult) Text() string {
	for _, block := range r.Content {
		if block.Type == "text" && block.Text != "" {
			return block.Text
		}
	}
	return ""
}

// ListToolsResult is the payload of a tools/list response.
type ListToolsResult struct {
	Tools []Capability `json:"tools"`
}

// CallToolParams is the request payload for tools/call.
type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// JSONRPCRequest is a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// JSONRPCResponse is a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

// JSONRPCError is a JSON-RPC 2.0 error object.
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *JSONRPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}
