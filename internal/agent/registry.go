package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/operator/internal/observability"
	"github.com/haasonsaas/operator/internal/toolserver"
)

// UnknownCapabilityError reports a dispatch for a name no backend owns.
type UnknownCapabilityError struct {
	Name string
}

func (e *UnknownCapabilityError) Error() string {
	return fmt.Sprintf("unknown capability: %s", e.Name)
}

// Registry is the dispatcher: one flat namespace of invocable capabilities
// sourced from registered tool servers plus the fixed direct verb set.
//
// Routing order per invocation: a tool server that owns the name wins;
// otherwise the direct tool of that name; otherwise the call fails with
// UnknownCapabilityError. The namespace is read-mostly after startup.
type Registry struct {
	logger  *slog.Logger
	metrics *observability.Metrics
	servers *toolserver.Manager

	mu          sync.RWMutex
	direct      map[string]Tool
	directOrder []string
	schemas     map[string]*jsonschema.Schema
}

// NewRegistry creates a dispatcher. servers may be nil when no tool servers
// are configured, and metrics may be nil to disable instrumentation.
func NewRegistry(servers *toolserver.Manager, metrics *observability.Metrics, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:  logger.With("component", "registry"),
		metrics: metrics,
		servers: servers,
		direct:  make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// RegisterDirect adds a direct verb tool. The tool's schema is compiled once
// here and enforced on every dispatch.
func (r *Registry) RegisterDirect(tool Tool) error {
	name := tool.Name()
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("tool name is required")
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name+".json", strings.NewReader(string(tool.Schema()))); err != nil {
		return fmt.Errorf("add schema for %s: %w", name, err)
	}
	schema, err := compiler.Compile(name + ".json")
	if err != nil {
		return fmt.Errorf("compile schema for %s: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.direct[name]; exists {
		return fmt.Errorf("tool already registered: %s", name)
	}
	r.direct[name] = tool
	r.directOrder = append(r.directOrder, name)
	r.schemas[name] = schema
	return nil
}

// Schemas returns the aggregate catalog sent to the model: every tool
// server capability, then every direct verb not shadowed by one.
func (r *Registry) Schemas() []ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []ToolSchema
	shadowed := map[string]bool{}
	if r.servers != nil {
		for _, cap := range r.servers.Catalog() {
			out = append(out, ToolSchema{
				Name:        cap.Name,
				Description: cap.Description,
				InputSchema: cap.InputSchema,
			})
			shadowed[cap.Name] = true
		}
	}
	for _, name := range r.directOrder {
		if shadowed[name] {
			continue
		}
		tool := r.direct[name]
		out = append(out, ToolSchema{
			Name:        tool.Name(),
			Description: tool.Description(),
			InputSchema: tool.Schema(),
		})
	}
	return out
}

// Dispatch routes one tool call and always produces a result entry
// correlated to the call id. Dispatch failures of any kind come back as
// error-flagged entries, never as panics or process faults; the control
// loop treats server and direct failures uniformly.
func (r *Registry) Dispatch(ctx context.Context, call ToolCall) ToolResultEntry {
	start := time.Now()
	if r.servers != nil {
		if owner, found := r.servers.FindOwner(call.Name); found {
			entry := r.dispatchServer(ctx, call, owner)
			r.observe(call.Name, owner, time.Since(start), entry.IsError)
			return entry
		}
	}

	r.mu.RLock()
	tool, found := r.direct[call.Name]
	schema := r.schemas[call.Name]
	r.mu.RUnlock()

	if !found {
		err := &UnknownCapabilityError{Name: call.Name}
		r.logger.Warn("dispatch failed", "tool", call.Name, "error", err)
		r.observe(call.Name, "direct", time.Since(start), true)
		return errorEntry(call.ID, err.Error())
	}
	entry := r.dispatchDirect(ctx, call, tool, schema)
	r.observe(call.Name, "direct", time.Since(start), entry.IsError)
	return entry
}

// observe records one dispatch with the backend that handled it: the
// owning server id for server capabilities, "direct" otherwise.
func (r *Registry) observe(name, backend string, d time.Duration, isError bool) {
	if r.metrics == nil {
		return
	}
	status := "success"
	if isError {
		status = "error"
	}
	r.metrics.ToolDispatchCounter.WithLabelValues(name, backend, status).Inc()
	r.metrics.ToolDispatchDuration.WithLabelValues(name).Observe(d.Seconds())
}

func (r *Registry) dispatchServer(ctx context.Context, call ToolCall, owner string) ToolResultEntry {
	result, err := r.servers.Invoke(ctx, call.Name, call.Input)
	if err != nil {
		r.logger.Warn("tool server invocation failed",
			"tool", call.Name,
			"server", owner,
			"error", err)
		return errorEntry(call.ID, fmt.Sprintf("tool server error: %v", err))
	}
	return ToolResultEntry{
		CallID:  call.ID,
		Content: result.Text(),
		IsError: result.IsError,
	}
}

func (r *Registry) dispatchDirect(ctx context.Context, call ToolCall, tool Tool, schema *jsonschema.Schema) ToolResultEntry {
	params := call.Input
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}

	if schema != nil {
		var doc any
		if err := json.Unmarshal(params, &doc); err != nil {
			return errorEntry(call.ID, fmt.Sprintf("invalid arguments for %s: %v", call.Name, err))
		}
		if err := schema.Validate(doc); err != nil {
			return errorEntry(call.ID, fmt.Sprintf("arguments for %s failed validation: %v", call.Name, err))
		}
	}

	result, err := tool.Execute(ctx, params)
	if err != nil {
		r.logger.Warn("tool execution failed", "tool", call.Name, "error", err)
		return errorEntry(call.ID, fmt.Sprintf("tool execution error: %v", err))
	}
	return ToolResultEntry{
		CallID:  call.ID,
		Content: result.Content,
		Image:   result.Image,
		IsError: result.IsError,
	}
}

func errorEntry(callID, message string) ToolResultEntry {
	return ToolResultEntry{CallID: callID, Content: message, IsError: true}
}
