package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/haasonsaas/operator/internal/observability"
)

// Phase identifies where the loop is in its lifecycle.
type Phase string

const (
	PhaseInit      Phase = "init"
	PhaseAwaiting  Phase = "awaiting_response"
	PhaseToolUse   Phase = "tool_use"
	PhaseExecuting Phase = "executing"
	PhaseEndTurn   Phase = "end_turn"
	PhaseTurnLimit Phase = "turn_limit"
	PhaseFatal     Phase = "fatal"
)

// RunStatus is the terminal outcome of one run.
type RunStatus string

const (
	StatusCompleted RunStatus = "completed"
	StatusMaxTurns  RunStatus = "max_turns_reached"
	StatusError     RunStatus = "error"
)

// RunResult is what a run hands back to the caller.
type RunResult struct {
	Status RunStatus `json:"status"`

	// Result is the final answer text; on max_turns_reached it is the
	// last free text the model produced, on error a best-effort partial.
	Result string `json:"result"`

	// ToolCalls counts every dispatched call across all turns.
	ToolCalls int `json:"tool_calls"`

	// Turns counts model round trips consumed.
	Turns int `json:"turns"`

	// Error holds the failure message when Status is error.
	Error string `json:"error,omitempty"`
}

// LoopError wraps a fatal loop failure with its phase and turn.
type LoopError struct {
	Phase Phase
	Turn  int
	Cause error
}

func (e *LoopError) Error() string {
	return fmt.Sprintf("agent loop failed in phase %s (turn %d): %v", e.Phase, e.Turn, e.Cause)
}

func (e *LoopError) Unwrap() error {
	return e.Cause
}

// LoopConfig bounds one run.
type LoopConfig struct {
	SystemPrompt string
	MaxTurns     int
	MaxTokens    int
	Temperature  float64
}

// Loop drives the turn-based conversation with the model, dispatching the
// tool calls it requests and folding results back into the conversation.
type Loop struct {
	provider LLMProvider
	registry *Registry
	config   LoopConfig
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewLoop creates a loop. metrics may be nil.
func NewLoop(provider LLMProvider, registry *Registry, config LoopConfig, logger *slog.Logger, metrics *observability.Metrics) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	if config.MaxTurns <= 0 {
		config.MaxTurns = 10
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 4096
	}
	return &Loop{
		provider: provider,
		registry: registry,
		config:   config,
		logger:   logger.With("component", "loop"),
		metrics:  metrics,
	}
}

// Run executes one task to a terminal state. Model transport failures are
// fatal to the run and returned as the error; tool failures are folded
// back into the conversation as error-flagged results and never abort the
// loop. Conversation state lives only for the duration of the call.
func (l *Loop) Run(ctx context.Context, task string) (*RunResult, error) {
	messages := []Message{{Role: RoleUser, Text: task}}
	tools := l.registry.Schemas()

	result := &RunResult{Status: StatusError}
	lastText := ""

	l.logger.Info("run started", "max_turns", l.config.MaxTurns, "catalog_size", len(tools))

	for turn := 1; turn <= l.config.MaxTurns; turn++ {
		result.Turns = turn

		completion, err := l.complete(ctx, messages, tools)
		if err != nil {
			loopErr := &LoopError{Phase: PhaseAwaiting, Turn: turn, Cause: err}
			l.logger.Error("model call failed", "turn", turn, "error", err)
			result.Result = lastText
			result.Error = loopErr.Error()
			l.countRun(result.Status)
			return result, loopErr
		}

		if completion.Text != "" {
			lastText = completion.Text
		}

		switch completion.StopReason {
		case StopEndTurn:
			result.Status = StatusCompleted
			result.Result = completion.Text
			l.logger.Info("run completed", "turns", turn, "tool_calls", result.ToolCalls)
			l.countRun(result.Status)
			l.observeTurns(turn)
			return result, nil

		case StopToolUse:
			if len(completion.ToolCalls) == 0 {
				loopErr := &LoopError{Phase: PhaseToolUse, Turn: turn,
					Cause: fmt.Errorf("stop reason %s with no tool calls", completion.RawStopReason)}
				result.Result = lastText
				result.Error = loopErr.Error()
				l.countRun(result.Status)
				return result, loopErr
			}

			entries := l.executeTools(ctx, completion.ToolCalls)
			result.ToolCalls += len(completion.ToolCalls)

			messages = append(messages,
				Message{Role: RoleAssistant, Text: completion.Text, ToolCalls: completion.ToolCalls},
				Message{Role: RoleUser, ToolResults: entries},
			)

		default:
			loopErr := &LoopError{Phase: PhaseFatal, Turn: turn,
				Cause: fmt.Errorf("unexpected stop reason: %s", completion.RawStopReason)}
			l.logger.Error("unexpected stop reason",
				"turn", turn,
				"stop_reason", completion.RawStopReason)
			result.Result = lastText
			result.Error = loopErr.Error()
			l.countRun(result.Status)
			return result, loopErr
		}
	}

	result.Status = StatusMaxTurns
	result.Result = lastText
	result.Error = fmt.Sprintf("turn limit reached after %d turns", l.config.MaxTurns)
	l.logger.Warn("turn limit reached", "turns", l.config.MaxTurns, "tool_calls", result.ToolCalls)
	l.countRun(result.Status)
	l.observeTurns(result.Turns)
	return result, nil
}

func (l *Loop) complete(ctx context.Context, messages []Message, tools []ToolSchema) (*Completion, error) {
	start := time.Now()
	completion, err := l.provider.Complete(ctx, &CompletionRequest{
		System:      l.config.SystemPrompt,
		Messages:    messages,
		Tools:       tools,
		MaxTokens:   l.config.MaxTokens,
		Temperature: l.config.Temperature,
	})
	l.observeLLMRequest(time.Since(start), err)
	return completion, err
}

// executeTools dispatches every requested call strictly in the order the
// model emitted them. The calls mutate one shared desktop session and are
// order-dependent, so this is a correctness requirement: a click must land
// before the text it precedes, a navigation before the screenshot that
// observes it. Each entry correlates 1:1 with its call id.
func (l *Loop) executeTools(ctx context.Context, calls []ToolCall) []ToolResultEntry {
	entries := make([]ToolResultEntry, 0, len(calls))
	for _, call := range calls {
		start := time.Now()
		entry := l.registry.Dispatch(ctx, call)
		l.logger.Debug("tool dispatched",
			"tool", call.Name,
			"call_id", call.ID,
			"is_error", entry.IsError,
			"duration", time.Since(start))
		entries = append(entries, entry)
	}
	return entries
}

func (l *Loop) countRun(status RunStatus) {
	if l.metrics != nil {
		l.metrics.RunCounter.WithLabelValues(string(status)).Inc()
	}
}

func (l *Loop) observeTurns(turns int) {
	if l.metrics != nil {
		l.metrics.RunTurns.Observe(float64(turns))
	}
}

func (l *Loop) observeLLMRequest(d time.Duration, err error) {
	if l.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	provider := l.provider.Name()
	l.metrics.LLMRequestCounter.WithLabelValues(provider, status).Inc()
	l.metrics.LLMRequestDuration.WithLabelValues(provider).Observe(d.Seconds())
}

