package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting application metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - Agent run outcomes and turn counts
//   - LLM request performance and token usage
//   - Tool dispatch patterns and latencies
//   - Session lifecycle and provisioning durations
type Metrics struct {
	// RunCounter counts agent runs by terminal status.
	// Labels: status (completed|max_turns_reached|error)
	RunCounter *prometheus.CounterVec

	// RunTurns observes turns consumed per run.
	RunTurns prometheus.Histogram

	// LLMRequestDuration measures model API call latency in seconds.
	// Labels: provider
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts model requests.
	// Labels: provider, status (success|error)
	LLMRequestCounter *prometheus.CounterVec

	// ToolDispatchCounter counts tool invocations through the dispatcher.
	// Labels: tool_name, backend (direct|server id), status (success|error)
	ToolDispatchCounter *prometheus.CounterVec

	// ToolDispatchDuration measures tool execution time in seconds.
	// Labels: tool_name
	ToolDispatchDuration *prometheus.HistogramVec

	// ActiveSessions tracks sessions currently in RUNNING status.
	ActiveSessions prometheus.Gauge

	// ProvisionDuration measures compute provisioning time in seconds.
	// Labels: mode (local|ecs), status (success|error)
	ProvisionDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics with the default
// registry. Call once at application startup.
func NewMetrics() *Metrics {
	return &Metrics{
		RunCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "operator_runs_total",
				Help: "Total agent runs by terminal status",
			},
			[]string{"status"},
		),
		RunTurns: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "operator_run_turns",
				Help:    "Turns consumed per agent run",
				Buckets: []float64{1, 2, 3, 5, 8, 10, 15, 20, 30},
			},
		),
		LLMRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "operator_llm_request_duration_seconds",
				Help:    "Model API call latency",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider"},
		),
		LLMRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "operator_llm_requests_total",
				Help: "Total model API requests",
			},
			[]string{"provider", "status"},
		),
		ToolDispatchCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "operator_tool_dispatches_total",
				Help: "Total tool invocations through the dispatcher",
			},
			[]string{"tool_name", "backend", "status"},
		),
		ToolDispatchDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "operator_tool_dispatch_duration_seconds",
				Help:    "Tool execution latency",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),
		ActiveSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "operator_active_sessions",
				Help: "Sessions currently in RUNNING status",
			},
		),
		ProvisionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "operator_provision_duration_seconds",
				Help:    "Compute environment provisioning latency",
				Buckets: []float64{0.1, 1, 5, 10, 30, 60, 120, 180},
			},
			[]string{"mode", "status"},
		),
	}
}
