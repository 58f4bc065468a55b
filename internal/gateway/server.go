// Package gateway exposes the orchestrator HTTP API: session creation,
// task runs, listing, deletion, health, and metrics.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/operator/internal/agent"
	"github.com/haasonsaas/operator/internal/compute"
	"github.com/haasonsaas/operator/internal/config"
	"github.com/haasonsaas/operator/internal/observability"
	"github.com/haasonsaas/operator/internal/provision"
	"github.com/haasonsaas/operator/internal/sessions"
	"github.com/haasonsaas/operator/internal/toolserver"
	"github.com/haasonsaas/operator/internal/tools/browser"
	"github.com/haasonsaas/operator/internal/tools/computer"
	"github.com/haasonsaas/operator/internal/tools/files"
	"github.com/haasonsaas/operator/internal/tools/shell"
)

const (
	healthWaitAttempts = 15
	healthWaitInterval = 2 * time.Second
)

// Server wires the session manager, provisioner, tool servers, and model
// provider behind the HTTP API.
type Server struct {
	config      *config.Config
	logger      *slog.Logger
	metrics     *observability.Metrics
	sessions    *sessions.Manager
	provisioner provision.Provisioner
	toolServers *toolserver.Manager
	provider    agent.LLMProvider

	httpServer   *http.Server
	httpListener net.Listener
	cleanupStop  chan struct{}
	stopOnce     sync.Once
}

func NewServer(
	cfg *config.Config,
	sessionManager *sessions.Manager,
	provisioner provision.Provisioner,
	toolServers *toolserver.Manager,
	provider agent.LLMProvider,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		config:      cfg,
		logger:      logger.With("component", "gateway"),
		metrics:     metrics,
		sessions:    sessionManager,
		provisioner: provisioner,
		toolServers: toolServers,
		provider:    provider,
		cleanupStop: make(chan struct{}),
	}
}

// Start discovers tool server capabilities, starts the HTTP listener, and
// launches the stale-session cleanup loop.
func (s *Server) Start(ctx context.Context) error {
	if s.toolServers != nil {
		if err := s.toolServers.Start(ctx); err != nil {
			return fmt.Errorf("tool server discovery: %w", err)
		}
	}

	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.HTTPPort)
	mux := http.NewServeMux()

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /sessions", s.handleCreateSession)
	mux.HandleFunc("GET /sessions", s.handleListSessions)
	mux.HandleFunc("GET /sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("POST /sessions/{id}/run", s.handleRunTask)

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	s.httpServer = server
	s.httpListener = listener

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()
	go s.cleanupLoop()

	s.logger.Info("gateway started", "addr", addr)
	return nil
}

// Shutdown stops the HTTP server and the cleanup loop. Safe to call more
// than once.
func (s *Server) Shutdown(ctx context.Context) {
	s.stopOnce.Do(func() { close(s.cleanupStop) })
	if s.httpServer == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http server shutdown error", "error", err)
	}
	s.httpServer = nil
	s.httpListener = nil
}

// cleanupLoop periodically removes stale sessions and tears down their
// environments.
func (s *Server) cleanupLoop() {
	interval := s.config.Sessions.CleanupInterval
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanupStale()
		case <-s.cleanupStop:
			return
		}
	}
}

// cleanupStale removes idle sessions, keeps the active-session gauge in
// step with the removals, and tears down their environments.
func (s *Server) cleanupStale() {
	removed := s.sessions.CleanupStale(s.config.Sessions.StaleMaxAge)
	for _, session := range removed {
		if session.Status == sessions.StatusRunning && s.metrics != nil {
			s.metrics.ActiveSessions.Dec()
		}
		s.teardown(session)
	}
}

// teardown terminates a session's compute environment in the background.
func (s *Server) teardown(session *sessions.Session) {
	if session.TaskHandle == "" {
		return
	}
	handle := session.TaskHandle
	id := session.ID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := s.provisioner.Terminate(ctx, handle); err != nil {
			s.logger.Error("environment teardown failed",
				"session_id", id,
				"handle", handle,
				"error", err)
		}
	}()
}

// newRegistry builds a dispatcher bound to one session's environment.
func (s *Server) newRegistry(containerURL string) (*agent.Registry, error) {
	client := compute.NewClient(containerURL, s.config.Compute.RequestTimeout)
	registry := agent.NewRegistry(s.toolServers, s.metrics, s.logger)

	directTools := []agent.Tool{
		computer.New(client),
		shell.New(client, s.config.Compute.ShellTimeout),
		files.New(client, s.config.Compute.WorkspaceRoot),
		browser.New(client, s.config.Compute.SettleDelay),
	}
	for _, tool := range directTools {
		if err := registry.RegisterDirect(tool); err != nil {
			return nil, fmt.Errorf("register %s: %w", tool.Name(), err)
		}
	}
	return registry, nil
}

// waitForEnvironment polls the environment's health endpoint until it
// responds or attempts run out.
func (s *Server) waitForEnvironment(ctx context.Context, containerURL string) error {
	client := compute.NewClient(containerURL, s.config.Compute.RequestTimeout)
	var lastErr error
	for attempt := 0; attempt < healthWaitAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(healthWaitInterval):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if lastErr = client.Health(ctx); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("environment %s not healthy: %w", containerURL, lastErr)
}
