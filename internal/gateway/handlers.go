package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/haasonsaas/operator/internal/agent"
	"github.com/haasonsaas/operator/internal/sessions"
)

type createSessionRequest struct {
	Name string `json:"name,omitempty"`
}

type createSessionResponse struct {
	SessionID    string    `json:"session_id"`
	Status       string    `json:"status"`
	ContainerURL string    `json:"container_url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type runTaskRequest struct {
	Task     string `json:"task"`
	MaxTurns int    `json:"max_turns,omitempty"`
}

type runTaskResponse struct {
	SessionID string `json:"session_id"`
	Task      string `json:"task"`
	Result    string `json:"result"`
	ToolCalls int    `json:"tool_calls"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

type healthResponse struct {
	Status         string `json:"status"`
	SessionsActive int    `json:"sessions_active"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	session := s.sessions.Create(req.Name)

	provisionStart := time.Now()
	env, err := s.provisioner.Provision(r.Context(), session.ID)
	s.observeProvision(time.Since(provisionStart), err)
	if err != nil {
		s.failSession(session.ID)
		s.logger.Error("provisioning failed", "session_id", session.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create session: "+err.Error())
		return
	}

	if err := s.waitForEnvironment(r.Context(), env.URL); err != nil {
		s.failSession(session.ID)
		s.teardown(&sessions.Session{ID: session.ID, TaskHandle: env.Handle})
		s.logger.Error("environment never became healthy", "session_id", session.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create session: "+err.Error())
		return
	}

	running := sessions.StatusRunning
	updated, err := s.sessions.Update(session.ID, sessions.Update{
		Status:       &running,
		ContainerURL: &env.URL,
		TaskHandle:   &env.Handle,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if s.metrics != nil {
		s.metrics.ActiveSessions.Inc()
	}

	writeJSON(w, http.StatusOK, createSessionResponse{
		SessionID:    updated.ID,
		Status:       string(updated.Status),
		ContainerURL: updated.ContainerURL,
		CreatedAt:    updated.CreatedAt,
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	status := sessions.Status(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		writeError(w, http.StatusBadRequest, "unknown status filter")
		return
	}
	list := s.sessions.List(status)
	if list == nil {
		list = []*sessions.Session{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// handleDeleteSession tears the session down. Deletion is idempotent:
// deleting an unknown id still acknowledges.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	session, err := s.sessions.Get(id)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "session_id": id})
		return
	}

	if session.Status == sessions.StatusRunning && s.metrics != nil {
		s.metrics.ActiveSessions.Dec()
	}
	s.sessions.Delete(id)
	s.teardown(session)

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "session_id": id})
}

func (s *Server) handleRunTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req runTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Task == "" {
		writeError(w, http.StatusBadRequest, "task is required")
		return
	}

	session, err := s.sessions.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if session.Status != sessions.StatusRunning {
		writeError(w, http.StatusBadRequest, "session is not running (status: "+string(session.Status)+")")
		return
	}

	if err := s.sessions.AcquireRun(id); err != nil {
		if errors.Is(err, sessions.ErrBusy) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	defer s.sessions.ReleaseRun(id)

	registry, err := s.newRegistry(session.ContainerURL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	loopCfg := agent.LoopConfig{
		SystemPrompt: s.config.Agent.SystemPrompt,
		MaxTurns:     s.config.Agent.MaxTurns,
		MaxTokens:    s.config.LLM.MaxTokens,
		Temperature:  s.config.LLM.Temperature,
	}
	if req.MaxTurns > 0 {
		loopCfg.MaxTurns = req.MaxTurns
	}

	loop := agent.NewLoop(s.provider, registry, loopCfg, s.logger, s.metrics)
	result, runErr := loop.Run(r.Context(), req.Task)

	if _, err := s.sessions.Update(id, sessions.Update{IncrementTaskCount: true}); err != nil {
		s.logger.Warn("failed to bump task counter", "session_id", id, "error", err)
	}

	resp := runTaskResponse{
		SessionID: id,
		Task:      req.Task,
		Result:    result.Result,
		ToolCalls: result.ToolCalls,
		Status:    string(result.Status),
		Error:     result.Error,
	}
	if runErr != nil {
		s.logger.Error("run failed", "session_id", id, "error", runErr)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:         "healthy",
		SessionsActive: s.sessions.ActiveCount(),
	})
}

func (s *Server) observeProvision(d time.Duration, err error) {
	if s.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.ProvisionDuration.WithLabelValues(s.config.Compute.Mode, status).Observe(d.Seconds())
}

// failSession marks a session FAILED after a provisioning error, so it is
// never left half-initialized in RUNNING.
func (s *Server) failSession(id string) {
	failed := sessions.StatusFailed
	if _, err := s.sessions.Update(id, sessions.Update{Status: &failed}); err != nil {
		s.logger.Warn("failed to mark session failed", "session_id", id, "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
