package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/haasonsaas/operator/internal/agent"
	"github.com/haasonsaas/operator/internal/config"
	"github.com/haasonsaas/operator/internal/provision"
	"github.com/haasonsaas/operator/internal/sessions"
)

// fakeProvisioner hands out a fixed environment and records terminations.
type fakeProvisioner struct {
	env *provision.Environment
	err error

	mu         sync.Mutex
	terminated []string
}

func (f *fakeProvisioner) Provision(ctx context.Context, sessionID string) (*provision.Environment, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.env, nil
}

func (f *fakeProvisioner) Terminate(ctx context.Context, handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminated = append(f.terminated, handle)
	return nil
}

func (f *fakeProvisioner) Status(ctx context.Context, handle string) (provision.State, error) {
	return provision.StateRunning, nil
}

// endTurnProvider completes every run immediately.
type endTurnProvider struct {
	text string
}

func (p *endTurnProvider) Name() string { return "fake" }

func (p *endTurnProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (*agent.Completion, error) {
	return &agent.Completion{StopReason: agent.StopEndTurn, Text: p.text}, nil
}

// blockingProvider holds a run open until released, to provoke overlap.
type blockingProvider struct {
	started  chan struct{}
	release  chan struct{}
	response *agent.Completion
}

func (p *blockingProvider) Name() string { return "blocking" }

func (p *blockingProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (*agent.Completion, error) {
	close(p.started)
	<-p.release
	return p.response, nil
}

func testConfig() *config.Config {
	c := &config.Config{}
	c.LLM.APIKey = "sk-test"
	c.LLM.Model = "test-model"
	c.Compute.Mode = "local"
	c.Compute.LocalURL = "http://localhost:1"
	c.ApplyDefaults()
	return c
}

func newTestServer(t *testing.T, provisioner provision.Provisioner, provider agent.LLMProvider) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(testConfig(), sessions.NewManager(logger), provisioner, nil, provider, nil, logger)
}

// healthyEnv serves the environment health endpoint so session creation
// can complete.
func healthyEnv(t *testing.T) *httptest.Server {
	t.Helper()
	env := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(env.Close)
	return env
}

func doJSON(t *testing.T, handler http.HandlerFunc, method, target, body string, pathValues map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.ContentLength = int64(len(body))
	}
	for k, v := range pathValues {
		req.SetPathValue(k, v)
	}
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestCreateSession(t *testing.T) {
	env := healthyEnv(t)
	prov := &fakeProvisioner{env: &provision.Environment{URL: env.URL, Handle: "task-1"}}
	s := newTestServer(t, prov, &endTurnProvider{text: "ok"})

	rec := doJSON(t, s.handleCreateSession, http.MethodPost, "/sessions", `{"name":"demo"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp createSessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "running" {
		t.Errorf("status = %q, want running", resp.Status)
	}
	if len(resp.SessionID) != 8 {
		t.Errorf("session id = %q, want 8 chars", resp.SessionID)
	}
	if resp.ContainerURL != env.URL {
		t.Errorf("container url = %q", resp.ContainerURL)
	}
}

func TestCreateSessionProvisionFailure(t *testing.T) {
	prov := &fakeProvisioner{err: errors.New("no capacity")}
	s := newTestServer(t, prov, &endTurnProvider{})

	rec := doJSON(t, s.handleCreateSession, http.MethodPost, "/sessions", "", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}

	// The failed session must be FAILED, never left in RUNNING.
	list := s.sessions.List(sessions.StatusFailed)
	if len(list) != 1 {
		t.Fatalf("failed sessions = %d, want 1", len(list))
	}
	if n := len(s.sessions.List(sessions.StatusRunning)); n != 0 {
		t.Errorf("running sessions = %d, want 0", n)
	}
}

func TestRunTask(t *testing.T) {
	prov := &fakeProvisioner{}
	s := newTestServer(t, prov, &endTurnProvider{text: "all done"})
	session := readySession(t, s)

	rec := doJSON(t, s.handleRunTask, http.MethodPost, "/sessions/"+session+"/run",
		`{"task":"do the thing"}`, map[string]string{"id": session})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp runTaskResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "completed" || resp.Result != "all done" {
		t.Errorf("resp = %+v", resp)
	}

	got, err := s.sessions.Get(session)
	if err != nil {
		t.Fatal(err)
	}
	if got.TaskCount != 1 {
		t.Errorf("task count = %d, want 1", got.TaskCount)
	}
}

// readySession creates a session already in RUNNING with a container URL.
func readySession(t *testing.T, s *Server) string {
	t.Helper()
	session := s.sessions.Create("")
	running := sessions.StatusRunning
	url := "http://localhost:1"
	if _, err := s.sessions.Update(session.ID, sessions.Update{Status: &running, ContainerURL: &url}); err != nil {
		t.Fatal(err)
	}
	return session.ID
}

func TestRunTaskValidation(t *testing.T) {
	s := newTestServer(t, &fakeProvisioner{}, &endTurnProvider{})
	session := readySession(t, s)

	rec := doJSON(t, s.handleRunTask, http.MethodPost, "/sessions/"+session+"/run",
		`{}`, map[string]string{"id": session})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty task: status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, s.handleRunTask, http.MethodPost, "/sessions/nope/run",
		`{"task":"x"}`, map[string]string{"id": "nope"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown session: status = %d, want 404", rec.Code)
	}
}

func TestRunTaskRejectsNonRunningSession(t *testing.T) {
	s := newTestServer(t, &fakeProvisioner{}, &endTurnProvider{})
	session := s.sessions.Create("")

	rec := doJSON(t, s.handleRunTask, http.MethodPost, "/sessions/"+session.ID+"/run",
		`{"task":"x"}`, map[string]string{"id": session.ID})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for starting session", rec.Code)
	}
}

func TestRunTaskConflictWhileBusy(t *testing.T) {
	provider := &blockingProvider{
		started:  make(chan struct{}),
		release:  make(chan struct{}),
		response: &agent.Completion{StopReason: agent.StopEndTurn, Text: "first"},
	}
	s := newTestServer(t, &fakeProvisioner{}, provider)
	session := readySession(t, s)

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		done <- doJSON(t, s.handleRunTask, http.MethodPost, "/sessions/"+session+"/run",
			`{"task":"long"}`, map[string]string{"id": session})
	}()
	<-provider.started

	rec := doJSON(t, s.handleRunTask, http.MethodPost, "/sessions/"+session+"/run",
		`{"task":"second"}`, map[string]string{"id": session})
	if rec.Code != http.StatusConflict {
		t.Errorf("concurrent run: status = %d, want 409", rec.Code)
	}

	close(provider.release)
	first := <-done
	if first.Code != http.StatusOK {
		t.Errorf("first run: status = %d", first.Code)
	}

	// Lock released; the session accepts work again.
	provider.release = make(chan struct{})
	close(provider.release)
	provider.started = make(chan struct{})
	rec = doJSON(t, s.handleRunTask, http.MethodPost, "/sessions/"+session+"/run",
		`{"task":"third"}`, map[string]string{"id": session})
	if rec.Code == http.StatusConflict {
		t.Error("session still busy after run finished")
	}
}

func TestDeleteSessionIdempotent(t *testing.T) {
	prov := &fakeProvisioner{}
	s := newTestServer(t, prov, &endTurnProvider{})
	session := readySession(t, s)

	for i := 0; i < 2; i++ {
		rec := doJSON(t, s.handleDeleteSession, http.MethodDelete, "/sessions/"+session,
			"", map[string]string{"id": session})
		if rec.Code != http.StatusOK {
			t.Errorf("delete #%d: status = %d", i+1, rec.Code)
		}
	}

	rec := doJSON(t, s.handleDeleteSession, http.MethodDelete, "/sessions/ghost",
		"", map[string]string{"id": "ghost"})
	if rec.Code != http.StatusOK {
		t.Errorf("delete unknown: status = %d, want 200", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, &fakeProvisioner{}, &endTurnProvider{})
	readySession(t, s)

	rec := doJSON(t, s.handleHealth, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "healthy" || resp.SessionsActive != 1 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestListSessions(t *testing.T) {
	s := newTestServer(t, &fakeProvisioner{}, &endTurnProvider{})
	readySession(t, s)
	s.sessions.Create("pending")

	rec := doJSON(t, s.handleListSessions, http.MethodGet, "/sessions", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var all []*sessions.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &all); err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("sessions = %d, want 2", len(all))
	}

	rec = doJSON(t, s.handleListSessions, http.MethodGet, "/sessions?status=running", "", nil)
	var running []*sessions.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &running); err != nil {
		t.Fatal(err)
	}
	if len(running) != 1 {
		t.Errorf("running = %d, want 1", len(running))
	}

	rec = doJSON(t, s.handleListSessions, http.MethodGet, "/sessions?status=bogus", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bogus filter: status = %d, want 400", rec.Code)
	}
}
