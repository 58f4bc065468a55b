package sessions

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned for operations on unknown session ids.
	ErrNotFound = errors.New("session not found")

	// ErrBusy is returned when a run is requested while another run is
	// already in flight for the same session.
	ErrBusy = errors.New("session is busy with another run")
)

// Update carries the fields a caller may change. Nil fields are ignored;
// everything else on the record is manager-owned.
type Update struct {
	Name               *string
	Status             *Status
	ContainerURL       *string
	TaskHandle         *string
	IncrementTaskCount bool
}

// Manager keeps the in-memory session registry. All accessors copy records
// in and out; callers never share memory with the registry. Every mutation
// updates the session's last-activity timestamp.
type Manager struct {
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session

	// running marks sessions with a run in flight. It implements the
	// per-session run exclusion: overlapping runs against one desktop
	// would interleave their tool effects.
	running map[string]bool
}

func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		logger:   logger.With("component", "sessions"),
		sessions: make(map[string]*Session),
		running:  make(map[string]bool),
	}
}

// Create registers a new session in STARTING status and returns its copy.
func (m *Manager) Create(name string) *Session {
	now := time.Now().UTC()
	session := &Session{
		ID:           uuid.New().String()[:8],
		Name:         name,
		Status:       StatusStarting,
		CreatedAt:    now,
		LastActivity: now,
	}

	m.mu.Lock()
	m.sessions[session.ID] = session
	m.mu.Unlock()

	m.logger.Info("session created", "session_id", session.ID, "name", name)
	return cloneSession(session)
}

// Get returns a copy of the session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, found := m.sessions[id]
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return cloneSession(session), nil
}

// Update applies the permitted field changes. Status changes must preserve
// lifecycle monotonicity.
func (m *Manager) Update(id string, update Update) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, found := m.sessions[id]
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if update.Status != nil {
		next := *update.Status
		if !session.Status.CanTransitionTo(next) {
			return nil, &InvalidTransitionError{SessionID: id, From: session.Status, To: next}
		}
		session.Status = next
	}
	if update.Name != nil {
		session.Name = *update.Name
	}
	if update.ContainerURL != nil {
		session.ContainerURL = *update.ContainerURL
	}
	if update.TaskHandle != nil {
		session.TaskHandle = *update.TaskHandle
	}
	if update.IncrementTaskCount {
		session.TaskCount++
	}
	session.LastActivity = time.Now().UTC()

	return cloneSession(session), nil
}

// Delete removes the session from the registry. Deleting an unknown id is
// not an error; deletion is idempotent.
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, found := m.sessions[id]; found {
		delete(m.sessions, id)
		delete(m.running, id)
		m.logger.Info("session deleted", "session_id", id)
	}
}

// List returns copies of all sessions, optionally filtered by status.
// Pass an empty status for no filter.
func (m *Manager) List(status Status) []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Session
	for _, session := range m.sessions {
		if status != "" && session.Status != status {
			continue
		}
		out = append(out, cloneSession(session))
	}
	return out
}

// ActiveCount returns the number of sessions in RUNNING status.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, session := range m.sessions {
		if session.Status == StatusRunning {
			count++
		}
	}
	return count
}

// CleanupStale removes sessions idle for longer than maxAge and returns
// the removed records so the caller can tear down their environments.
func (m *Manager) CleanupStale(maxAge time.Duration) []*Session {
	cutoff := time.Now().UTC().Add(-maxAge)

	m.mu.Lock()
	defer m.mu.Unlock()

	var removed []*Session
	for id, session := range m.sessions {
		if session.LastActivity.Before(cutoff) {
			removed = append(removed, cloneSession(session))
			delete(m.sessions, id)
			delete(m.running, id)
		}
	}
	if len(removed) > 0 {
		m.logger.Info("cleaned up stale sessions", "count", len(removed), "max_age", maxAge)
	}
	return removed
}

// AcquireRun marks the session as running a task. It fails with ErrBusy
// when another run is already in flight, and with ErrNotFound for unknown
// ids. Release with ReleaseRun.
func (m *Manager) AcquireRun(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, found := m.sessions[id]; !found {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if m.running[id] {
		return fmt.Errorf("%w: %s", ErrBusy, id)
	}
	m.running[id] = true
	return nil
}

// ReleaseRun clears the session's run-in-flight mark.
func (m *Manager) ReleaseRun(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.running, id)
}

func cloneSession(s *Session) *Session {
	copied := *s
	return &copied
}
