// Package sessions owns the in-memory registry of sessions: their status
// lifecycle, compute environment binding, usage counters, and per-session
// run exclusion.
package sessions

import (
	"fmt"
	"time"
)

// Status is a session's lifecycle state. Transitions are monotonic within
// STARTING → RUNNING → {COMPLETED | FAILED} → TERMINATED; a session never
// regresses to an earlier status.
type Status string

const (
	StatusStarting   Status = "starting"
	StatusRunning    Status = "running"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusTerminated Status = "terminated"
)

// rank orders statuses for the monotonicity check. Completed and failed
// share a rank: they are alternative outcomes, not a progression.
func (s Status) rank() int {
	switch s {
	case StatusStarting:
		return 0
	case StatusRunning:
		return 1
	case StatusCompleted, StatusFailed:
		return 2
	case StatusTerminated:
		return 3
	default:
		return -1
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s.rank() >= 0
}

// CanTransitionTo reports whether moving from s to next preserves
// monotonicity.
func (s Status) CanTransitionTo(next Status) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	if s == next {
		return true
	}
	if s.rank() == next.rank() {
		// completed -> failed and back would rewrite history
		return false
	}
	return next.rank() > s.rank()
}

// Session binds one compute environment to one conversation lifecycle.
type Session struct {
	ID           string    `json:"session_id"`
	Name         string    `json:"name,omitempty"`
	Status       Status    `json:"status"`
	ContainerURL string    `json:"container_url,omitempty"`
	TaskHandle   string    `json:"task_handle,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	TaskCount    int       `json:"task_count"`
	LastActivity time.Time `json:"last_activity"`
}

// InvalidTransitionError reports a status update that would regress the
// session's lifecycle.
type InvalidTransitionError struct {
	SessionID string
	From      Status
	To        Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("session %s: invalid status transition %s -> %s", e.SessionID, e.From, e.To)
}
