package sessions

import (
	"errors"
	"testing"
	"time"
)

func TestCreateStartsInStarting(t *testing.T) {
	m := NewManager(nil)
	s := m.Create("demo")

	if s.ID == "" {
		t.Fatal("expected non-empty session id")
	}
	if len(s.ID) != 8 {
		t.Errorf("id length = %d, want 8", len(s.ID))
	}
	if s.Status != StatusStarting {
		t.Errorf("status = %s, want %s", s.Status, StatusStarting)
	}
	if s.TaskCount != 0 {
		t.Errorf("task count = %d, want 0", s.TaskCount)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	m := NewManager(nil)
	s := m.Create("demo")

	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	got.Name = "mutated"

	again, _ := m.Get(s.ID)
	if again.Name != "demo" {
		t.Errorf("registry record mutated through returned copy")
	}
}

func TestGetUnknown(t *testing.T) {
	m := NewManager(nil)
	if _, err := m.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestStatusTransitionsMonotonic(t *testing.T) {
	m := NewManager(nil)
	s := m.Create("demo")

	running := StatusRunning
	if _, err := m.Update(s.ID, Update{Status: &running}); err != nil {
		t.Fatalf("starting -> running: %v", err)
	}

	completed := StatusCompleted
	if _, err := m.Update(s.ID, Update{Status: &completed}); err != nil {
		t.Fatalf("running -> completed: %v", err)
	}

	// Regression to an earlier status must be rejected.
	back := StatusRunning
	if _, err := m.Update(s.ID, Update{Status: &back}); err == nil {
		t.Error("completed -> running succeeded, want error")
	}

	// completed -> failed rewrites the outcome; also rejected.
	failed := StatusFailed
	if _, err := m.Update(s.ID, Update{Status: &failed}); err == nil {
		t.Error("completed -> failed succeeded, want error")
	}

	terminated := StatusTerminated
	if _, err := m.Update(s.ID, Update{Status: &terminated}); err != nil {
		t.Errorf("completed -> terminated: %v", err)
	}
}

func TestUpdateBumpsLastActivity(t *testing.T) {
	m := NewManager(nil)
	s := m.Create("demo")
	before := s.LastActivity

	time.Sleep(5 * time.Millisecond)
	updated, err := m.Update(s.ID, Update{IncrementTaskCount: true})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if !updated.LastActivity.After(before) {
		t.Error("last activity not updated on mutation")
	}
	if updated.TaskCount != 1 {
		t.Errorf("task count = %d, want 1", updated.TaskCount)
	}
}

func TestListFiltersByStatus(t *testing.T) {
	m := NewManager(nil)
	a := m.Create("a")
	m.Create("b")

	running := StatusRunning
	if _, err := m.Update(a.ID, Update{Status: &running}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	if got := len(m.List("")); got != 2 {
		t.Errorf("unfiltered list length = %d, want 2", got)
	}
	if got := len(m.List(StatusRunning)); got != 1 {
		t.Errorf("running list length = %d, want 1", got)
	}
	if got := m.ActiveCount(); got != 1 {
		t.Errorf("ActiveCount() = %d, want 1", got)
	}
}

func TestDeleteIdempotent(t *testing.T) {
	m := NewManager(nil)
	s := m.Create("demo")

	m.Delete(s.ID)
	m.Delete(s.ID)

	if _, err := m.Get(s.ID); !errors.Is(err, ErrNotFound) {
		t.Error("session still present after delete")
	}
}

func TestAcquireRunExclusion(t *testing.T) {
	m := NewManager(nil)
	s := m.Create("demo")

	if err := m.AcquireRun(s.ID); err != nil {
		t.Fatalf("first AcquireRun() error = %v", err)
	}
	if err := m.AcquireRun(s.ID); !errors.Is(err, ErrBusy) {
		t.Errorf("second AcquireRun() error = %v, want ErrBusy", err)
	}

	m.ReleaseRun(s.ID)
	if err := m.AcquireRun(s.ID); err != nil {
		t.Errorf("AcquireRun() after release error = %v", err)
	}
}

func TestAcquireRunUnknownSession(t *testing.T) {
	m := NewManager(nil)
	if err := m.AcquireRun("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("AcquireRun() error = %v, want ErrNotFound", err)
	}
}

func TestCleanupStale(t *testing.T) {
	m := NewManager(nil)
	old := m.Create("old")
	m.Create("fresh")

	// Age the first session past the cutoff.
	m.mu.Lock()
	m.sessions[old.ID].LastActivity = time.Now().UTC().Add(-2 * time.Hour)
	m.mu.Unlock()

	removed := m.CleanupStale(time.Hour)
	if len(removed) != 1 {
		t.Fatalf("removed %d sessions, want 1", len(removed))
	}
	if removed[0].ID != old.ID {
		t.Errorf("removed session %s, want %s", removed[0].ID, old.ID)
	}
	if got := len(m.List("")); got != 1 {
		t.Errorf("remaining sessions = %d, want 1", got)
	}
}
