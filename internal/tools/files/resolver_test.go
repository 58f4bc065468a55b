package files

import "testing"

func TestResolveRelativePath(t *testing.T) {
	r := NewResolver("/workspace")
	got, err := r.Resolve("notes/todo.txt")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got != "/workspace/notes/todo.txt" {
		t.Errorf("Resolve() = %s, want /workspace/notes/todo.txt", got)
	}
}

func TestResolveAbsoluteOutsideRoot(t *testing.T) {
	r := NewResolver("/workspace")
	got, err := r.Resolve("/etc/passwd")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got != "/workspace/etc/passwd" {
		t.Errorf("Resolve() = %s, want /workspace/etc/passwd", got)
	}
}

func TestResolveAlreadyInWorkspace(t *testing.T) {
	r := NewResolver("/workspace")
	got, err := r.Resolve("/workspace/a/b.txt")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got != "/workspace/a/b.txt" {
		t.Errorf("Resolve() = %s, want /workspace/a/b.txt", got)
	}
}

func TestResolveRejectsEscape(t *testing.T) {
	r := NewResolver("/workspace")
	if _, err := r.Resolve("/workspace/../etc/passwd"); err == nil {
		t.Error("expected error for path escaping workspace")
	}
	if _, err := r.Resolve("../../etc/passwd"); err == nil {
		t.Error("expected error for relative escape")
	}
}

func TestResolveEmptyPath(t *testing.T) {
	r := NewResolver("/workspace")
	if _, err := r.Resolve("  "); err == nil {
		t.Error("expected error for empty path")
	}
}
