package files

import (
	"fmt"
	"path"
	"strings"
)

// Resolver normalizes model-provided paths into the workspace root and
// rejects paths that would escape it.
type Resolver struct {
	root string
}

func NewResolver(root string) *Resolver {
	if root == "" {
		root = "/workspace"
	}
	return &Resolver{root: path.Clean(root)}
}

// Resolve maps p into the workspace. Relative paths and absolute paths
// outside the root are re-rooted under it; cleaned paths that still climb
// out of the root are rejected.
func (r *Resolver) Resolve(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", fmt.Errorf("path is required")
	}
	if !strings.HasPrefix(p, r.root+"/") && p != r.root {
		p = r.root + "/" + strings.TrimLeft(p, "/")
	}
	cleaned := path.Clean(p)
	if cleaned != r.root && !strings.HasPrefix(cleaned, r.root+"/") {
		return "", fmt.Errorf("path escapes workspace: %s", p)
	}
	return cleaned, nil
}
