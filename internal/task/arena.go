package task

import (
	"fmt"
	"os"
	"path/filepath"
)

// Arena hands out isolated working directories, one per task instance,
// indexed by (run, stage, sample, attempt) so retries never collide
// and no two tasks ever share a directory.
type Arena struct {
	root string
}

// NewArena creates an arena rooted at the given directory.
func NewArena(root string) *Arena {
	return &Arena{root: root}
}

// Root returns the arena root.
func (a *Arena) Root() string { return a.root }

// Dir creates and returns the working directory for one task instance.
// The directory must not already exist; a collision means the caller
// reused an attempt number.
func (a *Arena) Dir(runID, stage, sampleID string, attempt int) (string, error) {
	dir := filepath.Join(a.root, runID, stage, sampleID, fmt.Sprintf("attempt-%d", attempt))
	if _, err := os.Stat(dir); err == nil {
		return "", fmt.Errorf("work directory %s already exists", dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create work directory: %w", err)
	}
	return dir, nil
}
