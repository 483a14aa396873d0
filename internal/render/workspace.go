package render

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Workspace is the transient scratch arena one job owns exclusively for its
// lifetime: per-scene clips, concat manifests, the pre-upload output. It is
// destroyed unconditionally when the job reaches a terminal state.
type Workspace struct {
	JobID uuid.UUID
	Dir   string
}

// NewWorkspace creates the per-job scratch directory under root.
func NewWorkspace(root string, jobID uuid.UUID) (*Workspace, error) {
	dir := filepath.Join(root, jobID.String())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	return &Workspace{JobID: jobID, Dir: dir}, nil
}

// ClipPath returns the path for one scene's intermediate clip.
func (w *Workspace) ClipPath(sceneNumber int) string {
	return filepath.Join(w.Dir, fmt.Sprintf("scene_%04d.mp4", sceneNumber))
}

// OutputPath is where the assembled video lands before being published.
func (w *Workspace) OutputPath() string {
	return filepath.Join(w.Dir, "final.mp4")
}

// Release removes the workspace and everything in it.
func (w *Workspace) Release() {
	if err := os.RemoveAll(w.Dir); err != nil {
		log.Printf("[Workspace] Failed to remove %s: %v", w.Dir, err)
	}
}

// SweepOrphans removes leftover workspace directories from a previous
// process. Runs at startup, paired with Repository.FailOrphaned.
func SweepOrphans(root string) int {
	entries, err := os.ReadDir(root)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[Workspace] Orphan sweep could not read %s: %v", root, err)
		}
		return 0
	}

	swept := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		// Workspace dirs are named by job id; skip anything else.
		if _, err := uuid.Parse(e.Name()); err != nil {
			continue
		}
		path := filepath.Join(root, e.Name())
		if err := os.RemoveAll(path); err != nil {
			log.Printf("[Workspace] Failed to sweep orphan %s: %v", path, err)
			continue
		}
		swept++
	}

	if swept > 0 {
		log.Printf("[Workspace] Swept %d orphaned workspace(s) under %s", swept, root)
	}
	return swept
}
