package render

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
)

func TestWorkspacePaths(t *testing.T) {
	root := t.TempDir()
	id := uuid.New()

	ws, err := NewWorkspace(root, id)
	if err != nil {
		t.Fatalf("NewWorkspace failed: %v", err)
	}

	if ws.Dir != filepath.Join(root, id.String()) {
		t.Errorf("Dir = %s", ws.Dir)
	}
	if got := filepath.Base(ws.ClipPath(7)); got != "scene_0007.mp4" {
		t.Errorf("ClipPath(7) base = %s, want scene_0007.mp4", got)
	}
	if got := filepath.Base(ws.OutputPath()); got != "final.mp4" {
		t.Errorf("OutputPath base = %s, want final.mp4", got)
	}

	if _, err := os.Stat(ws.Dir); err != nil {
		t.Fatalf("workspace dir not created: %v", err)
	}
	ws.Release()
	if _, err := os.Stat(ws.Dir); !os.IsNotExist(err) {
		t.Error("Release did not remove the workspace")
	}
}

func TestSweepOrphans(t *testing.T) {
	root := t.TempDir()

	for i := 0; i < 3; i++ {
		if err := os.MkdirAll(filepath.Join(root, uuid.New().String()), 0755); err != nil {
			t.Fatal(err)
		}
	}
	// Not workspace-shaped; must survive the sweep.
	keepDir := filepath.Join(root, "keep-me")
	keepFile := filepath.Join(root, "notes.txt")
	if err := os.MkdirAll(keepDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keepFile, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	if swept := SweepOrphans(root); swept != 3 {
		t.Errorf("swept = %d, want 3", swept)
	}
	if _, err := os.Stat(keepDir); err != nil {
		t.Error("sweep removed a non-workspace directory")
	}
	if _, err := os.Stat(keepFile); err != nil {
		t.Error("sweep removed a regular file")
	}

	if swept := SweepOrphans(filepath.Join(root, "does-not-exist")); swept != 0 {
		t.Errorf("swept = %d for missing root, want 0", swept)
	}
}
