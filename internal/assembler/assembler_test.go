package assembler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/storyreel/backend/internal/media"
	"github.com/storyreel/backend/internal/models"
)

type fakeProber struct {
	info media.Info
	err  error
}

func (f *fakeProber) Probe(_ context.Context, _ string) (media.Info, error) {
	return f.info, f.err
}

func newTestAssembler(p Prober) *Assembler {
	return New(media.NewRunner(), p, 10, 2*time.Minute)
}

func TestAssembleEmptyClips(t *testing.T) {
	a := newTestAssembler(&fakeProber{})

	_, err := a.Assemble(context.Background(), nil, "narration.mp3", "out.mp4", 60, models.QualityStandard)
	if !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("error = %v, want ErrEmptyInput", err)
	}
}

func TestAssembleMissingNarration(t *testing.T) {
	a := newTestAssembler(&fakeProber{})

	_, err := a.Assemble(context.Background(), []string{"clip.mp4"}, "/nonexistent/narration.mp3", "out.mp4", 60, models.QualityStandard)
	if !errors.Is(err, ErrMissingAudio) {
		t.Fatalf("error = %v, want ErrMissingAudio", err)
	}
}

func TestWriteConcatManifestOrder(t *testing.T) {
	dir := t.TempDir()
	clips := []string{
		filepath.Join(dir, "scene_003.mp4"),
		filepath.Join(dir, "scene_001.mp4"),
		filepath.Join(dir, "scene_002.mp4"),
	}

	listPath, err := writeConcatManifest(dir, clips)
	if err != nil {
		t.Fatalf("writeConcatManifest failed: %v", err)
	}

	data, err := os.ReadFile(listPath)
	if err != nil {
		t.Fatalf("failed to read manifest: %v", err)
	}

	// Input order must be preserved verbatim — it encodes the timing plan.
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("manifest has %d lines, want 3", len(lines))
	}
	for i, clip := range clips {
		if !strings.Contains(lines[i], clip) {
			t.Errorf("line %d = %q, want path %q", i, lines[i], clip)
		}
	}
}

func TestWriteConcatManifestEscapesQuotes(t *testing.T) {
	dir := t.TempDir()

	listPath, err := writeConcatManifest(dir, []string{"/tmp/it's a clip.mp4"})
	if err != nil {
		t.Fatalf("writeConcatManifest failed: %v", err)
	}

	data, _ := os.ReadFile(listPath)
	if !strings.Contains(string(data), `'\''`) {
		t.Errorf("single quote not escaped: %q", string(data))
	}
}

func TestVerifyRejectsTinyOutput(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.mp4")
	if err := os.WriteFile(out, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	a := newTestAssembler(&fakeProber{info: media.Info{DurationSeconds: 60}})

	_, err := a.verify(context.Background(), out, 60)
	if !errors.Is(err, ErrAssembly) {
		t.Fatalf("error = %v, want ErrAssembly for near-zero file", err)
	}
}

func TestVerifyRejectsDurationDrift(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.mp4")
	if err := os.WriteFile(out, make([]byte, 8192), 0644); err != nil {
		t.Fatal(err)
	}

	a := newTestAssembler(&fakeProber{info: media.Info{DurationSeconds: 48.2}})

	_, err := a.verify(context.Background(), out, 60)
	if !errors.Is(err, ErrAssembly) {
		t.Fatalf("error = %v, want ErrAssembly for duration drift", err)
	}
	if !strings.Contains(err.Error(), "deviates") {
		t.Errorf("error should name the deviation: %v", err)
	}
}

func TestVerifyAcceptsWithinTolerance(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.mp4")
	if err := os.WriteFile(out, make([]byte, 8192), 0644); err != nil {
		t.Fatal(err)
	}

	a := newTestAssembler(&fakeProber{info: media.Info{DurationSeconds: 59.4, HasAudio: true, HasVideo: true}})

	res, err := a.verify(context.Background(), out, 60)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if res.FileSizeBytes != 8192 {
		t.Errorf("FileSizeBytes = %d, want 8192", res.FileSizeBytes)
	}
	if res.DurationSeconds != 59.4 {
		t.Errorf("DurationSeconds = %f, want 59.4", res.DurationSeconds)
	}
}
