package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestPublishLocal(t *testing.T) {
	outDir := t.TempDir()
	store, err := NewLocal(outDir)
	if err != nil {
		t.Fatalf("NewLocal failed: %v", err)
	}

	src := filepath.Join(t.TempDir(), "final.mp4")
	if err := os.WriteFile(src, []byte("video bytes"), 0644); err != nil {
		t.Fatal(err)
	}

	jobID := uuid.New()
	url, err := store.Publish(context.Background(), jobID, src)
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	want := filepath.Join(outDir, jobID.String()+".mp4")
	if url != "file://"+want {
		t.Errorf("url = %s, want file://%s", url, want)
	}

	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("output not written: %v", err)
	}
	if string(data) != "video bytes" {
		t.Errorf("output content = %q", data)
	}
}

func TestPublishDeterministicPath(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	jobID := uuid.New()
	if store.OutputPath(jobID) != store.OutputPath(jobID) {
		t.Error("OutputPath is not deterministic")
	}
	if !strings.HasSuffix(store.OutputPath(jobID), jobID.String()+".mp4") {
		t.Errorf("OutputPath %s does not derive from job id", store.OutputPath(jobID))
	}
}

func TestPublishUploadsToRemote(t *testing.T) {
	var gotPath, gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	store, err := New(t.TempDir(), ts.URL, "service-key", "videos")
	if err != nil {
		t.Fatal(err)
	}

	src := filepath.Join(t.TempDir(), "final.mp4")
	if err := os.WriteFile(src, []byte("video"), 0644); err != nil {
		t.Fatal(err)
	}

	jobID := uuid.New()
	url, err := store.Publish(context.Background(), jobID, src)
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if !strings.Contains(gotPath, "videos/renders/"+jobID.String()) {
		t.Errorf("upload path = %s", gotPath)
	}
	if gotAuth != "Bearer service-key" {
		t.Errorf("auth header = %s", gotAuth)
	}
	if !strings.Contains(url, "/object/public/videos/renders/") {
		t.Errorf("public url = %s", url)
	}
}

func TestPublishUploadFailsOnClientError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer ts.Close()

	store, err := New(t.TempDir(), ts.URL, "bad-key", "videos")
	if err != nil {
		t.Fatal(err)
	}

	src := filepath.Join(t.TempDir(), "final.mp4")
	if err := os.WriteFile(src, []byte("video"), 0644); err != nil {
		t.Fatal(err)
	}

	// 403 is not retryable; the error must surface immediately.
	if _, err := store.Publish(context.Background(), uuid.New(), src); err == nil {
		t.Fatal("expected error on forbidden upload")
	}
}
