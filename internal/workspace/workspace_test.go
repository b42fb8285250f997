package workspace_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"vidproc/internal/logging"
	"vidproc/internal/services"
	"vidproc/internal/workspace"
)

func newWorkspace(t *testing.T) *workspace.Workspace {
	t.Helper()
	base := t.TempDir()
	ws := workspace.New(filepath.Join(base, "raw"), filepath.Join(base, "processed"), logging.NewNop())
	if _, err := ws.Ensure(); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	return ws
}

func TestEnsureCreatesDirectoriesOnce(t *testing.T) {
	base := t.TempDir()
	ws := workspace.New(filepath.Join(base, "raw"), filepath.Join(base, "processed"), logging.NewNop())

	created, err := ws.Ensure()
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if len(created) != 3 {
		t.Fatalf("expected raw, processed and lock dirs to be created, got %v", created)
	}
	created, err = ws.Ensure()
	if err != nil {
		t.Fatalf("second Ensure: %v", err)
	}
	if len(created) != 0 {
		t.Fatalf("expected no directories created on second call, got %v", created)
	}
}

func TestEnsureRejectsFileInPlaceOfDirectory(t *testing.T) {
	base := t.TempDir()
	rawPath := filepath.Join(base, "raw")
	if err := os.WriteFile(rawPath, []byte("x"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	ws := workspace.New(rawPath, filepath.Join(base, "processed"), logging.NewNop())
	if _, err := ws.Ensure(); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestDiscardIsIdempotent(t *testing.T) {
	ws := newWorkspace(t)
	name := "user123-1700000000.mp4"
	if err := os.WriteFile(ws.RawPath(name), []byte("raw"), 0o644); err != nil {
		t.Fatalf("write raw: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := ws.DiscardRaw(name); err != nil {
			t.Fatalf("DiscardRaw attempt %d: %v", i+1, err)
		}
	}
	if _, err := os.Stat(ws.RawPath(name)); !os.IsNotExist(err) {
		t.Fatalf("expected raw file removed, stat err=%v", err)
	}
	if err := ws.DiscardProcessed("processed-" + name); err != nil {
		t.Fatalf("DiscardProcessed on missing file: %v", err)
	}
}

func TestLockIsExclusivePerVideo(t *testing.T) {
	ws := newWorkspace(t)

	first, err := ws.Lock("user123-1700000000")
	if err != nil {
		t.Fatalf("first Lock: %v", err)
	}
	if _, err := ws.Lock("user123-1700000000"); !errors.Is(err, workspace.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	if !errors.Is(workspace.ErrLocked, services.ErrConflict) {
		t.Fatal("ErrLocked should classify as a conflict")
	}

	other, err := ws.Lock("user456-1700000000")
	if err != nil {
		t.Fatalf("lock for a different video should succeed: %v", err)
	}
	defer other.Release() //nolint:errcheck

	if err := first.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	again, err := ws.Lock("user123-1700000000")
	if err != nil {
		t.Fatalf("Lock after release: %v", err)
	}
	if err := again.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
}

func TestLockRejectsPathLikeIDs(t *testing.T) {
	ws := newWorkspace(t)
	for _, id := range []string{"", "../escape", `a\b`} {
		if _, err := ws.Lock(id); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("Lock(%q): expected validation error, got %v", id, err)
		}
	}
}

func TestCleanStaleRemovesOldFilesOnly(t *testing.T) {
	ws := newWorkspace(t)

	oldRaw := ws.RawPath("old.mp4")
	oldProcessed := ws.ProcessedPath("processed-old.mp4")
	recent := ws.RawPath("recent.mp4")
	for _, path := range []string{oldRaw, oldProcessed, recent} {
		if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	oldTime := time.Now().Add(-3 * time.Hour)
	for _, path := range []string{oldRaw, oldProcessed} {
		if err := os.Chtimes(path, oldTime, oldTime); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}
	lockDir := filepath.Join(ws.RawDir(), ".locks")
	if err := os.Chtimes(lockDir, oldTime, oldTime); err != nil {
		t.Fatalf("chtimes lock dir: %v", err)
	}

	result := ws.CleanStale(context.Background(), time.Hour)
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	if len(result.Removed) != 2 {
		t.Fatalf("expected 2 removed, got %v", result.Removed)
	}
	if _, err := os.Stat(recent); err != nil {
		t.Fatalf("recent file should remain: %v", err)
	}
	if _, err := os.Stat(lockDir); err != nil {
		t.Fatalf("lock directory should be skipped: %v", err)
	}
}

func TestCleanStaleInvalidPaths(t *testing.T) {
	for _, dir := range []string{"", "   ", "/nonexistent/path/12345"} {
		result := workspace.CleanStale(context.Background(), dir, time.Hour, logging.NewNop())
		if len(result.Removed) != 0 || len(result.Errors) != 0 {
			t.Errorf("expected empty result for path %q", dir)
		}
	}
}
