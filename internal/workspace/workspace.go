package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"

	"vidproc/internal/logging"
	"vidproc/internal/services"
)

const lockDirName = ".locks"

// ErrLocked reports that another job holds the lock for a video.
var ErrLocked = fmt.Errorf("%w: video is locked by another job", services.ErrConflict)

// Workspace owns the inbound and outbound staging directories.
type Workspace struct {
	rawDir       string
	processedDir string
	logger       *slog.Logger
}

// New returns a workspace rooted at the given staging directories.
func New(rawDir, processedDir string, logger *slog.Logger) *Workspace {
	return &Workspace{
		rawDir:       rawDir,
		processedDir: processedDir,
		logger:       logging.NewComponentLogger(logger, "workspace"),
	}
}

// RawDir returns the inbound staging directory.
func (w *Workspace) RawDir() string { return w.rawDir }

// ProcessedDir returns the outbound staging directory.
func (w *Workspace) ProcessedDir() string { return w.processedDir }

// RawPath returns the staged location of a raw object.
func (w *Workspace) RawPath(name string) string {
	return filepath.Join(w.rawDir, name)
}

// ProcessedPath returns the staged location of a processed object.
func (w *Workspace) ProcessedPath(name string) string {
	return filepath.Join(w.processedDir, name)
}

// Ensure creates the staging directories if they are absent and returns the
// directories it created.
func (w *Workspace) Ensure() ([]string, error) {
	var created []string
	for _, dir := range []string{w.rawDir, w.processedDir, filepath.Join(w.rawDir, lockDirName)} {
		if strings.TrimSpace(dir) == "" {
			return created, fmt.Errorf("%w: staging directory not configured", services.ErrConfiguration)
		}
		if info, err := os.Stat(dir); err == nil {
			if !info.IsDir() {
				return created, fmt.Errorf("%w: %s is not a directory", services.ErrConfiguration, dir)
			}
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return created, fmt.Errorf("create staging directory %q: %w", dir, err)
		}
		created = append(created, dir)
		w.logger.Info("created staging directory", logging.String("path", dir))
	}
	return created, nil
}

// DiscardRaw removes a staged raw file. A missing file is not an error.
func (w *Workspace) DiscardRaw(name string) error {
	return w.discard(w.RawPath(name))
}

// DiscardProcessed removes a staged processed file. A missing file is not an error.
func (w *Workspace) DiscardProcessed(name string) error {
	return w.discard(w.ProcessedPath(name))
}

func (w *Workspace) discard(path string) error {
	err := os.Remove(path)
	switch {
	case err == nil:
		w.logger.Debug("deleted staged file", logging.String("path", path))
		return nil
	case errors.Is(err, fs.ErrNotExist):
		w.logger.Debug("staged file absent, skipping delete", logging.String("path", path))
		return nil
	default:
		return fmt.Errorf("delete staged file %s: %w", path, err)
	}
}

// Lock is an exclusive hold on one video's staging namespace.
type Lock struct {
	fl *flock.Flock
}

// Lock takes the per-video lock without blocking. It returns ErrLocked when
// another job, in this process or another one sharing the staging area, holds it.
func (w *Workspace) Lock(videoID string) (*Lock, error) {
	if videoID == "" || strings.ContainsAny(videoID, `/\`) {
		return nil, fmt.Errorf("%w: invalid video id %q", services.ErrValidation, videoID)
	}
	dir := filepath.Join(w.rawDir, lockDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	fl := flock.New(filepath.Join(dir, videoID+".lock"))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire video lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return &Lock{fl: fl}, nil
}

// Release drops the lock. The lock file is left in place so a concurrent
// opener never ends up holding a lock on an unlinked inode.
func (l *Lock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}
