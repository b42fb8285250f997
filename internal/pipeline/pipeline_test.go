package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"vidproc/internal/blob"
	"vidproc/internal/logging"
	"vidproc/internal/pipeline"
	"vidproc/internal/services"
	"vidproc/internal/status"
	"vidproc/internal/testsupport"
	"vidproc/internal/workspace"
)

type fakeTransfer struct {
	ws         *workspace.Workspace
	missing    bool
	publishErr error

	mu        sync.Mutex
	fetched   []string
	published []string
	sawLock   func()
}

func (f *fakeTransfer) Fetch(_ context.Context, name string) blob.FetchResult {
	f.mu.Lock()
	f.fetched = append(f.fetched, name)
	hook := f.sawLock
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	if f.missing {
		return blob.FetchResult{Outcome: blob.NotFound, Err: services.Wrap(services.ErrNotFound, "fetch", "stat", name, nil)}
	}
	path := f.ws.RawPath(name)
	if err := os.WriteFile(path, []byte("raw"), 0o644); err != nil {
		return blob.FetchResult{Outcome: blob.TransferError, Err: err}
	}
	return blob.FetchResult{Outcome: blob.Fetched, Path: path, Size: 3}
}

func (f *fakeTransfer) Publish(_ context.Context, name string) error {
	if _, err := os.Stat(f.ws.ProcessedPath(name)); err != nil {
		return services.Wrap(services.ErrNotFound, "publish", "stat", name, err)
	}
	if f.publishErr != nil {
		return f.publishErr
	}
	f.mu.Lock()
	f.published = append(f.published, name)
	f.mu.Unlock()
	return nil
}

type fakeTranscoder struct {
	ws  *workspace.Workspace
	err error
}

func (f *fakeTranscoder) Transcode(_ context.Context, input, output string) error {
	if _, err := os.Stat(f.ws.RawPath(input)); err != nil {
		return services.Wrap(services.ErrNotFound, "transcode", "stat input", input, err)
	}
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(f.ws.ProcessedPath(output), []byte("processed"), 0o644)
}

// countingStore records writes so tests can assert that rejected jobs never touch state.
type countingStore struct {
	status.Store
	mu      sync.Mutex
	upserts int
}

func (s *countingStore) Upsert(ctx context.Context, id string, patch status.Patch) error {
	s.mu.Lock()
	s.upserts++
	s.mu.Unlock()
	return s.Store.Upsert(ctx, id, patch)
}

func (s *countingStore) writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upserts
}

type harness struct {
	store      *countingStore
	ws         *workspace.Workspace
	transfer   *fakeTransfer
	transcoder *fakeTranscoder
	pipe       *pipeline.Pipeline
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	store := &countingStore{Store: testsupport.MustOpenStore(t, cfg)}
	ws := workspace.New(cfg.Paths.RawDir, cfg.Paths.ProcessedDir, logging.NewNop())
	if _, err := ws.Ensure(); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	h := &harness{
		store:      store,
		ws:         ws,
		transfer:   &fakeTransfer{ws: ws},
		transcoder: &fakeTranscoder{ws: ws},
	}
	h.pipe = pipeline.New(store, h.transfer, h.transcoder, ws, pipeline.Options{
		MaxAttempts: cfg.Pipeline.MaxAttempts,
		JobTimeout:  time.Minute,
	}, logging.NewNop())
	return h
}

func (h *harness) assertStagingEmpty(t *testing.T) {
	t.Helper()
	for _, dir := range []string{h.ws.RawDir(), h.ws.ProcessedDir()} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatalf("read %s: %v", dir, err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			t.Fatalf("staged file left behind: %s", filepath.Join(dir, entry.Name()))
		}
	}
}

func mustJob(t *testing.T, name string) pipeline.Job {
	t.Helper()
	job, err := pipeline.NewJob(name)
	if err != nil {
		t.Fatalf("NewJob(%q): %v", name, err)
	}
	return job
}

func TestNewJob(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		videoID string
		ownerID string
		output  string
		wantErr bool
	}{
		{name: "standard", input: "user123-1700000000.mp4", videoID: "user123-1700000000", ownerID: "user123", output: "processed-user123-1700000000.mp4"},
		{name: "multiple dots", input: "abc-1.part.mov", videoID: "abc-1", ownerID: "abc", output: "processed-abc-1.part.mov"},
		{name: "no dash", input: "clip.mp4", videoID: "clip", ownerID: "clip", output: "processed-clip.mp4"},
		{name: "no extension", input: "user-9", videoID: "user-9", ownerID: "user", output: "processed-user-9"},
		{name: "empty", input: "", wantErr: true},
		{name: "blank", input: "   ", wantErr: true},
		{name: "leading dot", input: ".mp4", wantErr: true},
		{name: "traversal", input: "../etc/passwd", wantErr: true},
		{name: "backslash", input: `a\b.mp4`, wantErr: true},
		{name: "dot dot", input: "..", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job, err := pipeline.NewJob(tt.input)
			if tt.wantErr {
				if !errors.Is(err, services.ErrValidation) {
					t.Fatalf("expected validation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewJob: %v", err)
			}
			if job.VideoID != tt.videoID || job.OwnerID != tt.ownerID || job.OutputObjectName != tt.output || job.RawObjectName != tt.input {
				t.Fatalf("unexpected job %+v", job)
			}
		})
	}
}

func TestProcessCompletesJob(t *testing.T) {
	h := newHarness(t)
	job := mustJob(t, "user123-1700000000.mp4")

	outcome, err := h.pipe.Process(context.Background(), job)
	if err != nil || outcome != pipeline.Completed {
		t.Fatalf("Process = %s, %v", outcome, err)
	}

	rec := testsupport.MustGet(t, h.store, "user123-1700000000")
	if rec.Status != status.StatusProcessed || rec.Filename != "processed-user123-1700000000.mp4" || rec.UID != "user123" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.Error != "" {
		t.Fatalf("expected no error on processed record, got %q", rec.Error)
	}
	if len(h.transfer.published) != 1 || h.transfer.published[0] != "processed-user123-1700000000.mp4" {
		t.Fatalf("unexpected uploads %v", h.transfer.published)
	}
	h.assertStagingEmpty(t)
}

func TestProcessRejectsProcessedVideoWithoutWrites(t *testing.T) {
	h := newHarness(t)
	job := mustJob(t, "user123-1700000000.mp4")
	if outcome, err := h.pipe.Process(context.Background(), job); outcome != pipeline.Completed {
		t.Fatalf("first Process = %s, %v", outcome, err)
	}
	writes := h.store.writes()
	fetches := len(h.transfer.fetched)

	outcome, err := h.pipe.Process(context.Background(), job)
	if outcome != pipeline.Conflict || !errors.Is(err, services.ErrConflict) {
		t.Fatalf("second Process = %s, %v", outcome, err)
	}
	if h.store.writes() != writes {
		t.Fatalf("conflict wrote to the status store")
	}
	if len(h.transfer.fetched) != fetches {
		t.Fatalf("conflict triggered a download")
	}
	if rec := testsupport.MustGet(t, h.store, job.VideoID); rec.Status != status.StatusProcessed {
		t.Fatalf("record changed to %s", rec.Status)
	}
}

func TestProcessRejectsWhileAnotherJobHoldsVideo(t *testing.T) {
	h := newHarness(t)
	job := mustJob(t, "user123-1700000000.mp4")

	adm, outcome, err := h.pipe.Admit(context.Background(), job)
	if err != nil || outcome != pipeline.Accepted {
		t.Fatalf("Admit = %s, %v", outcome, err)
	}

	outcome, err = h.pipe.Process(context.Background(), job)
	if outcome != pipeline.Conflict || !errors.Is(err, services.ErrConflict) {
		t.Fatalf("duplicate Process = %s, %v", outcome, err)
	}
	if len(h.transfer.fetched) != 0 {
		t.Fatalf("duplicate job downloaded %v", h.transfer.fetched)
	}

	if outcome, err := h.pipe.Run(context.Background(), adm); outcome != pipeline.Completed {
		t.Fatalf("Run = %s, %v", outcome, err)
	}
}

func TestProcessMissingInputFailsRecord(t *testing.T) {
	h := newHarness(t)
	h.transfer.missing = true
	job := mustJob(t, "user123-1700000000.mp4")

	outcome, err := h.pipe.Process(context.Background(), job)
	if outcome != pipeline.InputUnavailable || !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("Process = %s, %v", outcome, err)
	}
	rec := testsupport.MustGet(t, h.store, job.VideoID)
	if rec.Status != status.StatusFailed || rec.Error == "" {
		t.Fatalf("expected failed record with error, got %+v", rec)
	}
	h.assertStagingEmpty(t)
}

func TestProcessTranscodeFailureCleansUp(t *testing.T) {
	h := newHarness(t)
	h.transcoder.err = services.Wrap(services.ErrExternalTool, "transcode", "ffmpeg", "exit status 1", nil)
	job := mustJob(t, "user123-1700000000.mp4")

	outcome, err := h.pipe.Process(context.Background(), job)
	if outcome != pipeline.TranscodeFailed || !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("Process = %s, %v", outcome, err)
	}
	rec := testsupport.MustGet(t, h.store, job.VideoID)
	if rec.Status != status.StatusFailed {
		t.Fatalf("expected failed, got %s", rec.Status)
	}
	if len(h.transfer.published) != 0 {
		t.Fatalf("failed transcode was published")
	}
	h.assertStagingEmpty(t)
}

func TestProcessPublishFailureCleansUp(t *testing.T) {
	h := newHarness(t)
	h.transfer.publishErr = services.Wrap(services.ErrTransient, "publish", "upload", "connection reset", nil)
	job := mustJob(t, "user123-1700000000.mp4")

	outcome, err := h.pipe.Process(context.Background(), job)
	if outcome != pipeline.PublishFailed || !errors.Is(err, services.ErrTransient) {
		t.Fatalf("Process = %s, %v", outcome, err)
	}
	rec := testsupport.MustGet(t, h.store, job.VideoID)
	if rec.Status != status.StatusFailed || rec.Filename != "" {
		t.Fatalf("unexpected record %+v", rec)
	}
	h.assertStagingEmpty(t)
}

func TestFailedVideoCanBeRetriedUntilAttemptsExhausted(t *testing.T) {
	h := newHarness(t, testsupport.WithMaxAttempts(2))
	h.transfer.missing = true
	job := mustJob(t, "user123-1700000000.mp4")

	if outcome, _ := h.pipe.Process(context.Background(), job); outcome != pipeline.InputUnavailable {
		t.Fatalf("first attempt = %s", outcome)
	}
	h.transfer.missing = false
	if outcome, err := h.pipe.Process(context.Background(), job); outcome != pipeline.Completed {
		t.Fatalf("retry = %s, %v", outcome, err)
	}
	rec := testsupport.MustGet(t, h.store, job.VideoID)
	if rec.Attempts != 2 || rec.Status != status.StatusProcessed {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestFailedVideoRejectedAfterMaxAttempts(t *testing.T) {
	h := newHarness(t, testsupport.WithMaxAttempts(1))
	h.transfer.missing = true
	job := mustJob(t, "user123-1700000000.mp4")

	if outcome, _ := h.pipe.Process(context.Background(), job); outcome != pipeline.InputUnavailable {
		t.Fatalf("first attempt = %s", outcome)
	}
	outcome, err := h.pipe.Process(context.Background(), job)
	if outcome != pipeline.Conflict || !errors.Is(err, services.ErrConflict) {
		t.Fatalf("second attempt = %s, %v", outcome, err)
	}
}

func TestRunHoldsLockUntilCleanup(t *testing.T) {
	h := newHarness(t)
	job := mustJob(t, "user123-1700000000.mp4")
	var lockErr error
	h.transfer.sawLock = func() {
		lock, err := h.ws.Lock(job.VideoID)
		if err == nil {
			_ = lock.Release()
		}
		lockErr = err
	}

	if outcome, err := h.pipe.Process(context.Background(), job); outcome != pipeline.Completed {
		t.Fatalf("Process = %s, %v", outcome, err)
	}
	if !errors.Is(lockErr, workspace.ErrLocked) {
		t.Fatalf("expected lock to be held during fetch, got %v", lockErr)
	}
	lock, err := h.ws.Lock(job.VideoID)
	if err != nil {
		t.Fatalf("lock not released after run: %v", err)
	}
	_ = lock.Release()
}

func TestReleaseMarksAdmissionFailed(t *testing.T) {
	h := newHarness(t)
	job := mustJob(t, "user123-1700000000.mp4")
	adm, _, err := h.pipe.Admit(context.Background(), job)
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}

	h.pipe.Release(context.Background(), adm, errors.New("server shutting down"))

	rec := testsupport.MustGet(t, h.store, job.VideoID)
	if rec.Status != status.StatusFailed || rec.Error != "server shutting down" {
		t.Fatalf("unexpected record %+v", rec)
	}
	lock, err := h.ws.Lock(job.VideoID)
	if err != nil {
		t.Fatalf("lock not released: %v", err)
	}
	_ = lock.Release()
}

func TestAdmissionHeartbeatRefreshesRecordUntilReleased(t *testing.T) {
	h := newHarness(t)
	h.pipe = pipeline.New(h.store, h.transfer, h.transcoder, h.ws, pipeline.Options{
		MaxAttempts:       3,
		JobTimeout:        time.Minute,
		HeartbeatInterval: 10 * time.Millisecond,
	}, logging.NewNop())
	job := mustJob(t, "user123-1700000000.mp4")

	adm, _, err := h.pipe.Admit(context.Background(), job)
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	claimed := testsupport.MustGet(t, h.store, job.VideoID).UpdatedAt

	deadline := time.Now().Add(2 * time.Second)
	for !testsupport.MustGet(t, h.store, job.VideoID).UpdatedAt.After(claimed) {
		if time.Now().After(deadline) {
			t.Fatal("heartbeat never refreshed the admitted record")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if n, err := h.store.ReclaimStale(context.Background(), claimed.Add(time.Nanosecond), status.StaleReason); err != nil || n != 0 {
		t.Fatalf("admitted record reclaimed while held: %d %v", n, err)
	}

	h.pipe.Release(context.Background(), adm, errors.New("server shutting down"))
	released := testsupport.MustGet(t, h.store, job.VideoID)
	if released.Status != status.StatusFailed {
		t.Fatalf("expected failed after release, got %+v", released)
	}
	time.Sleep(50 * time.Millisecond)
	if after := testsupport.MustGet(t, h.store, job.VideoID); !after.UpdatedAt.Equal(released.UpdatedAt) {
		t.Fatalf("record touched after release: %v -> %v", released.UpdatedAt, after.UpdatedAt)
	}
}

func TestProcessWithRedisBackend(t *testing.T) {
	h := newHarness(t, testsupport.WithRedis())
	job := mustJob(t, "user123-1700000000.mp4")

	if outcome, err := h.pipe.Process(context.Background(), job); outcome != pipeline.Completed {
		t.Fatalf("Process = %s, %v", outcome, err)
	}
	if outcome, _ := h.pipe.Process(context.Background(), job); outcome != pipeline.Conflict {
		t.Fatalf("duplicate = %s", outcome)
	}
}
