package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"vidproc/internal/blob"
	"vidproc/internal/logging"
	"vidproc/internal/services"
	"vidproc/internal/status"
	"vidproc/internal/workspace"
)

// failureWriteTimeout bounds the detached status write after a failure.
const failureWriteTimeout = 10 * time.Second

// Transfer moves objects between the object store and staging.
type Transfer interface {
	Fetch(ctx context.Context, name string) blob.FetchResult
	Publish(ctx context.Context, name string) error
}

// Transcoder converts a raw staged file into a processed staged file.
type Transcoder interface {
	Transcode(ctx context.Context, input, output string) error
}

// Options tunes admission and supervision.
type Options struct {
	MaxAttempts int
	JobTimeout  time.Duration
	// HeartbeatInterval is how often an admitted record's updated_at is
	// refreshed until the job finishes. Zero disables the heartbeat.
	HeartbeatInterval time.Duration
}

// Pipeline admits jobs and runs them through fetch, transcode, publish and finalize.
type Pipeline struct {
	store      status.Store
	transfer   Transfer
	transcoder Transcoder
	workspace  *workspace.Workspace
	opts       Options
	logger     *slog.Logger
}

// New wires a pipeline.
func New(store status.Store, transfer Transfer, transcoder Transcoder, ws *workspace.Workspace, opts Options, logger *slog.Logger) *Pipeline {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	return &Pipeline{
		store:      store,
		transfer:   transfer,
		transcoder: transcoder,
		workspace:  ws,
		opts:       opts,
		logger:     logging.NewComponentLogger(logger, "pipeline"),
	}
}

// Admission is a claimed job holding its video lock. Pass it to Run exactly once.
type Admission struct {
	Job  Job
	lock *workspace.Lock
	beat *heartbeat
}

// Release gives up an admission without running it. The claimed record is
// marked failed so the video can be claimed again.
func (p *Pipeline) Release(ctx context.Context, adm *Admission, reason error) {
	if adm == nil {
		return
	}
	p.markFailed(ctx, adm.Job, reason)
	p.releaseLock(adm)
}

// Admit takes the per-video lock and atomically claims the status record.
// On Conflict nothing has been written.
func (p *Pipeline) Admit(ctx context.Context, job Job) (*Admission, Outcome, error) {
	ctx = services.WithVideoID(ctx, job.VideoID)
	logger := logging.WithContext(ctx, p.logger)

	lock, err := p.workspace.Lock(job.VideoID)
	if err != nil {
		if errors.Is(err, services.ErrConflict) {
			logger.Info("job rejected: video locked by another job", logging.String(logging.FieldEventType, "admission_conflict"))
			return nil, Conflict, err
		}
		return nil, Failed, services.Wrap(services.ErrTransient, "admit", "lock", job.VideoID, err)
	}

	claimed, err := p.store.Claim(ctx, status.Record{ID: job.VideoID, UID: job.OwnerID}, p.opts.MaxAttempts)
	if err != nil {
		_ = lock.Release()
		return nil, Failed, services.Wrap(services.ErrTransient, "admit", "claim", job.VideoID, err)
	}
	if !claimed {
		_ = lock.Release()
		logger.Info("job rejected: video already processing or processed", logging.String(logging.FieldEventType, "admission_conflict"))
		return nil, Conflict, services.Wrap(services.ErrConflict, "admit", "claim", "video already processing or processed", nil)
	}

	logger.Info("job admitted",
		logging.String("object", job.RawObjectName),
		logging.String("uid", job.OwnerID),
		logging.String(logging.FieldEventType, "job_admitted"),
	)
	return &Admission{Job: job, lock: lock, beat: p.startHeartbeat(ctx, job.VideoID)}, Accepted, nil
}

// Run executes an admitted job. Both staged files are removed on every exit
// path, after which the video lock is released. Any failure marks the record
// failed.
func (p *Pipeline) Run(ctx context.Context, adm *Admission) (Outcome, error) {
	job := adm.Job
	ctx = services.WithVideoID(ctx, job.VideoID)
	if p.opts.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.JobTimeout)
		defer cancel()
	}
	logger := logging.WithContext(ctx, p.logger)
	start := time.Now()

	defer p.releaseLock(adm)
	defer p.cleanup(ctx, job)

	if _, err := p.store.Touch(ctx, job.VideoID); err != nil {
		logger.Warn("failed to refresh record before run", logging.Error(err))
	}

	fetched := p.transfer.Fetch(services.WithStage(ctx, "fetch"), job.RawObjectName)
	if !fetched.OK() {
		return p.fail(ctx, job, InputUnavailable, fetched.Err)
	}

	if err := p.transcoder.Transcode(services.WithStage(ctx, "transcode"), job.RawObjectName, job.OutputObjectName); err != nil {
		return p.fail(ctx, job, TranscodeFailed, err)
	}

	if err := p.transfer.Publish(services.WithStage(ctx, "publish"), job.OutputObjectName); err != nil {
		return p.fail(ctx, job, PublishFailed, err)
	}

	if err := p.store.Upsert(ctx, job.VideoID, status.Processed(job.OutputObjectName)); err != nil {
		return p.fail(ctx, job, Failed, services.Wrap(services.ErrTransient, "finalize", "upsert", job.VideoID, err))
	}

	logger.Info("job completed",
		logging.String("filename", job.OutputObjectName),
		logging.Duration("elapsed", time.Since(start)),
		logging.String(logging.FieldEventType, "job_completed"),
	)
	return Completed, nil
}

// Process admits and runs a job synchronously.
func (p *Pipeline) Process(ctx context.Context, job Job) (Outcome, error) {
	adm, outcome, err := p.Admit(ctx, job)
	if err != nil {
		return outcome, err
	}
	return p.Run(ctx, adm)
}

func (p *Pipeline) fail(ctx context.Context, job Job, outcome Outcome, err error) (Outcome, error) {
	if err == nil {
		err = services.Wrap(services.ErrTransient, outcome.String(), "", "failed without error detail", nil)
	}
	logging.ErrorWithContext(logging.WithContext(ctx, p.logger), "job failed", "job_failed",
		logging.String("outcome", outcome.String()),
		logging.Bool("retryable", services.Retryable(err)),
		logging.Error(err),
	)
	p.markFailed(ctx, job, err)
	return outcome, err
}

// markFailed writes the failed status on a context that survives cancellation
// of the job itself.
func (p *Pipeline) markFailed(ctx context.Context, job Job, cause error) {
	message := "job abandoned"
	if cause != nil {
		message = cause.Error()
	}
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureWriteTimeout)
	defer cancel()
	if err := p.store.Upsert(writeCtx, job.VideoID, status.Failed(message)); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, p.logger), "failed to record job failure", "status_write_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the reconciler will fail the record once it goes stale"),
			logging.String(logging.FieldImpact, "record stays processing until reconciled"),
		)
	}
}

// cleanup removes both staged files concurrently. Errors are logged only.
func (p *Pipeline) cleanup(ctx context.Context, job Job) {
	logger := logging.WithContext(ctx, p.logger)
	var wg sync.WaitGroup
	discard := func(kind, name string, fn func(string) error) {
		defer wg.Done()
		if err := fn(name); err != nil {
			logging.WarnWithContext(logger, "failed to delete staged file", "staging_cleanup_failed",
				logging.String("kind", kind),
				logging.String("file", name),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check staging directory permissions"),
				logging.String(logging.FieldImpact, "the stale file sweep will retry"),
			)
		}
	}
	wg.Add(2)
	go discard("raw", job.RawObjectName, p.workspace.DiscardRaw)
	go discard("processed", job.OutputObjectName, p.workspace.DiscardProcessed)
	wg.Wait()
}

// releaseLock stops the heartbeat and then drops the video lock.
func (p *Pipeline) releaseLock(adm *Admission) {
	adm.beat.stop()
	if err := adm.lock.Release(); err != nil {
		p.logger.Warn("failed to release video lock", logging.String(logging.FieldVideoID, adm.Job.VideoID), logging.Error(err))
	}
}
