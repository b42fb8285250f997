package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"vidproc/internal/logging"
	"vidproc/internal/status"
	"vidproc/internal/workspace"
)

// Sweeper is the staging side of a sweep.
type Sweeper interface {
	CleanStale(ctx context.Context, maxAge time.Duration) workspace.CleanStaleResult
}

// Options holds the sweep thresholds.
type Options struct {
	StaleAfter    time.Duration
	StagingMaxAge time.Duration
	Interval      time.Duration
}

// Result summarizes one sweep.
type Result struct {
	Reclaimed    int64
	FilesRemoved int
	Errors       []error
}

// Reconciler periodically fails abandoned records and removes stale staged files.
type Reconciler struct {
	store   status.Store
	staging Sweeper
	opts    Options
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a reconciler.
func New(store status.Store, staging Sweeper, opts Options, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		store:   store,
		staging: staging,
		opts:    opts,
		logger:  logging.NewComponentLogger(logger, "reconciler"),
		now:     time.Now,
	}
}

// RunOnce performs a single sweep.
func (r *Reconciler) RunOnce(ctx context.Context) Result {
	var result Result

	if r.opts.StaleAfter > 0 {
		cutoff := r.now().Add(-r.opts.StaleAfter)
		reclaimed, err := r.store.ReclaimStale(ctx, cutoff, status.StaleReason)
		if err != nil {
			result.Errors = append(result.Errors, err)
			logging.WarnWithContext(r.logger, "stale record sweep failed", "reconcile_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the status store connection"),
				logging.String(logging.FieldImpact, "abandoned videos stay processing until the next sweep"),
			)
		}
		result.Reclaimed = reclaimed
		if reclaimed > 0 {
			r.logger.Info("reclaimed stale records",
				logging.Int64("count", reclaimed),
				logging.Duration("stale_after", r.opts.StaleAfter),
				logging.String(logging.FieldEventType, "records_reclaimed"),
			)
		}
	}

	if r.opts.StagingMaxAge > 0 && r.staging != nil {
		cleaned := r.staging.CleanStale(ctx, r.opts.StagingMaxAge)
		result.FilesRemoved = len(cleaned.Removed)
		for _, failure := range cleaned.Errors {
			result.Errors = append(result.Errors, failure.Error)
		}
		if len(cleaned.Removed) > 0 {
			r.logger.Info("removed stale staged files",
				logging.Int("count", len(cleaned.Removed)),
				logging.String(logging.FieldEventType, "staging_swept"),
			)
		}
	}
	return result
}

// Start runs a sweep every interval until ctx ends. Callers wanting a sweep
// at startup call RunOnce first.
func (r *Reconciler) Start(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	if r.opts.Interval <= 0 {
		return
	}
	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result := r.RunOnce(ctx)
			for _, err := range result.Errors {
				if errors.Is(err, context.Canceled) {
					r.logger.Info("shutting down, sweep cancelled")
					return
				}
			}
		}
	}
}
