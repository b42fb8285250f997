package preflight

import (
	"context"

	"vidproc/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Pinger is satisfied by the status store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BucketChecker is satisfied by the blob client.
type BucketChecker interface {
	EnsureBuckets(ctx context.Context, create bool) error
}

// Targets are the live backends to check. Nil targets are skipped.
type Targets struct {
	Store   Pinger
	Buckets BucketChecker
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config, targets Targets) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Raw staging directory", cfg.Paths.RawDir),
		CheckDirectoryAccess("Processed staging directory", cfg.Paths.ProcessedDir),
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
	}
	results = append(results, CheckBinaries(ctx, cfg)...)
	if targets.Store != nil {
		results = append(results, CheckStatusStore(ctx, cfg.Status.Backend, targets.Store))
	}
	if targets.Buckets != nil {
		results = append(results, CheckObjectStore(ctx, cfg.Storage.Endpoint, targets.Buckets, cfg.Storage.CreateBuckets))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
