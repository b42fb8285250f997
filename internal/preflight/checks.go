package preflight

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"vidproc/internal/config"
	"vidproc/internal/deps"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckBinaries resolves every external binary the pipeline runs and, where
// the requirement can report one, reads its version.
func CheckBinaries(ctx context.Context, cfg *config.Config) []Result {
	reqs := deps.Requirements(cfg)
	statuses := deps.CheckBinaries(reqs)
	results := make([]Result, len(statuses))
	for i, status := range statuses {
		results[i] = binaryResult(ctx, reqs[i], status)
	}
	return results
}

func binaryResult(ctx context.Context, req deps.Requirement, status deps.Status) Result {
	if !status.Available {
		return Result{Name: status.Name, Detail: status.Detail}
	}
	if req.Version == nil {
		return Result{Name: status.Name, Passed: true, Detail: status.Command}
	}
	version, err := req.Version(ctx, status.Command)
	if err != nil {
		return Result{Name: status.Name, Detail: err.Error()}
	}
	return Result{Name: status.Name, Passed: true, Detail: fmt.Sprintf("%s (%s)", status.Command, version)}
}

// CheckStatusStore pings the status backend with a 5-second timeout.
func CheckStatusStore(ctx context.Context, backend string, store Pinger) Result {
	const name = "Status store"

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := store.Ping(checkCtx); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s unreachable (%s)", backend, summarizeError(err))}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s reachable", backend)}
}

// CheckObjectStore verifies that both buckets exist, creating them when allowed.
func CheckObjectStore(ctx context.Context, endpoint string, buckets BucketChecker, create bool) Result {
	const name = "Object store"

	checkCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := buckets.EnsureBuckets(checkCtx, create); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (%s)", endpoint, summarizeError(err))}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (buckets ready)", endpoint)}
}

func summarizeError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timed out"
	}
	return err.Error()
}
