// Package reconcile repairs state that a crashed or killed job left behind.
//
// Each sweep fails status records stuck in processing for longer than the
// stale threshold, which makes them claimable again, and deletes staged files
// older than the staging max age. Thresholds must exceed the job timeout so a
// live job is never touched.
package reconcile
