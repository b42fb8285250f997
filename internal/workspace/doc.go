// Package workspace manages the local staging directories a job downloads into
// and transcodes out of.
//
// Staged files are named exactly like their remote objects. Deletes are
// idempotent, a per-video flock keeps two jobs for the same video out of the
// staging area at once, and CleanStale reclaims files abandoned by crashed jobs.
package workspace
