// Package status persists the per-video status record that gates admission.
//
// Two backends implement Store: SQLite (the default, a single local file) and
// Redis (one hash per video, for deployments that run several workers).
// Both make Claim atomic, so two duplicate notifications can never both
// start a job. Failed records may be claimed again until the configured
// attempt limit, and ReclaimStale turns abandoned processing records into
// failed ones.
//
// Schema changes bump schemaVersion in sqlite.go; operators delete the
// database to adopt the new schema.
package status
