// Package pipeline runs one transcoding job end to end.
//
// Admission takes a per-video lock and atomically claims the status record,
// so duplicate notifications are rejected before any transfer starts. An
// admitted job then fetches the raw object, transcodes it, publishes the
// output and finalizes the record. Whatever happens after admission, both
// staged files are deleted and the record ends processed or failed.
//
// The pipeline knows nothing about HTTP; intake maps its Outcome to a
// response code.
package pipeline
