// Package intake exposes the HTTP notification endpoint.
//
// Storage notifications arrive as push envelopes on POST /process-video. The
// decoded object name becomes a pipeline job, and the job outcome selects the
// response code. In async mode the handler answers 202 once the job is
// admitted and the job keeps running after the response; such jobs are
// drained on shutdown.
//
// Read-only routes report health and individual status records.
package intake
