// Package logging assembles structured slog loggers and formatting helpers used
// across vidproc.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so pipeline code can tag log
// lines with request IDs and video IDs. The "auto" format writes console
// output on an interactive terminal and JSON everywhere else. A no-op logger
// is provided for tests and wiring code that cannot fail.
package logging
