// Package preflight provides readiness checks for the filesystem paths,
// binaries and backing services that vidproc depends on.
//
// These checks run in two contexts:
//   - "vidproc serve" calls RunAll before accepting notifications and refuses
//     to start when any check fails.
//   - "vidproc doctor" prints every result as a table.
package preflight
