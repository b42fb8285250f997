// Command vidproc runs the transcoding worker and its operator tooling.
//
// "vidproc serve" starts the notification endpoint with the reconciler
// alongside it. "vidproc process <name>" runs a single job in the
// foreground, and the status subcommands inspect or clear records.
package main
