package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"vidproc/internal/logging"
	"vidproc/internal/reconcile"
	"vidproc/internal/status"
	"vidproc/internal/workspace"
)

func newSweepCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Fail abandoned records and remove stale staged files once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return ctx.withStore(cmd.Context(), func(store status.Store) error {
				ws := workspace.New(cfg.Paths.RawDir, cfg.Paths.ProcessedDir, logging.NewNop())
				r := reconcile.New(store, ws, reconcile.Options{
					StaleAfter:    cfg.StaleAfter(),
					StagingMaxAge: cfg.StagingMaxAge(),
				}, logging.NewNop())
				result := r.RunOnce(cmd.Context())

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Reclaimed %d stale record(s)\n", result.Reclaimed)
				fmt.Fprintf(out, "Removed %d stale staged file(s)\n", result.FilesRemoved)
				return errors.Join(result.Errors...)
			})
		},
	}
}
