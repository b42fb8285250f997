package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vidproc/internal/blob"
	"vidproc/internal/logging"
	"vidproc/internal/preflight"
	"vidproc/internal/status"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var skipStorage bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check directories, ffmpeg, and backing services",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			targets := preflight.Targets{}
			store, storeErr := status.Open(cmd.Context(), cfg)
			if storeErr == nil {
				defer store.Close()
				targets.Store = store
			}
			if !skipStorage {
				client, err := blob.New(cfg, logging.NewNop())
				if err != nil {
					return fmt.Errorf("init object store client: %w", err)
				}
				targets.Buckets = client
			}

			results := preflight.RunAll(cmd.Context(), cfg, targets)
			if storeErr != nil {
				results = append(results, preflight.Result{Name: "Status store", Detail: storeErr.Error()})
			}

			rows := make([][]string, 0, len(results))
			for _, r := range results {
				rows = append(rows, []string{r.Name, passFail(r.Passed), r.Detail})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable([]string{"Check", "Result", "Detail"}, rows, nil))

			if failed := preflight.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d check(s) failed", len(failed))
			}
			fmt.Fprintln(out, "All checks passed")
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipStorage, "skip-storage", false, "Skip the object store check")
	return cmd
}

func passFail(passed bool) string {
	if passed {
		return "ok"
	}
	return "FAIL"
}
