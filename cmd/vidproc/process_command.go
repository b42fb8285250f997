package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vidproc/internal/pipeline"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "process <object-name>",
		Short: "Process one raw object in the foreground",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := pipeline.NewJob(args[0])
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			rt, err := buildRuntime(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			outcome, err := rt.pipeline.Process(cmd.Context(), job)
			out := cmd.OutOrStdout()
			if err != nil {
				return fmt.Errorf("%s: %s: %w", job.VideoID, outcome, err)
			}
			fmt.Fprintf(out, "%s %s -> %s\n", job.VideoID, outcome, job.OutputObjectName)
			return nil
		},
	}
}
