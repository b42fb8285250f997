package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"vidproc/internal/intake"
	"vidproc/internal/logging"
	"vidproc/internal/preflight"
	"vidproc/internal/reconcile"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var skipPreflight bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the notification endpoint and reconciler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), ctx, skipPreflight)
		},
	}
	cmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "Start without checking binaries and backends")
	return cmd
}

func runServe(cmdCtx context.Context, ctx *commandContext, skipPreflight bool) error {
	if cmdCtx == nil {
		cmdCtx = context.Background()
	}
	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := ctx.ensureLogger()
	if err != nil {
		return err
	}

	rt, err := buildRuntime(signalCtx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", logging.Error(err))
		return err
	}
	defer rt.Close()

	if !skipPreflight {
		results := preflight.RunAll(signalCtx, cfg, preflight.Targets{Store: rt.store, Buckets: rt.blobs})
		for _, r := range results {
			logger.Info("preflight check",
				logging.String("check", r.Name),
				logging.Bool("passed", r.Passed),
				logging.String("detail", r.Detail),
			)
		}
		if failed := preflight.Failed(results); len(failed) > 0 {
			names := make([]string, 0, len(failed))
			for _, r := range failed {
				names = append(names, r.Name)
			}
			return fmt.Errorf("preflight failed: %s", strings.Join(names, ", "))
		}
	}

	reconciler := reconcile.New(rt.store, rt.workspace, reconcile.Options{
		StaleAfter:    cfg.StaleAfter(),
		StagingMaxAge: cfg.StagingMaxAge(),
		Interval:      cfg.SweepInterval(),
	}, logger)
	if cfg.Pipeline.CleanupOnStartup {
		reconciler.RunOnce(signalCtx)
	}
	var wg sync.WaitGroup
	wg.Add(1)
	go reconciler.Start(signalCtx, &wg)

	server := intake.New(rt.pipeline, rt.store, intake.Options{
		Bind:              cfg.Server.Bind,
		Async:             cfg.Server.Async,
		MaxConcurrentJobs: cfg.Server.MaxConcurrentJobs,
		ReadHeaderTimeout: time.Duration(cfg.Server.ReadHeaderTimeout) * time.Second,
		ShutdownTimeout:   time.Duration(cfg.Server.ShutdownTimeout) * time.Second,
	}, logger)
	serveErr := server.Serve(signalCtx)
	cancel()
	wg.Wait()
	logger.Info("vidproc stopped")
	return serveErr
}
