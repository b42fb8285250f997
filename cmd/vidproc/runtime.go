package main

import (
	"context"
	"fmt"
	"log/slog"

	"vidproc/internal/blob"
	"vidproc/internal/config"
	"vidproc/internal/logging"
	"vidproc/internal/pipeline"
	"vidproc/internal/status"
	"vidproc/internal/transcode"
	"vidproc/internal/workspace"
)

// runtime holds the wired collaborators of one worker process.
type runtime struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     status.Store
	blobs     *blob.Client
	workspace *workspace.Workspace
	pipeline  *pipeline.Pipeline
}

func buildRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*runtime, error) {
	ws := workspace.New(cfg.Paths.RawDir, cfg.Paths.ProcessedDir, logger)
	created, err := ws.Ensure()
	if err != nil {
		return nil, err
	}
	for _, dir := range created {
		logger.Info("created directory", logging.String("path", dir))
	}

	store, err := status.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open status store: %w", err)
	}

	blobs, err := blob.New(cfg, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("init object store client: %w", err)
	}

	ffmpeg := transcode.New(cfg.Paths.RawDir, cfg.Paths.ProcessedDir, logger,
		transcode.WithBinary(cfg.Transcode.FFmpegBinary),
		transcode.WithTargetHeight(cfg.Transcode.TargetHeight),
		transcode.WithTimeout(cfg.TranscodeTimeout()),
	)

	pipe := pipeline.New(store, blobs, ffmpeg, ws, pipeline.Options{
		MaxAttempts:       cfg.Pipeline.MaxAttempts,
		JobTimeout:        cfg.JobTimeout(),
		HeartbeatInterval: cfg.HeartbeatInterval(),
	}, logger)

	return &runtime{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		blobs:     blobs,
		workspace: ws,
		pipeline:  pipe,
	}, nil
}

func (r *runtime) Close() error {
	return r.store.Close()
}
