package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateStatus(); err != nil {
		return err
	}
	if err := c.validateTranscode(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateServer() error {
	return ensurePositiveMap(map[string]int{
		"server.max_concurrent_jobs": c.Server.MaxConcurrentJobs,
		"server.read_header_timeout": c.Server.ReadHeaderTimeout,
		"server.shutdown_timeout":    c.Server.ShutdownTimeout,
	})
}

func (c *Config) validatePaths() error {
	if c.Paths.RawDir == c.Paths.ProcessedDir {
		return errors.New("paths.raw_dir and paths.processed_dir must differ")
	}
	return nil
}

func (c *Config) validateStorage() error {
	if c.Storage.Endpoint == "" {
		return errors.New("storage.endpoint must be set")
	}
	if strings.Contains(c.Storage.Endpoint, "/") {
		return fmt.Errorf("storage.endpoint %q must be host[:port] without a path", c.Storage.Endpoint)
	}
	if c.Storage.RawBucket == c.Storage.ProcessedBucket {
		return errors.New("storage.raw_bucket and storage.processed_bucket must differ")
	}
	return nil
}

func (c *Config) validateStatus() error {
	switch c.Status.Backend {
	case "sqlite":
		if c.Status.SQLitePath == "" {
			return errors.New("status.sqlite_path must be set for the sqlite backend")
		}
	case "redis":
		if c.Status.RedisDB < 0 {
			return errors.New("status.redis_db must not be negative")
		}
	default:
		return fmt.Errorf("status.backend: unsupported value %q (want sqlite or redis)", c.Status.Backend)
	}
	return nil
}

func (c *Config) validateTranscode() error {
	if c.Transcode.TargetHeight <= 0 || c.Transcode.TargetHeight%2 != 0 {
		return errors.New("transcode.target_height must be a positive even number")
	}
	if c.Transcode.TimeoutSeconds <= 0 {
		return errors.New("transcode.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if err := ensurePositiveMap(map[string]int{
		"pipeline.job_timeout":     c.Pipeline.JobTimeout,
		"pipeline.max_attempts":    c.Pipeline.MaxAttempts,
		"pipeline.stale_after":     c.Pipeline.StaleAfter,
		"pipeline.sweep_interval":  c.Pipeline.SweepInterval,
		"pipeline.staging_max_age": c.Pipeline.StagingMaxAge,
	}); err != nil {
		return err
	}
	if c.Pipeline.JobTimeout < c.Transcode.TimeoutSeconds {
		return errors.New("pipeline.job_timeout must be at least transcode.timeout_seconds")
	}
	if c.Pipeline.StaleAfter <= c.Pipeline.JobTimeout {
		return errors.New("pipeline.stale_after must be greater than pipeline.job_timeout")
	}
	if c.Pipeline.StagingMaxAge <= c.Pipeline.JobTimeout {
		return errors.New("pipeline.staging_max_age must be greater than pipeline.job_timeout")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "auto", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
