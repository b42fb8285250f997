package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"vidproc/internal/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "STORAGE_ENDPOINT", "STORAGE_ACCESS_KEY", "STORAGE_SECRET_KEY",
		"REDIS_ADDR", "REDIS_PASSWORD", "FFMPEG_PATH",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	clearEnv(t)
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "vidproc")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Status.SQLitePath != filepath.Join(wantData, "status.db") {
		t.Fatalf("unexpected sqlite path: %q", cfg.Status.SQLitePath)
	}
	if !filepath.IsAbs(cfg.Paths.RawDir) || filepath.Base(cfg.Paths.RawDir) != "raw-videos" {
		t.Fatalf("unexpected raw dir: %q", cfg.Paths.RawDir)
	}
	if filepath.Base(cfg.Paths.ProcessedDir) != "processed-videos" {
		t.Fatalf("unexpected processed dir: %q", cfg.Paths.ProcessedDir)
	}
	if cfg.Server.Bind != ":3000" {
		t.Fatalf("unexpected bind: %q", cfg.Server.Bind)
	}
	if cfg.Storage.RawBucket != "uploaded-raw-videos" || cfg.Storage.ProcessedBucket != "uploaded-processed-videos" {
		t.Fatalf("unexpected buckets: %q %q", cfg.Storage.RawBucket, cfg.Storage.ProcessedBucket)
	}
	if !cfg.Storage.PublicRead {
		t.Fatal("expected public read by default")
	}
	if cfg.Transcode.TargetHeight != 360 {
		t.Fatalf("unexpected target height: %d", cfg.Transcode.TargetHeight)
	}
	if cfg.Status.Backend != "sqlite" {
		t.Fatalf("unexpected backend: %q", cfg.Status.Backend)
	}
	if cfg.Pipeline.MaxAttempts != 3 {
		t.Fatalf("unexpected max attempts: %d", cfg.Pipeline.MaxAttempts)
	}
}

func TestLoadCustomPath(t *testing.T) {
	clearEnv(t)
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "vidproc.toml")

	type payload struct {
		Server struct {
			Bind  string `toml:"bind"`
			Async bool   `toml:"async"`
		} `toml:"server"`
		Storage struct {
			Endpoint  string `toml:"endpoint"`
			AccessKey string `toml:"access_key"`
		} `toml:"storage"`
		Status struct {
			Backend   string `toml:"backend"`
			RedisAddr string `toml:"redis_addr"`
		} `toml:"status"`
		Logging struct {
			Format string `toml:"format"`
		} `toml:"logging"`
	}
	custom := payload{}
	custom.Server.Bind = "127.0.0.1:8080"
	custom.Server.Async = true
	custom.Storage.Endpoint = "https://s3.example.com/"
	custom.Storage.AccessKey = "file-key"
	custom.Status.Backend = "Redis"
	custom.Status.RedisAddr = "redis.internal:6379"
	custom.Logging.Format = "JSON"
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}
	t.Setenv("STORAGE_ACCESS_KEY", "env-key")

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Server.Bind != "127.0.0.1:8080" || !cfg.Server.Async {
		t.Fatalf("unexpected server section: %+v", cfg.Server)
	}
	if cfg.Storage.Endpoint != "s3.example.com" || !cfg.Storage.UseSSL {
		t.Fatalf("expected scheme stripped and ssl enabled, got %q ssl=%v", cfg.Storage.Endpoint, cfg.Storage.UseSSL)
	}
	if cfg.Storage.AccessKey != "file-key" {
		t.Fatalf("expected file access key to win, got %q", cfg.Storage.AccessKey)
	}
	if cfg.Status.Backend != "redis" || cfg.Status.RedisAddr != "redis.internal:6379" {
		t.Fatalf("unexpected status section: %+v", cfg.Status)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected lowercased log format, got %q", cfg.Logging.Format)
	}
}

func TestEnvironmentFallbacks(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("PORT", "8081")
	t.Setenv("STORAGE_ACCESS_KEY", "env-access")
	t.Setenv("STORAGE_SECRET_KEY", "env-secret")
	t.Setenv("REDIS_PASSWORD", "env-redis")
	t.Setenv("FFMPEG_PATH", "/opt/ffmpeg/bin/ffmpeg")

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Bind != ":8081" {
		t.Fatalf("expected PORT override, got %q", cfg.Server.Bind)
	}
	if cfg.Storage.AccessKey != "env-access" || cfg.Storage.SecretKey != "env-secret" {
		t.Fatalf("expected credentials from env, got %q/%q", cfg.Storage.AccessKey, cfg.Storage.SecretKey)
	}
	if cfg.Status.RedisPassword != "env-redis" {
		t.Fatalf("expected redis password from env, got %q", cfg.Status.RedisPassword)
	}
	if cfg.Transcode.FFmpegBinary != "/opt/ffmpeg/bin/ffmpeg" {
		t.Fatalf("expected ffmpeg path from env, got %q", cfg.Transcode.FFmpegBinary)
	}
}

func TestLoadMissingExplicitPath(t *testing.T) {
	clearEnv(t)
	_, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"backend", func(c *config.Config) { c.Status.Backend = "postgres" }, "status.backend"},
		{"format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"level", func(c *config.Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"odd height", func(c *config.Config) { c.Transcode.TargetHeight = 361 }, "transcode.target_height"},
		{"attempts", func(c *config.Config) { c.Pipeline.MaxAttempts = 0 }, "pipeline.max_attempts"},
		{"stale", func(c *config.Config) { c.Pipeline.StaleAfter = c.Pipeline.JobTimeout }, "pipeline.stale_after"},
		{"same buckets", func(c *config.Config) { c.Storage.ProcessedBucket = c.Storage.RawBucket }, "storage.raw_bucket"},
		{"same dirs", func(c *config.Config) { c.Paths.ProcessedDir = c.Paths.RawDir }, "paths.raw_dir"},
		{"concurrency", func(c *config.Config) { c.Server.MaxConcurrentJobs = 0 }, "server.max_concurrent_jobs"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Status.SQLitePath = "/tmp/status.db"
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestDefaultValidates(t *testing.T) {
	cfg := config.Default()
	cfg.Status.SQLitePath = "/tmp/status.db"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestHeartbeatIntervalTracksStaleAfter(t *testing.T) {
	cfg := config.Default()
	cfg.Pipeline.StaleAfter = 600
	if got := cfg.HeartbeatInterval(); got != 150*time.Second {
		t.Fatalf("HeartbeatInterval = %v, want 2m30s", got)
	}
	if cfg.HeartbeatInterval() >= cfg.StaleAfter() {
		t.Fatal("heartbeat must beat more often than the stale cutoff")
	}
}

func TestEnsureDirectoriesCreatesMissing(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.RawDir = filepath.Join(base, "raw")
	cfg.Paths.ProcessedDir = filepath.Join(base, "processed")
	cfg.Paths.DataDir = base

	created, err := cfg.EnsureDirectories()
	if err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("expected two created directories, got %v", created)
	}
	for _, dir := range []string{cfg.Paths.RawDir, cfg.Paths.ProcessedDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
	}
	created, err = cfg.EnsureDirectories()
	if err != nil || len(created) != 0 {
		t.Fatalf("second call should be a no-op, got %v %v", created, err)
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	if _, _, _, err := config.Load(path); err != nil {
		t.Fatalf("sample config should load: %v", err)
	}
}
