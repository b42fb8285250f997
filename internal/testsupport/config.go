package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"vidproc/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Server.Bind = "127.0.0.1:0"
	cfgVal.Paths.RawDir = filepath.Join(base, "raw-videos")
	cfgVal.Paths.ProcessedDir = filepath.Join(base, "processed-videos")
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Status.SQLitePath = filepath.Join(base, "data", "status.db")
	cfgVal.Logging.Dir = filepath.Join(base, "logs")
	cfgVal.Storage.AccessKey = "test"
	cfgVal.Storage.SecretKey = "test-secret"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithRedis starts an in-memory redis server and points the status store at it.
func WithRedis() ConfigOption {
	return func(b *configBuilder) {
		srv := miniredis.RunT(b.t)
		b.cfg.Status.Backend = "redis"
		b.cfg.Status.RedisAddr = srv.Addr()
	}
}

// WithAsync switches the notification endpoint to answer 202 on admission.
func WithAsync() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Server.Async = true
	}
}

// WithMaxConcurrentJobs overrides the number of worker slots.
func WithMaxConcurrentJobs(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Server.MaxConcurrentJobs = n
	}
}

// WithMaxAttempts overrides how many times a failed video may be claimed.
func WithMaxAttempts(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.MaxAttempts = n
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, ffmpeg is stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.RawDir)
}
