package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Server contains the notification endpoint settings.
type Server struct {
	Bind              string `toml:"bind"`
	Async             bool   `toml:"async"`
	MaxConcurrentJobs int    `toml:"max_concurrent_jobs"`
	ReadHeaderTimeout int    `toml:"read_header_timeout"`
	ShutdownTimeout   int    `toml:"shutdown_timeout"`
}

// Paths contains the local staging and data directories.
type Paths struct {
	RawDir       string `toml:"raw_dir"`
	ProcessedDir string `toml:"processed_dir"`
	DataDir      string `toml:"data_dir"`
}

// Storage contains the S3-compatible object store settings.
type Storage struct {
	Endpoint        string `toml:"endpoint"`
	AccessKey       string `toml:"access_key"`
	SecretKey       string `toml:"secret_key"`
	Region          string `toml:"region"`
	UseSSL          bool   `toml:"use_ssl"`
	RawBucket       string `toml:"raw_bucket"`
	ProcessedBucket string `toml:"processed_bucket"`
	PublicRead      bool   `toml:"public_read"`
	CreateBuckets   bool   `toml:"create_buckets"`
}

// Status contains the status record store settings.
type Status struct {
	Backend       string `toml:"backend"`
	SQLitePath    string `toml:"sqlite_path"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	KeyPrefix     string `toml:"key_prefix"`
}

// Transcode contains the external transcoder settings.
type Transcode struct {
	FFmpegBinary   string `toml:"ffmpeg_binary"`
	TargetHeight   int    `toml:"target_height"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Pipeline contains job supervision settings.
type Pipeline struct {
	JobTimeout       int  `toml:"job_timeout"`
	MaxAttempts      int  `toml:"max_attempts"`
	StaleAfter       int  `toml:"stale_after"`
	SweepInterval    int  `toml:"sweep_interval"`
	StagingMaxAge    int  `toml:"staging_max_age"`
	CleanupOnStartup bool `toml:"cleanup_on_startup"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
	Dir    string `toml:"dir"`
}

// Config encapsulates all configuration values for vidproc.
//
// Configuration sections by subsystem:
//   - Server: notification endpoint bind address and concurrency
//   - Paths: inbound/outbound staging and data directories
//   - Storage: raw and processed buckets on the object store
//   - Status: status record backend (sqlite or redis)
//   - Transcode: ffmpeg binary, output height, and timeout
//   - Pipeline: job timeout, re-claim attempts, and reconciliation
//   - Logging: log format, level, and directory
type Config struct {
	Server    Server    `toml:"server"`
	Paths     Paths     `toml:"paths"`
	Storage   Storage   `toml:"storage"`
	Status    Status    `toml:"status"`
	Transcode Transcode `toml:"transcode"`
	Pipeline  Pipeline  `toml:"pipeline"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/vidproc/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	if err := loadDotEnv(); err != nil {
		return nil, "", false, err
	}

	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// loadDotEnv reads ./.env without overriding variables already present.
func loadDotEnv() error {
	if _, err := os.Stat(".env"); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat .env: %w", err)
	}
	if err := godotenv.Load(".env"); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		info, err := os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, fmt.Errorf("config file %s not found", expanded)
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		if info.IsDir() {
			return "", false, fmt.Errorf("config path %s is a directory", expanded)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("vidproc.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the staging and data directories required before any
// job runs. It returns the directories that did not exist beforehand.
func (c *Config) EnsureDirectories() ([]string, error) {
	dirs := []string{c.Paths.RawDir, c.Paths.ProcessedDir, c.Paths.DataDir}
	if strings.TrimSpace(c.Logging.Dir) != "" {
		dirs = append(dirs, c.Logging.Dir)
	}
	var created []string
	for _, dir := range dirs {
		if _, err := os.Stat(dir); err == nil {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return created, fmt.Errorf("create directory %q: %w", dir, err)
		}
		created = append(created, dir)
	}
	return created, nil
}

// TranscodeTimeout returns the supervisory timeout for one ffmpeg invocation.
func (c *Config) TranscodeTimeout() time.Duration {
	return time.Duration(c.Transcode.TimeoutSeconds) * time.Second
}

// JobTimeout returns the upper bound for one pipeline run.
func (c *Config) JobTimeout() time.Duration {
	return time.Duration(c.Pipeline.JobTimeout) * time.Second
}

// StaleAfter returns how long a processing record may go untouched before the
// reconciler marks it failed.
func (c *Config) StaleAfter() time.Duration {
	return time.Duration(c.Pipeline.StaleAfter) * time.Second
}

// HeartbeatInterval returns how often an admitted job refreshes its record,
// a quarter of stale_after so several beats can be missed before a sweep.
func (c *Config) HeartbeatInterval() time.Duration {
	return c.StaleAfter() / 4
}

// SweepInterval returns the reconciler period.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Pipeline.SweepInterval) * time.Second
}

// StagingMaxAge returns the age after which leftover staged files are removed.
func (c *Config) StagingMaxAge() time.Duration {
	return time.Duration(c.Pipeline.StagingMaxAge) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
