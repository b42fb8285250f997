package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	c.normalizeServer()
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeStorage()
	if err := c.normalizeStatus(); err != nil {
		return err
	}
	c.normalizeTranscode()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizeServer() {
	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	if port, ok := lookupTrimmed("PORT"); ok {
		c.Server.Bind = ":" + strings.TrimPrefix(port, ":")
	}
	if c.Server.Bind == "" {
		c.Server.Bind = defaultBind
	}
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.RawDir) == "" {
		c.Paths.RawDir = defaultRawDir
	}
	if c.Paths.RawDir, err = expandPath(c.Paths.RawDir); err != nil {
		return fmt.Errorf("paths.raw_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ProcessedDir) == "" {
		c.Paths.ProcessedDir = defaultProcessedDir
	}
	if c.Paths.ProcessedDir, err = expandPath(c.Paths.ProcessedDir); err != nil {
		return fmt.Errorf("paths.processed_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Logging.Dir, err = expandPath(strings.TrimSpace(c.Logging.Dir)); err != nil {
		return fmt.Errorf("logging.dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeStorage() {
	if value, ok := lookupTrimmed("STORAGE_ENDPOINT"); ok {
		c.Storage.Endpoint = value
	}
	endpoint := strings.TrimSpace(c.Storage.Endpoint)
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		endpoint = strings.TrimPrefix(endpoint, "https://")
		c.Storage.UseSSL = true
	case strings.HasPrefix(endpoint, "http://"):
		endpoint = strings.TrimPrefix(endpoint, "http://")
	}
	c.Storage.Endpoint = strings.TrimSuffix(endpoint, "/")

	if c.Storage.AccessKey == "" {
		if value, ok := lookupTrimmed("STORAGE_ACCESS_KEY"); ok {
			c.Storage.AccessKey = value
		}
	}
	if c.Storage.SecretKey == "" {
		if value, ok := lookupTrimmed("STORAGE_SECRET_KEY"); ok {
			c.Storage.SecretKey = value
		}
	}
	c.Storage.AccessKey = strings.TrimSpace(c.Storage.AccessKey)
	c.Storage.SecretKey = strings.TrimSpace(c.Storage.SecretKey)
	c.Storage.Region = strings.TrimSpace(c.Storage.Region)
	c.Storage.RawBucket = strings.TrimSpace(c.Storage.RawBucket)
	if c.Storage.RawBucket == "" {
		c.Storage.RawBucket = defaultRawBucket
	}
	c.Storage.ProcessedBucket = strings.TrimSpace(c.Storage.ProcessedBucket)
	if c.Storage.ProcessedBucket == "" {
		c.Storage.ProcessedBucket = defaultProcessedBucket
	}
}

func (c *Config) normalizeStatus() error {
	c.Status.Backend = strings.ToLower(strings.TrimSpace(c.Status.Backend))
	if c.Status.Backend == "" {
		c.Status.Backend = defaultStatusBackend
	}

	if strings.TrimSpace(c.Status.SQLitePath) == "" {
		c.Status.SQLitePath = filepath.Join(c.Paths.DataDir, defaultStatusFile)
	}
	var err error
	if c.Status.SQLitePath, err = expandPath(c.Status.SQLitePath); err != nil {
		return fmt.Errorf("status.sqlite_path: %w", err)
	}

	if value, ok := lookupTrimmed("REDIS_ADDR"); ok {
		c.Status.RedisAddr = value
	}
	if c.Status.RedisPassword == "" {
		if value, ok := lookupTrimmed("REDIS_PASSWORD"); ok {
			c.Status.RedisPassword = value
		}
	}
	c.Status.RedisAddr = strings.TrimSpace(c.Status.RedisAddr)
	if c.Status.RedisAddr == "" {
		c.Status.RedisAddr = defaultRedisAddr
	}
	if strings.TrimSpace(c.Status.KeyPrefix) == "" {
		c.Status.KeyPrefix = defaultKeyPrefix
	}
	return nil
}

func (c *Config) normalizeTranscode() {
	if value, ok := lookupTrimmed("FFMPEG_PATH"); ok {
		c.Transcode.FFmpegBinary = value
	}
	c.Transcode.FFmpegBinary = strings.TrimSpace(c.Transcode.FFmpegBinary)
	if c.Transcode.FFmpegBinary == "" {
		c.Transcode.FFmpegBinary = defaultFFmpegBinary
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func lookupTrimmed(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}
