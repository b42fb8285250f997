package config

const (
	defaultBind              = ":3000"
	defaultMaxConcurrentJobs = 4
	defaultReadHeaderTimeout = 5
	defaultShutdownTimeout   = 30
	defaultRawDir            = "./raw-videos"
	defaultProcessedDir      = "./processed-videos"
	defaultDataDir           = "~/.local/share/vidproc"
	defaultStorageEndpoint   = "localhost:9000"
	defaultRawBucket         = "uploaded-raw-videos"
	defaultProcessedBucket   = "uploaded-processed-videos"
	defaultStatusBackend     = "sqlite"
	defaultStatusFile        = "status.db"
	defaultRedisAddr         = "localhost:6379"
	defaultKeyPrefix         = "video:"
	defaultFFmpegBinary      = "ffmpeg"
	defaultTargetHeight      = 360
	defaultTranscodeTimeout  = 1800
	defaultJobTimeout        = 3600
	defaultMaxAttempts       = 3
	defaultStaleAfter        = 7200
	defaultSweepInterval     = 300
	defaultStagingMaxAge     = 7200
	defaultLogFormat         = "auto"
	defaultLogLevel          = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Server: Server{
			Bind:              defaultBind,
			MaxConcurrentJobs: defaultMaxConcurrentJobs,
			ReadHeaderTimeout: defaultReadHeaderTimeout,
			ShutdownTimeout:   defaultShutdownTimeout,
		},
		Paths: Paths{
			RawDir:       defaultRawDir,
			ProcessedDir: defaultProcessedDir,
			DataDir:      defaultDataDir,
		},
		Storage: Storage{
			Endpoint:        defaultStorageEndpoint,
			RawBucket:       defaultRawBucket,
			ProcessedBucket: defaultProcessedBucket,
			PublicRead:      true,
		},
		Status: Status{
			Backend:   defaultStatusBackend,
			RedisAddr: defaultRedisAddr,
			KeyPrefix: defaultKeyPrefix,
		},
		Transcode: Transcode{
			FFmpegBinary:   defaultFFmpegBinary,
			TargetHeight:   defaultTargetHeight,
			TimeoutSeconds: defaultTranscodeTimeout,
		},
		Pipeline: Pipeline{
			JobTimeout:       defaultJobTimeout,
			MaxAttempts:      defaultMaxAttempts,
			StaleAfter:       defaultStaleAfter,
			SweepInterval:    defaultSweepInterval,
			StagingMaxAge:    defaultStagingMaxAge,
			CleanupOnStartup: true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
