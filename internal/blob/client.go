package blob

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"vidproc/internal/config"
	"vidproc/internal/logging"
	"vidproc/internal/services"
)

// objectAPI is the subset of *minio.Client the transfer client uses.
type objectAPI interface {
	StatObject(ctx context.Context, bucket, object string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	FGetObject(ctx context.Context, bucket, object, filePath string, opts minio.GetObjectOptions) error
	FPutObject(ctx context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
}

// Options configures buckets and staging directories.
type Options struct {
	RawBucket       string
	ProcessedBucket string
	RawDir          string
	ProcessedDir    string
	PublicRead      bool
	Region          string
}

// Client moves raw objects into staging and publishes processed files.
type Client struct {
	api    objectAPI
	opts   Options
	logger *slog.Logger
}

// New connects to the S3-compatible endpoint described by cfg.
func New(cfg *config.Config, logger *slog.Logger) (*Client, error) {
	api, err := minio.New(cfg.Storage.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Storage.AccessKey, cfg.Storage.SecretKey, ""),
		Secure: cfg.Storage.UseSSL,
		Region: cfg.Storage.Region,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "blob", "connect", cfg.Storage.Endpoint, err)
	}
	return newClient(api, Options{
		RawBucket:       cfg.Storage.RawBucket,
		ProcessedBucket: cfg.Storage.ProcessedBucket,
		RawDir:          cfg.Paths.RawDir,
		ProcessedDir:    cfg.Paths.ProcessedDir,
		PublicRead:      cfg.Storage.PublicRead,
		Region:          cfg.Storage.Region,
	}, logger), nil
}

func newClient(api objectAPI, opts Options, logger *slog.Logger) *Client {
	return &Client{api: api, opts: opts, logger: logging.NewComponentLogger(logger, "blob")}
}

// Fetch downloads name from the raw bucket into raw staging under the same name.
func (c *Client) Fetch(ctx context.Context, name string) FetchResult {
	logger := logging.WithContext(ctx, c.logger).With(logging.String("object", name), logging.String("bucket", c.opts.RawBucket))
	dest := filepath.Join(c.opts.RawDir, name)

	info, err := c.api.StatObject(ctx, c.opts.RawBucket, name, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			logger.Warn("raw object not found",
				logging.String(logging.FieldEventType, "fetch_not_found"),
				logging.String(logging.FieldErrorHint, "confirm the upload finished before the notification was sent"),
			)
			return FetchResult{
				Outcome: NotFound,
				Err:     services.Wrap(services.ErrNotFound, "fetch", "stat", c.opts.RawBucket+"/"+name, err),
			}
		}
		logger.Error("raw object stat failed", logging.Error(err), logging.String(logging.FieldEventType, "fetch_failed"))
		return FetchResult{Outcome: TransferError, Err: services.Wrap(services.ErrTransient, "fetch", "stat", name, err)}
	}

	start := time.Now()
	if err := c.api.FGetObject(ctx, c.opts.RawBucket, name, dest, minio.GetObjectOptions{}); err != nil {
		_ = os.Remove(dest)
		if isNotFound(err) {
			return FetchResult{Outcome: NotFound, Err: services.Wrap(services.ErrNotFound, "fetch", "download", name, err)}
		}
		logger.Error("raw object download failed", logging.Error(err), logging.String(logging.FieldEventType, "fetch_failed"))
		return FetchResult{Outcome: TransferError, Err: services.Wrap(services.ErrTransient, "fetch", "download", name, err)}
	}

	logger.Info("downloaded raw object",
		logging.String("path", dest),
		logging.Int64("bytes", info.Size),
		logging.Duration("elapsed", time.Since(start)),
	)
	return FetchResult{Outcome: Fetched, Path: dest, Size: info.Size}
}

// Publish uploads name from processed staging to the processed bucket and,
// when configured, makes it publicly readable.
func (c *Client) Publish(ctx context.Context, name string) error {
	logger := logging.WithContext(ctx, c.logger).With(logging.String("object", name), logging.String("bucket", c.opts.ProcessedBucket))
	src := filepath.Join(c.opts.ProcessedDir, name)

	if _, err := os.Stat(src); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return services.Wrap(services.ErrNotFound, "publish", "stat", src, err)
		}
		return services.Wrap(services.ErrTransient, "publish", "stat", src, err)
	}

	opts := minio.PutObjectOptions{ContentType: ContentType(name)}
	if c.opts.PublicRead {
		opts.UserMetadata = map[string]string{"x-amz-acl": "public-read"}
	}

	start := time.Now()
	info, err := c.api.FPutObject(ctx, c.opts.ProcessedBucket, name, src, opts)
	if err != nil {
		return services.Wrap(services.ErrTransient, "publish", "upload", name, err)
	}
	logger.Info("uploaded processed object",
		logging.Int64("bytes", info.Size),
		logging.Bool("public", c.opts.PublicRead),
		logging.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// EnsureBuckets verifies both buckets exist, creating missing ones when create is set.
func (c *Client) EnsureBuckets(ctx context.Context, create bool) error {
	for _, bucket := range []string{c.opts.RawBucket, c.opts.ProcessedBucket} {
		ok, err := c.api.BucketExists(ctx, bucket)
		if err != nil {
			return services.Wrap(services.ErrTransient, "blob", "bucket exists", bucket, err)
		}
		if ok {
			continue
		}
		if !create {
			return services.Wrap(services.ErrConfiguration, "blob", "bucket exists", bucket+" does not exist", nil)
		}
		if err := c.api.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: c.opts.Region}); err != nil {
			return services.Wrap(services.ErrTransient, "blob", "make bucket", bucket, err)
		}
		c.logger.Info("created bucket", logging.String("bucket", bucket))
	}
	return nil
}

var videoContentTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
	".avi":  "video/x-msvideo",
}

// ContentType guesses the MIME type from the object name extension.
func ContentType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ct, ok := videoContentTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NoSuchObject", "NotFound":
		return true
	}
	return resp.StatusCode == http.StatusNotFound && resp.Code != "NoSuchBucket"
}
