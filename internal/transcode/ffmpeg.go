package transcode

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"vidproc/internal/logging"
	"vidproc/internal/services"
)

var commandContext = exec.CommandContext

// ErrInputNotFound reports that the staged input is missing; no process was started.
var ErrInputNotFound = fmt.Errorf("%w: transcode input missing", services.ErrNotFound)

const (
	defaultBinary       = "ffmpeg"
	defaultTargetHeight = 360
	stderrTailBytes     = 2048
	waitDelay           = 5 * time.Second
)

// Option configures the FFmpeg adapter.
type Option func(*FFmpeg)

// WithBinary overrides the default binary name.
func WithBinary(binary string) Option {
	return func(f *FFmpeg) {
		if binary = strings.TrimSpace(binary); binary != "" {
			f.binary = binary
		}
	}
}

// WithTargetHeight sets the output height in pixels.
func WithTargetHeight(height int) Option {
	return func(f *FFmpeg) {
		if height > 0 {
			f.height = height
		}
	}
}

// WithTimeout bounds a single invocation. Zero disables the bound.
func WithTimeout(timeout time.Duration) Option {
	return func(f *FFmpeg) {
		f.timeout = timeout
	}
}

// FFmpeg runs ffmpeg with a fixed downscale profile from raw staging into
// processed staging.
type FFmpeg struct {
	binary       string
	height       int
	timeout      time.Duration
	rawDir       string
	processedDir string
	logger       *slog.Logger
}

// New constructs an adapter reading from rawDir and writing into processedDir.
func New(rawDir, processedDir string, logger *slog.Logger, opts ...Option) *FFmpeg {
	f := &FFmpeg{
		binary:       defaultBinary,
		height:       defaultTargetHeight,
		rawDir:       rawDir,
		processedDir: processedDir,
		logger:       logging.NewComponentLogger(logger, "transcode"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Args returns the ffmpeg argument list for one job.
func (f *FFmpeg) Args(input, output string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-loglevel", "error",
		"-y",
		"-i", filepath.Join(f.rawDir, input),
		"-vf", "scale=-2:" + strconv.Itoa(f.height),
		filepath.Join(f.processedDir, output),
	}
}

// Transcode converts input (a raw staging name) into output (a processed
// staging name). It returns exactly once: nil on success, ErrInputNotFound
// before spawning anything, an ErrTimeout-marked error when the supervisory
// timeout fires, or an ErrExternalTool-marked error carrying ffmpeg's stderr.
func (f *FFmpeg) Transcode(ctx context.Context, input, output string) error {
	if strings.TrimSpace(input) == "" || strings.TrimSpace(output) == "" {
		return services.Wrap(services.ErrValidation, "transcode", "prepare", "input and output names are required", nil)
	}
	inputPath := filepath.Join(f.rawDir, input)
	if _, err := os.Stat(inputPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrInputNotFound, inputPath)
		}
		return services.Wrap(services.ErrTransient, "transcode", "stat input", inputPath, err)
	}

	runCtx := ctx
	if f.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	logger := logging.WithContext(ctx, f.logger)
	args := f.Args(input, output)
	cmd := commandContext(runCtx, f.binary, args...) //nolint:gosec
	stderr := &tailBuffer{limit: stderrTailBytes}
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay

	logger.Info("processing video",
		logging.String("input", input),
		logging.String("output", output),
		logging.Int("height", f.height),
	)
	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	switch {
	case err == nil:
		logger.Info("processing finished", logging.String("output", output), logging.Duration("elapsed", elapsed))
		return nil
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return services.Wrap(services.ErrTimeout, "transcode", "ffmpeg", "job deadline exceeded", ctx.Err())
	case ctx.Err() != nil:
		return services.Wrap(services.ErrTransient, "transcode", "ffmpeg", "canceled", ctx.Err())
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return services.Wrap(services.ErrTimeout, "transcode", "ffmpeg",
			fmt.Sprintf("exceeded %s", f.timeout), runCtx.Err())
	default:
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = "ffmpeg failed"
		}
		return services.Wrap(services.ErrExternalTool, "transcode", "ffmpeg", detail, err)
	}
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	limit int
	buf   []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string { return string(b.buf) }
