package deps

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

var commandContext = exec.CommandContext

const versionTimeout = 10 * time.Second

// FFmpegVersion runs "<binary> -version" and returns the first output line,
// e.g. "ffmpeg version 6.1.1".
func FFmpegVersion(ctx context.Context, binary string) (string, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return "", fmt.Errorf("ffmpeg binary not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()

	out, err := commandContext(ctx, binary, "-version").Output()
	if err != nil {
		return "", fmt.Errorf("run %s -version: %w", binary, err)
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "ffmpeg version") {
		return "", fmt.Errorf("unexpected %s -version output %q", binary, line)
	}
	if idx := strings.Index(line, " Copyright"); idx > 0 {
		line = line[:idx]
	}
	return line, nil
}
