package ytdlp

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"trendharvest/internal/core/ports"
)

// Executor runs the yt-dlp binary to download one video to an explicit
// output path.
type Executor struct {
	binaryPath string
	timeout    time.Duration
}

// New creates an Executor. An empty binaryPath means "yt-dlp" from PATH.
// timeout bounds one subprocess run; zero disables the bound.
func New(binaryPath string, timeout time.Duration) *Executor {
	if binaryPath == "" {
		binaryPath = "yt-dlp"
	}
	return &Executor{binaryPath: binaryPath, timeout: timeout}
}

// Run downloads req.URL to req.OutputPath. Exit code 0 means success; any
// non-zero exit or spawn error is returned with the captured stderr text.
// The output path's parent directory is created if absent.
func (e *Executor) Run(ctx context.Context, req ports.DownloadRequest) error {
	if req.URL == "" {
		return fmt.Errorf("download url is required")
	}
	if req.OutputPath == "" {
		return fmt.Errorf("output path is required")
	}

	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, e.binaryPath, buildArgs(req)...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return fmt.Errorf("yt-dlp failed: %w: %s", err, msg)
	}
	return nil
}

// buildArgs assembles the fixed downloader argv: resolution capped at
// 1080p, explicit output path, thumbnail and description sidecars.
func buildArgs(req ports.DownloadRequest) []string {
	args := []string{
		req.URL,
		"-f", "best[height<=1080]",
		"-o", req.OutputPath,
		"--no-warnings",
		"--write-thumbnail",
		"--write-description",
	}
	if req.Proxy != "" {
		args = append(args, "--proxy", req.Proxy)
	}
	return args
}
