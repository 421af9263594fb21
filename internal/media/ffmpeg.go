package media

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// FFmpeg re-encodes with a local ffmpeg binary.
type FFmpeg struct {
	path    string
	bitrate string
}

// NewFFmpeg creates an exec-based compressor.
func NewFFmpeg(path, bitrate string) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	if bitrate == "" {
		bitrate = "1M"
	}
	return &FFmpeg{path: path, bitrate: bitrate}
}

// Compress implements Compressor.
func (f *FFmpeg) Compress(ctx context.Context, data []byte) ([]byte, error) {
	dir, err := os.MkdirTemp("", "reelbot-ffmpeg-")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "input.mp4")
	out := filepath.Join(dir, "output.mp4")
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return nil, fmt.Errorf("write input: %w", err)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, f.path, ffmpegArgs(in, out, f.bitrate)...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("run ffmpeg: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	compressed, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("read output: %w", err)
	}
	slog.Info("Video compressed", "before_bytes", len(data), "after_bytes", len(compressed))
	return compressed, nil
}
