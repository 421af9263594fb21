// Package media re-encodes oversize videos and publishes them at a public URL.
package media

import (
	"context"
	"errors"
)

// ErrUpload is returned when the media store rejects or loses an upload.
var ErrUpload = errors.New("media upload failed")

// Compressor re-encodes a video to a smaller bitrate.
type Compressor interface {
	Compress(ctx context.Context, data []byte) ([]byte, error)
}

// Uploader stores a video and returns a URL a chat client can fetch.
type Uploader interface {
	Upload(ctx context.Context, data []byte, contentType string) (string, error)
}

// Passthrough is the compressor used when re-encoding is disabled.
type Passthrough struct{}

// Compress returns data unchanged.
func (Passthrough) Compress(_ context.Context, data []byte) ([]byte, error) {
	return data, nil
}

// ffmpegArgs builds the re-encode argument list shared by the exec and docker compressors.
func ffmpegArgs(in, out, bitrate string) []string {
	return []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", in,
		"-c:v", "libx264", "-preset", "veryfast",
		"-b:v", bitrate, "-maxrate", bitrate, "-bufsize", bitrate,
		"-c:a", "aac", "-b:a", "96k",
		"-movflags", "+faststart",
		out,
	}
}
