package media

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/google/uuid"
)

const (
	workDir = "/work"

	// Resource limits for the re-encode container.
	memoryLimitBytes = 1024 * 1024 * 1024 // 1GB
	cpuQuota         = 200000             // 2 CPU
	pidsLimit        = 128
)

// runner executes one ffmpeg container with hostDir mounted at workDir and returns its exit code.
type runner interface {
	Run(ctx context.Context, img string, args []string, hostDir string) (int64, error)
}

// Docker re-encodes inside a throwaway ffmpeg container.
type Docker struct {
	runner  runner
	image   string
	bitrate string
}

// NewDocker connects to the local Docker daemon.
func NewDocker(img, bitrate string) (*Docker, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	slog.Info("Docker client initialized", "image", img)
	return newDocker(&dockerRunner{cli: cli}, img, bitrate), nil
}

func newDocker(r runner, img, bitrate string) *Docker {
	if bitrate == "" {
		bitrate = "1M"
	}
	return &Docker{runner: r, image: img, bitrate: bitrate}
}

// Compress implements Compressor.
func (d *Docker) Compress(ctx context.Context, data []byte) ([]byte, error) {
	dir, err := os.MkdirTemp("", "reelbot-docker-")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	// The container user may differ from ours.
	if err := os.Chmod(dir, 0o777); err != nil {
		return nil, fmt.Errorf("chmod temp dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "input.mp4"), data, 0o644); err != nil {
		return nil, fmt.Errorf("write input: %w", err)
	}

	args := ffmpegArgs(workDir+"/input.mp4", workDir+"/output.mp4", d.bitrate)
	code, err := d.runner.Run(ctx, d.image, args, dir)
	if err != nil {
		return nil, fmt.Errorf("run ffmpeg container: %w", err)
	}
	if code != 0 {
		return nil, fmt.Errorf("ffmpeg container exited with code %d", code)
	}

	compressed, err := os.ReadFile(filepath.Join(dir, "output.mp4"))
	if err != nil {
		return nil, fmt.Errorf("read output: %w", err)
	}
	slog.Info("Video compressed in container", "before_bytes", len(data), "after_bytes", len(compressed))
	return compressed, nil
}

type dockerRunner struct {
	cli *client.Client
}

func (r *dockerRunner) Run(ctx context.Context, img string, args []string, hostDir string) (int64, error) {
	if err := r.ensureImage(ctx, img); err != nil {
		return 0, err
	}

	name := "reelbot-ffmpeg-" + uuid.NewString()[:8]
	resp, err := r.cli.ContainerCreate(ctx, &container.Config{
		Image:        img,
		Entrypoint:   []string{"ffmpeg"},
		Cmd:          args,
		WorkingDir:   workDir,
		AttachStdout: false,
		AttachStderr: false,
	}, &container.HostConfig{
		NetworkMode: "none",
		Mounts: []mount.Mount{{
			Type:   mount.TypeBind,
			Source: hostDir,
			Target: workDir,
		}},
		Resources: container.Resources{
			Memory:    memoryLimitBytes,
			CPUQuota:  cpuQuota,
			PidsLimit: ptr(int64(pidsLimit)),
		},
	}, nil, nil, name)
	if err != nil {
		return 0, fmt.Errorf("create container: %w", err)
	}
	defer func() {
		// Runs on a fresh context so a cancelled request still cleans up.
		if err := r.cli.ContainerRemove(context.WithoutCancel(ctx), resp.ID, container.RemoveOptions{Force: true}); err != nil && !errdefs.IsNotFound(err) {
			slog.Warn("Failed to remove ffmpeg container", "container_id", resp.ID, "error", err)
		}
	}()

	if err := r.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return 0, fmt.Errorf("start container %s: %w", resp.ID, err)
	}

	waitCh, errCh := r.cli.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	select {
	case res := <-waitCh:
		if res.Error != nil {
			return 0, fmt.Errorf("wait container %s: %s", resp.ID, res.Error.Message)
		}
		return res.StatusCode, nil
	case err := <-errCh:
		return 0, fmt.Errorf("wait container %s: %w", resp.ID, err)
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (r *dockerRunner) ensureImage(ctx context.Context, img string) error {
	_, err := r.cli.ImageInspect(ctx, img)
	if err == nil {
		return nil
	}
	if !errdefs.IsNotFound(err) {
		return fmt.Errorf("inspect image %s: %w", img, err)
	}

	slog.Info("Pulling ffmpeg image", "image", img)
	rc, err := r.cli.ImagePull(ctx, img, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", img, err)
	}
	defer rc.Close()
	if err := drainPull(ctx, rc); err != nil {
		return fmt.Errorf("pull image %s: %w", img, err)
	}
	return nil
}

// drainPull consumes pull progress. The pull only counts as done when the
// stream ends before ctx does.
func drainPull(ctx context.Context, progress io.Reader) error {
	if _, err := io.Copy(io.Discard, progress); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("read pull progress: %w", err)
	}
	return ctx.Err()
}

func ptr[T any](v T) *T {
	return &v
}
