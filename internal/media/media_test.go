package media

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPassthrough(t *testing.T) {
	out, err := Passthrough{}.Compress(context.Background(), []byte("video"))
	require.NoError(t, err)
	assert.Equal(t, []byte("video"), out)
}

func TestDirectLink(t *testing.T) {
	assert.Equal(t, "https://tmpfiles.org/dl/123/video.mp4", directLink("https://tmpfiles.org/123/video.mp4"))
	assert.Equal(t, "https://tmpfiles.org/dl/123/video.mp4", directLink("https://tmpfiles.org/dl/123/video.mp4"))
}

func TestTmpfilesUpload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		file, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "video.mp4", hdr.Filename)
		assert.Equal(t, "mp4-bytes", string(data))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","data":{"url":"https://tmpfiles.org/42/video.mp4"}}`))
	}))
	defer srv.Close()

	u := NewTmpfiles(srv.URL)
	link, err := u.Upload(context.Background(), []byte("mp4-bytes"), "video/mp4")
	require.NoError(t, err)
	assert.Equal(t, "https://tmpfiles.org/dl/42/video.mp4", link)
}

func TestTmpfilesRetriesThenFails(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	u := NewTmpfiles(srv.URL)
	_, err := u.Upload(context.Background(), []byte("x"), "video/mp4")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUpload))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

type fakeRunner struct {
	code    int64
	err     error
	gotArgs []string
	gotImg  string
}

func (f *fakeRunner) Run(_ context.Context, img string, args []string, hostDir string) (int64, error) {
	f.gotImg = img
	f.gotArgs = args
	if f.err != nil || f.code != 0 {
		return f.code, f.err
	}
	return 0, os.WriteFile(filepath.Join(hostDir, "output.mp4"), []byte("small"), 0o644)
}

func TestDockerCompress(t *testing.T) {
	r := &fakeRunner{}
	d := newDocker(r, "ffmpeg:test", "800k")

	out, err := d.Compress(context.Background(), []byte("a very large video"))
	require.NoError(t, err)
	assert.Equal(t, []byte("small"), out)
	assert.Equal(t, "ffmpeg:test", r.gotImg)
	assert.Contains(t, r.gotArgs, "/work/input.mp4")
	assert.Contains(t, r.gotArgs, "800k")
	assert.Equal(t, "/work/output.mp4", r.gotArgs[len(r.gotArgs)-1])
}

func TestDockerCompressNonZeroExit(t *testing.T) {
	d := newDocker(&fakeRunner{code: 1}, "ffmpeg:test", "")

	_, err := d.Compress(context.Background(), []byte("video"))
	assert.ErrorContains(t, err, "exited with code 1")
}

// cancelReader ends the stream the way a pull body does once its context is cancelled.
type cancelReader struct {
	cancel context.CancelFunc
	err    error
}

func (r cancelReader) Read([]byte) (int, error) {
	if r.cancel != nil {
		r.cancel()
	}
	return 0, r.err
}

func TestDrainPull(t *testing.T) {
	t.Run("complete", func(t *testing.T) {
		require.NoError(t, drainPull(context.Background(), strings.NewReader(`{"status":"Downloaded"}`)))
	})

	t.Run("cancelled mid stream", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		err := drainPull(ctx, cancelReader{cancel: cancel, err: context.Canceled})
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("cancelled with clean EOF", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		err := drainPull(ctx, cancelReader{cancel: cancel, err: io.EOF})
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("stream error", func(t *testing.T) {
		err := drainPull(context.Background(), cancelReader{err: io.ErrUnexpectedEOF})
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})
}

func TestFFmpegCompressWithFakeBinary(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in needs a POSIX shell")
	}
	script := filepath.Join(t.TempDir(), "ffmpeg")
	// Copies the first three bytes of the -i input to the last argument.
	body := `#!/bin/sh
in=""
while [ $# -gt 1 ]; do
  if [ "$1" = "-i" ]; then in="$2"; fi
  shift
done
head -c 3 "$in" > "$1"
`
	require.NoError(t, os.WriteFile(script, []byte(body), 0o755))

	f := NewFFmpeg(script, "1M")
	out, err := f.Compress(context.Background(), []byte("abcdefgh"))
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), out)
}

func TestFFmpegCompressMissingBinary(t *testing.T) {
	f := NewFFmpeg(filepath.Join(t.TempDir(), "does-not-exist"), "1M")
	_, err := f.Compress(context.Background(), []byte("abc"))
	assert.Error(t, err)
}

func TestS3UploadReturnsPresignedURL(t *testing.T) {
	var gotPath, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	u, err := NewS3(ctx, S3Config{
		Bucket:    "media-bucket",
		Prefix:    "videos",
		Region:    "us-east-1",
		Endpoint:  srv.URL,
		AccessKey: "AKIDTEST",
		SecretKey: "secret",
		URLExpiry: time.Hour,
	})
	require.NoError(t, err)

	link, err := u.Upload(ctx, []byte("mp4"), "video/mp4")
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.True(t, strings.HasPrefix(gotPath, "/media-bucket/videos/"), gotPath)
	assert.True(t, strings.HasPrefix(link, srv.URL+"/media-bucket/videos/"), link)
	assert.Contains(t, link, "X-Amz-Signature")
}
