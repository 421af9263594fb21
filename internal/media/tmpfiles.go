package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/ashureev/reelbot/internal/resilience"
)

// DefaultTmpfilesURL is the public upload endpoint.
const DefaultTmpfilesURL = "https://tmpfiles.org/api/v1/upload"

// Tmpfiles uploads to tmpfiles.org and returns the direct download link.
type Tmpfiles struct {
	endpoint   string
	httpClient *http.Client
	exec       *resilience.Executor[string]
}

// NewTmpfiles creates an uploader. An empty endpoint uses DefaultTmpfilesURL.
func NewTmpfiles(endpoint string) *Tmpfiles {
	if endpoint == "" {
		endpoint = DefaultTmpfilesURL
	}
	return &Tmpfiles{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		exec: resilience.New[string](resilience.Config{
			MaxRetries: 2,
			BaseDelay:  500 * time.Millisecond,
			MaxDelay:   5 * time.Second,
		}),
	}
}

type tmpfilesResponse struct {
	Status string `json:"status"`
	Data   struct {
		URL string `json:"url"`
	} `json:"data"`
}

// Upload implements Uploader.
func (t *Tmpfiles) Upload(ctx context.Context, data []byte, contentType string) (string, error) {
	link, err := t.exec.Run(ctx, func(ctx context.Context) (string, error) {
		return t.upload(ctx, data, contentType)
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpload, err)
	}
	return link, nil
}

func (t *Tmpfiles) upload(ctx context.Context, data []byte, contentType string) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="video.mp4"`)
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("create form part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("write form part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result tmpfilesResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if result.Data.URL == "" {
		return "", fmt.Errorf("response carried no url")
	}
	return directLink(result.Data.URL), nil
}

// directLink turns a tmpfiles.org landing page URL into its raw download URL.
func directLink(u string) string {
	if strings.Contains(u, "tmpfiles.org/dl/") {
		return u
	}
	return strings.Replace(u, "tmpfiles.org/", "tmpfiles.org/dl/", 1)
}
