// Package inference calls the hosted text-to-video model.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/reelbot/internal/resilience"
)

// maxVideoBytes caps how much of a response body is read.
const maxVideoBytes = 256 << 20

var (
	// ErrEmptyVideo is returned when the model answers 2xx with no payload.
	ErrEmptyVideo = errors.New("inference returned an empty video")
	// ErrVideoTooLarge is returned when the payload exceeds the read cap.
	ErrVideoTooLarge = errors.New("inference video exceeds size limit")
)

// StatusError is a non-2xx answer from the inference endpoint.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("inference status %d: %s", e.Code, e.Body)
}

// Video is raw model output.
type Video struct {
	Data        []byte
	ContentType string
}

// Generator turns a prompt into a video.
type Generator interface {
	Generate(ctx context.Context, prompt string) (Video, error)
}

// Client posts prompts to {baseURL}/{model}.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	exec       *resilience.Executor[Video]
	maxBytes   int64
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a client. A zero timeout leaves calls unbounded.
func NewClient(baseURL, model, apiKey string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		endpoint:   strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(model, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{},
		exec:       resilience.New[Video](resilience.Config{Timeout: timeout}),
		maxBytes:   maxVideoBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type generateRequest struct {
	Inputs string `json:"inputs"`
}

// Generate implements Generator. Calls are not retried.
func (c *Client) Generate(ctx context.Context, prompt string) (Video, error) {
	return c.exec.Run(ctx, func(ctx context.Context) (Video, error) {
		return c.do(ctx, prompt)
	})
}

func (c *Client) do(ctx context.Context, prompt string) (Video, error) {
	body, err := json.Marshal(generateRequest{Inputs: prompt})
	if err != nil {
		return Video{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Video{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "video/mp4")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Video{}, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Video{}, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return Video{}, fmt.Errorf("read video: %w", err)
	}
	if int64(len(data)) > c.maxBytes {
		return Video{}, fmt.Errorf("read video: more than %d bytes: %w", c.maxBytes, ErrVideoTooLarge)
	}
	if len(data) == 0 {
		return Video{}, ErrEmptyVideo
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" || strings.HasPrefix(contentType, "application/octet-stream") {
		contentType = "video/mp4"
	}
	return Video{Data: data, ContentType: contentType}, nil
}
