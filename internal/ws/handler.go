// Package ws serves the web client's one-shot generation socket.
package ws

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ashureev/reelbot/internal/domain"
	"github.com/ashureev/reelbot/internal/identity"
	"github.com/ashureev/reelbot/internal/metrics"
	"github.com/ashureev/reelbot/internal/orchestrator"
	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"
)

const (
	readLimit    = 64 << 10
	writeTimeout = 30 * time.Second

	msgInvalidRequest = "invalid request"
	msgModelBusy      = "AI model is busy. Please try again."
	msgInternal       = "An internal server error occurred."
)

var errDelivered = errors.New("terminal frame delivered")

// Generator runs a resolved job.
type Generator interface {
	Generate(ctx context.Context, job orchestrator.Job, progress orchestrator.ProgressFunc) (domain.Artifact, error)
}

// Resolver applies or detects the style of a prompt.
type Resolver interface {
	Resolve(ctx context.Context, prompt, styleName string) (domain.ResolvedPrompt, error)
}

type request struct {
	Prompt string `json:"prompt"`
	Style  string `json:"style"`
}

type frame struct {
	Status string `json:"status,omitempty"`
	Video  string `json:"video,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Handler handles WebSocket generation requests.
type Handler struct {
	resolver      Resolver
	generator     Generator
	metrics       *metrics.Metrics
	allowedOrigin string
	isDev         bool
}

// NewHandler creates a new WebSocket handler.
func NewHandler(resolver Resolver, generator Generator, m *metrics.Metrics, allowedOrigin string, isDev bool) *Handler {
	return &Handler{
		resolver:      resolver,
		generator:     generator,
		metrics:       m,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// checkOrigin validates the request origin for WebSocket connections.
func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if h.allowedOrigin == "*" || origin == strings.TrimRight(h.allowedOrigin, "/") {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

// ServeHTTP upgrades the connection, reads one request frame and streams the generation.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	slog.Info("WebSocket connection request", "user_id", userID, "ip", identity.IPFromRequest(r))

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("WebSocket accept failed", "error", err)
		return
	}
	defer func() { _ = ws.CloseNow() }()
	ws.SetReadLimit(readLimit)

	h.metrics.SocketOpened()
	defer h.metrics.SocketClosed()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	_, data, err := ws.Read(ctx)
	if err != nil {
		slog.Debug("WebSocket closed before request", "user_id", userID, "error", err)
		return
	}
	var req request
	if err := json.Unmarshal(data, &req); err != nil {
		h.finish(ws, frame{Error: msgInvalidRequest})
		return
	}

	var delivered atomic.Bool
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return readLoop(gctx, ws)
	})
	g.Go(func() error {
		f := h.generate(gctx, ws, userID, req)
		if gctx.Err() != nil {
			return gctx.Err()
		}
		delivered.Store(true)
		h.finish(ws, f)
		return errDelivered
	})

	if err := g.Wait(); err != nil && !delivered.Load() {
		slog.Info("WebSocket client disconnected, generation cancelled", "user_id", userID, "error", err)
	}
}

// generate resolves and runs the request, returning the terminal frame.
func (h *Handler) generate(ctx context.Context, ws *websocket.Conn, userID string, req request) frame {
	resolved, err := h.resolver.Resolve(ctx, req.Prompt, req.Style)
	if err != nil {
		if errors.Is(err, orchestrator.ErrEmptyPrompt) || errors.Is(err, orchestrator.ErrUnknownStyle) {
			return frame{Error: err.Error()}
		}
		slog.Error("Prompt resolution failed", "user_id", userID, "error", err)
		return frame{Error: msgInternal}
	}

	job := orchestrator.Job{Prompt: resolved, Channel: domain.ChannelWeb, UserID: userID}
	art, err := h.generator.Generate(ctx, job, func(p orchestrator.Progress) {
		if err := h.writeJSON(ctx, ws, frame{Status: string(p.Stage) + "..."}); err != nil {
			slog.Debug("Failed to send status frame", "user_id", userID, "error", err)
		}
	})
	switch {
	case err == nil:
		return frame{Video: base64.StdEncoding.EncodeToString(art.Data)}
	case errors.Is(err, orchestrator.ErrInference):
		return frame{Error: msgModelBusy}
	default:
		slog.Error("Web generation failed", "user_id", userID, "error", err)
		return frame{Error: msgInternal}
	}
}

// finish sends the terminal frame and closes the socket normally.
func (h *Handler) finish(ws *websocket.Conn, f frame) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := h.writeJSON(ctx, ws, f); err != nil {
		slog.Debug("Failed to send terminal frame", "error", err)
		return
	}
	_ = ws.Close(websocket.StatusNormalClosure, "done")
}

// readLoop drains client frames so a disconnect cancels the generation.
func readLoop(ctx context.Context, ws *websocket.Conn) error {
	for {
		if _, _, err := ws.Read(ctx); err != nil {
			return err
		}
	}
}

func (h *Handler) writeJSON(ctx context.Context, ws *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}
