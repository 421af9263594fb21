// Package api provides HTTP handlers for the reelbot API.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ashureev/reelbot/internal/domain"
	"github.com/ashureev/reelbot/internal/orchestrator"
	"github.com/ashureev/reelbot/internal/store"
	"github.com/ashureev/reelbot/internal/style"
	"github.com/go-chi/chi/v5"
)

// Generator runs a resolved job.
type Generator interface {
	Generate(ctx context.Context, job orchestrator.Job, progress orchestrator.ProgressFunc) (domain.Artifact, error)
}

// Resolver applies or detects the style of a prompt.
type Resolver interface {
	Resolve(ctx context.Context, prompt, styleName string) (domain.ResolvedPrompt, error)
}

// Handler provides the REST endpoints.
type Handler struct {
	repo      store.Repository
	resolver  Resolver
	generator Generator
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, resolver Resolver, generator Generator) *Handler {
	return &Handler{
		repo:      repo,
		resolver:  resolver,
		generator: generator,
	}
}

// RegisterRoutes registers the public routes. generate is wrapped by limit.
func (h *Handler) RegisterRoutes(r chi.Router, limit func(http.Handler) http.Handler) {
	r.Get("/healthz", h.Health)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/styles", h.Styles)
		r.With(limit).Post("/generate", h.Generate)
	})
}

// Health reports whether the document store is reachable.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.repo.Ping(ctx); err != nil {
		Error(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Styles lists the built-in styles.
func (h *Handler) Styles(w http.ResponseWriter, r *http.Request) {
	type styleView struct {
		Name   string `json:"name"`
		Prompt string `json:"prompt"`
	}
	builtIns := style.BuiltIns()
	out := make([]styleView, 0, len(builtIns))
	for _, s := range builtIns {
		out = append(out, styleView{Name: s.Name, Prompt: s.Prompt})
	}
	JSON(w, http.StatusOK, out)
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
