package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/reelbot/internal/domain"
	"github.com/ashureev/reelbot/internal/identity"
	"github.com/ashureev/reelbot/internal/orchestrator"
)

type generateRequest struct {
	Prompt string `json:"prompt"`
	Style  string `json:"style"`
}

type generateResponse struct {
	Video  string `json:"video"`
	Style  string `json:"style"`
	Cached bool   `json:"cached"`
}

// Generate runs one generation synchronously and returns the video inline.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	var req generateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resolved, err := h.resolver.Resolve(r.Context(), req.Prompt, req.Style)
	switch {
	case errors.Is(err, orchestrator.ErrEmptyPrompt):
		Error(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, orchestrator.ErrUnknownStyle):
		Error(w, http.StatusUnprocessableEntity, err.Error())
		return
	case err != nil:
		slog.Error("Prompt resolution failed", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "An internal server error occurred.")
		return
	}

	job := orchestrator.Job{Prompt: resolved, Channel: domain.ChannelWeb, UserID: userID}
	art, err := h.generator.Generate(r.Context(), job, nil)
	if err != nil {
		if errors.Is(err, orchestrator.ErrInference) {
			Error(w, http.StatusBadGateway, "AI model is busy. Please try again.")
			return
		}
		slog.Error("Generation failed", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "An internal server error occurred.")
		return
	}

	JSON(w, http.StatusOK, generateResponse{
		Video:  base64.StdEncoding.EncodeToString(art.Data),
		Style:  resolved.StyleName,
		Cached: art.Cached,
	})
}
