package bot

import (
	"log/slog"
	"net/http"

	"github.com/ashureev/reelbot/internal/messaging"
	"github.com/go-chi/chi/v5"
)

const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// WebhookHandler receives inbound WhatsApp messages from Twilio.
type WebhookHandler struct {
	bot       *Bot
	validator *messaging.Validator
}

// NewWebhookHandler creates the handler. A nil validator accepts unsigned requests.
func NewWebhookHandler(b *Bot, v *messaging.Validator) *WebhookHandler {
	return &WebhookHandler{bot: b, validator: v}
}

// RegisterRoutes registers bot routes.
func (h *WebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/v1/bot/webhook/twilio", h.Twilio)
}

// Twilio handles one webhook call. Replies go out through the messaging API, so the
// TwiML response is always empty.
func (h *WebhookHandler) Twilio(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	if h.validator != nil && !h.validator.Valid(r) {
		slog.Warn("Rejected webhook with invalid signature", "ip", r.RemoteAddr)
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}

	from := r.PostForm.Get("From")
	if from == "" {
		http.Error(w, "missing From", http.StatusBadRequest)
		return
	}
	userID := messaging.UserID(from)
	body := r.PostForm.Get("Body")
	slog.Info("Incoming chat message", "user_id", userID, "length", len(body))

	if err := h.bot.HandleMessage(r.Context(), userID, body); err != nil {
		slog.Error("Failed to handle chat message", "user_id", userID, "error", err)
	}

	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(emptyTwiML))
}
