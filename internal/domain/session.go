package domain

import (
	"sort"
	"strings"
	"time"
)

// MaxHistory is the number of past generations kept per session.
const MaxHistory = 5

// SessionState is the conversational state of a chat user.
type SessionState string

const (
	StateIdle                SessionState = "idle"
	StateAwaitingStyleChoice SessionState = "awaiting_style_choice"
	StateGenerating          SessionState = "generating"
)

// HistoryEntry records one completed generation.
type HistoryEntry struct {
	Prompt    string    `json:"prompt"`
	Style     string    `json:"style"`
	MediaURL  string    `json:"media_url"`
	CreatedAt time.Time `json:"created_at"`
}

// UserSession holds chat state for a single user across turns.
type UserSession struct {
	UserID             string            `json:"user_id"`
	State              SessionState      `json:"state"`
	PendingPrompt      string            `json:"pending_prompt,omitempty"`
	StyleOptions       []string          `json:"style_options,omitempty"`
	ActiveGenerationID string            `json:"active_generation_id,omitempty"`
	LastStyle          string            `json:"last_style,omitempty"`
	History            []HistoryEntry    `json:"history,omitempty"`
	CustomStyles       map[string]string `json:"custom_styles,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// NewUserSession returns an idle session for userID.
func NewUserSession(userID string, now time.Time) *UserSession {
	return &UserSession{
		UserID:       userID,
		State:        StateIdle,
		CustomStyles: make(map[string]string),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Clone returns a deep copy so callers can mutate without aliasing.
func (s *UserSession) Clone() *UserSession {
	c := *s
	c.StyleOptions = append([]string(nil), s.StyleOptions...)
	c.History = append([]HistoryEntry(nil), s.History...)
	c.CustomStyles = make(map[string]string, len(s.CustomStyles))
	for k, v := range s.CustomStyles {
		c.CustomStyles[k] = v
	}
	return &c
}

// AppendHistory records a generation, evicting the oldest beyond MaxHistory.
func (s *UserSession) AppendHistory(entry HistoryEntry) {
	s.History = append(s.History, entry)
	if len(s.History) > MaxHistory {
		s.History = append([]HistoryEntry(nil), s.History[len(s.History)-MaxHistory:]...)
	}
}

// RecentHistory returns history newest first.
func (s *UserSession) RecentHistory() []HistoryEntry {
	out := make([]HistoryEntry, len(s.History))
	for i, e := range s.History {
		out[len(s.History)-1-i] = e
	}
	return out
}

// CustomStyleNames returns the user's style names in sorted order.
func (s *UserSession) CustomStyleNames() []string {
	names := make([]string, 0, len(s.CustomStyles))
	for name := range s.CustomStyles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Disposable reports whether the session holds nothing worth keeping:
// no custom styles and no history.
func (s *UserSession) Disposable() bool {
	return len(s.CustomStyles) == 0 && len(s.History) == 0
}

// ClearPending drops any clarification in progress.
func (s *UserSession) ClearPending() {
	s.PendingPrompt = ""
	s.StyleOptions = nil
}

// NormalizeStyleName is the storage form of a custom style name.
func NormalizeStyleName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
