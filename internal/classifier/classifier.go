// Package classifier decides whether a prompt already names a style.
package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNotConfigured is returned by the static back end when no API key is set.
var ErrNotConfigured = errors.New("classifier not configured")

// Classification is the verdict for one prompt.
type Classification struct {
	Style              string
	NeedsClarification bool
	Question           string
	EnhancedPrompt     string
	Reasoning          string
}

// Classifier inspects a prompt against the available style names.
type Classifier interface {
	Classify(ctx context.Context, prompt string, styles []string) (Classification, error)
}

// verdict is the JSON object the model is told to return.
type verdict struct {
	StyleDetected      *string `json:"style_detected"`
	Reasoning          string  `json:"reasoning"`
	EnhancedPrompt     string  `json:"enhanced_prompt"`
	ClarifyingQuestion string  `json:"clarifying_question"`
}

func systemPrompt(styles []string) string {
	return fmt.Sprintf(`You are an assistant for a text-to-video bot. Analyze the user's prompt and decide whether it already contains a clear artistic style.
The available styles are: %s.

Respond ONLY with a JSON object of this shape:
{
  "style_detected": "name of the detected style, or null",
  "reasoning": "a brief explanation of the decision",
  "enhanced_prompt": "a slightly more vivid version of the prompt",
  "clarifying_question": "a short question to ask the user when no style is detected, or an empty string"
}

If the prompt is generic (for example "a dog running"), style_detected must be null.
If the prompt is "a dog running in a cinematic style", style_detected must be "Cinematic".
Only detect a style that is explicitly mentioned or very strongly implied, and only from the list above.`,
		strings.Join(styles, ", "))
}

// parseVerdict converts raw model output into a Classification.
func parseVerdict(raw string, styles []string) (Classification, error) {
	raw = strings.TrimSpace(raw)
	// Some models wrap JSON in prose or code fences.
	if start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}"); start >= 0 && end > start {
		raw = raw[start : end+1]
	}

	var v verdict
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return Classification{}, fmt.Errorf("decode classifier verdict: %w", err)
	}

	c := Classification{
		Reasoning:      v.Reasoning,
		EnhancedPrompt: v.EnhancedPrompt,
		Question:       strings.TrimSpace(v.ClarifyingQuestion),
	}
	if v.StyleDetected == nil {
		c.NeedsClarification = true
		return c, nil
	}
	name, ok := matchStyle(*v.StyleDetected, styles)
	if !ok {
		c.NeedsClarification = true
		return c, nil
	}
	c.Style = name
	c.Question = ""
	return c, nil
}

func matchStyle(detected string, styles []string) (string, bool) {
	detected = strings.TrimSpace(detected)
	if detected == "" || strings.EqualFold(detected, "null") {
		return "", false
	}
	for _, s := range styles {
		if strings.EqualFold(s, detected) {
			return s, true
		}
	}
	return "", false
}

// Static is a back end that always fails with Err.
type Static struct {
	Err error
}

// Classify implements Classifier.
func (s Static) Classify(context.Context, string, []string) (Classification, error) {
	if s.Err == nil {
		return Classification{}, ErrNotConfigured
	}
	return Classification{}, s.Err
}
