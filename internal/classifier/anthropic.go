package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	aoption "github.com/anthropics/anthropic-sdk-go/option"
)

// Anthropic classifies prompts with the Messages API.
type Anthropic struct {
	client anthropic.Client
	model  string
}

// NewAnthropic creates an Anthropic back end.
func NewAnthropic(apiKey, baseURL, model string, opts ...aoption.RequestOption) *Anthropic {
	base := []aoption.RequestOption{aoption.WithAPIKey(apiKey)}
	if baseURL != "" {
		base = append(base, aoption.WithBaseURL(baseURL))
	}
	return &Anthropic{
		client: anthropic.NewClient(append(base, opts...)...),
		model:  model,
	}
}

// Classify implements Classifier.
func (a *Anthropic) Classify(ctx context.Context, prompt string, styles []string) (Classification, error) {
	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: 512,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt(styles)}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return Classification{}, fmt.Errorf("create message: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return Classification{}, errors.New("message contained no text")
	}
	return parseVerdict(text.String(), styles)
}
