package classifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// OpenAI classifies prompts through an OpenAI-compatible chat completions API (Groq by default).
type OpenAI struct {
	client openai.Client
	model  string
}

// NewOpenAI creates an OpenAI-compatible back end. Extra options are applied after key and base URL.
func NewOpenAI(apiKey, baseURL, model string, opts ...option.RequestOption) *OpenAI {
	base := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		base = append(base, option.WithBaseURL(baseURL))
	}
	return &OpenAI{
		client: openai.NewClient(append(base, opts...)...),
		model:  model,
	}
}

// Classify implements Classifier.
func (o *OpenAI) Classify(ctx context.Context, prompt string, styles []string) (Classification, error) {
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt(styles)),
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(0.2),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		return Classification{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Classification{}, errors.New("chat completion returned no choices")
	}
	return parseVerdict(resp.Choices[0].Message.Content, styles)
}
