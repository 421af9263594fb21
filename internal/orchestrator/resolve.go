package orchestrator

import (
	"context"
	"errors"
	"strings"

	"github.com/ashureev/reelbot/internal/classifier"
	"github.com/ashureev/reelbot/internal/domain"
	"github.com/ashureev/reelbot/internal/style"
)

var (
	// ErrEmptyPrompt rejects blank prompts.
	ErrEmptyPrompt = errors.New("prompt is required")
	// ErrUnknownStyle rejects a style name outside the catalog.
	ErrUnknownStyle = errors.New("unknown style")
)

// Resolver turns a one-shot web request into a ResolvedPrompt.
// Web clients have no conversation, so a clarification request falls back to the default style.
type Resolver struct {
	classifier   classifier.Classifier
	defaultStyle string
}

// NewResolver creates a resolver. c should never fail; wrap back ends with classifier.NewFallback.
func NewResolver(c classifier.Classifier, defaultStyle string) *Resolver {
	return &Resolver{classifier: c, defaultStyle: defaultStyle}
}

// Resolve applies styleName, or classifies prompt when styleName is empty.
func (r *Resolver) Resolve(ctx context.Context, prompt, styleName string) (domain.ResolvedPrompt, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return domain.ResolvedPrompt{}, ErrEmptyPrompt
	}

	if strings.TrimSpace(styleName) == "" {
		styleName = r.defaultStyle
		c, err := r.classifier.Classify(ctx, prompt, style.Names(nil))
		if err == nil && !c.NeedsClarification && c.Style != "" {
			styleName = c.Style
		}
	}

	st, ok := style.Lookup(styleName, nil)
	if !ok {
		return domain.ResolvedPrompt{}, ErrUnknownStyle
	}
	return domain.ResolvedPrompt{
		Prompt:          prompt,
		AugmentedPrompt: style.Augment(prompt, st),
		StyleName:       st.Name,
	}, nil
}
