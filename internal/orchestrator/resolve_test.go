package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/ashureev/reelbot/internal/classifier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClassifier struct {
	c   classifier.Classification
	err error
}

func (s stubClassifier) Classify(context.Context, string, []string) (classifier.Classification, error) {
	return s.c, s.err
}

func TestResolveExplicitStyle(t *testing.T) {
	r := NewResolver(stubClassifier{err: errors.New("unused")}, "Cinematic")

	got, err := r.Resolve(context.Background(), "  a cat on a skateboard ", "anime")
	require.NoError(t, err)
	assert.Equal(t, "Anime", got.StyleName)
	assert.Equal(t, "a cat on a skateboard", got.Prompt)
	assert.Contains(t, got.AugmentedPrompt, "anime style")
	assert.Contains(t, got.AugmentedPrompt, "a cat on a skateboard")
}

func TestResolveRejects(t *testing.T) {
	r := NewResolver(stubClassifier{}, "Cinematic")

	_, err := r.Resolve(context.Background(), "   ", "Anime")
	assert.ErrorIs(t, err, ErrEmptyPrompt)

	_, err = r.Resolve(context.Background(), "a cat", "Watercolour")
	assert.ErrorIs(t, err, ErrUnknownStyle)
}

func TestResolveClassifies(t *testing.T) {
	r := NewResolver(stubClassifier{c: classifier.Classification{Style: "Sci-Fi"}}, "Cinematic")
	got, err := r.Resolve(context.Background(), "robots on mars", "")
	require.NoError(t, err)
	assert.Equal(t, "Sci-Fi", got.StyleName)

	r = NewResolver(stubClassifier{c: classifier.Classification{NeedsClarification: true}}, "Cinematic")
	got, err = r.Resolve(context.Background(), "robots on mars", "")
	require.NoError(t, err)
	assert.Equal(t, "Cinematic", got.StyleName)
}
