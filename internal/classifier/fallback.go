package classifier

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/reelbot/internal/metrics"
	"github.com/ashureev/reelbot/internal/resilience"
)

// Fallback bounds a back end with a timeout and never fails: any error yields the default style.
type Fallback struct {
	inner        Classifier
	defaultStyle string
	exec         *resilience.Executor[Classification]
	metrics      *metrics.Metrics
}

// NewFallback wraps inner. A zero timeout leaves calls unbounded.
func NewFallback(inner Classifier, defaultStyle string, timeout time.Duration, m *metrics.Metrics) *Fallback {
	return &Fallback{
		inner:        inner,
		defaultStyle: defaultStyle,
		exec:         resilience.New[Classification](resilience.Config{Timeout: timeout}),
		metrics:      m,
	}
}

// Classify implements Classifier. The returned error is always nil.
func (f *Fallback) Classify(ctx context.Context, prompt string, styles []string) (Classification, error) {
	c, err := f.exec.Run(ctx, func(ctx context.Context) (Classification, error) {
		return f.inner.Classify(ctx, prompt, styles)
	})
	if err != nil {
		slog.Warn("Classifier failed, using default style", "style", f.defaultStyle, "error", err)
		f.metrics.ClassifierFallback()
		return Classification{Style: f.defaultStyle}, nil
	}
	return c, nil
}
