// Package resilience wraps failsafe-go policies for outbound adapter calls.
package resilience

import (
	"context"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/failsafe-go/failsafe-go/timeout"
)

// Config describes the policies applied to a call. Zero values disable a policy.
type Config struct {
	// Timeout bounds each attempt.
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration

	// ShouldRetry decides whether an error is retryable. Defaults to any error.
	ShouldRetry func(err error) bool
}

// Executor runs functions under the configured policies.
type Executor[R any] struct {
	exec failsafe.Executor[R]
}

// New builds an executor. Retries wrap the per-attempt timeout.
func New[R any](cfg Config) *Executor[R] {
	var policies []failsafe.Policy[R]

	if cfg.MaxRetries > 0 {
		if cfg.BaseDelay <= 0 {
			cfg.BaseDelay = 200 * time.Millisecond
		}
		if cfg.MaxDelay < cfg.BaseDelay {
			cfg.MaxDelay = cfg.BaseDelay * 10
		}
		shouldRetry := cfg.ShouldRetry
		if shouldRetry == nil {
			shouldRetry = func(err error) bool { return err != nil }
		}
		policies = append(policies, retrypolicy.NewBuilder[R]().
			WithBackoff(cfg.BaseDelay, cfg.MaxDelay).
			WithMaxRetries(cfg.MaxRetries).
			WithJitterFactor(0.1).
			HandleIf(func(_ R, err error) bool {
				return err != nil && shouldRetry(err)
			}).
			ReturnLastFailure().
			Build())
	}

	if cfg.Timeout > 0 {
		policies = append(policies, timeout.NewBuilder[R](cfg.Timeout).Build())
	}

	if len(policies) == 0 {
		return &Executor[R]{}
	}
	return &Executor[R]{exec: failsafe.With(policies...)}
}

// Run executes fn, passing a context that is cancelled when an attempt times out.
func (e *Executor[R]) Run(ctx context.Context, fn func(ctx context.Context) (R, error)) (R, error) {
	if e == nil || e.exec == nil {
		return fn(ctx)
	}
	return e.exec.WithContext(ctx).GetWithExecution(func(exec failsafe.Execution[R]) (R, error) {
		return fn(exec.Context())
	})
}
