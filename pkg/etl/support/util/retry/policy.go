// Package retry provides the retry policy used around operations that touch external systems.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/tigerroll/datafactory/pkg/etl/support/util/exception"
	"github.com/tigerroll/datafactory/pkg/etl/support/util/logger"
)

// RetryPolicy decides whether and when a failed operation is attempted again.
type RetryPolicy interface {
	// ShouldRetry reports whether err is retryable.
	ShouldRetry(err error) bool
	// GetBackoffInterval returns the wait before attempt+1, for attempt starting at 1.
	GetBackoffInterval(attempt int) time.Duration
	// GetMaxAttempts returns the total number of attempts, the first one included.
	GetMaxAttempts() int
}

// DefaultRetryPolicyFactory creates policies from configuration values.
type DefaultRetryPolicyFactory struct{}

func NewDefaultRetryPolicyFactory() *DefaultRetryPolicyFactory {
	return &DefaultRetryPolicyFactory{}
}

// Create returns a policy retrying errors that match one of retryableErrors
// (see exception.IsErrorOfType). The interval doubles after every attempt.
func (f *DefaultRetryPolicyFactory) Create(maxAttempts int, initialInterval time.Duration, retryableErrors []string) RetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &defaultRetryPolicy{
		maxAttempts:     maxAttempts,
		initialInterval: initialInterval,
		retryableErrors: append([]string(nil), retryableErrors...),
	}
}

type defaultRetryPolicy struct {
	maxAttempts     int
	initialInterval time.Duration
	retryableErrors []string
}

func (p *defaultRetryPolicy) GetMaxAttempts() int { return p.maxAttempts }

// ShouldRetry never retries cancellation.
func (p *defaultRetryPolicy) ShouldRetry(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	for _, name := range p.retryableErrors {
		if exception.IsErrorOfType(err, name) {
			return true
		}
	}
	return false
}

func (p *defaultRetryPolicy) GetBackoffInterval(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.initialInterval << min(attempt-1, 10)
}

var _ RetryPolicy = (*defaultRetryPolicy)(nil)

// Do runs op until it succeeds, fails with a non-retryable error, or the policy's attempts
// are used up. It returns the last error. ctx cancellation interrupts the backoff wait.
func Do(ctx context.Context, policy RetryPolicy, name string, op func(ctx context.Context) error) error {
	var err error
	for attempt := 1; ; attempt++ {
		if err = op(ctx); err == nil {
			return nil
		}
		if attempt >= policy.GetMaxAttempts() || !policy.ShouldRetry(err) {
			return err
		}
		wait := policy.GetBackoffInterval(attempt)
		logger.Warnf("%s failed (attempt %d/%d), retrying in %s: %v", name, attempt, policy.GetMaxAttempts(), wait, err)
		select {
		case <-ctx.Done():
			return err
		case <-time.After(wait):
		}
	}
}
