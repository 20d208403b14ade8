package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tigerroll/datafactory/pkg/etl/support/util/exception"
	"github.com/tigerroll/datafactory/pkg/etl/support/util/retry"
)

func TestPolicy_ShouldRetry(t *testing.T) {
	p := retry.NewDefaultRetryPolicyFactory().Create(3, time.Millisecond, []string{"deadlock", "EmptyTable"})

	assert.True(t, p.ShouldRetry(errors.New("Deadlock found when trying to get lock; deadlock detected")))
	assert.True(t, p.ShouldRetry(errors.New("Error 1213: Deadlock found when trying to get lock")))
	assert.True(t, p.ShouldRetry(exception.NewPipelineError("io", "load", exception.ErrEmptyTable)))
	assert.False(t, p.ShouldRetry(errors.New("permission denied")))
	assert.False(t, p.ShouldRetry(nil))
	assert.False(t, p.ShouldRetry(context.Canceled))
}

func TestPolicy_Backoff(t *testing.T) {
	p := retry.NewDefaultRetryPolicyFactory().Create(0, 10*time.Millisecond, nil)

	assert.Equal(t, 1, p.GetMaxAttempts())
	assert.Equal(t, 10*time.Millisecond, p.GetBackoffInterval(1))
	assert.Equal(t, 40*time.Millisecond, p.GetBackoffInterval(3))
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	p := retry.NewDefaultRetryPolicyFactory().Create(3, time.Millisecond, []string{"busy"})
	calls := 0

	err := retry.Do(context.Background(), p, "write", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("database is busy")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnNonRetryableOrExhausted(t *testing.T) {
	p := retry.NewDefaultRetryPolicyFactory().Create(2, time.Millisecond, []string{"busy"})

	calls := 0
	err := retry.Do(context.Background(), p, "write", func(context.Context) error {
		calls++
		return errors.New("syntax error")
	})
	assert.EqualError(t, err, "syntax error")
	assert.Equal(t, 1, calls)

	calls = 0
	err = retry.Do(context.Background(), p, "write", func(context.Context) error {
		calls++
		return errors.New("busy")
	})
	assert.EqualError(t, err, "busy")
	assert.Equal(t, 2, calls)
}

func TestDo_CancelledDuringBackoff(t *testing.T) {
	p := retry.NewDefaultRetryPolicyFactory().Create(5, time.Hour, []string{"busy"})
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	err := retry.Do(ctx, p, "write", func(context.Context) error {
		calls++
		cancel()
		return errors.New("busy")
	})
	assert.EqualError(t, err, "busy")
	assert.Equal(t, 1, calls)
}
