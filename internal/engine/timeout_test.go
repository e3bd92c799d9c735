package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryWithBackoff_Success(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), &RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  1 * time.Millisecond,
		MaxDelay:   10 * time.Millisecond,
	}, func() error {
		attempts++
		if attempts < 3 {
			return fmt.Errorf("throttled")
		}
		return nil
	}, func(err error) bool {
		return true
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryWithBackoff_NonRetryable(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), &RetryPolicy{
		MaxRetries: 5,
		BaseDelay:  1 * time.Millisecond,
		MaxDelay:   10 * time.Millisecond,
	}, func() error {
		attempts++
		return fmt.Errorf("permanent error")
	}, func(err error) bool {
		return false
	})

	assert.EqualError(t, err, "permanent error")
	assert.Equal(t, 1, attempts)
}

func TestRetryWithBackoff_MaxRetries(t *testing.T) {
	attempts := 0
	sentinel := errors.New("always fails")
	err := RetryWithBackoff(context.Background(), &RetryPolicy{
		MaxRetries: 2,
		BaseDelay:  1 * time.Millisecond,
		MaxDelay:   10 * time.Millisecond,
	}, func() error {
		attempts++
		return sentinel
	}, func(err error) bool {
		return true
	})

	assert.ErrorIs(t, err, sentinel)
	assert.Contains(t, err.Error(), "max retries (2) exceeded")
	assert.Equal(t, 3, attempts)
}

func TestRetryWithBackoff_NoRetryPolicy(t *testing.T) {
	attempts := 0
	sentinel := errors.New("throttled")
	err := RetryWithBackoff(context.Background(), NoRetry(), func() error {
		attempts++
		return sentinel
	}, IsTransientError)

	assert.Equal(t, sentinel, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryWithBackoff_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := RetryWithBackoff(ctx, &RetryPolicy{
		MaxRetries: 5,
		BaseDelay:  time.Hour,
		MaxDelay:   time.Hour,
	}, func() error {
		attempts++
		cancel()
		return fmt.Errorf("throttled")
	}, IsTransientError)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestCalculateBackoff(t *testing.T) {
	for attempt := 0; attempt < 10; attempt++ {
		d := calculateBackoff(attempt, 100*time.Millisecond, time.Second)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, time.Second)
	}
}

func TestIsTransientError(t *testing.T) {
	tests := []struct {
		err       error
		transient bool
	}{
		{nil, false},
		{fmt.Errorf("Throttling: Rate exceeded"), true},
		{fmt.Errorf("api error RequestLimitExceeded: Request limit exceeded."), true},
		{fmt.Errorf("dial tcp: connection reset by peer"), true},
		{fmt.Errorf("api error InternalError: An internal error has occurred"), true},
		{fmt.Errorf("InvalidParameterValue: bad cidr"), false},
		{fmt.Errorf("DependencyViolation: network has dependencies"), false},
	}

	for _, tt := range tests {
		name := "nil"
		if tt.err != nil {
			name = tt.err.Error()
		}
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.transient, IsTransientError(tt.err))
		})
	}
}
