package common

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserMessage(t *testing.T) {
	tests := []struct {
		err  error
		name string
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "explicit user error", err: NewUserError("Try again later", ErrUploadFailed), want: "Try again later"},
		{name: "wrapped device error", err: fmt.Errorf("open camera: %w", ErrDeviceUnavailable), want: "Unable to access the camera. Check permissions and that no other session is using it."},
		{name: "persistence", err: fmt.Errorf("post: %w", ErrPersistenceFailed), want: "Attendance could not be saved. Your changes are kept locally."},
		{name: "unclassified", err: errors.New("boom"), want: "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UserMessage(tt.err))
		})
	}
}

func TestUserError_Unwrap(t *testing.T) {
	err := NewUserError("Recognition timed out", ErrRecognitionFailed)
	assert.ErrorIs(t, err, ErrRecognitionFailed)
	assert.Equal(t, "Recognition timed out: recognition failed", err.Error())
	assert.Equal(t, "only message", NewUserError("only message", nil).Error())
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrRateLimit))
	assert.True(t, IsRetryable(fmt.Errorf("wrapped: %w", context.DeadlineExceeded)))
	assert.True(t, IsRetryable(&RetryableError{Err: errors.New("503"), Retryable: true}))
	assert.False(t, IsRetryable(&RetryableError{Err: errors.New("400"), Retryable: false}))
	assert.False(t, IsRetryable(ErrPersistenceFailed))
}

func TestWithRetry(t *testing.T) {
	fast := RetryOptions{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			if calls < 3 {
				return &RetryableError{Err: errors.New("unavailable"), Retryable: true}
			}
			return nil
		}, fast)
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops on permanent failure", func(t *testing.T) {
		calls := 0
		permanent := errors.New("bad request")
		err := WithRetry(context.Background(), func() error {
			calls++
			return permanent
		}, fast)
		assert.ErrorIs(t, err, permanent)
		assert.Equal(t, 1, calls)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			return &RetryableError{Err: errors.New("unavailable"), Retryable: true}
		}, fast)
		assert.ErrorIs(t, err, ErrMaxRetries)
		assert.Equal(t, 3, calls)
	})

	t.Run("honors cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := WithRetry(ctx, func() error {
			return &RetryableError{Err: errors.New("unavailable"), Retryable: true}
		}, RetryOptions{MaxAttempts: 5, InitialDelay: time.Second})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", level.String())

	_, err = ParseLevel("loud")
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewLogger(nil, level, "xml")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
