package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorType
	}{
		{"not found sentinel", ErrNotFound, TypeNotFound},
		{"wrapped not found", fmt.Errorf("fetch: %w", ErrNotFound), TypeNotFound},
		{"connection refused", errors.New("dial tcp: connection refused"), TypeTransient},
		{"timeout", errors.New("context deadline exceeded"), TypeTransient},
		{"server error text", errors.New("server error 503 fetching url"), TypeTransient},
		{"unexpected eof", errors.New("unexpected EOF"), TypeTransient},
		{"plain error", errors.New("bad checksum"), TypePermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ce := Classify(tt.err, "fetch", "op")
			require.NotNil(t, ce)
			assert.Equal(t, tt.expected, ce.Type)
		})
	}
}

func TestClassifyNil(t *testing.T) {
	assert.Nil(t, Classify(nil, "fetch", "op"))
}

func TestClassifyPreservesExistingClassification(t *testing.T) {
	original := &ClassifiedError{
		Err:       errors.New("boom"),
		Type:      TypePermanent,
		Component: "fetch",
		Operation: "op",
	}
	reclassified := Classify(fmt.Errorf("wrapped: %w", original), "other", "other-op")
	assert.Same(t, original, reclassified)
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(ErrNotFound))
	assert.True(t, IsNotFound(fmt.Errorf("outer: %w", ErrNotFound)))
	assert.True(t, IsNotFound(Classify(ErrNotFound, "fetch", "op")))
	assert.False(t, IsNotFound(errors.New("something else")))
	assert.False(t, IsNotFound(nil))
}

func TestRetryStopsOnSuccess(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), nil, fastPolicy(5), "test", "op", func() error {
		attempts++
		if attempts < 3 {
			return errors.New("connection reset")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryNotFoundIsImmediate(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), nil, fastPolicy(5), "test", "op", func() error {
		attempts++
		return ErrNotFound
	})
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Equal(t, 1, attempts)
}

func TestRetryPermanentIsImmediate(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), nil, fastPolicy(5), "test", "op", func() error {
		attempts++
		return errors.New("malformed response body")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryExhaustsBudget(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), nil, fastPolicy(3), "test", "op", func() error {
		attempts++
		return errors.New("connection refused")
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestRetryRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := Retry(ctx, nil, RetryPolicy{MaxAttempts: 5, InitialDelay: time.Hour}, "test", "op", func() error {
		attempts++
		cancel()
		return errors.New("connection refused")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
	}
}
