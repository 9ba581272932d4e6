// Package errors provides error classification and retry execution for the
// ingestion pipeline. Errors are sorted into a small taxonomy: transient
// (retried with backoff), not-found (expected absence, never retried), and
// permanent (surfaced immediately). Callers branch on the classification
// instead of inspecting error text.
package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrorType classifies an error for retry decisions.
type ErrorType string

const (
	// TypeTransient errors (network, timeout, server-side) are retried.
	TypeTransient ErrorType = "transient"
	// TypeNotFound marks an expected upstream absence. Never retried and
	// treated as benign by callers: many month/timeframe combinations
	// legitimately do not exist.
	TypeNotFound ErrorType = "not_found"
	// TypePermanent errors are surfaced without retrying.
	TypePermanent ErrorType = "permanent"
)

// ErrNotFound is the sentinel for an upstream resource that does not exist.
var ErrNotFound = errors.New("resource not found")

// ClassifiedError wraps an error with its type and the operation context.
type ClassifiedError struct {
	Err       error
	Type      ErrorType
	Component string
	Operation string
}

// Error implements the error interface.
func (ce *ClassifiedError) Error() string {
	return fmt.Sprintf("[%s/%s] %s: %v", ce.Component, ce.Type, ce.Operation, ce.Err)
}

// Unwrap returns the underlying error.
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// Classify determines the type of an error. Already-classified errors pass
// through unchanged.
func Classify(err error, component, operation string) *ClassifiedError {
	if err == nil {
		return nil
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce
	}
	return &ClassifiedError{
		Err:       err,
		Type:      classifyType(err),
		Component: component,
		Operation: operation,
	}
}

func classifyType(err error) ErrorType {
	if errors.Is(err, ErrNotFound) {
		return TypeNotFound
	}
	if isNetworkError(err) || isTimeoutError(err) {
		return TypeTransient
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "server error"),
		strings.Contains(errStr, "internal server"),
		strings.Contains(errStr, "service unavailable"),
		strings.Contains(errStr, "too many requests"):
		return TypeTransient
	}
	return TypePermanent
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	patterns := []string{
		"connection refused",
		"connection reset",
		"connection aborted",
		"broken pipe",
		"no route to host",
		"host unreachable",
		"network unreachable",
		"unexpected eof",
		"tls handshake",
	}
	for _, pattern := range patterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

func isTimeoutError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded")
}

// IsNotFound reports whether err represents an expected upstream absence.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var ce *ClassifiedError
	return errors.As(err, &ce) && ce.Type == TypeNotFound
}

// IsTransient reports whether err would be retried.
func IsTransient(err error) bool {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Type == TypeTransient
	}
	return classifyType(err) == TypeTransient
}

// RetryPolicy bounds the retry loop.
type RetryPolicy struct {
	MaxAttempts  int           // total attempts, including the first
	InitialDelay time.Duration // base delay, doubled each attempt
	MaxDelay     time.Duration
}

// Retry executes fn with exponential backoff. Only transient errors are
// retried; not-found and permanent errors end the loop after one attempt.
// Context cancellation stops the loop between attempts.
func Retry(ctx context.Context, logger *slog.Logger, policy RetryPolicy, component, operation string, fn func() error) error {
	if logger == nil {
		logger = slog.Default()
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	if policy.InitialDelay <= 0 {
		policy.InitialDelay = time.Second
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = 30 * time.Second
	}

	strategy := backoff.NewExponentialBackOff()
	strategy.InitialInterval = policy.InitialDelay
	strategy.MaxInterval = policy.MaxDelay
	strategy.Multiplier = 2.0
	strategy.MaxElapsedTime = 0 // bounded by attempt count, not wall clock

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		classified := Classify(err, component, operation)
		lastErr = classified

		if classified.Type != TypeTransient {
			return classified
		}
		if attempt >= policy.MaxAttempts {
			break
		}

		delay := strategy.NextBackOff()
		if delay == backoff.Stop {
			break
		}
		logger.Warn("operation failed, retrying",
			"component", component,
			"operation", operation,
			"attempt", attempt,
			"max_attempts", policy.MaxAttempts,
			"delay", delay,
			"error", err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("context canceled during backoff: %w", ctx.Err())
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", policy.MaxAttempts, lastErr)
}
