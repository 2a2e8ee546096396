package util

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"testing"
	"time"
)

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil error", err: nil, expected: false},
		{name: "ETIMEDOUT", err: syscall.ETIMEDOUT, expected: true},
		{name: "ECONNREFUSED", err: syscall.ECONNREFUSED, expected: true},
		{name: "ENOENT (not retryable)", err: syscall.ENOENT, expected: false},
		{name: "timeout in message", err: errors.New("connection timeout"), expected: true},
		{name: "connection reset in message", err: errors.New("read: connection reset by peer"), expected: true},
		{name: "generic error (not retryable)", err: errors.New("invalid argument"), expected: false},
		{name: "transient wrapper", err: &TransientError{Err: errors.New("status 503")}, expected: true},
		{name: "wrapped transient", err: fmt.Errorf("scan status: %w", &TransientError{Err: errors.New("status 502")}), expected: true},
		{name: "context cancelled", err: context.Canceled, expected: false},
		{name: "PathError with ECONNRESET", err: &os.PathError{Op: "read", Path: "/x", Err: syscall.ECONNRESET}, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryableError(tt.err); got != tt.expected {
				t.Errorf("IsRetryableError(%v) = %v, expected %v", tt.err, got, tt.expected)
			}
		})
	}
}

func testRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts: 3,
		InitialWait: 10 * time.Millisecond,
		MaxWait:     100 * time.Millisecond,
	}
}

func TestRetryWithBackoff_ImmediateSuccess(t *testing.T) {
	attempts := 0
	result, err := RetryWithBackoff(context.Background(), testRetryConfig(), func(context.Context) (int, error) {
		attempts++
		return 42, nil
	}, "test operation")

	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if result != 42 {
		t.Errorf("Expected result 42, got: %d", result)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got: %d", attempts)
	}
}

func TestRetryWithBackoff_SuccessAfterRetries(t *testing.T) {
	attempts := 0
	result, err := RetryWithBackoff(context.Background(), testRetryConfig(), func(context.Context) (string, error) {
		attempts++
		if attempts < 3 {
			return "", syscall.ETIMEDOUT
		}
		return "success", nil
	}, "test operation")

	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if result != "success" {
		t.Errorf("Expected result 'success', got: %s", result)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got: %d", attempts)
	}
}

func TestRetryWithBackoff_FailureAfterMaxRetries(t *testing.T) {
	attempts := 0
	_, err := RetryWithBackoff(context.Background(), testRetryConfig(), func(context.Context) (int, error) {
		attempts++
		return 0, syscall.ETIMEDOUT
	}, "test operation")

	if err == nil {
		t.Fatal("Expected error after max retries, got nil")
	}
	if !errors.Is(err, syscall.ETIMEDOUT) {
		t.Errorf("Expected wrapped ETIMEDOUT, got: %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts (max), got: %d", attempts)
	}
}

func TestRetryWithBackoff_NonRetryableError(t *testing.T) {
	attempts := 0
	_, err := RetryWithBackoff(context.Background(), testRetryConfig(), func(context.Context) (int, error) {
		attempts++
		return 0, syscall.ENOENT
	}, "test operation")

	if err == nil {
		t.Error("Expected error, got nil")
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt (no retry for non-retryable), got: %d", attempts)
	}
}

func TestRetryWithBackoff_ContextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := &RetryConfig{MaxAttempts: 5, InitialWait: time.Second, MaxWait: time.Second}

	attempts := 0
	_, err := RetryWithBackoff(ctx, cfg, func(context.Context) (int, error) {
		attempts++
		cancel()
		return 0, syscall.ETIMEDOUT
	}, "test operation")

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got: %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got: %d", attempts)
	}
}

func TestRetry_NoReturnValue(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), testRetryConfig(), func(context.Context) error {
		attempts++
		if attempts < 2 {
			return syscall.ETIMEDOUT
		}
		return nil
	}, "test operation")

	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if attempts != 2 {
		t.Errorf("Expected 2 attempts, got: %d", attempts)
	}
}

func TestNoRetry(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), NoRetry(), func(context.Context) error {
		attempts++
		return syscall.ETIMEDOUT
	}, "single shot")

	if !errors.Is(err, syscall.ETIMEDOUT) {
		t.Errorf("Expected ETIMEDOUT, got: %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got: %d", attempts)
	}
}
