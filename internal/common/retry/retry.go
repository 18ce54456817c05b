package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"warrantyreport/internal/common/logger"
)

// maxDelay caps the exponential backoff between attempts.
const maxDelay = 30 * time.Second

// transientPatterns are error message fragments that indicate a network
// hiccup rather than a rejected request.
var transientPatterns = []string{
	"timeout",
	"connection reset",
	"connection refused",
	"temporary failure",
	"try again",
	"no such host",
	"network is unreachable",
	"broken pipe",
	"eof",
}

// IsRetryableError reports whether err looks transient.
// Context cancellation is never retryable.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var coded interface{ SMTPCode() int }
	if errors.As(err, &coded) {
		return IsSMTPRetryableError(coded.SMTPCode())
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// IsSMTPRetryableError reports whether an SMTP reply code is a 4xx
// temporary failure.
func IsSMTPRetryableError(code int) bool {
	return code >= 400 && code < 500
}

// Do runs operation up to maxRetries+1 times, doubling baseDelay after each
// retryable failure. Non-retryable errors are returned immediately.
//
//	err := retry.Do(ctx, log, 2, time.Second, func() error {
//	    return dispatcher.Send(ctx, report)
//	})
func Do(ctx context.Context, log *slog.Logger, maxRetries int, baseDelay time.Duration, operation func() error) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		lastErr = operation()
		if lastErr == nil {
			if attempt > 0 {
				logger.LogInfo(log, "Operation succeeded after retry", "retries", attempt)
			}
			return nil
		}

		if !IsRetryableError(lastErr) {
			return lastErr
		}
		if attempt == maxRetries {
			if maxRetries == 0 {
				return lastErr
			}
			return fmt.Errorf("operation failed after %d retries: %w", maxRetries, lastErr)
		}

		delay := baseDelay * time.Duration(1<<uint(attempt))
		if delay > maxDelay {
			delay = maxDelay
		}
		logger.LogWarn(log, "Retryable error, backing off",
			"attempt", attempt+1, "maxRetries", maxRetries, "delay", delay, "error", lastErr)

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(delay):
		}
	}

	return lastErr
}
