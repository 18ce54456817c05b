package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

type smtpCodeError struct{ code int }

func (e *smtpCodeError) Error() string { return fmt.Sprintf("smtp reply %d", e.code) }
func (e *smtpCodeError) SMTPCode() int { return e.code }

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"context canceled", context.Canceled, false},
		{"wrapped deadline", fmt.Errorf("dial: %w", context.DeadlineExceeded), false},
		{"i/o timeout", errors.New("read tcp: i/o timeout"), true},
		{"connection refused", errors.New("dial tcp 10.0.0.1:465: connect: connection refused"), true},
		{"auth rejected", errors.New("535 authentication failed"), false},
		{"smtp 421", &smtpCodeError{421}, true},
		{"smtp 550", &smtpCodeError{550}, false},
		{"wrapped smtp 451", fmt.Errorf("send: %w", &smtpCodeError{451}), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryableError(tt.err); got != tt.want {
				t.Errorf("IsRetryableError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsSMTPRetryableError(t *testing.T) {
	for code, want := range map[int]bool{250: false, 354: false, 400: true, 421: true, 499: true, 500: false, 554: false} {
		if got := IsSMTPRetryableError(code); got != want {
			t.Errorf("IsSMTPRetryableError(%d) = %v, want %v", code, got, want)
		}
	}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), nil, 3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return errors.New("connection reset by peer")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() = %v, want nil", err)
	}
	if calls != 3 {
		t.Errorf("operation called %d times, want 3", calls)
	}
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	calls := 0
	permanent := errors.New("550 mailbox unavailable")
	err := Do(context.Background(), nil, 5, time.Millisecond, func() error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("Do() = %v, want %v", err, permanent)
	}
	if calls != 1 {
		t.Errorf("operation called %d times, want 1", calls)
	}
}

func TestDo_ZeroRetriesIsSingleAttempt(t *testing.T) {
	calls := 0
	transient := errors.New("i/o timeout")
	err := Do(context.Background(), nil, 0, time.Millisecond, func() error {
		calls++
		return transient
	})
	if err != transient {
		t.Errorf("Do() = %v, want the unwrapped operation error", err)
	}
	if calls != 1 {
		t.Errorf("operation called %d times, want 1", calls)
	}
}

func TestDo_ExhaustsRetries(t *testing.T) {
	calls := 0
	err := Do(context.Background(), nil, 2, time.Millisecond, func() error {
		calls++
		return errors.New("i/o timeout")
	})
	if err == nil || !strings.Contains(err.Error(), "after 2 retries") {
		t.Errorf("Do() = %v, want exhausted-retries error", err)
	}
	if calls != 3 {
		t.Errorf("operation called %d times, want 3", calls)
	}
}

func TestDo_ContextCanceledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, nil, 3, time.Second, func() error {
		return errors.New("i/o timeout")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() = %v, want context.Canceled", err)
	}
}
