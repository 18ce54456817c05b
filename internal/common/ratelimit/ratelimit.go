// Package ratelimit paces outbound requests with a token bucket.
// A limiter built with a non-positive rate is disabled and never blocks.
package ratelimit

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Limiter wraps rate.Limiter with a disabled state.
type Limiter struct {
	limiter *rate.Limiter
	rps     float64
}

// New creates a limiter allowing rps requests per second with a burst of one.
func New(rps float64) *Limiter {
	if rps <= 0 {
		return &Limiter{}
	}
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		rps:     rps,
	}
}

// Wait blocks until a request may proceed or ctx is done.
// A nil or disabled limiter returns immediately.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || l.limiter == nil {
		return nil
	}
	return l.limiter.Wait(ctx)
}

// Enabled reports whether the limiter paces requests.
func (l *Limiter) Enabled() bool {
	return l != nil && l.limiter != nil
}

// RPS returns the configured rate, 0 when disabled.
func (l *Limiter) RPS() float64 {
	if l == nil {
		return 0
	}
	return l.rps
}

func (l *Limiter) String() string {
	if !l.Enabled() {
		return "rate limit disabled"
	}
	if l.rps < 1 {
		return fmt.Sprintf("1 request per %.1fs", 1/l.rps)
	}
	return fmt.Sprintf("%.2f rps", l.rps)
}
