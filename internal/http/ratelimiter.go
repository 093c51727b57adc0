package httpapi

import (
	"time"

	"golang.org/x/time/rate"
)

// FlushLimiter adapts a token bucket to the RateLimiter interface used by
// the journal flush endpoint.
type FlushLimiter struct {
	limiter *rate.Limiter
}

// NewFlushLimiter allows burst forced flushes per window. A non-positive
// window or burst disables limiting.
func NewFlushLimiter(window time.Duration, burst int) *FlushLimiter {
	if window <= 0 || burst <= 0 {
		return &FlushLimiter{}
	}
	return &FlushLimiter{limiter: rate.NewLimiter(rate.Every(window), burst)}
}

// Allow reports whether the caller may proceed under the current rate limits.
func (l *FlushLimiter) Allow() bool {
	if l == nil || l.limiter == nil {
		return true
	}
	return l.limiter.Allow()
}
