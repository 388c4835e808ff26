package download

import (
	"context"
	"net/http"
	"strconv"
	"time"
)

// Backoff returns the wait before retrying a failed attempt: base doubled for
// every prior failure (base, 2*base, 4*base, ...). attempt is 1-based.
func Backoff(attempt int, base time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base << (attempt - 1)
}

// RateLimitDelay returns the wait after an HTTP 429 response: the server's
// Retry-After hint when present, floored at min so a low hint never hammers
// the rate limiter.
func RateLimitDelay(h http.Header, min time.Duration) time.Duration {
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			if d := time.Duration(secs) * time.Second; d > min {
				return d
			}
		}
	}
	return min
}

// sleepCtx blocks for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
