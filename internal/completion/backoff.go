package completion

import (
	"context"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// maxDelay caps a single wait, whatever the server asks for.
const maxDelay = time.Hour

// computeBackoff returns the delay before the next attempt, preferring the
// server's Retry-After hint over exponential growth from base. The result
// never exceeds maxDelay.
func computeBackoff(retryAfter string, base time.Duration, attempt int, now time.Time) time.Duration {
	if value := strings.TrimSpace(retryAfter); value != "" {
		if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
			if seconds >= 0 {
				if seconds > int64(maxDelay/time.Second) {
					return maxDelay
				}
				return time.Duration(seconds) * time.Second
			}
		} else if when, err := http.ParseTime(value); err == nil {
			delay := when.Sub(now).Truncate(time.Millisecond)
			if delay < base {
				delay = base
			}
			return min(delay, maxDelay)
		}
	}
	delay := base
	for i := 1; i < attempt && delay < maxDelay; i++ {
		delay *= 2
	}
	return min(delay, maxDelay)
}

// uniformJitter returns a random duration in [0, max], inclusive at millisecond granularity.
func uniformJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	ms := max.Milliseconds()
	return time.Duration(rand.Int63n(ms+1)) * time.Millisecond
}

// sleepContext waits for d or until ctx is done. Only the calling goroutine is suspended.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
