package resilience

import (
	"math/rand/v2"
	"time"
)

// Backoff is the delay before retry number attempt (1-based): base doubled per
// attempt, spread by ±jitterPct of itself. The worker uses it as the asynq
// retry delay for sale notifications.
func Backoff(base time.Duration, attempt int, jitterPct float64) time.Duration {
	attempt = max(attempt, 1)
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	d := base << uint(attempt-1)
	if jitterPct <= 0 {
		return d
	}
	spread := float64(d) * jitterPct
	return d + time.Duration((rand.Float64()*2-1)*spread)
}
