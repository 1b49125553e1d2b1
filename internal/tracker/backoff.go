package tracker

import "time"

// Backoff returns min(base*2^attempt, maxDelay). Negative attempts are treated
// as zero and the doubling stops as soon as the cap is reached, so large
// attempt counts cannot overflow.
func Backoff(base, maxDelay time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}
	delay := base
	for i := 0; i < attempt; i++ {
		if delay >= maxDelay {
			return maxDelay
		}
		delay *= 2
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}
