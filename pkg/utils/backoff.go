package utils

import "time"

// Backoff computes an exponential retry delay for the given attempt number.
// attempt is 1-based: attempt 1 waits base, attempt 2 waits 2*base, and so on,
// capped at cap. Invalid inputs fall back to base.
func Backoff(attempt int, base, cap time.Duration) time.Duration {
	if base <= 0 {
		base = time.Minute
	}
	if cap < base {
		cap = base
	}
	if attempt < 1 {
		attempt = 1
	}

	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	if d > cap {
		return cap
	}
	return d
}
